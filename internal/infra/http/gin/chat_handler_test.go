package ginserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"braidly/internal/domain/chat"
	"braidly/internal/gateway"
	"braidly/internal/infra/config"
	"braidly/internal/infra/obs"
	"braidly/internal/infra/security"
	"braidly/internal/infra/storage/memory"
	"braidly/internal/infra/storage/s3"
	"braidly/internal/presence"
)

func testServer(t *testing.T) (*http.Server, *security.TokenVerifier, *memory.MessageStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	verifier, err := security.NewTokenVerifier("test-secret")
	require.NoError(t, err)

	convs := memory.NewConversationStore()
	convs.Seed(chat.Conversation{
		ID:           "conv-1",
		Participants: [2]string{"alice", "bob"},
		Status:       chat.ConversationActive,
		CreatedAt:    time.Now().UTC(),
	})
	msgs := memory.NewMessageStore()
	tracker := presence.NewTracker(memory.NewPresenceStore(), time.Minute, logger)
	pipe := gateway.NewPipeline(convs, msgs, nil, logger)
	hub := gateway.NewHub(pipe, tracker, logger)

	chatHandler := ChatHandler{
		Conversations: convs,
		Messages:      msgs,
		Pipeline:      pipe,
		Hub:           hub,
		Uploader:      s3.NoopUploader{},
		Logger:        logger,
	}
	presenceHandler := PresenceHandler{Tracker: tracker, Logger: logger}

	srv := NewServer(
		config.Config{Env: "test", HTTPAddr: ":0"},
		obs.Middleware{Logger: logger},
		obs.HealthHandlers{},
		Handlers{
			Chat:           chatHandler,
			Presence:       presenceHandler,
			AuthMiddleware: AuthMiddleware{Verifier: verifier, Logger: logger}.Handle,
		},
	)
	return srv, verifier, msgs
}

func bearer(t *testing.T, verifier *security.TokenVerifier, userID string) string {
	t.Helper()
	token, err := verifier.Sign(security.Identity{UserID: userID, Name: userID}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(srv *http.Server, method, target, auth string, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestRESTRequiresAuthentication(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/conversations", "", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, chat.CodeAuthenticationFailed, body["code"])
}

func TestListMessagesDeniedForNonParticipant(t *testing.T) {
	srv, verifier, _ := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/conversations/conv-1/messages", bearer(t, verifier, "mallory"), "")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, chat.CodeAccessDenied, body["code"])
}

func TestSendAndListMessagesOverREST(t *testing.T) {
	srv, verifier, _ := testServer(t)
	auth := bearer(t, verifier, "alice")

	rec := doRequest(srv, http.MethodPost, "/api/v1/conversations/conv-1/messages", auth,
		`{"content":"hello from rest"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var sent chat.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))
	assert.NotEmpty(t, sent.ID)
	assert.Equal(t, "alice", sent.SenderID)

	rec = doRequest(srv, http.MethodGet, "/api/v1/conversations/conv-1/messages?limit=10", auth, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Items   []chat.Message `json:"items"`
		HasMore bool           `json:"hasMore"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "hello from rest", page.Items[0].Content)
	assert.False(t, page.HasMore)
}

func TestMarkReadOverREST(t *testing.T) {
	srv, verifier, msgs := testServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/conversations/conv-1/messages", bearer(t, verifier, "alice"),
		`{"content":"read me"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sent chat.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))

	rec = doRequest(srv, http.MethodPost,
		"/api/v1/conversations/conv-1/messages/"+sent.ID+"/read", bearer(t, verifier, "bob"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	stored, ok := msgs.Get("conv-1", sent.ID)
	require.True(t, ok)
	assert.True(t, stored.IsRead)
}

func TestPresenceHeartbeatAndOffline(t *testing.T) {
	srv, verifier, _ := testServer(t)
	auth := bearer(t, verifier, "alice")

	rec := doRequest(srv, http.MethodPost, "/api/v1/presence/heartbeat", auth, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/presence/alice", auth, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var online presence.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &online))
	assert.True(t, online.Online)

	rec = doRequest(srv, http.MethodPost, "/api/v1/presence/offline", auth, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/presence/alice", auth, "")
	var offline presence.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &offline))
	assert.False(t, offline.Online)
}

func TestPresenceEndpointReportsOffline(t *testing.T) {
	srv, verifier, _ := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/presence/ghost", bearer(t, verifier, "alice"), "")

	require.Equal(t, http.StatusOK, rec.Code)
	var recBody presence.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recBody))
	assert.False(t, recBody.Online)
}
