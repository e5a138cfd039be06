package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceCallsHitGatewayEndpoints(t *testing.T) {
	var gotPaths []string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.Method+" "+r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	api := &APIClient{Client: srv.Client(), BaseURL: srv.URL, Token: "tok-1"}

	require.NoError(t, api.Heartbeat(context.Background()))
	require.NoError(t, api.Offline(context.Background()))

	assert.Equal(t, []string{
		"POST /api/v1/presence/heartbeat",
		"POST /api/v1/presence/offline",
	}, gotPaths)
	assert.Equal(t, "Bearer tok-1", gotAuth)
}

func TestRESTErrorCarriesGatewayCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"not a conversation participant","code":"CONVERSATION_ACCESS_DENIED"}`))
	}))
	defer srv.Close()

	api := &APIClient{Client: srv.Client(), BaseURL: srv.URL, Token: "tok-1"}

	_, _, err := api.ListMessages(context.Background(), "conv-1", 10, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONVERSATION_ACCESS_DENIED")
}
