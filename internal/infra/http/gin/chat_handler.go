package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"braidly/internal/domain/chat"
	"braidly/internal/gateway"
	"braidly/internal/infra/storage/s3"
)

// ConversationDirectory is the conversation lookup surface the REST layer
// needs.
type ConversationDirectory interface {
	ByID(ctx context.Context, id string) (*chat.Conversation, error)
	Between(ctx context.Context, userA, userB string) (*chat.Conversation, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]chat.Conversation, error)
}

// MessageLister pages through a conversation's history newest-first.
type MessageLister interface {
	List(ctx context.Context, conversationID string, limit int, before string) ([]chat.Message, error)
}

// ChatHandler is the REST companion to the websocket gateway: history,
// conversation previews, read receipts and attachment uploads.
type ChatHandler struct {
	Conversations ConversationDirectory
	Messages      MessageLister
	Pipeline      *gateway.Pipeline
	Hub           *gateway.Hub
	Uploader      s3.Uploader
	Logger        *slog.Logger
}

// ListMyConversations returns the caller's conversation previews, most
// recently active first.
func (h ChatHandler) ListMyConversations(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	limit := parsePositiveInt(c.Query("limit"), 20)

	conversations, err := h.Conversations.ListForUser(c.Request.Context(), identity.UserID, limit)
	if err != nil {
		h.respondChatError(c, err, "list conversations", "user_id", identity.UserID)
		return
	}

	items := make([]conversationView, 0, len(conversations))
	for _, conv := range conversations {
		items = append(items, newConversationView(conv, identity.UserID))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// OpenConversation finds or creates the exclusive thread between the caller
// and a peer.
func (h ChatHandler) OpenConversation(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req struct {
		PeerID string `json:"peerId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PeerID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "peerId is required", "code": chat.CodeMalformedPayload})
		return
	}
	if req.PeerID == identity.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open a conversation with yourself", "code": chat.CodeMalformedPayload})
		return
	}

	conv, err := h.Conversations.Between(c.Request.Context(), identity.UserID, req.PeerID)
	if err != nil {
		h.respondChatError(c, err, "open conversation", "user_id", identity.UserID, "peer_id", req.PeerID)
		return
	}
	c.JSON(http.StatusOK, newConversationView(*conv, identity.UserID))
}

// ListMessages pages a conversation's history. hasMore is true iff the page
// came back full; clients pass the oldest message id back as `before`.
func (h ChatHandler) ListMessages(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	if err := h.Pipeline.CanJoin(c.Request.Context(), identity.UserID, conversationID); err != nil {
		h.respondChatError(c, err, "load conversation", "conversation_id", conversationID, "user_id", identity.UserID)
		return
	}

	limit := parsePositiveInt(c.Query("limit"), 50)
	before := c.Query("before")

	messages, err := h.Messages.List(c.Request.Context(), conversationID, limit, before)
	if err != nil {
		h.respondChatError(c, err, "list messages", "conversation_id", conversationID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":   messages,
		"hasMore": len(messages) == limit,
	})
}

// SendMessage appends a message over REST and fans it out to any sockets in
// the room. The websocket path is preferred; this covers clients without a
// live connection.
func (h ChatHandler) SendMessage(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	var req struct {
		Content     string           `json:"content"`
		MessageType chat.MessageType `json:"messageType"`
		Attachments []string         `json:"attachments"`
		ReplyTo     string           `json:"replyToMessageId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "code": chat.CodeMalformedPayload})
		return
	}

	msg, env, err := h.Pipeline.Send(c.Request.Context(), identity.UserID, gateway.SendMessagePayload{
		ConversationID: conversationID,
		Content:        req.Content,
		MessageType:    req.MessageType,
		Attachments:    req.Attachments,
		ReplyTo:        req.ReplyTo,
	})
	if err != nil {
		h.respondChatError(c, err, "send message", "conversation_id", conversationID, "user_id", identity.UserID)
		return
	}
	if env != nil {
		// control envelopes are socket concerns; REST acknowledges without
		// touching any room
		c.JSON(http.StatusAccepted, gin.H{"action": env.Action})
		return
	}

	if h.Hub != nil {
		h.Hub.BroadcastNewMessage(*msg)
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead flips a message's read flag and notifies the room.
func (h ChatHandler) MarkRead(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	messageID := c.Param("messageId")

	update, err := h.Pipeline.MarkRead(c.Request.Context(), identity.UserID, conversationID, messageID)
	if err != nil {
		h.respondChatError(c, err, "mark read", "conversation_id", conversationID, "message_id", messageID)
		return
	}
	if h.Hub != nil {
		h.Hub.BroadcastMessageUpdate(update)
	}
	c.JSON(http.StatusOK, update)
}

// UploadAttachment stores one multipart file and returns the URL to embed in
// a subsequent send.
func (h ChatHandler) UploadAttachment(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	if err := h.Pipeline.CanJoin(c.Request.Context(), identity.UserID, conversationID); err != nil {
		h.respondChatError(c, err, "upload attachment", "conversation_id", conversationID, "user_id", identity.UserID)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required", "code": chat.CodeMalformedPayload})
		return
	}
	defer file.Close()

	url, err := h.Uploader.UploadAttachment(c.Request.Context(), conversationID, header.Filename, file, header.Header.Get("Content-Type"))
	if err != nil {
		h.Logger.Error("attachment upload failed", "error", err, "conversation_id", conversationID)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed", "code": chat.CodePersistenceError})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

type conversationView struct {
	ID                 string    `json:"id"`
	PeerID             string    `json:"peerId"`
	Status             string    `json:"status"`
	LastMessageAt      time.Time `json:"lastMessageAt"`
	LastMessageSnippet string    `json:"lastMessageSnippet,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

func newConversationView(conv chat.Conversation, viewerID string) conversationView {
	return conversationView{
		ID:                 conv.ID,
		PeerID:             conv.Peer(viewerID),
		Status:             string(conv.Status),
		LastMessageAt:      conv.LastMessageAt,
		LastMessageSnippet: conv.LastMessageSnippet,
		CreatedAt:          conv.CreatedAt,
	}
}

func (h ChatHandler) respondChatError(c *gin.Context, err error, action string, args ...any) {
	code := chat.CodeFor(err)
	switch {
	case errors.Is(err, chat.ErrAccessDenied), errors.Is(err, chat.ErrConversationNotFound):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant", "code": code})
	case errors.Is(err, chat.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": code})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat "+action+" failed", append([]any{"error", err}, args...)...)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable", "code": code})
	}
}

func parsePositiveInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
