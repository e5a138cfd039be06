package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"braidly/internal/domain/chat"
	"braidly/internal/infra/security"
	"braidly/internal/presence"
)

// Hub orchestrates room membership, the message pipeline and presence for
// all live connections. One Hub serves the whole process.
type Hub struct {
	registry *Registry
	pipeline *Pipeline
	tracker  *presence.Tracker
	logger   *slog.Logger
}

func NewHub(pipeline *Pipeline, tracker *presence.Tracker, logger *slog.Logger) *Hub {
	h := &Hub{
		registry: NewRegistry(),
		pipeline: pipeline,
		tracker:  tracker,
		logger:   logger,
	}
	tracker.SetChangeListener(h.BroadcastPresence)
	return h
}

// HandleConnection takes ownership of an upgraded, authenticated socket.
// It registers the connection, confirms the handshake and blocks until the
// read pump exits.
func (h *Hub) HandleConnection(ctx context.Context, ws *websocket.Conn, identity security.Identity) {
	c := newConn(h, ws, identity)
	h.registry.Add(c)

	if err := h.tracker.Heartbeat(ctx, identity.UserID); err != nil {
		h.logger.Warn("presence heartbeat on connect failed", "error", err, "user_id", identity.UserID)
	}

	c.Enqueue(NewEvent(EventWelcome, WelcomePayload{
		Message: "connected",
		UserID:  identity.UserID,
	}))
	h.logger.Info("connection established", "conn_id", c.ID, "user_id", identity.UserID)

	go c.writePump()
	c.readPump()
}

// dispatch routes one inbound event. Called from the connection's read pump,
// so events from a single sender are handled in the order they arrived.
func (h *Hub) dispatch(c *Conn, ev Event) {
	ctx := context.Background()

	switch ev.Type {
	case EventJoinConversation:
		var p JoinConversationPayload
		if err := ev.DecodePayload(&p); err != nil || p.ConversationID == "" {
			h.sendError(c, "invalid join payload", chat.CodeMalformedPayload, "")
			return
		}
		h.handleJoin(ctx, c, p.ConversationID)

	case EventSendMessage:
		var p SendMessagePayload
		if err := ev.DecodePayload(&p); err != nil {
			h.sendError(c, "invalid send payload", chat.CodeMalformedPayload, "")
			return
		}
		h.handleSend(ctx, c, p)

	case EventTyping:
		var p TypingPayload
		if err := ev.DecodePayload(&p); err != nil || p.ConversationID == "" {
			return
		}
		h.handleTyping(c, p)

	case EventHeartbeat:
		if err := h.tracker.Heartbeat(ctx, c.Identity.UserID); err != nil {
			h.logger.Warn("presence heartbeat failed", "error", err, "user_id", c.Identity.UserID)
		}

	case EventSubscribeBookings:
		var p SubscriptionPayload
		if err := ev.DecodePayload(&p); err != nil || p.BraiderID == "" {
			h.sendError(c, "invalid subscription payload", chat.CodeMalformedPayload, "")
			return
		}
		h.registry.Subscribe(c, notificationRoom(p.BraiderID))

	case EventUnsubscribeBookings:
		var p SubscriptionPayload
		if err := ev.DecodePayload(&p); err != nil || p.BraiderID == "" {
			return
		}
		h.registry.Unsubscribe(c, notificationRoom(p.BraiderID))

	default:
		h.logger.Debug("unknown event type", "type", ev.Type, "conn_id", c.ID)
	}
}

// handleJoin proves membership before any room state changes. A denied join
// produces exactly one error event and leaves the connection's rooms as they
// were.
func (h *Hub) handleJoin(ctx context.Context, c *Conn, conversationID string) {
	if err := h.pipeline.CanJoin(ctx, c.Identity.UserID, conversationID); err != nil {
		h.sendError(c, "cannot join conversation", chat.CodeFor(err), "")
		return
	}

	left := h.registry.JoinConversation(c, conversationID)
	if left != "" {
		h.announce(EventUserLeft, c, left)
	}
	h.announce(EventUserJoined, c, conversationID)
	h.logger.Debug("joined conversation", "conn_id", c.ID, "conversation_id", conversationID)
}

// handleSend runs the pipeline and fans the outcome out. The sender receives
// only the ack; other room members receive only the broadcast.
func (h *Hub) handleSend(ctx context.Context, c *Conn, p SendMessagePayload) {
	msg, env, err := h.pipeline.Send(ctx, c.Identity.UserID, p)
	if err != nil {
		h.sendError(c, "failed to send message", chat.CodeFor(err), p.TempID)
		return
	}

	if env != nil {
		h.handleControl(c, p, *env)
		return
	}

	c.Enqueue(NewEvent(EventMessageSent, MessageSentPayload{TempID: p.TempID, Message: *msg}))
	out := NewEvent(EventNewMessage, NewMessagePayload{Message: *msg})
	for _, member := range h.registry.ConversationMembers(p.ConversationID) {
		if member == c {
			continue
		}
		member.Enqueue(out)
	}
}

// handleControl applies a parsed control envelope. Control sends never
// persist; the sender still gets an ack carrying a synthetic message so its
// optimistic entry resolves.
func (h *Hub) handleControl(c *Conn, p SendMessagePayload, env chat.ControlEnvelope) {
	switch env.Action {
	case chat.ActionSubscribeBookings:
		h.registry.Subscribe(c, env.NotificationRoom())
	case chat.ActionUnsubscribeBookings:
		h.registry.Unsubscribe(c, env.NotificationRoom())
	case chat.ActionUpdateBookingStatus:
		if env.BraiderID != "" {
			h.NotifyBooking(env.BraiderID, BookingNotificationPayload{
				BraiderID: env.BraiderID,
				BookingID: env.BookingID,
				Status:    env.Status,
			})
		}
	}

	now := time.Now().UTC()
	c.Enqueue(NewEvent(EventMessageSent, MessageSentPayload{
		TempID: p.TempID,
		Message: chat.Message{
			ID:             p.TempID,
			ConversationID: p.ConversationID,
			SenderID:       c.Identity.UserID,
			Content:        p.Content,
			Type:           p.MessageType,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}))
}

func (h *Hub) handleTyping(c *Conn, p TypingPayload) {
	if h.registry.ActiveConversation(c) != p.ConversationID {
		return
	}
	name := p.UserName
	if name == "" {
		name = c.Identity.Name
	}
	out := NewEvent(EventUserTyping, UserTypingPayload{
		ConversationID: p.ConversationID,
		UserID:         c.Identity.UserID,
		UserName:       name,
		IsTyping:       p.IsTyping,
	})
	for _, member := range h.registry.ConversationMembers(p.ConversationID) {
		if member == c {
			continue
		}
		member.Enqueue(out)
	}
}

// disconnect tears down a connection's room state, announces the departure
// to every room it was in, and flips presence when this was the user's last
// socket.
func (h *Hub) disconnect(c *Conn) {
	conversationID, notificationRooms := h.registry.Remove(c)
	c.close()

	if conversationID != "" {
		h.announce(EventUserLeft, c, conversationID)
	}
	for _, room := range notificationRooms {
		out := NewEvent(EventUserLeft, RoomMemberPayload{
			ConversationID: room,
			UserID:         c.Identity.UserID,
			UserName:       c.Identity.Name,
			UserEmail:      c.Identity.Email,
		})
		for _, member := range h.registry.NotificationMembers(room) {
			member.Enqueue(out)
		}
	}

	if !h.userStillConnected(c.Identity.UserID) {
		if err := h.tracker.SetOffline(context.Background(), c.Identity.UserID); err != nil {
			h.logger.Warn("presence offline update failed", "error", err, "user_id", c.Identity.UserID)
		}
	}
	h.logger.Info("connection closed", "conn_id", c.ID, "user_id", c.Identity.UserID)
}

func (h *Hub) userStillConnected(userID string) bool {
	for _, other := range h.registry.All() {
		if other.Identity.UserID == userID {
			return true
		}
	}
	return false
}

// BroadcastPresence pushes a presence flip to every live connection. Wired
// as the tracker's change listener.
func (h *Hub) BroadcastPresence(rec presence.Record) {
	out := NewEvent(EventPresenceChanged, presencePayload(rec))
	for _, c := range h.registry.All() {
		c.Enqueue(out)
	}
}

// NotifyBooking delivers a booking event to a braider's notification room.
// This is also the delivery path for events consumed from the broker.
func (h *Hub) NotifyBooking(braiderID string, payload BookingNotificationPayload) {
	out := NewEvent(EventBookingNotification, payload)
	for _, c := range h.registry.NotificationMembers(notificationRoom(braiderID)) {
		c.Enqueue(out)
	}
}

// BroadcastNewMessage fans a persisted message out to its conversation room.
// Used by the REST send path, which has no originating socket to exclude.
func (h *Hub) BroadcastNewMessage(msg chat.Message) {
	out := NewEvent(EventNewMessage, NewMessagePayload{Message: msg})
	for _, c := range h.registry.ConversationMembers(msg.ConversationID) {
		c.Enqueue(out)
	}
}

// BroadcastMessageUpdate pushes a delivered/read flag change to the
// conversation room. Used by the REST read-receipt endpoint.
func (h *Hub) BroadcastMessageUpdate(p MessageUpdatedPayload) {
	out := NewEvent(EventMessageUpdated, p)
	for _, c := range h.registry.ConversationMembers(p.ConversationID) {
		c.Enqueue(out)
	}
}

func (h *Hub) announce(eventType string, c *Conn, conversationID string) {
	out := NewEvent(eventType, RoomMemberPayload{
		ConversationID: conversationID,
		UserID:         c.Identity.UserID,
		UserName:       c.Identity.Name,
		UserEmail:      c.Identity.Email,
	})
	for _, member := range h.registry.ConversationMembers(conversationID) {
		if member == c {
			continue
		}
		member.Enqueue(out)
	}
}

func (h *Hub) sendError(c *Conn, message, code, tempID string) {
	c.Enqueue(NewEvent(EventMessageError, MessageErrorPayload{
		Message: message,
		Code:    code,
		TempID:  tempID,
	}))
}

func notificationRoom(braiderID string) string {
	return "braider_" + braiderID
}
