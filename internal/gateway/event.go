package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"braidly/internal/domain/chat"
	"braidly/internal/presence"
)

// Client -> server event types.
const (
	EventJoinConversation    = "join-conversation"
	EventSendMessage         = "send-message"
	EventTyping              = "typing"
	EventHeartbeat           = "heartbeat"
	EventSubscribeBookings   = "subscribe-bookings"
	EventUnsubscribeBookings = "unsubscribe-bookings"
)

// Server -> client event types.
const (
	EventWelcome             = "welcome"
	EventMessageSent         = "message-sent"
	EventNewMessage          = "new-message"
	EventMessageUpdated      = "message-updated"
	EventMessageError        = "message-error"
	EventUserJoined          = "user-joined"
	EventUserLeft            = "user-left"
	EventUserTyping          = "user-typing"
	EventPresenceChanged     = "presence-changed"
	EventBookingNotification = "booking-notification"
)

// Event is the tagged union exchanged over the socket. Type discriminates
// which payload shape applies.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodePayload unmarshals the payload into the typed target.
func (e Event) DecodePayload(target any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	return json.Unmarshal(e.Payload, target)
}

// NewEvent marshals the payload into an Event envelope. Payload types are
// plain structs, so marshalling cannot fail in practice; a failure is
// reported as a zero event to keep call sites simple.
func NewEvent(eventType string, payload any) Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{Type: eventType}
	}
	return Event{Type: eventType, Payload: raw}
}

// JoinConversationPayload switches the connection's active conversation room.
type JoinConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// SendMessagePayload runs the message pipeline.
type SendMessagePayload struct {
	ConversationID string           `json:"conversationId"`
	Content        string           `json:"content"`
	MessageType    chat.MessageType `json:"messageType"`
	TempID         string           `json:"tempId"`
	Attachments    []string         `json:"attachments,omitempty"`
	ReplyTo        string           `json:"replyToMessageId,omitempty"`
}

// TypingPayload relays an ephemeral typing signal to room peers.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
	UserName       string `json:"userName,omitempty"`
}

// SubscriptionPayload joins or leaves a braider notification room.
type SubscriptionPayload struct {
	BraiderID string `json:"braiderId"`
}

// WelcomePayload confirms a completed handshake.
type WelcomePayload struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// MessageSentPayload acknowledges the sender, carrying the original tempId
// and the canonical persisted message for reconciliation.
type MessageSentPayload struct {
	TempID  string       `json:"tempId"`
	Message chat.Message `json:"message"`
}

// NewMessagePayload fans a persisted message out to other room members.
type NewMessagePayload struct {
	Message chat.Message `json:"message"`
}

// MessageUpdatedPayload broadcasts delivered/read flag flips.
type MessageUpdatedPayload struct {
	ConversationID string     `json:"conversationId"`
	MessageID      string     `json:"messageId"`
	IsDelivered    bool       `json:"isDelivered"`
	IsRead         bool       `json:"isRead"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// MessageErrorPayload reports a rejected send with a stable code.
type MessageErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	TempID  string `json:"tempId,omitempty"`
}

// RoomMemberPayload announces membership changes to room peers.
type RoomMemberPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	UserEmail      string `json:"userEmail"`
}

// UserTypingPayload is the relayed typing signal.
type UserTypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	IsTyping       bool   `json:"isTyping"`
}

// PresenceChangedPayload pushes a presence flip to subscribers.
type PresenceChangedPayload struct {
	UserID       string    `json:"userId"`
	IsOnline     bool      `json:"isOnline"`
	LastSeen     time.Time `json:"lastSeen"`
	LastActivity time.Time `json:"lastActivity"`
}

func presencePayload(rec presence.Record) PresenceChangedPayload {
	return PresenceChangedPayload{
		UserID:       rec.UserID,
		IsOnline:     rec.Online,
		LastSeen:     rec.LastSeen,
		LastActivity: rec.LastActivity,
	}
}

// BookingNotificationPayload relays a booking domain event verbatim to a
// braider notification room. Data is opaque to the gateway.
type BookingNotificationPayload struct {
	BraiderID string          `json:"braiderId"`
	BookingID string          `json:"bookingId,omitempty"`
	Status    string          `json:"status,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}
