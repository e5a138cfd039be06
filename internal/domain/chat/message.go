package chat

import (
	"strings"
	"time"
)

// MessageType discriminates chat payloads from booking control envelopes.
type MessageType string

const (
	MessageText                MessageType = "text"
	MessageImage               MessageType = "image"
	MessageFile                MessageType = "file"
	MessageBookingRequest      MessageType = "booking_request"
	MessageBookingConfirmation MessageType = "booking_confirmation"
)

// IsControl reports whether the type carries a control envelope instead of
// user content.
func (t MessageType) IsControl() bool {
	return t == MessageBookingRequest || t == MessageBookingConfirmation
}

// Valid reports whether the type is one the pipeline accepts.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageBookingRequest, MessageBookingConfirmation:
		return true
	}
	return false
}

// Message is a durable chat message belonging to exactly one conversation.
// The sender must be a participant of that conversation.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	Content        string      `json:"content"`
	Type           MessageType `json:"messageType"`
	Attachments    []string    `json:"attachments,omitempty"`
	ReplyTo        string      `json:"replyToMessageId,omitempty"`
	IsDelivered    bool        `json:"isDelivered"`
	IsRead         bool        `json:"isRead"`
	ReadAt         *time.Time  `json:"readAt,omitempty"`
	IsEdited       bool        `json:"isEdited"`
	EditedAt       *time.Time  `json:"editedAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// DeliveryStatus is the per-client lifecycle of a single message:
// sending -> sent -> delivered -> read, or sending -> failed.
type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// Snippet returns a preview of the content bounded to max runes, used for
// conversation list previews.
func Snippet(content string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}
