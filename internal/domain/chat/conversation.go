package chat

import (
	"strings"
	"time"
)

// ConversationStatus describes the lifecycle of a two-party thread.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
	ConversationBlocked  ConversationStatus = "blocked"
)

// Conversation is a durable two-party chat thread. Membership is owned by
// the persistence layer; the gateway only reads it.
type Conversation struct {
	ID                 string
	Participants       [2]string
	Status             ConversationStatus
	LastMessageAt      time.Time
	LastMessageSnippet string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasParticipant reports whether userID is one of the two participants.
func (c Conversation) HasParticipant(userID string) bool {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Peer returns the other participant for userID, or "" when userID is not a
// member.
func (c Conversation) Peer(userID string) string {
	switch userID {
	case c.Participants[0]:
		return c.Participants[1]
	case c.Participants[1]:
		return c.Participants[0]
	default:
		return ""
	}
}
