// Package memory holds in-memory store implementations used by tests and
// local runs without the backing services.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"braidly/internal/domain/chat"
	"braidly/internal/presence"
)

// ConversationStore is an in-memory conversation repository.
type ConversationStore struct {
	mu    sync.RWMutex
	items map[string]*chat.Conversation
}

// NewConversationStore builds an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{items: make(map[string]*chat.Conversation)}
}

// Seed stores a conversation directly, for tests and fixtures.
func (s *ConversationStore) Seed(conv chat.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := conv
	s.items[conv.ID] = &c
}

// ByID returns a conversation or chat.ErrConversationNotFound.
func (s *ConversationStore) ByID(ctx context.Context, id string) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.items[id]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	c := *conv
	return &c, nil
}

// Between returns the thread for the pair, creating it when absent.
func (s *ConversationStore) Between(ctx context.Context, userA, userB string) (*chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.items {
		if conv.HasParticipant(userA) && conv.HasParticipant(userB) {
			c := *conv
			return &c, nil
		}
	}
	now := time.Now().UTC()
	conv := &chat.Conversation{
		ID:           uuid.NewString(),
		Participants: [2]string{userA, userB},
		Status:       chat.ConversationActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.items[conv.ID] = conv
	c := *conv
	return &c, nil
}

// ListForUser returns the user's threads newest-activity first.
func (s *ConversationStore) ListForUser(ctx context.Context, userID string, limit int) ([]chat.Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]chat.Conversation, 0, limit)
	for _, conv := range s.items {
		if conv.HasParticipant(userID) {
			result = append(result, *conv)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// TouchLastMessage updates the conversation preview fields.
func (s *ConversationStore) TouchLastMessage(ctx context.Context, id, snippet string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.items[id]
	if !ok {
		return chat.ErrConversationNotFound
	}
	conv.LastMessageAt = at.UTC()
	conv.LastMessageSnippet = snippet
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

// MessageStore is an in-memory message log per conversation.
type MessageStore struct {
	mu      sync.RWMutex
	byConv  map[string][]chat.Message
	failure error
}

// NewMessageStore builds an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{byConv: make(map[string][]chat.Message)}
}

// FailWith makes every Append return err until reset with nil; lets tests
// exercise the persistence-error path.
func (s *MessageStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// Append stores a new message, newest last.
func (s *MessageStore) Append(ctx context.Context, conversationID, senderID, content string, msgType chat.MessageType, attachments []string, replyTo string) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return nil, s.failure
	}
	now := time.Now().UTC()
	msg := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           msgType,
		Attachments:    append([]string(nil), attachments...),
		ReplyTo:        replyTo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.byConv[conversationID] = append(s.byConv[conversationID], msg)
	return &msg, nil
}

// List returns messages newest to oldest with an optional before cursor.
func (s *MessageStore) List(ctx context.Context, conversationID string, limit int, before string) ([]chat.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.byConv[conversationID]
	result := make([]chat.Message, 0, limit)
	started := before == ""
	for i := len(log) - 1; i >= 0; i-- {
		if !started {
			if log[i].ID == before {
				started = true
			}
			continue
		}
		result = append(result, log[i])
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

// MarkDelivered flips the delivered flag.
func (s *MessageStore) MarkDelivered(ctx context.Context, conversationID, messageID string) error {
	return s.update(conversationID, messageID, func(m *chat.Message) {
		m.IsDelivered = true
		m.UpdatedAt = time.Now().UTC()
	})
}

// MarkRead flips read state and records the timestamp.
func (s *MessageStore) MarkRead(ctx context.Context, conversationID, messageID string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	return s.update(conversationID, messageID, func(m *chat.Message) {
		m.IsDelivered = true
		m.IsRead = true
		m.ReadAt = &at
		m.UpdatedAt = at
	})
}

var errMessageNotFound = errors.New("memory: message not found")

func (s *MessageStore) update(conversationID, messageID string, apply func(*chat.Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.byConv[conversationID]
	for i := range log {
		if log[i].ID == messageID {
			apply(&log[i])
			return nil
		}
	}
	return errMessageNotFound
}

// Get returns a stored message, for assertions in tests.
func (s *MessageStore) Get(conversationID, messageID string) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.byConv[conversationID] {
		if m.ID == messageID {
			return m, true
		}
	}
	return chat.Message{}, false
}

// PresenceStore is an in-memory presence.Store.
type PresenceStore struct {
	mu    sync.RWMutex
	items map[string]presence.Record
}

// NewPresenceStore builds an empty store.
func NewPresenceStore() *PresenceStore {
	return &PresenceStore{items: make(map[string]presence.Record)}
}

func (s *PresenceStore) Get(ctx context.Context, userID string) (presence.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.items[userID]
	if !ok {
		return presence.Record{UserID: userID}, nil
	}
	return rec, nil
}

func (s *PresenceStore) Put(ctx context.Context, rec presence.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[rec.UserID] = rec
	return nil
}

func (s *PresenceStore) Online(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.items))
	for userID, rec := range s.items {
		if rec.Online {
			out = append(out, userID)
		}
	}
	return out, nil
}
