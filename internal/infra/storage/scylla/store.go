package scylla

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"braidly/internal/domain/chat"
)

// Store wraps Scylla queries for chat messages. Messages are partitioned by
// conversation with timeuuid clustering, newest first.
type Store struct {
	session *gocql.Session
	logger  *slog.Logger
}

// NewStore builds a Store.
func NewStore(session *gocql.Session, logger *slog.Logger) *Store {
	return &Store{session: session, logger: logger}
}

// Append inserts a new message row with timestamps generated at write time.
func (s *Store) Append(ctx context.Context, conversationID, senderID, content string, msgType chat.MessageType, attachments []string, replyTo string) (*chat.Message, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	now := time.Now().UTC()
	messageID := gocql.TimeUUID()
	if err := s.session.
		Query(`INSERT INTO messages (conversation_id, message_id, sender_id, content, message_type, attachments, reply_to, is_delivered, is_read, is_edited, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, false, false, false, ?, ?)`,
			conversationID, messageID, senderID, content, string(msgType), attachments, replyTo, now, now).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec(); err != nil {
		return nil, err
	}
	return &chat.Message{
		ID:             messageID.String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           msgType,
		Attachments:    attachments,
		ReplyTo:        replyTo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// List returns messages newest to oldest with an optional before cursor.
func (s *Store) List(ctx context.Context, conversationID string, limit int, before string) ([]chat.Message, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var iter *gocql.Iter
	if trimmed := strings.TrimSpace(before); trimmed != "" {
		cursor, err := gocql.ParseUUID(trimmed)
		if err != nil {
			return nil, err
		}
		iter = s.session.
			Query(`SELECT message_id, sender_id, content, message_type, attachments, reply_to, is_delivered, is_read, read_at, is_edited, edited_at, created_at, updated_at FROM messages WHERE conversation_id = ? AND message_id < ? ORDER BY message_id DESC LIMIT ?`,
				conversationID, cursor, limit).
			WithContext(ctx).
			Consistency(gocql.One).
			Iter()
	} else {
		iter = s.session.
			Query(`SELECT message_id, sender_id, content, message_type, attachments, reply_to, is_delivered, is_read, read_at, is_edited, edited_at, created_at, updated_at FROM messages WHERE conversation_id = ? ORDER BY message_id DESC LIMIT ?`,
				conversationID, limit).
			WithContext(ctx).
			Consistency(gocql.One).
			Iter()
	}

	messages := make([]chat.Message, 0, limit)
	var (
		messageID   gocql.UUID
		senderID    string
		content     string
		messageType string
		attachments []string
		replyTo     string
		isDelivered bool
		isRead      bool
		readAt      time.Time
		isEdited    bool
		editedAt    time.Time
		createdAt   time.Time
		updatedAt   time.Time
	)
	for iter.Scan(&messageID, &senderID, &content, &messageType, &attachments, &replyTo, &isDelivered, &isRead, &readAt, &isEdited, &editedAt, &createdAt, &updatedAt) {
		msg := chat.Message{
			ID:             messageID.String(),
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        content,
			Type:           chat.MessageType(messageType),
			Attachments:    append([]string(nil), attachments...),
			ReplyTo:        replyTo,
			IsDelivered:    isDelivered,
			IsRead:         isRead,
			IsEdited:       isEdited,
			CreatedAt:      createdAt,
			UpdatedAt:      updatedAt,
		}
		if !readAt.IsZero() {
			t := readAt
			msg.ReadAt = &t
		}
		if !editedAt.IsZero() {
			t := editedAt
			msg.EditedAt = &t
		}
		messages = append(messages, msg)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkDelivered flips the delivered flag for a single message.
func (s *Store) MarkDelivered(ctx context.Context, conversationID, messageID string) error {
	if s.session == nil {
		return errors.New("scylla session not initialized")
	}
	id, err := gocql.ParseUUID(strings.TrimSpace(messageID))
	if err != nil {
		return err
	}
	return s.session.
		Query(`UPDATE messages SET is_delivered = true, updated_at = ? WHERE conversation_id = ? AND message_id = ?`,
			time.Now().UTC(), conversationID, id).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec()
}

// MarkRead flips read state and records the read timestamp.
func (s *Store) MarkRead(ctx context.Context, conversationID, messageID string, at time.Time) error {
	if s.session == nil {
		return errors.New("scylla session not initialized")
	}
	id, err := gocql.ParseUUID(strings.TrimSpace(messageID))
	if err != nil {
		return err
	}
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	return s.session.
		Query(`UPDATE messages SET is_delivered = true, is_read = true, read_at = ?, updated_at = ? WHERE conversation_id = ? AND message_id = ?`,
			at, at, conversationID, id).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec()
}
