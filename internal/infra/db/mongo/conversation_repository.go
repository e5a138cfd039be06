package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"braidly/internal/domain/chat"
)

// ConversationRepository persists two-party threads in the conversations
// collection. The gateway reads membership from here on every join and send.
type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection("conversations")}
}

func (r *ConversationRepository) ByID(ctx context.Context, id string) (*chat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, chat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

// Between returns the existing thread for the participant pair or creates one.
func (r *ConversationRepository) Between(ctx context.Context, userA, userB string) (*chat.Conversation, error) {
	var doc conversationDocument
	filter := bson.M{"participants": bson.M{"$all": []string{userA, userB}}}
	err := r.col.FindOne(ctx, filter).Decode(&doc)
	if err == nil {
		return doc.toAggregate(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	now := time.Now().UTC()
	conv := &chat.Conversation{
		ID:           uuid.NewString(),
		Participants: [2]string{userA, userB},
		Status:       chat.ConversationActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := r.col.InsertOne(ctx, newConversationDocument(conv)); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListForUser returns the user's threads newest-activity first.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]chat.Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "last_message_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := r.col.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	conversations := make([]chat.Conversation, 0, limit)
	for cursor.Next(ctx) {
		var doc conversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		conversations = append(conversations, *doc.toAggregate())
	}
	return conversations, cursor.Err()
}

// TouchLastMessage updates the preview shown in conversation lists.
func (r *ConversationRepository) TouchLastMessage(ctx context.Context, id, snippet string, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"last_message_at":      at.UTC().UnixMilli(),
		"last_message_snippet": snippet,
		"updated_at":           time.Now().UTC().UnixMilli(),
	}}
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

type conversationDocument struct {
	ID                 string   `bson:"_id"`
	Participants       []string `bson:"participants"`
	Status             string   `bson:"status"`
	LastMessageAt      int64    `bson:"last_message_at"`
	LastMessageSnippet string   `bson:"last_message_snippet"`
	CreatedAt          int64    `bson:"created_at"`
	UpdatedAt          int64    `bson:"updated_at"`
}

func newConversationDocument(c *chat.Conversation) conversationDocument {
	return conversationDocument{
		ID:                 c.ID,
		Participants:       []string{c.Participants[0], c.Participants[1]},
		Status:             string(c.Status),
		LastMessageAt:      c.LastMessageAt.UnixMilli(),
		LastMessageSnippet: c.LastMessageSnippet,
		CreatedAt:          c.CreatedAt.UnixMilli(),
		UpdatedAt:          c.UpdatedAt.UnixMilli(),
	}
}

func (d conversationDocument) toAggregate() *chat.Conversation {
	conv := &chat.Conversation{
		ID:                 d.ID,
		Status:             chat.ConversationStatus(d.Status),
		LastMessageAt:      timestampToTime(d.LastMessageAt),
		LastMessageSnippet: d.LastMessageSnippet,
		CreatedAt:          timestampToTime(d.CreatedAt),
		UpdatedAt:          timestampToTime(d.UpdatedAt),
	}
	if len(d.Participants) > 0 {
		conv.Participants[0] = d.Participants[0]
	}
	if len(d.Participants) > 1 {
		conv.Participants[1] = d.Participants[1]
	}
	return conv
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
