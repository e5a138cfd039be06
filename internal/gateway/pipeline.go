package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"braidly/internal/domain/chat"
)

// ConversationStore is the persistence collaborator for thread membership.
type ConversationStore interface {
	ByID(ctx context.Context, id string) (*chat.Conversation, error)
	TouchLastMessage(ctx context.Context, id, snippet string, at time.Time) error
}

// MessageStore is the persistence collaborator for message rows.
type MessageStore interface {
	Append(ctx context.Context, conversationID, senderID, content string, msgType chat.MessageType, attachments []string, replyTo string) (*chat.Message, error)
	MarkDelivered(ctx context.Context, conversationID, messageID string) error
	MarkRead(ctx context.Context, conversationID, messageID string, at time.Time) error
}

// BookingPublisher forwards update_booking_status control actions back to
// the platform.
type BookingPublisher interface {
	PublishBookingStatus(ctx context.Context, env chat.ControlEnvelope) error
}

// Pipeline validates, persists and classifies inbound sends. Fan-out is the
// hub's job; the pipeline owns everything that talks to storage.
type Pipeline struct {
	conversations ConversationStore
	messages      MessageStore
	bookings      BookingPublisher
	logger        *slog.Logger
}

// NewPipeline builds a Pipeline. bookings may be nil when Kafka is not
// configured; update_booking_status actions are then relayed without
// forwarding.
func NewPipeline(conversations ConversationStore, messages MessageStore, bookings BookingPublisher, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		conversations: conversations,
		messages:      messages,
		bookings:      bookings,
		logger:        logger,
	}
}

// CanJoin checks membership by loading the conversation's participant pair.
// Returns chat.ErrAccessDenied for non-members; missing conversations map to
// the same denied condition for the caller.
func (p *Pipeline) CanJoin(ctx context.Context, userID, conversationID string) error {
	conv, err := p.conversations.ByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return chat.ErrAccessDenied
	}
	return nil
}

// Send runs the message pipeline for one inbound send. Exactly one of the
// returned message and envelope is non-nil on success: control envelopes
// never persist a message row, regular sends always do.
//
// Membership is re-proven on every send, not just at join time.
func (p *Pipeline) Send(ctx context.Context, userID string, payload SendMessagePayload) (*chat.Message, *chat.ControlEnvelope, error) {
	msgType := payload.MessageType
	if msgType == "" {
		msgType = chat.MessageText
	}
	if !msgType.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown messageType %q", chat.ErrMalformedPayload, payload.MessageType)
	}

	if msgType.IsControl() {
		env, err := chat.ParseControlEnvelope(payload.Content)
		if err != nil {
			return nil, nil, err
		}
		if env.Action == chat.ActionUpdateBookingStatus && p.bookings != nil {
			if err := p.bookings.PublishBookingStatus(ctx, env); err != nil {
				p.logger.Warn("booking status forward failed", "error", err, "booking_id", env.BookingID)
			}
		}
		return nil, &env, nil
	}

	if err := p.CanJoin(ctx, userID, payload.ConversationID); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(payload.Content) == "" && len(payload.Attachments) == 0 {
		return nil, nil, fmt.Errorf("%w: empty message", chat.ErrMalformedPayload)
	}

	msg, err := p.messages.Append(ctx, payload.ConversationID, userID, payload.Content, msgType, payload.Attachments, payload.ReplyTo)
	if err != nil {
		return nil, nil, fmt.Errorf("persist message: %w", err)
	}
	// best-effort preview update
	if err := p.conversations.TouchLastMessage(ctx, payload.ConversationID, chat.Snippet(msg.Content, 500), msg.CreatedAt); err != nil {
		p.logger.Warn("failed to update conversation preview", "error", err, "conversation_id", payload.ConversationID)
	}
	return msg, nil, nil
}

// MarkRead flips a message's read state after re-checking membership and
// returns the update notification for the room.
func (p *Pipeline) MarkRead(ctx context.Context, userID, conversationID, messageID string) (MessageUpdatedPayload, error) {
	if err := p.CanJoin(ctx, userID, conversationID); err != nil {
		return MessageUpdatedPayload{}, err
	}
	now := time.Now().UTC()
	if err := p.messages.MarkRead(ctx, conversationID, messageID, now); err != nil {
		return MessageUpdatedPayload{}, fmt.Errorf("mark read: %w", err)
	}
	return MessageUpdatedPayload{
		ConversationID: conversationID,
		MessageID:      messageID,
		IsDelivered:    true,
		IsRead:         true,
		ReadAt:         &now,
	}, nil
}

// MarkDelivered flips a message's delivered flag and returns the update
// notification for the room.
func (p *Pipeline) MarkDelivered(ctx context.Context, userID, conversationID, messageID string) (MessageUpdatedPayload, error) {
	if err := p.CanJoin(ctx, userID, conversationID); err != nil {
		return MessageUpdatedPayload{}, err
	}
	if err := p.messages.MarkDelivered(ctx, conversationID, messageID); err != nil {
		return MessageUpdatedPayload{}, fmt.Errorf("mark delivered: %w", err)
	}
	return MessageUpdatedPayload{
		ConversationID: conversationID,
		MessageID:      messageID,
		IsDelivered:    true,
	}, nil
}
