package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"braidly/internal/domain/chat"
	"braidly/internal/gateway"
)

// HistoryAPI is the REST slice the synchronizer needs. Satisfied by
// *APIClient.
type HistoryAPI interface {
	ListMessages(ctx context.Context, conversationID string, limit int, before string) ([]chat.Message, bool, error)
	MarkRead(ctx context.Context, conversationID, messageID string) (gateway.MessageUpdatedPayload, error)
}

// Sender writes events to the gateway. Satisfied by *Client.
type Sender interface {
	Send(ev gateway.Event) error
}

// Entry is one message in the local timeline together with its delivery
// status. Optimistic entries carry the tempId as their id until the ack
// swaps in the canonical message.
type Entry struct {
	Message chat.Message
	Status  chat.DeliveryStatus
	TempID  string
}

// Synchronizer keeps a single conversation's local timeline consistent with
// the gateway: optimistic sends, ack reconciliation, inbound dedupe, history
// pagination and read receipts.
type Synchronizer struct {
	conversationID string
	userID         string
	transport      Sender
	api            HistoryAPI
	logger         *slog.Logger
	pageSize       int

	mu      sync.Mutex
	entries []Entry
	known   map[string]int
	pending map[string]int
	hasMore bool
}

func NewSynchronizer(conversationID, userID string, transport Sender, api HistoryAPI, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		conversationID: conversationID,
		userID:         userID,
		transport:      transport,
		api:            api,
		logger:         logger,
		pageSize:       50,
		known:          make(map[string]int),
		pending:        make(map[string]int),
		hasMore:        true,
	}
}

// SendText appends an optimistic entry and ships the send. The returned
// tempId identifies the entry until the gateway acks it.
func (s *Synchronizer) SendText(content string, messageType chat.MessageType) (string, error) {
	tempID := uuid.NewString()
	now := time.Now().UTC()

	s.mu.Lock()
	s.appendLocked(Entry{
		Message: chat.Message{
			ID:             tempID,
			ConversationID: s.conversationID,
			SenderID:       s.userID,
			Content:        content,
			Type:           messageType,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		Status: chat.StatusSending,
		TempID: tempID,
	})
	s.pending[tempID] = s.known[tempID]
	s.mu.Unlock()

	err := s.transport.Send(gateway.NewEvent(gateway.EventSendMessage, gateway.SendMessagePayload{
		ConversationID: s.conversationID,
		Content:        content,
		MessageType:    messageType,
		TempID:         tempID,
	}))
	if err != nil {
		s.failPending(tempID)
		return tempID, fmt.Errorf("send message: %w", err)
	}
	return tempID, nil
}

// HandleEvent folds one server event into the timeline. Events for other
// conversations are ignored.
func (s *Synchronizer) HandleEvent(ev gateway.Event) {
	switch ev.Type {
	case gateway.EventMessageSent:
		var p gateway.MessageSentPayload
		if err := ev.DecodePayload(&p); err != nil {
			return
		}
		s.reconcileAck(p)

	case gateway.EventNewMessage:
		var p gateway.NewMessagePayload
		if err := ev.DecodePayload(&p); err != nil {
			return
		}
		s.ingest(p.Message)

	case gateway.EventMessageUpdated:
		var p gateway.MessageUpdatedPayload
		if err := ev.DecodePayload(&p); err != nil {
			return
		}
		s.applyUpdate(p)

	case gateway.EventMessageError:
		var p gateway.MessageErrorPayload
		if err := ev.DecodePayload(&p); err != nil {
			return
		}
		if p.TempID != "" {
			s.failPending(p.TempID)
		}
	}
}

// reconcileAck swaps the optimistic entry for the canonical message in
// place, preserving timeline position.
func (s *Synchronizer) reconcileAck(p gateway.MessageSentPayload) {
	if p.Message.ConversationID != s.conversationID && p.Message.ConversationID != "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.pending[p.TempID]
	if !ok {
		return
	}
	delete(s.pending, p.TempID)
	delete(s.known, p.TempID)

	s.entries[idx] = Entry{Message: p.Message, Status: chat.StatusSent}
	s.known[p.Message.ID] = idx
}

// ingest adds an inbound message, dropping anything already known. Redelivery
// after reconnect must not duplicate the timeline.
func (s *Synchronizer) ingest(msg chat.Message) {
	if msg.ConversationID != s.conversationID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.known[msg.ID]; seen {
		return
	}
	s.appendLocked(Entry{Message: msg, Status: chat.StatusDelivered})
}

func (s *Synchronizer) applyUpdate(p gateway.MessageUpdatedPayload) {
	if p.ConversationID != s.conversationID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.known[p.MessageID]
	if !ok {
		return
	}
	e := &s.entries[idx]
	e.Message.IsDelivered = e.Message.IsDelivered || p.IsDelivered
	if p.IsRead {
		e.Message.IsRead = true
		e.Message.ReadAt = p.ReadAt
		e.Status = chat.StatusRead
	} else if p.IsDelivered && e.Status == chat.StatusSent {
		e.Status = chat.StatusDelivered
	}
}

// failPending drops the optimistic entry. failed is terminal: the message
// never reached storage, so nothing may keep occupying timeline space as if
// it had.
func (s *Synchronizer) failPending(tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.pending[tempID]
	if !ok {
		return
	}
	delete(s.pending, tempID)
	delete(s.known, tempID)
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	s.reindexLocked()
}

// LoadOlder fetches the next history page and prepends it. hasMore stays
// true iff the page came back full.
func (s *Synchronizer) LoadOlder(ctx context.Context) error {
	s.mu.Lock()
	if !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	before := ""
	for _, e := range s.entries {
		if e.TempID == "" {
			before = e.Message.ID
			break
		}
	}
	limit := s.pageSize
	s.mu.Unlock()

	page, hasMore, err := s.api.ListMessages(ctx, s.conversationID, limit, before)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasMore = hasMore

	// page arrives newest-first; prepend oldest-first while deduping
	older := make([]Entry, 0, len(page))
	for i := len(page) - 1; i >= 0; i-- {
		msg := page[i]
		if _, seen := s.known[msg.ID]; seen {
			continue
		}
		older = append(older, Entry{Message: msg, Status: statusOf(msg)})
	}
	s.entries = append(older, s.entries...)
	s.reindexLocked()
	return nil
}

// MarkAsRead flips the entry optimistically, then reconciles with the
// server's canonical update. The optimistic flip is undone on failure.
func (s *Synchronizer) MarkAsRead(ctx context.Context, messageID string) error {
	s.mu.Lock()
	idx, ok := s.known[messageID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("mark read: unknown message %s", messageID)
	}
	wasRead := s.entries[idx].Message.IsRead
	s.entries[idx].Message.IsRead = true
	s.mu.Unlock()

	update, err := s.api.MarkRead(ctx, s.conversationID, messageID)
	if err != nil {
		s.mu.Lock()
		if idx, ok := s.known[messageID]; ok {
			s.entries[idx].Message.IsRead = wasRead
		}
		s.mu.Unlock()
		return fmt.Errorf("mark read: %w", err)
	}
	s.applyUpdate(update)
	return nil
}

// Messages snapshots the timeline oldest-first.
func (s *Synchronizer) Messages() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// HasMore reports whether older history pages remain.
func (s *Synchronizer) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

func (s *Synchronizer) appendLocked(e Entry) {
	s.entries = append(s.entries, e)
	s.known[e.Message.ID] = len(s.entries) - 1
}

func (s *Synchronizer) reindexLocked() {
	s.known = make(map[string]int, len(s.entries))
	for i, e := range s.entries {
		s.known[e.Message.ID] = i
		if e.TempID != "" && e.Status == chat.StatusSending {
			s.pending[e.TempID] = i
		}
	}
}

func statusOf(msg chat.Message) chat.DeliveryStatus {
	switch {
	case msg.IsRead:
		return chat.StatusRead
	case msg.IsDelivered:
		return chat.StatusDelivered
	default:
		return chat.StatusSent
	}
}
