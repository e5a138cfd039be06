package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"braidly/internal/domain/chat"
	"braidly/internal/gateway"
)

type fakeTransport struct {
	sent    []gateway.Event
	sendErr error
}

func (f *fakeTransport) Send(ev gateway.Event) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, ev)
	return nil
}

type fakeAPI struct {
	pages       [][]chat.Message
	hasMore     []bool
	listCalls   int
	lastBefore  string
	markReadErr error
	marked      []string
}

func (f *fakeAPI) ListMessages(_ context.Context, _ string, _ int, before string) ([]chat.Message, bool, error) {
	f.lastBefore = before
	if f.listCalls >= len(f.pages) {
		return nil, false, nil
	}
	page := f.pages[f.listCalls]
	more := f.hasMore[f.listCalls]
	f.listCalls++
	return page, more, nil
}

func (f *fakeAPI) MarkRead(_ context.Context, _, messageID string) (gateway.MessageUpdatedPayload, error) {
	if f.markReadErr != nil {
		return gateway.MessageUpdatedPayload{}, f.markReadErr
	}
	f.marked = append(f.marked, messageID)
	now := time.Now().UTC()
	return gateway.MessageUpdatedPayload{
		ConversationID: "conv-1",
		MessageID:      messageID,
		IsDelivered:    true,
		IsRead:         true,
		ReadAt:         &now,
	}, nil
}

func newTestSync(t *testing.T) (*Synchronizer, *fakeTransport, *fakeAPI) {
	t.Helper()
	transport := &fakeTransport{}
	api := &fakeAPI{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSynchronizer("conv-1", "alice", transport, api, logger), transport, api
}

func serverMessage(id, sender, content string) chat.Message {
	now := time.Now().UTC()
	return chat.Message{
		ID:             id,
		ConversationID: "conv-1",
		SenderID:       sender,
		Content:        content,
		Type:           chat.MessageText,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestOptimisticSendThenAck(t *testing.T) {
	s, transport, _ := newTestSync(t)

	tempID, err := s.SendText("hello", chat.MessageText)
	require.NoError(t, err)
	require.Len(t, transport.sent, 1)

	entries := s.Messages()
	require.Len(t, entries, 1)
	assert.Equal(t, chat.StatusSending, entries[0].Status)
	assert.Equal(t, tempID, entries[0].Message.ID)

	canonical := serverMessage("srv-1", "alice", "hello")
	s.HandleEvent(gateway.NewEvent(gateway.EventMessageSent, gateway.MessageSentPayload{
		TempID:  tempID,
		Message: canonical,
	}))

	entries = s.Messages()
	require.Len(t, entries, 1)
	assert.Equal(t, "srv-1", entries[0].Message.ID)
	assert.Equal(t, chat.StatusSent, entries[0].Status)
	assert.Empty(t, entries[0].TempID)
}

func TestSendErrorRemovesOptimisticEntry(t *testing.T) {
	s, _, _ := newTestSync(t)
	before := serverMessage("srv-0", "bob", "earlier")
	s.HandleEvent(gateway.NewEvent(gateway.EventNewMessage, gateway.NewMessagePayload{Message: before}))

	tempID, err := s.SendText("hello", chat.MessageText)
	require.NoError(t, err)
	require.Len(t, s.Messages(), 2)

	s.HandleEvent(gateway.NewEvent(gateway.EventMessageError, gateway.MessageErrorPayload{
		Message: "storage unavailable",
		Code:    chat.CodePersistenceError,
		TempID:  tempID,
	}))

	entries := s.Messages()
	require.Len(t, entries, 1)
	assert.Equal(t, "srv-0", entries[0].Message.ID)

	// the removed entry no longer shadows anything; a later ack is a no-op
	s.HandleEvent(gateway.NewEvent(gateway.EventMessageSent, gateway.MessageSentPayload{
		TempID:  tempID,
		Message: serverMessage("srv-9", "alice", "hello"),
	}))
	assert.Len(t, s.Messages(), 1)
}

func TestTransportFailureRemovesOptimisticEntry(t *testing.T) {
	s, transport, _ := newTestSync(t)
	transport.sendErr = errors.New("socket closed")

	_, err := s.SendText("hello", chat.MessageText)
	require.Error(t, err)

	assert.Empty(t, s.Messages())
}

func TestInboundDedupe(t *testing.T) {
	s, _, _ := newTestSync(t)
	msg := serverMessage("srv-1", "bob", "hey")

	s.HandleEvent(gateway.NewEvent(gateway.EventNewMessage, gateway.NewMessagePayload{Message: msg}))
	s.HandleEvent(gateway.NewEvent(gateway.EventNewMessage, gateway.NewMessagePayload{Message: msg}))

	assert.Len(t, s.Messages(), 1)
}

func TestEventsForOtherConversationsIgnored(t *testing.T) {
	s, _, _ := newTestSync(t)
	msg := serverMessage("srv-1", "bob", "hey")
	msg.ConversationID = "conv-other"

	s.HandleEvent(gateway.NewEvent(gateway.EventNewMessage, gateway.NewMessagePayload{Message: msg}))

	assert.Empty(t, s.Messages())
}

func TestLoadOlderPrependsAndTracksHasMore(t *testing.T) {
	s, _, api := newTestSync(t)
	s.pageSize = 2
	api.pages = [][]chat.Message{
		{serverMessage("m3", "bob", "third"), serverMessage("m2", "bob", "second")},
		{serverMessage("m1", "bob", "first")},
	}
	api.hasMore = []bool{true, false}

	require.NoError(t, s.LoadOlder(context.Background()))
	entries := s.Messages()
	require.Len(t, entries, 2)
	assert.Equal(t, "m2", entries[0].Message.ID)
	assert.Equal(t, "m3", entries[1].Message.ID)
	assert.True(t, s.HasMore())

	require.NoError(t, s.LoadOlder(context.Background()))
	assert.Equal(t, "m2", api.lastBefore)
	entries = s.Messages()
	require.Len(t, entries, 3)
	assert.Equal(t, "m1", entries[0].Message.ID)
	assert.False(t, s.HasMore())

	// exhausted history never hits the API again
	require.NoError(t, s.LoadOlder(context.Background()))
	assert.Equal(t, 2, api.listCalls)
}

func TestMarkAsReadOptimisticWithRollback(t *testing.T) {
	s, _, api := newTestSync(t)
	msg := serverMessage("srv-1", "bob", "hey")
	s.HandleEvent(gateway.NewEvent(gateway.EventNewMessage, gateway.NewMessagePayload{Message: msg}))

	require.NoError(t, s.MarkAsRead(context.Background(), "srv-1"))
	entries := s.Messages()
	assert.True(t, entries[0].Message.IsRead)
	assert.Equal(t, chat.StatusRead, entries[0].Status)
	assert.Equal(t, []string{"srv-1"}, api.marked)

	// rollback path
	msg2 := serverMessage("srv-2", "bob", "again")
	s.HandleEvent(gateway.NewEvent(gateway.EventNewMessage, gateway.NewMessagePayload{Message: msg2}))
	api.markReadErr = errors.New("gateway down")

	require.Error(t, s.MarkAsRead(context.Background(), "srv-2"))
	entries = s.Messages()
	assert.False(t, entries[1].Message.IsRead)
}

func TestMessageUpdatedAppliesFlags(t *testing.T) {
	s, _, _ := newTestSync(t)
	tempID, err := s.SendText("hello", chat.MessageText)
	require.NoError(t, err)
	s.HandleEvent(gateway.NewEvent(gateway.EventMessageSent, gateway.MessageSentPayload{
		TempID:  tempID,
		Message: serverMessage("srv-1", "alice", "hello"),
	}))

	now := time.Now().UTC()
	s.HandleEvent(gateway.NewEvent(gateway.EventMessageUpdated, gateway.MessageUpdatedPayload{
		ConversationID: "conv-1",
		MessageID:      "srv-1",
		IsDelivered:    true,
		IsRead:         true,
		ReadAt:         &now,
	}))

	entries := s.Messages()
	assert.Equal(t, chat.StatusRead, entries[0].Status)
	assert.True(t, entries[0].Message.IsRead)
}
