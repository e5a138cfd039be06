package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"braidly/internal/domain/chat"
	"braidly/internal/infra/security"
	"braidly/internal/infra/storage/memory"
	"braidly/internal/presence"
)

func newTestHub(t *testing.T) (*Hub, *memory.MessageStore) {
	t.Helper()
	convs := memory.NewConversationStore()
	convs.Seed(chat.Conversation{
		ID:           "conv-1",
		Participants: [2]string{"alice", "bob"},
		Status:       chat.ConversationActive,
		CreatedAt:    time.Now().UTC(),
	})
	msgs := memory.NewMessageStore()
	tracker := presence.NewTracker(memory.NewPresenceStore(), time.Minute, discardLogger())
	pipe := NewPipeline(convs, msgs, nil, discardLogger())
	return NewHub(pipe, tracker, discardLogger()), msgs
}

func hubConn(h *Hub, userID string) *Conn {
	c := newConn(h, nil, security.Identity{UserID: userID, Name: userID, Email: userID + "@test"})
	h.registry.Add(c)
	return c
}

// drain collects everything currently queued for the connection.
func drain(c *Conn) []Event {
	var events []Event
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func clientEvent(t *testing.T, eventType string, payload any) Event {
	t.Helper()
	ev := NewEvent(eventType, payload)
	require.NotEmpty(t, ev.Payload)
	return ev
}

func TestJoinDeniedEmitsExactlyOneError(t *testing.T) {
	h, _ := newTestHub(t)
	mallory := hubConn(h, "mallory")

	h.dispatch(mallory, clientEvent(t, EventJoinConversation, JoinConversationPayload{ConversationID: "conv-1"}))

	events := drain(mallory)
	require.Len(t, events, 1)
	assert.Equal(t, EventMessageError, events[0].Type)

	var p MessageErrorPayload
	require.NoError(t, events[0].DecodePayload(&p))
	assert.Equal(t, chat.CodeAccessDenied, p.Code)
	assert.Empty(t, h.registry.ConversationMembers("conv-1"))
}

func TestJoinAnnouncesToPeersOnly(t *testing.T) {
	h, _ := newTestHub(t)
	alice := hubConn(h, "alice")
	bob := hubConn(h, "bob")

	h.dispatch(alice, clientEvent(t, EventJoinConversation, JoinConversationPayload{ConversationID: "conv-1"}))
	assert.Empty(t, drain(alice))

	h.dispatch(bob, clientEvent(t, EventJoinConversation, JoinConversationPayload{ConversationID: "conv-1"}))

	assert.Empty(t, drain(bob))
	aliceEvents := drain(alice)
	require.Len(t, aliceEvents, 1)
	assert.Equal(t, EventUserJoined, aliceEvents[0].Type)

	var p RoomMemberPayload
	require.NoError(t, aliceEvents[0].DecodePayload(&p))
	assert.Equal(t, "bob", p.UserID)
	assert.Equal(t, "conv-1", p.ConversationID)
}

func TestSendRoundTrip(t *testing.T) {
	h, msgs := newTestHub(t)
	alice := hubConn(h, "alice")
	bob := hubConn(h, "bob")
	h.dispatch(alice, clientEvent(t, EventJoinConversation, JoinConversationPayload{ConversationID: "conv-1"}))
	h.dispatch(bob, clientEvent(t, EventJoinConversation, JoinConversationPayload{ConversationID: "conv-1"}))
	drain(alice)
	drain(bob)

	h.dispatch(alice, clientEvent(t, EventSendMessage, SendMessagePayload{
		ConversationID: "conv-1",
		Content:        "hello",
		TempID:         "t1",
	}))

	aliceEvents := drain(alice)
	require.Len(t, aliceEvents, 1)
	assert.Equal(t, EventMessageSent, aliceEvents[0].Type)
	var ack MessageSentPayload
	require.NoError(t, aliceEvents[0].DecodePayload(&ack))
	assert.Equal(t, "t1", ack.TempID)
	assert.Equal(t, "hello", ack.Message.Content)
	assert.NotEmpty(t, ack.Message.ID)
	assert.NotEqual(t, "t1", ack.Message.ID)

	bobEvents := drain(bob)
	require.Len(t, bobEvents, 1)
	assert.Equal(t, EventNewMessage, bobEvents[0].Type)
	var in NewMessagePayload
	require.NoError(t, bobEvents[0].DecodePayload(&in))
	assert.Equal(t, ack.Message.ID, in.Message.ID)
	assert.Equal(t, "hello", in.Message.Content)

	stored, err := msgs.List(context.Background(), "conv-1", 10, "")
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestSendPersistenceFailure(t *testing.T) {
	h, msgs := newTestHub(t)
	alice := hubConn(h, "alice")
	bob := hubConn(h, "bob")
	h.dispatch(alice, clientEvent(t, EventJoinConversation, JoinConversationPayload{ConversationID: "conv-1"}))
	h.dispatch(bob, clientEvent(t, EventJoinConversation, JoinConversationPayload{ConversationID: "conv-1"}))
	drain(alice)
	drain(bob)
	msgs.FailWith(errors.New("ring timeout"))

	h.dispatch(alice, clientEvent(t, EventSendMessage, SendMessagePayload{
		ConversationID: "conv-1",
		Content:        "hello",
		TempID:         "t2",
	}))

	aliceEvents := drain(alice)
	require.Len(t, aliceEvents, 1)
	assert.Equal(t, EventMessageError, aliceEvents[0].Type)
	var p MessageErrorPayload
	require.NoError(t, aliceEvents[0].DecodePayload(&p))
	assert.Equal(t, chat.CodePersistenceError, p.Code)
	assert.Equal(t, "t2", p.TempID)

	assert.Empty(t, drain(bob))
}

func TestControlEnvelopeSubscribesWithoutPersisting(t *testing.T) {
	h, msgs := newTestHub(t)
	alice := hubConn(h, "alice")

	h.dispatch(alice, clientEvent(t, EventSendMessage, SendMessagePayload{
		ConversationID: "conv-1",
		Content:        `{"action":"subscribe_bookings","braiderId":"b1"}`,
		MessageType:    chat.MessageBookingRequest,
		TempID:         "t3",
	}))

	assert.True(t, h.registry.Subscribed(alice, "braider_b1"))
	stored, _ := msgs.List(context.Background(), "conv-1", 10, "")
	assert.Empty(t, stored)

	events := drain(alice)
	require.Len(t, events, 1)
	assert.Equal(t, EventMessageSent, events[0].Type)
	var ack MessageSentPayload
	require.NoError(t, events[0].DecodePayload(&ack))
	assert.Equal(t, "t3", ack.TempID)

	h.NotifyBooking("b1", BookingNotificationPayload{BraiderID: "b1", BookingID: "bk-1", Status: "confirmed"})
	events = drain(alice)
	require.Len(t, events, 1)
	assert.Equal(t, EventBookingNotification, events[0].Type)
}

func TestControlEnvelopeMalformed(t *testing.T) {
	h, _ := newTestHub(t)
	alice := hubConn(h, "alice")

	h.dispatch(alice, clientEvent(t, EventSendMessage, SendMessagePayload{
		ConversationID: "conv-1",
		Content:        "definitely not an envelope",
		MessageType:    chat.MessageBookingRequest,
		TempID:         "t4",
	}))

	events := drain(alice)
	require.Len(t, events, 1)
	assert.Equal(t, EventMessageError, events[0].Type)
	var p MessageErrorPayload
	require.NoError(t, events[0].DecodePayload(&p))
	assert.Equal(t, chat.CodeMalformedPayload, p.Code)
	assert.Equal(t, "t4", p.TempID)
}

func TestTypingRelaysToPeersOnly(t *testing.T) {
	h, _ := newTestHub(t)
	alice := hubConn(h, "alice")
	bob := hubConn(h, "bob")
	h.dispatch(alice, clientEvent(t, EventJoinConversation, JoinConversationPayload{ConversationID: "conv-1"}))
	h.dispatch(bob, clientEvent(t, EventJoinConversation, JoinConversationPayload{ConversationID: "conv-1"}))
	drain(alice)
	drain(bob)

	h.dispatch(alice, clientEvent(t, EventTyping, TypingPayload{ConversationID: "conv-1", IsTyping: true}))

	assert.Empty(t, drain(alice))
	bobEvents := drain(bob)
	require.Len(t, bobEvents, 1)
	assert.Equal(t, EventUserTyping, bobEvents[0].Type)
	var p UserTypingPayload
	require.NoError(t, bobEvents[0].DecodePayload(&p))
	assert.Equal(t, "alice", p.UserID)
	assert.True(t, p.IsTyping)
}

func TestTypingIgnoredOutsideActiveConversation(t *testing.T) {
	h, _ := newTestHub(t)
	alice := hubConn(h, "alice")
	bob := hubConn(h, "bob")
	h.dispatch(bob, clientEvent(t, EventJoinConversation, JoinConversationPayload{ConversationID: "conv-1"}))
	drain(bob)

	h.dispatch(alice, clientEvent(t, EventTyping, TypingPayload{ConversationID: "conv-1", IsTyping: true}))

	assert.Empty(t, drain(bob))
}

func TestDisconnectAnnouncesLeaveToNotificationRooms(t *testing.T) {
	h, _ := newTestHub(t)
	alice := hubConn(h, "alice")
	bob := hubConn(h, "bob")
	h.dispatch(alice, clientEvent(t, EventSubscribeBookings, SubscriptionPayload{BraiderID: "b1"}))
	h.dispatch(bob, clientEvent(t, EventSubscribeBookings, SubscriptionPayload{BraiderID: "b1"}))
	drain(alice)
	drain(bob)

	h.disconnect(alice)

	bobEvents := drain(bob)
	require.Len(t, bobEvents, 1)
	assert.Equal(t, EventUserLeft, bobEvents[0].Type)
	var p RoomMemberPayload
	require.NoError(t, bobEvents[0].DecodePayload(&p))
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, "braider_b1", p.ConversationID)
	assert.Len(t, h.registry.NotificationMembers("braider_b1"), 1)
}

func TestDisconnectAnnouncesLeaveAndFlipsPresence(t *testing.T) {
	h, _ := newTestHub(t)
	alice := hubConn(h, "alice")
	bob := hubConn(h, "bob")
	h.dispatch(alice, clientEvent(t, EventJoinConversation, JoinConversationPayload{ConversationID: "conv-1"}))
	h.dispatch(bob, clientEvent(t, EventJoinConversation, JoinConversationPayload{ConversationID: "conv-1"}))
	h.dispatch(alice, clientEvent(t, EventHeartbeat, nil))
	drain(alice)
	drain(bob)

	h.disconnect(alice)

	var sawLeft bool
	for _, ev := range drain(bob) {
		if ev.Type == EventUserLeft {
			var p RoomMemberPayload
			require.NoError(t, ev.DecodePayload(&p))
			assert.Equal(t, "alice", p.UserID)
			sawLeft = true
		}
	}
	assert.True(t, sawLeft)
	assert.Len(t, h.registry.ConversationMembers("conv-1"), 1)

	rec, err := h.tracker.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, rec.Online)
}
