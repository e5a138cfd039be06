package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"braidly/internal/infra/security"
)

func registryConn(userID string) *Conn {
	return &Conn{
		ID:            userID + "-conn",
		Identity:      security.Identity{UserID: userID},
		send:          make(chan Event, sendBufSize),
		subscriptions: make(map[string]struct{}),
	}
}

func TestJoinConversationIsExclusive(t *testing.T) {
	r := NewRegistry()
	c := registryConn("alice")
	r.Add(c)

	left := r.JoinConversation(c, "conv-1")
	assert.Equal(t, "", left)
	assert.Equal(t, "conv-1", r.ActiveConversation(c))

	left = r.JoinConversation(c, "conv-2")
	assert.Equal(t, "conv-1", left)
	assert.Equal(t, "conv-2", r.ActiveConversation(c))
	assert.Empty(t, r.ConversationMembers("conv-1"))
	assert.Len(t, r.ConversationMembers("conv-2"), 1)
}

func TestJoinSameConversationIsIdempotent(t *testing.T) {
	r := NewRegistry()
	c := registryConn("alice")
	r.Add(c)

	r.JoinConversation(c, "conv-1")
	left := r.JoinConversation(c, "conv-1")

	assert.Equal(t, "", left)
	assert.Len(t, r.ConversationMembers("conv-1"), 1)
}

func TestNotificationRoomsAreAdditive(t *testing.T) {
	r := NewRegistry()
	c := registryConn("alice")
	r.Add(c)

	r.Subscribe(c, "braider_b1")
	r.Subscribe(c, "braider_b2")
	r.JoinConversation(c, "conv-1")
	r.JoinConversation(c, "conv-2")

	assert.True(t, r.Subscribed(c, "braider_b1"))
	assert.True(t, r.Subscribed(c, "braider_b2"))
	assert.Len(t, r.NotificationMembers("braider_b1"), 1)

	r.Unsubscribe(c, "braider_b1")
	assert.False(t, r.Subscribed(c, "braider_b1"))
	assert.True(t, r.Subscribed(c, "braider_b2"))
	assert.Equal(t, "conv-2", r.ActiveConversation(c))
}

func TestRemoveClearsAllRooms(t *testing.T) {
	r := NewRegistry()
	c := registryConn("alice")
	other := registryConn("bob")
	r.Add(c)
	r.Add(other)

	r.JoinConversation(c, "conv-1")
	r.JoinConversation(other, "conv-1")
	r.Subscribe(c, "braider_b1")

	conversationID, notificationRooms := r.Remove(c)

	assert.Equal(t, "conv-1", conversationID)
	assert.Equal(t, []string{"braider_b1"}, notificationRooms)
	assert.Len(t, r.ConversationMembers("conv-1"), 1)
	assert.Empty(t, r.NotificationMembers("braider_b1"))
	assert.Len(t, r.All(), 1)
}
