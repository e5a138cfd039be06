package gateway

import "sync"

// Registry maps room ids to the set of currently connected sockets. Two room
// categories with different lifecycle policy:
//
//   - conversation rooms: a connection belongs to at most one at a time;
//     joining a new one leaves the previous conversation room only.
//   - notification rooms: additive, joined and left independently, untouched
//     by conversation switches.
//
// A single lock guards both maps; all operations are in-memory and never
// block on IO.
type Registry struct {
	mu            sync.RWMutex
	conns         map[*Conn]struct{}
	conversations map[string]map[*Conn]struct{}
	notifications map[string]map[*Conn]struct{}
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:         make(map[*Conn]struct{}),
		conversations: make(map[string]map[*Conn]struct{}),
		notifications: make(map[string]map[*Conn]struct{}),
	}
}

// Add tracks a freshly authenticated connection.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = struct{}{}
}

// JoinConversation switches the connection's active conversation room and
// returns the id of the room it left, if any.
func (r *Registry) JoinConversation(c *Conn, conversationID string) (left string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.activeConversation == conversationID {
		return ""
	}
	left = r.leaveConversationLocked(c)

	room, ok := r.conversations[conversationID]
	if !ok {
		room = make(map[*Conn]struct{})
		r.conversations[conversationID] = room
	}
	room[c] = struct{}{}
	c.activeConversation = conversationID
	return left
}

// LeaveConversation removes the connection from its active conversation room
// and returns the room id it left, if any.
func (r *Registry) LeaveConversation(c *Conn) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveConversationLocked(c)
}

func (r *Registry) leaveConversationLocked(c *Conn) string {
	id := c.activeConversation
	if id == "" {
		return ""
	}
	if room, ok := r.conversations[id]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(r.conversations, id)
		}
	}
	c.activeConversation = ""
	return id
}

// Subscribe adds the connection to an additive notification room.
func (r *Registry) Subscribe(c *Conn, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.notifications[roomID]
	if !ok {
		room = make(map[*Conn]struct{})
		r.notifications[roomID] = room
	}
	room[c] = struct{}{}
	c.subscriptions[roomID] = struct{}{}
}

// Unsubscribe removes the connection from a notification room.
func (r *Registry) Unsubscribe(c *Conn, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(c, roomID)
}

func (r *Registry) unsubscribeLocked(c *Conn, roomID string) {
	if room, ok := r.notifications[roomID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(r.notifications, roomID)
		}
	}
	delete(c.subscriptions, roomID)
}

// Remove drops a disconnecting connection from every room it belonged to and
// returns the rooms it left: the active conversation, if any, plus every
// notification room. Callers announce the departure to each.
func (r *Registry) Remove(c *Conn) (conversationID string, notificationRooms []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversationID = r.leaveConversationLocked(c)
	for roomID := range c.subscriptions {
		notificationRooms = append(notificationRooms, roomID)
		r.unsubscribeLocked(c, roomID)
	}
	delete(r.conns, c)
	return conversationID, notificationRooms
}

// ConversationMembers snapshots the members of a conversation room.
func (r *Registry) ConversationMembers(conversationID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.conversations[conversationID])
}

// NotificationMembers snapshots the members of a notification room.
func (r *Registry) NotificationMembers(roomID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.notifications[roomID])
}

// All snapshots every tracked connection.
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.conns)
}

// Subscribed reports whether the connection is in the notification room.
func (r *Registry) Subscribed(c *Conn, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := c.subscriptions[roomID]
	return ok
}

// ActiveConversation returns the connection's current conversation room id.
func (r *Registry) ActiveConversation(c *Conn) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return c.activeConversation
}

func snapshot(room map[*Conn]struct{}) []*Conn {
	if len(room) == 0 {
		return nil
	}
	members := make([]*Conn, 0, len(room))
	for c := range room {
		members = append(members, c)
	}
	return members
}
