package client

import (
	"sync"
	"time"

	"braidly/internal/gateway"
)

// TypingIndicator tracks which peers are typing in a conversation. A typing
// signal expires on its own; peers that disconnect mid-keystroke never send
// the stop signal.
type TypingIndicator struct {
	conversationID string
	transport      Sender
	expiry         time.Duration
	onChange       func(userID string, isTyping bool)
	now            func() time.Time

	mu     sync.Mutex
	peers  map[string]time.Time
	typing bool
}

func NewTypingIndicator(conversationID string, transport Sender, onChange func(userID string, isTyping bool)) *TypingIndicator {
	return &TypingIndicator{
		conversationID: conversationID,
		transport:      transport,
		expiry:         4 * time.Second,
		onChange:       onChange,
		now:            time.Now,
		peers:          make(map[string]time.Time),
	}
}

// SetTyping reports the local user's typing state, suppressing repeats of
// the same state.
func (t *TypingIndicator) SetTyping(isTyping bool) error {
	t.mu.Lock()
	if t.typing == isTyping {
		t.mu.Unlock()
		return nil
	}
	t.typing = isTyping
	t.mu.Unlock()

	return t.transport.Send(gateway.NewEvent(gateway.EventTyping, gateway.TypingPayload{
		ConversationID: t.conversationID,
		IsTyping:       isTyping,
	}))
}

// HandleEvent folds a relayed typing signal into the peer set.
func (t *TypingIndicator) HandleEvent(ev gateway.Event) {
	if ev.Type != gateway.EventUserTyping {
		return
	}
	var p gateway.UserTypingPayload
	if err := ev.DecodePayload(&p); err != nil || p.ConversationID != t.conversationID {
		return
	}

	t.mu.Lock()
	_, wasTyping := t.peers[p.UserID]
	if p.IsTyping {
		t.peers[p.UserID] = t.now().Add(t.expiry)
	} else {
		delete(t.peers, p.UserID)
	}
	t.mu.Unlock()

	if t.onChange != nil && wasTyping != p.IsTyping {
		t.onChange(p.UserID, p.IsTyping)
	}
}

// TypingPeers returns the users whose typing signal has not expired, pruning
// stale ones as a side effect.
func (t *TypingIndicator) TypingPeers() []string {
	now := t.now()
	var expired []string

	t.mu.Lock()
	var active []string
	for userID, deadline := range t.peers {
		if now.After(deadline) {
			delete(t.peers, userID)
			expired = append(expired, userID)
			continue
		}
		active = append(active, userID)
	}
	t.mu.Unlock()

	if t.onChange != nil {
		for _, userID := range expired {
			t.onChange(userID, false)
		}
	}
	return active
}
