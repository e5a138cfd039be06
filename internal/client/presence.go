package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"braidly/internal/gateway"
	"braidly/internal/presence"
)

// PresenceAPI is the polling slice of the REST client.
type PresenceAPI interface {
	GetPresence(ctx context.Context, userID string) (presence.Record, error)
}

// PresenceListener receives presence updates from whichever strategy is
// active.
type PresenceListener func(rec presence.Record)

// PresenceWatcher tracks a set of users through one of two mutually
// exclusive strategies: push (presence-changed events over the socket) or
// a REST poll. The poller is armed at start and cancelled the moment the
// push path confirms; if no push event arrives within the setup window the
// poller takes over.
type PresenceWatcher struct {
	api      PresenceAPI
	listener PresenceListener
	logger   *slog.Logger

	setupWindow  time.Duration
	pollInterval time.Duration

	mu        sync.Mutex
	watched   map[string]presence.Record
	confirmed chan struct{}
	once      sync.Once
}

func NewPresenceWatcher(api PresenceAPI, listener PresenceListener, logger *slog.Logger) *PresenceWatcher {
	return &PresenceWatcher{
		api:          api,
		listener:     listener,
		logger:       logger,
		setupWindow:  10 * time.Second,
		pollInterval: 15 * time.Second,
		watched:      make(map[string]presence.Record),
		confirmed:    make(chan struct{}),
	}
}

// Watch adds a user to the tracked set.
func (w *PresenceWatcher) Watch(userID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[userID]; !ok {
		w.watched[userID] = presence.Record{UserID: userID}
	}
}

// Unwatch removes a user from the tracked set.
func (w *PresenceWatcher) Unwatch(userID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, userID)
}

// Start arms the polling fallback. It stays dormant for the setup window and
// never runs at all if a push event lands first.
func (w *PresenceWatcher) Start(ctx context.Context) {
	go func() {
		timer := time.NewTimer(w.setupWindow)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-w.confirmed:
			return
		case <-timer.C:
			w.logger.Debug("presence push not confirmed, falling back to polling")
			w.pollLoop(ctx)
		}
	}()
}

// HandleEvent confirms the push strategy on the first presence-changed event
// and forwards updates for watched users.
func (w *PresenceWatcher) HandleEvent(ev gateway.Event) {
	if ev.Type != gateway.EventPresenceChanged {
		return
	}
	var p gateway.PresenceChangedPayload
	if err := ev.DecodePayload(&p); err != nil {
		return
	}
	w.once.Do(func() { close(w.confirmed) })

	rec := presence.Record{
		UserID:       p.UserID,
		Online:       p.IsOnline,
		LastSeen:     p.LastSeen,
		LastActivity: p.LastActivity,
	}
	w.mu.Lock()
	_, tracked := w.watched[p.UserID]
	if tracked {
		w.watched[p.UserID] = rec
	}
	w.mu.Unlock()

	if tracked && w.listener != nil {
		w.listener(rec)
	}
}

func (w *PresenceWatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.confirmed:
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

// pollOnce fetches every watched user and reports only transitions, so the
// listener sees the same shape of updates as the push path.
func (w *PresenceWatcher) pollOnce(ctx context.Context) {
	w.mu.Lock()
	ids := make([]string, 0, len(w.watched))
	for id := range w.watched {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	for _, id := range ids {
		rec, err := w.api.GetPresence(ctx, id)
		if err != nil {
			w.logger.Debug("presence poll failed", "user_id", id, "error", err)
			continue
		}
		w.mu.Lock()
		prev, tracked := w.watched[id]
		changed := tracked && prev.Online != rec.Online
		if tracked {
			w.watched[id] = rec
		}
		w.mu.Unlock()

		if changed && w.listener != nil {
			w.listener(rec)
		}
	}
}
