package presence

import (
	"context"
	"log/slog"
	"time"
)

// ChangeListener is notified whenever a user's online flag flips. The
// gateway uses it to push presence-changed events to subscribers.
type ChangeListener func(rec Record)

// Tracker is the single source of truth for user presence. All mutations
// flow through it; readers go straight to the Store.
type Tracker struct {
	store        Store
	offlineAfter time.Duration
	logger       *slog.Logger
	onChange     ChangeListener
	now          func() time.Time
}

// NewTracker builds a Tracker. offlineAfter bounds how long a silent user
// stays online before the sweeper flips them offline.
func NewTracker(store Store, offlineAfter time.Duration, logger *slog.Logger) *Tracker {
	if offlineAfter <= 0 {
		offlineAfter = time.Minute
	}
	return &Tracker{
		store:        store,
		offlineAfter: offlineAfter,
		logger:       logger,
		now:          time.Now,
	}
}

// SetChangeListener registers the fan-out callback. Must be called before
// the tracker starts receiving signals.
func (t *Tracker) SetChangeListener(fn ChangeListener) {
	t.onChange = fn
}

// Heartbeat records a periodic keep-alive or an explicit activity signal.
func (t *Tracker) Heartbeat(ctx context.Context, userID string) error {
	prev, err := t.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	now := t.now().UTC()
	rec := Record{UserID: userID, Online: true, LastSeen: now, LastActivity: now}
	if err := t.store.Put(ctx, rec); err != nil {
		return err
	}
	if !prev.Online {
		t.notify(rec)
	}
	return nil
}

// SetOffline records an explicit offline signal (unmount, tab hidden,
// page unload, disconnect). LastSeen keeps the moment the user left.
func (t *Tracker) SetOffline(ctx context.Context, userID string) error {
	prev, err := t.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	now := t.now().UTC()
	rec := Record{UserID: userID, Online: false, LastSeen: now, LastActivity: prev.LastActivity}
	if err := t.store.Put(ctx, rec); err != nil {
		return err
	}
	if prev.Online {
		t.notify(rec)
	}
	return nil
}

// Get returns the user's record; unknown users read as offline.
func (t *Tracker) Get(ctx context.Context, userID string) (Record, error) {
	rec, err := t.store.Get(ctx, userID)
	if err != nil {
		return Record{}, err
	}
	if rec.UserID == "" {
		rec.UserID = userID
	}
	return rec, nil
}

// RunSweeper periodically flips users offline when their last activity is
// older than the threshold. Blocks until ctx is done.
func (t *Tracker) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

func (t *Tracker) sweep(ctx context.Context) {
	userIDs, err := t.store.Online(ctx)
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("presence sweep failed", "error", err)
		}
		return
	}
	cutoff := t.now().UTC().Add(-t.offlineAfter)
	for _, userID := range userIDs {
		rec, err := t.store.Get(ctx, userID)
		if err != nil || !rec.Online {
			continue
		}
		if rec.LastActivity.After(cutoff) {
			continue
		}
		rec.Online = false
		if err := t.store.Put(ctx, rec); err != nil {
			if t.logger != nil {
				t.logger.Warn("presence sweep write failed", "error", err, "user_id", userID)
			}
			continue
		}
		t.notify(rec)
	}
}

func (t *Tracker) notify(rec Record) {
	if t.onChange != nil {
		t.onChange(rec)
	}
}
