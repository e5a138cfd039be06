package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"braidly/internal/gateway"
)

// Heartbeater keeps the gateway's presence record warm: a steady interval
// beat plus an extra beat on user activity, debounced to at most one per
// second.
type Heartbeater struct {
	transport Sender
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	lastBeat time.Time
}

func NewHeartbeater(transport Sender, interval time.Duration, logger *slog.Logger) *Heartbeater {
	return &Heartbeater{
		transport: transport,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sends the interval beat until the context is cancelled.
func (h *Heartbeater) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.beat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat()
		}
	}
}

// Activity reports user interaction. Beats more frequent than one per second
// are dropped.
func (h *Heartbeater) Activity() {
	h.mu.Lock()
	if h.now().Sub(h.lastBeat) < time.Second {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	h.beat()
}

func (h *Heartbeater) beat() {
	h.mu.Lock()
	h.lastBeat = h.now()
	h.mu.Unlock()

	if err := h.transport.Send(gateway.NewEvent(gateway.EventHeartbeat, struct{}{})); err != nil {
		h.logger.Debug("heartbeat send failed", "error", err)
	}
}
