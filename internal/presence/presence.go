// Package presence maintains online/offline/last-activity records per user.
// Records are advanced by client heartbeats and activity signals; a sweeper
// marks users offline once they go quiet for longer than the configured
// threshold.
package presence

import (
	"context"
	"time"
)

// Record is the durable presence state for one user.
type Record struct {
	UserID       string    `json:"userId"`
	Online       bool      `json:"isOnline"`
	LastSeen     time.Time `json:"lastSeen"`
	LastActivity time.Time `json:"lastActivity"`
}

// Store persists presence records. Get for an unknown user returns a zero
// offline record, never an error.
type Store interface {
	Get(ctx context.Context, userID string) (Record, error)
	Put(ctx context.Context, rec Record) error
	// Online lists user ids currently flagged online.
	Online(ctx context.Context) ([]string, error)
}
