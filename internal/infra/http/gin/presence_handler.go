package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"braidly/internal/presence"
)

// PresenceHandler is the polling fallback for clients whose websocket
// subscription never confirmed.
type PresenceHandler struct {
	Tracker *presence.Tracker
	Logger  *slog.Logger
}

// Get returns one user's presence record. Unknown users read as offline.
func (h PresenceHandler) Get(c *gin.Context) {
	if _, ok := requireIdentity(c); !ok {
		return
	}
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	rec, err := h.Tracker.Get(c.Request.Context(), userID)
	if err != nil {
		h.Logger.Error("presence lookup failed", "error", err, "user_id", userID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "presence unavailable"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Batch returns presence for up to 50 users in one call, keyed by user id.
func (h PresenceHandler) Batch(c *gin.Context) {
	if _, ok := requireIdentity(c); !ok {
		return
	}
	ids := splitIDs(c.Query("userIds"))
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userIds is required"})
		return
	}
	if len(ids) > 50 {
		ids = ids[:50]
	}

	records := make(map[string]presence.Record, len(ids))
	for _, id := range ids {
		rec, err := h.Tracker.Get(c.Request.Context(), id)
		if err != nil {
			h.Logger.Error("presence lookup failed", "error", err, "user_id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "presence unavailable"})
			return
		}
		records[id] = rec
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// Heartbeat refreshes the caller's own presence record. Covers clients
// without a live socket.
func (h PresenceHandler) Heartbeat(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	if err := h.Tracker.Heartbeat(c.Request.Context(), identity.UserID); err != nil {
		h.Logger.Error("presence heartbeat failed", "error", err, "user_id", identity.UserID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "presence unavailable"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Offline marks the caller offline immediately, for clean logouts.
func (h PresenceHandler) Offline(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	if err := h.Tracker.SetOffline(c.Request.Context(), identity.UserID); err != nil {
		h.Logger.Error("presence offline update failed", "error", err, "user_id", identity.UserID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "presence unavailable"})
		return
	}
	c.Status(http.StatusNoContent)
}

func splitIDs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
