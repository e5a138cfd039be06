package obs

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandlers exposes liveness and readiness probes. Checks holds one
// named probe per backing store; readiness fails when any of them does.
type HealthHandlers struct {
	Checks map[string]func() error
}

// Livez reports process liveness only.
func (h HealthHandlers) Livez(c *gin.Context) {
	c.Status(http.StatusOK)
}

// Readyz runs every registered dependency check and reports failures by
// name, so an operator can tell a mongo outage from a redis one.
func (h HealthHandlers) Readyz(c *gin.Context) {
	var failed []string
	var errs []error
	for name, check := range h.Checks {
		if check == nil {
			continue
		}
		if err := check(); err != nil {
			failed = append(failed, name)
			errs = append(errs, err)
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"error":  errors.Join(errs...).Error(),
		})
		return
	}
	c.Status(http.StatusOK)
}
