package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"braidly/internal/domain/chat"
	"braidly/internal/infra/security"
)

const identityContextKey = "braidly.identity"

// AuthMiddleware resolves the bearer token into an identity without
// rejecting anonymous requests; endpoints that need an identity call
// requireIdentity.
type AuthMiddleware struct {
	Verifier *security.TokenVerifier
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = strings.TrimSpace(c.Query("token"))
	}
	if token == "" || m.Verifier == nil {
		c.Next()
		return
	}
	identity, err := m.Verifier.Verify(token)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		c.Next()
		return
	}
	setIdentity(c, identity)
	c.Next()
}

func setIdentity(c *gin.Context, id security.Identity) {
	c.Set(identityContextKey, id)
}

func currentIdentity(c *gin.Context) (security.Identity, bool) {
	val, exists := c.Get(identityContextKey)
	if !exists {
		return security.Identity{}, false
	}
	id, ok := val.(security.Identity)
	return id, ok
}

func requireIdentity(c *gin.Context) (security.Identity, bool) {
	id, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "auth required",
			"code":  chat.CodeAuthenticationFailed,
		})
		return security.Identity{}, false
	}
	return id, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
