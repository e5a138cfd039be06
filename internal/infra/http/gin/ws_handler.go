package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"braidly/internal/domain/chat"
	"braidly/internal/gateway"
	"braidly/internal/infra/security"
)

// WSHandler upgrades authenticated requests and hands the socket to the hub.
type WSHandler struct {
	Hub      *gateway.Hub
	Verifier *security.TokenVerifier
	Logger   *slog.Logger

	upgrader websocket.Upgrader
}

func NewWSHandler(hub *gateway.Hub, verifier *security.TokenVerifier, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		Hub:      hub,
		Verifier: verifier,
		Logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// browsers cannot set Authorization on websocket requests; CORS
			// is enforced at the edge
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handle verifies the token before upgrading so a rejected handshake is a
// plain 401, never a connect-then-close.
func (h *WSHandler) Handle(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = extractBearerToken(c.GetHeader("Authorization"))
	}
	identity, err := h.Verifier.Verify(token)
	if err != nil {
		h.Logger.Debug("websocket handshake rejected", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or missing token",
			"code":  chat.CodeAuthenticationFailed,
		})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the failure response
		h.Logger.Warn("websocket upgrade failed", "error", err, "user_id", identity.UserID)
		return
	}
	h.Hub.HandleConnection(c.Request.Context(), ws, identity)
}
