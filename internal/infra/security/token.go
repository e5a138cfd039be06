package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every way a handshake token can be refused: missing,
// badly signed, expired, or not flagged authenticated. The connection attempt
// is rejected outright; there is no retryable variant.
var ErrInvalidToken = errors.New("security: invalid session token")

// Identity is the trusted triple bound to a connection after verification.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// TokenVerifier validates HMAC-signed session tokens presented at the
// websocket handshake.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier builds a verifier for the shared signing secret.
func NewTokenVerifier(secret string) (*TokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("security: signing secret is required")
	}
	return &TokenVerifier{secret: []byte(secret)}, nil
}

// Verify parses and validates the token and extracts the caller identity.
// A token without a userId claim falls back to a synthetic id derived from
// the token's timestamp claim.
func (v *TokenVerifier) Verify(tokenString string) (Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Identity{}, fmt.Errorf("%w: token missing", ErrInvalidToken)
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("%w: unreadable claims", ErrInvalidToken)
	}
	if authenticated, _ := claims["authenticated"].(bool); !authenticated {
		return Identity{}, fmt.Errorf("%w: not authenticated", ErrInvalidToken)
	}

	id := Identity{
		UserID: stringClaim(claims, "userId"),
		Email:  stringClaim(claims, "email"),
		Name:   stringClaim(claims, "name"),
	}
	if id.UserID == "" {
		id.UserID = syntheticUserID(claims)
	}
	return id, nil
}

// Sign issues a session token; used by the auth service and by tests.
func (v *TokenVerifier) Sign(identity Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"userId":        identity.UserID,
		"email":         identity.Email,
		"name":          identity.Name,
		"authenticated": true,
		"timestamp":     now.UnixMilli(),
		"exp":           now.Add(ttl).Unix(),
		"iss":           "braidly",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return strings.TrimSpace(s)
}

func syntheticUserID(claims jwt.MapClaims) string {
	ts, ok := claims["timestamp"].(float64)
	if !ok {
		ts = float64(time.Now().UnixMilli())
	}
	return fmt.Sprintf("anon-%d", int64(ts))
}
