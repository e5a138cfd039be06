package chat

import "errors"

// Stable error codes surfaced to clients in message-error events. Clients
// branch on the code, never on the human-readable text.
const (
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodeAccessDenied         = "CONVERSATION_ACCESS_DENIED"
	CodePersistenceError     = "PERSISTENCE_ERROR"
	CodeMalformedPayload     = "MALFORMED_PAYLOAD"
)

var (
	// ErrAccessDenied is returned when a user is not a participant of the
	// conversation they attempt to join or send to.
	ErrAccessDenied = errors.New("chat: not a conversation participant")

	// ErrConversationNotFound is returned by stores for unknown thread ids.
	ErrConversationNotFound = errors.New("chat: conversation not found")

	// ErrMalformedPayload is returned when a control envelope fails to parse.
	ErrMalformedPayload = errors.New("chat: malformed control payload")
)

// CodeFor maps a pipeline error to its stable wire code.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrConversationNotFound):
		return CodeAccessDenied
	case errors.Is(err, ErrMalformedPayload):
		return CodeMalformedPayload
	default:
		return CodePersistenceError
	}
}
