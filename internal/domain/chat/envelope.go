package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ControlAction enumerates the booking actions carried over the messaging
// channel.
type ControlAction string

const (
	ActionSubscribeBookings   ControlAction = "subscribe_bookings"
	ActionUnsubscribeBookings ControlAction = "unsubscribe_bookings"
	ActionUpdateBookingStatus ControlAction = "update_booking_status"
)

// ControlEnvelope is a structured, non-chat payload piggy-backed on the
// messaging channel. It is carried as JSON inside the content field of a
// message-shaped event whose type is a booking type.
type ControlEnvelope struct {
	Action    ControlAction `json:"action"`
	BraiderID string        `json:"braiderId,omitempty"`
	BookingID string        `json:"bookingId,omitempty"`
	Status    string        `json:"status,omitempty"`
}

// ParseControlEnvelope decodes a control envelope from raw content.
// Unknown actions and undecodable JSON both yield ErrMalformedPayload.
func ParseControlEnvelope(content string) (ControlEnvelope, error) {
	var env ControlEnvelope
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return ControlEnvelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	switch env.Action {
	case ActionSubscribeBookings, ActionUnsubscribeBookings:
		if strings.TrimSpace(env.BraiderID) == "" {
			return ControlEnvelope{}, fmt.Errorf("%w: braiderId is required for %s", ErrMalformedPayload, env.Action)
		}
	case ActionUpdateBookingStatus:
		if strings.TrimSpace(env.BookingID) == "" || strings.TrimSpace(env.Status) == "" {
			return ControlEnvelope{}, fmt.Errorf("%w: bookingId and status are required", ErrMalformedPayload)
		}
	default:
		return ControlEnvelope{}, fmt.Errorf("%w: unknown action %q", ErrMalformedPayload, env.Action)
	}
	return env, nil
}

// NotificationRoom is the additive room id for a braider's booking alerts.
func (e ControlEnvelope) NotificationRoom() string {
	return "braider_" + e.BraiderID
}
