package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	"braidly/internal/gateway"
)

// BookingNotifier is the fan-out side of the relay. Satisfied by the hub.
type BookingNotifier interface {
	NotifyBooking(braiderID string, payload gateway.BookingNotificationPayload)
}

// BookingRelay turns booking domain events from the platform topic into
// booking-notification events for subscribed braider rooms.
type BookingRelay struct {
	notifier BookingNotifier
	logger   *slog.Logger
}

func NewBookingRelay(notifier BookingNotifier, logger *slog.Logger) *BookingRelay {
	return &BookingRelay{notifier: notifier, logger: logger}
}

// Handle decodes one booking event and relays it. Events produced by this
// process carry a "chat" source marker and are skipped to avoid echo.
func (r *BookingRelay) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev struct {
		BraiderID string          `json:"braiderId"`
		BookingID string          `json:"bookingId"`
		Status    string          `json:"status"`
		Source    string          `json:"source"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		// poison records are logged and marked, never retried
		r.logger.Warn("undecodable booking event", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	if ev.BraiderID == "" {
		r.logger.Warn("booking event without braiderId", "topic", msg.Topic, "offset", msg.Offset)
		return nil
	}
	if ev.Source == "chat" {
		return nil
	}

	r.notifier.NotifyBooking(ev.BraiderID, gateway.BookingNotificationPayload{
		BraiderID: ev.BraiderID,
		BookingID: ev.BookingID,
		Status:    ev.Status,
		Data:      ev.Data,
	})
	r.logger.Debug("relayed booking event",
		"braider_id", ev.BraiderID, "booking_id", ev.BookingID, "status", ev.Status)
	return nil
}

var _ MessageHandler = (*BookingRelay)(nil)
