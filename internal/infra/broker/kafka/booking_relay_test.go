package kafka

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"braidly/internal/gateway"
)

type capturedNotification struct {
	braiderID string
	payload   gateway.BookingNotificationPayload
}

type fakeNotifier struct {
	notifications []capturedNotification
}

func (f *fakeNotifier) NotifyBooking(braiderID string, payload gateway.BookingNotificationPayload) {
	f.notifications = append(f.notifications, capturedNotification{braiderID: braiderID, payload: payload})
}

func testRelay() (*BookingRelay, *fakeNotifier) {
	notifier := &fakeNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBookingRelay(notifier, logger), notifier
}

func record(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "braidly.booking.events", Value: []byte(value)}
}

func TestRelayDeliversBookingEvent(t *testing.T) {
	relay, notifier := testRelay()

	err := relay.Handle(context.Background(), record(
		`{"braiderId":"b1","bookingId":"bk-9","status":"confirmed","data":{"slot":"10:00"}}`))

	require.NoError(t, err)
	require.Len(t, notifier.notifications, 1)
	got := notifier.notifications[0]
	assert.Equal(t, "b1", got.braiderID)
	assert.Equal(t, "bk-9", got.payload.BookingID)
	assert.Equal(t, "confirmed", got.payload.Status)
	assert.JSONEq(t, `{"slot":"10:00"}`, string(got.payload.Data))
}

func TestRelaySkipsChatOriginatedEvents(t *testing.T) {
	relay, notifier := testRelay()

	err := relay.Handle(context.Background(), record(
		`{"braiderId":"b1","bookingId":"bk-9","status":"confirmed","source":"chat"}`))

	require.NoError(t, err)
	assert.Empty(t, notifier.notifications)
}

func TestRelayMarksPoisonRecords(t *testing.T) {
	relay, notifier := testRelay()

	require.NoError(t, relay.Handle(context.Background(), record(`{{broken`)))
	require.NoError(t, relay.Handle(context.Background(), record(`{"status":"confirmed"}`)))
	assert.Empty(t, notifier.notifications)
}
