package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"braidly/internal/domain/chat"
)

// Producer publishes booking status changes raised inside chat back onto the
// platform's booking topic.
type Producer struct {
	sync  sarama.SyncProducer
	topic string
}

func NewProducer(brokers []string, topic string, cfg *sarama.Config) (*Producer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Producer{sync: sync, topic: topic}, nil
}

// PublishBookingStatus emits an update_booking_status envelope keyed by
// booking id so all status changes for one booking land on one partition.
func (p *Producer) PublishBookingStatus(ctx context.Context, env chat.ControlEnvelope) error {
	payload, err := json.Marshal(bookingStatusEvent{
		BookingID: env.BookingID,
		BraiderID: env.BraiderID,
		Status:    env.Status,
		Source:    "chat",
		At:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("kafka: encode booking status: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(env.BookingID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event"), Value: []byte("booking.status_changed")},
		},
	}
	_, _, err = p.sync.SendMessage(msg)
	return err
}

func (p *Producer) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}

type bookingStatusEvent struct {
	BookingID string    `json:"bookingId"`
	BraiderID string    `json:"braiderId"`
	Status    string    `json:"status"`
	Source    string    `json:"source"`
	At        time.Time `json:"at"`
}
