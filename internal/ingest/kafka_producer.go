package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-booking/internal/models"
)

const publishTimeout = 2 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes driver locations and booking outcomes, each to its
// own topic, keyed by driver id so one driver's messages stay ordered.
type KafkaProducer struct {
	writer        messageWriter
	locationTopic string
	bookingTopic  string
}

func NewKafkaProducer(brokers []string, locationTopic, bookingTopic string) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaProducer{writer: w, locationTopic: locationTopic, bookingTopic: bookingTopic}
}

func (k *KafkaProducer) PublishLocation(ctx context.Context, loc models.DriverLocation) error {
	return k.publish(ctx, k.locationTopic, loc.DriverID, loc)
}

// PublishBooking satisfies booking.EventPublisher.
func (k *KafkaProducer) PublishBooking(ctx context.Context, ev models.BookingEvent) error {
	return k.publish(ctx, k.bookingTopic, ev.DriverID, ev)
}

func (k *KafkaProducer) publish(ctx context.Context, topic string, driverID int64, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	msg := kafka.Message{Topic: topic, Key: []byte(strconv.FormatInt(driverID, 10)), Value: b}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
