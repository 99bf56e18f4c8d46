package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"hotelbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const kafkaWriteTimeout = 5 * time.Second

// MessageWriter is the part of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink forwards bus events to a kafka topic keyed by booking id, so
// every event of one booking lands on the same partition.
type KafkaSink struct {
	writer MessageWriter
	logger *zerolog.Logger
}

// NewKafkaWriter builds an async, hash-balanced writer for cfg.Topic.
func NewKafkaWriter(cfg config.KafkaConfig, logger *zerolog.Logger) (*kafka.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic cannot be empty")
	}

	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Logger:       kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Error().Msgf(msg, args...)
		}),
	}, nil
}

func NewKafkaSink(writer MessageWriter, logger *zerolog.Logger) *KafkaSink {
	return &KafkaSink{writer: writer, logger: logger}
}

// Attach subscribes the sink to every booking event on bus.
func (s *KafkaSink) Attach(bus *EventBus) {
	bus.SubscribeAll(s.Handle)
}

func (s *KafkaSink) Handle(event *Event) error {
	var key struct {
		BookingID int64 `json:"booking_id"`
	}
	if err := json.Unmarshal(event.Payload, &key); err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(key.BookingID, 10)),
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("event", event.Type).Int64("booking_id", key.BookingID).Msg("kafka publish failed")
		return err
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
