package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/config"
)

// HeaderEventType names the event carried by a message.
const HeaderEventType = "event_type"

// Message is one record read from the event topic.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	Offset  int64
	Time    time.Time
}

// Handler processes an inbound message.
type Handler func(context.Context, Message) error

// Client publishes to and consumes from the fulfillment event topic.
type Client interface {
	Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error
	Consume(ctx context.Context, handler Handler) error
	Topic() string
}

// Module wires the messaging client.
var Module = fx.Provide(NewClient)

type noopClient struct {
	topic string
}

func (n noopClient) Publish(context.Context, []byte, []byte, map[string]string) error { return nil }

// Consume blocks until ctx ends; nothing is ever delivered.
func (n noopClient) Consume(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (n noopClient) Topic() string { return n.topic }

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaClient struct {
	writer      *kafka.Writer
	reader      reader
	topic       string
	backoff     time.Duration
	maxAttempts int
	logger      *zap.Logger
}

func (k *kafkaClient) Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error {
	return k.writer.WriteMessages(ctx, toKafka(key, value, headers))
}

// Consume hands every fetched message to handler, retrying failures up to
// maxAttempts times. A message is committed once handled or given up on so
// one bad record cannot stall its partition.
func (k *kafkaClient) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Error("kafka fetch failed", zap.Error(err))
			if err := sleep(ctx, k.backoff); err != nil {
				return err
			}
			continue
		}

		if err := k.handle(ctx, handler, msg); err != nil {
			return err
		}
		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Warn("commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle only returns an error when ctx ends between attempts.
func (k *kafkaClient) handle(ctx context.Context, handler Handler, msg kafka.Message) error {
	wrapped := fromKafka(msg)
	for attempt := 1; ; attempt++ {
		err := handler(ctx, wrapped)
		if err == nil {
			return nil
		}
		fields := []zap.Field{
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.String("event_type", wrapped.Headers[HeaderEventType]),
			zap.Error(err),
		}
		if attempt >= k.maxAttempts {
			k.logger.Error("message dropped after retries", fields...)
			return nil
		}
		k.logger.Warn("message handler failed", fields...)
		if err := sleep(ctx, k.backoff); err != nil {
			return err
		}
	}
}

func (k *kafkaClient) Topic() string { return k.topic }

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func toKafka(key, value []byte, headers map[string]string) kafka.Message {
	msg := kafka.Message{Key: key, Value: value}
	for name, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: name, Value: []byte(v)})
	}
	return msg
}

func fromKafka(msg kafka.Message) Message {
	out := Message{
		Topic:  msg.Topic,
		Key:    append([]byte(nil), msg.Key...),
		Value:  append([]byte(nil), msg.Value...),
		Offset: msg.Offset,
		Time:   msg.Time,
	}
	if len(msg.Headers) > 0 {
		out.Headers = make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			out.Headers[h.Key] = string(h.Value)
		}
	}
	return out
}

// NewClient builds a messaging client based on configuration.
func NewClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Messaging.Enabled || cfg.Messaging.Driver == "noop" {
		logger.Info("messaging disabled; using noop client")
		return noopClient{topic: cfg.Messaging.Kafka.Topic}, nil
	}

	switch cfg.Messaging.Driver {
	case "kafka":
		return newKafkaClient(lc, cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported messaging driver: %s", cfg.Messaging.Driver)
	}
}

func newKafkaClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) *kafkaClient {
	kcfg := cfg.Messaging.Kafka
	log := logger.Named("kafka")

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kcfg.Brokers...),
		Topic:        kcfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Logger:       kafkaLogger{logger: log},
		ErrorLogger:  kafkaLogger{logger: log, error: true},
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        kcfg.Brokers,
		GroupID:        cfg.Messaging.ConsumerGroup,
		Topic:          kcfg.Topic,
		MinBytes:       kcfg.MinBytes,
		MaxBytes:       kcfg.MaxBytes,
		CommitInterval: kcfg.CommitInterval,
		Dialer: &kafka.Dialer{
			Timeout:  kcfg.ConnectTimeout,
			ClientID: kcfg.ClientID,
		},
	})

	client := &kafkaClient{
		writer:      writer,
		reader:      r,
		topic:       kcfg.Topic,
		backoff:     cfg.Messaging.Workers.PollInterval,
		maxAttempts: max(cfg.Messaging.Workers.MaxAttempts, 1),
		logger:      log,
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing kafka client")
			return errors.Join(writer.Close(), r.Close())
		},
	})

	return client
}

type kafkaLogger struct {
	logger *zap.Logger
	error  bool
}

func (k kafkaLogger) Printf(msg string, args ...any) {
	if k.error {
		k.logger.Sugar().Warnf(msg, args...)
		return
	}
	k.logger.Sugar().Debugf(msg, args...)
}
