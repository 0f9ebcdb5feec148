package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/messaging"
)

// feedClient delivers its messages once, then blocks until cancelled.
type feedClient struct {
	msgs     []messaging.Message
	consumed atomic.Int32
}

func (f *feedClient) Publish(context.Context, []byte, []byte, map[string]string) error { return nil }

func (f *feedClient) Consume(ctx context.Context, handler messaging.Handler) error {
	if f.consumed.Add(1) == 1 {
		for _, m := range f.msgs {
			if err := handler(ctx, m); err != nil {
				return err
			}
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *feedClient) Topic() string { return "fulfillment.events" }

func message(eventType string) messaging.Message {
	return messaging.Message{
		Topic:   "fulfillment.events",
		Value:   []byte(`{}`),
		Headers: map[string]string{messaging.HeaderEventType: eventType},
	}
}

func TestDispatch(t *testing.T) {
	t.Run("should route on the event type header", func(t *testing.T) {
		var got []string
		e := NewEngine(Params{
			Client: &feedClient{},
			Logger: zap.NewNop(),
			Registrations: []HandlerRegistration{
				{EventType: "status_changed", Handler: func(_ context.Context, m messaging.Message) error {
					got = append(got, m.Headers[messaging.HeaderEventType])
					return nil
				}},
				{EventType: "", Handler: func(context.Context, messaging.Message) error { return errors.New("never") }},
			},
		})

		require.NoError(t, e.Dispatch(t.Context(), message("status_changed")))
		require.NoError(t, e.Dispatch(t.Context(), message("something_else")))
		require.NoError(t, e.Dispatch(t.Context(), messaging.Message{Topic: "fulfillment.events"}))
		assert.Equal(t, []string{"status_changed"}, got)
	})

	t.Run("should surface handler errors", func(t *testing.T) {
		boom := errors.New("boom")
		e := NewEngine(Params{
			Client: &feedClient{},
			Logger: zap.NewNop(),
			Registrations: []HandlerRegistration{
				{EventType: "status_changed", Handler: func(context.Context, messaging.Message) error { return boom }},
			},
		})

		assert.ErrorIs(t, e.Dispatch(t.Context(), message("status_changed")), boom)
	})
}

func TestEngineLifecycle(t *testing.T) {
	t.Run("should consume until stopped", func(t *testing.T) {
		var handled atomic.Int32
		client := &feedClient{msgs: []messaging.Message{message("status_changed"), message("status_changed")}}
		cfg := config.Config{}
		cfg.Messaging.Enabled = true
		cfg.Messaging.Workers.Enabled = true
		cfg.Messaging.Workers.Concurrency = 1

		e := NewEngine(Params{
			Client: client,
			Logger: zap.NewNop(),
			Config: cfg,
			Registrations: []HandlerRegistration{
				{EventType: "status_changed", Handler: func(context.Context, messaging.Message) error {
					handled.Add(1)
					return nil
				}},
			},
		})

		require.NoError(t, e.start(t.Context()))
		assert.Eventually(t, func() bool { return handled.Load() == 2 }, time.Second, 10*time.Millisecond)

		ctx, cancel := context.WithTimeout(t.Context(), time.Second)
		defer cancel()
		require.NoError(t, e.stop(ctx))
	})

	t.Run("should stay idle when workers are disabled", func(t *testing.T) {
		client := &feedClient{}
		e := NewEngine(Params{Client: client, Logger: zap.NewNop(), Config: config.Config{}})

		require.NoError(t, e.start(t.Context()))
		require.NoError(t, e.stop(t.Context()))
		assert.Zero(t, client.consumed.Load())
	})
}
