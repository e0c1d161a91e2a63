package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/LiveTrack/internal/errs"
	"github.com/pkg/errors"
)

// Broadcaster fans events out to the connections subscribed to an order.
type Broadcaster struct {
	reg     *Registry
	metrics *Metrics
	now     func() time.Time

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

func NewBroadcaster(reg *Registry, metrics *Metrics) *Broadcaster {
	return &Broadcaster{
		reg:     reg,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (b *Broadcaster) Registry() *Registry {
	return b.reg
}

// Publish delivers the event to every subscriber of the order and returns how many got it.
// Per-subscriber failures are logged and counted, never returned.
func (b *Broadcaster) Publish(ctx context.Context, orderID string, kind EventKind, payload any) (int, error) {
	return b.PublishExcept(ctx, orderID, kind, payload, "")
}

// PublishExcept is Publish that skips the connection exceptConnID (the joiner for presence events).
func (b *Broadcaster) PublishExcept(ctx context.Context, orderID string, kind EventKind, payload any, exceptConnID string) (int, error) {
	if b == nil || b.reg == nil {
		return 0, errs.New(errs.KindUnavailable, "broadcaster is not initialized")
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0, errs.New(errs.KindUnavailable, "broadcaster is closed")
	}
	b.inflight.Add(1)
	b.mu.RUnlock()
	defer b.inflight.Done()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	msg, err := json.Marshal(Envelope{Type: kind, Payload: payload, Timestamp: b.now()})
	if err != nil {
		return 0, errs.Wrap(errs.KindInternal, errors.Wrap(err, "marshal event"), "encode event")
	}

	delivered, failed := 0, 0
	b.reg.forEach(orderID, func(s Subscriber) {
		if s.ID() == exceptConnID {
			return
		}
		if err := s.Deliver(msg); err != nil {
			failed++
			slog.Warn("event delivery failed", "order_id", orderID, "conn_id", s.ID(), "kind", string(kind), "error", err)
			return
		}
		delivered++
	})
	b.metrics.observePublish(kind, delivered, failed)
	return delivered, nil
}

// Close stops accepting publishes and waits for in-flight ones to finish or ctx to expire.
func (b *Broadcaster) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
