package eventing

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/agentuity/go-storefront/logger"
	"go.opentelemetry.io/otel/trace"
)

type memorySubscription struct {
	id      uint64
	subject string
	ctx     context.Context
	cb      MessageCallback
}

type memoryEventingClient struct {
	mu     sync.RWMutex
	subs   []*memorySubscription
	nextID uint64
	closed bool
	logger logger.Logger
}

var _ Client = (*memoryEventingClient)(nil)

// NewMemoryClient returns an in-process Client. Publish delivers to every
// matching subscriber synchronously, in subscription order.
func NewMemoryClient(log logger.Logger) Client {
	return &memoryEventingClient{
		logger: log.With(map[string]interface{}{"component": "eventing"}),
	}
}

func (c *memoryEventingClient) Publish(ctx context.Context, subject string, data []byte, opts ...PublishOption) error {
	headers := newHeaders(opts)
	propagator.Inject(ctx, headers)

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClosed
	}
	var targets []*memorySubscription
	for _, sub := range c.subs {
		if sub.subject == subject {
			targets = append(targets, sub)
		}
	}
	c.mu.RUnlock()

	for _, sub := range targets {
		if sub.ctx.Err() != nil {
			continue
		}
		msg := &message{
			InternalData:    slices.Clone(data),
			InternalHeaders: maps.Clone(headers),
			subject:         subject,
		}
		spanCtx, span := tracer.Start(
			propagator.Extract(sub.ctx, msg.InternalHeaders),
			"deliver",
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		sub.cb(spanCtx, msg)
		span.End()
	}
	c.logger.Trace("published %s to %d subscribers", subject, len(targets))
	return nil
}

func (c *memoryEventingClient) Subscribe(ctx context.Context, subject string, cb MessageCallback) (Subscriber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	c.nextID++
	sub := &memorySubscription{id: c.nextID, subject: subject, ctx: ctx, cb: cb}
	c.subs = append(c.subs, sub)
	return &memorySubscriber{client: c, id: sub.id}, nil
}

func (c *memoryEventingClient) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = slices.DeleteFunc(c.subs, func(s *memorySubscription) bool { return s.id == id })
}

func (c *memoryEventingClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.subs = nil
	return nil
}

type memorySubscriber struct {
	client *memoryEventingClient
	id     uint64
}

func (s *memorySubscriber) Close() error {
	s.client.remove(s.id)
	return nil
}
