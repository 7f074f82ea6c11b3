package eventing

import (
	"context"
	"errors"
	"strings"
)

// SubjectPrefix namespaces every subject published by the storefront.
const SubjectPrefix = "storefront."

// ErrClosed is returned when publishing or subscribing on a closed client.
var ErrClosed = errors.New("eventing: client closed")

// Subject returns the subject a realtime event is relayed on.
func Subject(event string) string {
	return SubjectPrefix + strings.TrimPrefix(event, SubjectPrefix)
}

// Message represents a message received from the event system
type Message interface {
	Data() []byte
	Headers() Headers
	Subject() string
}

// Headers represents message headers that can be used for both map operations and propagation
type Headers map[string]string

func (h Headers) Get(key string) string {
	return h[key]
}

func (h Headers) Set(key string, value string) {
	h[key] = value
}

func (h Headers) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

type MessageCallback func(ctx context.Context, msg Message)

type Subscriber interface {
	// Close stops the subscriber
	Close() error
}

type PublishOption func(*publishOptions)

type publishOptions struct {
	Headers [][]string
}

func WithHeader(key, value string) PublishOption {
	return func(o *publishOptions) {
		o.Headers = append(o.Headers, []string{key, value})
	}
}

func newHeaders(opts []PublishOption) Headers {
	options := &publishOptions{}
	for _, opt := range opts {
		opt(options)
	}
	headers := make(Headers)
	for _, header := range options.Headers {
		if len(header) == 2 {
			headers[header[0]] = header[1]
		}
	}
	return headers
}

// Client defines the interface for event clients
type Client interface {
	// Publish publishes a message to a subject
	Publish(ctx context.Context, subject string, data []byte, opts ...PublishOption) error
	// Subscribe subscribes to a subject
	Subscribe(ctx context.Context, subject string, cb MessageCallback) (Subscriber, error)
	// Close closes the client and every subscriber it created
	Close() error
}

type message struct {
	InternalData    []byte  `msgpack:"data"`
	InternalHeaders Headers `msgpack:"headers"`
	subject         string
}

func (m *message) Data() []byte {
	return m.InternalData
}

func (m *message) Headers() Headers {
	return m.InternalHeaders
}

func (m *message) Subject() string {
	return m.subject
}
