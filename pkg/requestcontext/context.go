// Package requestcontext provides transport-independent context accessors for
// message-scoped values.
//
// Values are set once per delivery by the queue consumer (or per request by
// the HTTP middleware) and read by services and stores. Keeping this package
// free of queue and HTTP dependencies lets domain code import only what it
// needs.
package requestcontext

import (
	"context"
	"time"
)

type (
	deliveryIDKey  struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// DeliveryID retrieves the queue delivery identifier from the context. It
// changes on every redelivery of the same message, unlike the message id.
func DeliveryID(ctx context.Context) string {
	if v, ok := ctx.Value(deliveryIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithDeliveryID injects a queue delivery identifier.
func WithDeliveryID(ctx context.Context, deliveryID string) context.Context {
	return context.WithValue(ctx, deliveryIDKey{}, deliveryID)
}

// RequestID retrieves the correlation id set by the admin API middleware.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the message-scoped time from context, falling back to
// time.Now. Workers pin a single timestamp per delivery so every record
// written for one message carries the same clock reading.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time, for workers and tests.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
