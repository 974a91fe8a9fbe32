package deckflow

import (
	"context"

	"github.com/google/uuid"
)

type correlationKey struct{}

// NewCorrelationID returns a fresh opaque id threading the log and
// metric entries of one logical operation.
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID stores an id on the context, creating one when the
// given id is empty.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewCorrelationID()
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID extracts the id from the context. An empty string means
// the context carries none; callers that need a guaranteed id mint one
// with NewCorrelationID and attach it themselves.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}
