package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Handler processes tasks whose TaskName equals Name().
type Handler interface {
	Name() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// TaskHandlerFunc handles a decoded payload of type T.
type TaskHandlerFunc[T any] func(ctx context.Context, payload T) error

// NewTaskHandler wraps fn as a Handler named after T, matching the name
// Enqueue derives for payloads of the same type.
func NewTaskHandler[T any](fn TaskHandlerFunc[T]) Handler {
	var payload T
	return &taskHandler[T]{name: TaskName(payload), fn: fn}
}

type taskHandler[T any] struct {
	name string
	fn   TaskHandlerFunc[T]
}

func (h *taskHandler[T]) Name() string { return h.name }

func (h *taskHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("queue: decode %s payload: %w", h.name, err)
	}
	return h.fn(ctx, v)
}

// TaskName returns the package-qualified type name of v.
func TaskName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
