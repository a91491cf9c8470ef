package accesslog

import (
	"context"
	"errors"
	"time"
)

// Entry records one tenant-scoped request.
type Entry struct {
	Time       time.Time `json:"@timestamp"`
	TenantID   string    `json:"tenant_id"`
	TenantName string    `json:"tenant_name,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IP         string    `json:"ip,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
}

// Sink receives access-log entries. Callers treat errors as best-effort:
// a failing sink must never fail the request it describes.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Entry) error

func (f SinkFunc) Write(ctx context.Context, e Entry) error {
	return f(ctx, e)
}

// Multi fans an entry out to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, e Entry) error {
		var errs []error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Write(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
