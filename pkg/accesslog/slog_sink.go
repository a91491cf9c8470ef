package accesslog

import (
	"context"
	"log/slog"

	"github.com/courtlens/tenancy/pkg/logger"
)

// SlogSink writes entries as info records.
type SlogSink struct {
	log *slog.Logger
}

func NewSlogSink(log *slog.Logger) *SlogSink {
	if log == nil {
		log = slog.Default()
	}
	return &SlogSink{log: log}
}

func (s *SlogSink) Write(ctx context.Context, e Entry) error {
	s.log.LogAttrs(ctx, slog.LevelInfo, "tenant access",
		logger.Event("tenant.access"),
		logger.TenantID(e.TenantID),
		slog.String("tenant_name", e.TenantName),
		logger.UserID(e.UserID),
		slog.String("method", e.Method),
		slog.String("path", e.Path),
		slog.String("user_agent", e.UserAgent),
		slog.String("ip", e.IP),
		logger.RequestID(e.RequestID),
		logger.Strategy(e.Strategy),
	)
	return nil
}
