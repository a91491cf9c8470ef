// Package logger builds slog loggers for the tenancy service.
//
// New returns a *slog.Logger whose handler is wrapped by NewContextHandler,
// so request-scoped values such as the resolved tenant id or the request id
// are added to every record logged with a context:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "tenantd"),
//		logger.WithContextExtractors(tenant.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "tenant created", logger.TenantID(t.ID.String()))
//
// The attribute helpers (TenantID, UserID, Step, Error, ...) return an empty
// slog.Attr for empty input, which slog omits from output.
package logger
