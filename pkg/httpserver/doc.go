// Package httpserver runs the admin HTTP server with graceful shutdown
// and provides liveness and readiness handlers.
//
// Run blocks until its context is cancelled, then shuts the server down
// within the configured shutdown timeout. Listen and shutdown failures
// are wrapped with ErrStart and ErrShutdown.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	r.Get("/health/live", httpserver.LivenessHandler())
//	r.Get("/health/ready", httpserver.ReadinessHandler(log, cfg.HTTP.HealthTimeout,
//		httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
//		httpserver.Check{Name: "redis", Fn: redis.Healthcheck(rdb)},
//	))
//	return srv.Run(ctx, r)
package httpserver
