// Command tenantd serves the tenant admin API, resolves tenants for the
// application routes and runs the provisioning worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/courtlens/tenancy/internal/api"
	"github.com/courtlens/tenancy/internal/config"
	"github.com/courtlens/tenancy/pkg/accesslog"
	"github.com/courtlens/tenancy/pkg/httpserver"
	"github.com/courtlens/tenancy/pkg/isolation"
	"github.com/courtlens/tenancy/pkg/logger"
	"github.com/courtlens/tenancy/pkg/metrics"
	"github.com/courtlens/tenancy/pkg/opensearch"
	"github.com/courtlens/tenancy/pkg/pg"
	"github.com/courtlens/tenancy/pkg/provisioning"
	"github.com/courtlens/tenancy/pkg/queue"
	"github.com/courtlens/tenancy/pkg/ratelimiter"
	"github.com/courtlens/tenancy/pkg/rbac"
	"github.com/courtlens/tenancy/pkg/redis"
	"github.com/courtlens/tenancy/pkg/requestid"
	"github.com/courtlens/tenancy/pkg/secrets"
	"github.com/courtlens/tenancy/pkg/storage"
	"github.com/courtlens/tenancy/pkg/tenant"
	"github.com/courtlens/tenancy/pkg/tenant/pgstore"
	"github.com/courtlens/tenancy/pkg/tenant/rediscache"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "tenantd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(
		logger.WithLevelName(cfg.App.LogLevel),
		logger.WithFormat(logger.Format(cfg.App.LogFormat)),
		logger.WithEnvironment(cfg.App.Env, cfg.App.Name),
		logger.WithContextExtractors(tenant.LoggerExtractor(), requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	key, err := secrets.ParseKey(cfg.App.AppKey)
	if err != nil {
		return fmt.Errorf("parse app key: %w", err)
	}
	cipher, err := secrets.NewCipher(key)
	if err != nil {
		return err
	}

	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pgstore.Migrate(ctx, pool, cfg.Postgres.MigrationsTable, log); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	isoOpts := []isolation.Option{
		isolation.WithConfig(cfg.Isolation),
		isolation.WithPGConfig(cfg.Postgres),
		isolation.WithCacheClient(rdb),
		isolation.WithLogger(log),
	}
	if cfg.App.StorageEnabled {
		buckets, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		isoOpts = append(isoOpts, isolation.WithBuckets(buckets))
	}
	iso := isolation.New(pool, isoOpts...)
	defer iso.Close()

	store := rediscache.New(
		pgstore.New(pool, pgstore.WithCipher(cipher)),
		rdb,
		rediscache.WithConfig(cfg.RecordCache),
		rediscache.WithCipher(cipher),
		rediscache.WithLogger(log),
	)

	authz, err := rbac.NewAuthorizer(ctx, rbac.NewYAMLRoleSource(cfg.App.RolesFile))
	if err != nil {
		return err
	}
	members := pgstore.NewMembers(pool)
	perms := rbac.NewProvider(authz, members)
	builder := tenant.NewBuilder(store,
		tenant.WithUserProvider(perms),
		tenant.WithPermissionProvider(perms),
	)

	contexts := tenant.NewContextCache(
		tenant.WithTTL(cfg.Tenancy.CacheTTL),
		tenant.WithMaxEntries(cfg.Tenancy.CacheMax),
		tenant.WithCacheDisabled(cfg.Tenancy.CacheDisabled),
		tenant.WithCacheObserver(m),
	)
	m.Gauge("tenancy_context_cache_entries", "Tenant contexts currently cached.", func() float64 {
		return float64(contexts.Len())
	})
	m.Gauge("tenancy_pooled_connections", "Tenant connection pools currently open.", func() float64 {
		return float64(iso.Pooled())
	})

	tasks := queue.NewMemoryStorage()
	enqueuer, err := queue.NewEnqueuer(tasks)
	if err != nil {
		return err
	}

	svc, err := provisioning.NewService(store, pgstore.NewRecords(pool),
		provisioning.WithConfig(cfg.Provisioning),
		provisioning.WithTemplates(pgstore.NewTemplates(pool)),
		provisioning.WithEnqueuer(enqueuer),
		provisioning.WithContextCache(contexts),
		provisioning.WithBuilder(builder),
		provisioning.WithIsolator(iso),
		provisioning.WithMetrics(m),
		provisioning.WithLogger(log),
	)
	if err != nil {
		return err
	}

	worker, err := queue.NewWorker(tasks,
		queue.WithQueues(cfg.Provisioning.Queue),
		queue.WithPullInterval(cfg.Worker.PullInterval),
		queue.WithLockTimeout(cfg.Worker.LockTimeout),
		queue.WithMaxConcurrentTasks(cfg.Worker.MaxConcurrent),
		queue.WithWorkerLogger(log),
	)
	if err != nil {
		return err
	}
	worker.RegisterHandlers(svc.Handler())

	checks := []httpserver.Check{
		{Name: "postgres", Fn: pg.Healthcheck(pool)},
		{Name: "redis", Fn: redis.Healthcheck(rdb)},
	}

	var sink accesslog.Sink = accesslog.NewSlogSink(log)
	var shipper *accesslog.AsyncWriter
	if cfg.AccessLog.Enabled {
		client, err := opensearch.New(ctx, cfg.OpenSearch)
		if err != nil {
			return err
		}
		shipper = accesslog.NewAsyncWriter(
			opensearch.NewAccessLogWriter(client, cfg.OpenSearch.AccessIndex),
			cfg.AccessLog.Options(),
			log,
		)
		sink = accesslog.Multi(sink, shipper)
		checks = append(checks, httpserver.Check{Name: "opensearch", Fn: opensearch.Healthcheck(client)})
	}

	strategies, err := tenant.StrategiesByName(store, cfg.Tenancy.Strategies...)
	if err != nil {
		return err
	}

	var limit func(http.Handler) http.Handler
	if cfg.Tenancy.RateLimit {
		limit = ratelimiter.TenantMiddleware(
			ratelimiter.NewRedisStore(rdb, cfg.Tenancy.RateLimitPrefix),
			ratelimiter.WithLogger(log),
			ratelimiter.WithObserver(m),
		)
	}

	resolve := tenant.Middleware(store,
		tenant.WithStrategies(strategies...),
		tenant.WithBuilder(builder),
		tenant.WithContextCache(contexts),
		tenant.WithConnectionProvider(iso),
		tenant.WithAccessLog(sink),
		tenant.WithSkipPaths(cfg.Tenancy.SkipPaths...),
		tenant.WithRequireActive(cfg.Tenancy.RequireActive),
		tenant.WithLogger(log),
		tenant.WithObserver(m),
	)

	handler := api.NewRouter(api.RouterConfig{
		Tenants:          svc,
		Members:          members,
		Roles:            authz,
		Contexts:         contexts,
		TenantMiddleware: resolve,
		RateLimit:        limit,
		AdminToken:       cfg.App.AdminToken,
		Metrics:          promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Checks:           checks,
		HealthTimeout:    cfg.HTTP.HealthTimeout,
		Logger:           log,
	})

	server := httpserver.New(
		httpserver.WithAddr(cfg.HTTP.Addr),
		httpserver.WithReadTimeout(cfg.HTTP.ReadTimeout),
		httpserver.WithReadHeaderTimeout(cfg.HTTP.ReadHeaderTimeout),
		httpserver.WithWriteTimeout(cfg.HTTP.WriteTimeout),
		httpserver.WithIdleTimeout(cfg.HTTP.IdleTimeout),
		httpserver.WithShutdownTimeout(cfg.HTTP.ShutdownTimeout),
		httpserver.WithLogger(log),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, handler) })
	g.Go(worker.Run(gctx))
	g.Go(func() error { return contexts.Sweep(gctx, cfg.Tenancy.SweepInterval) })

	err = g.Wait()

	if shipper != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := shipper.Close(flushCtx); cerr != nil {
			log.Error("failed to flush access log", logger.Error(cerr))
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("tenantd stopped", slog.String("env", cfg.App.Env))
	return nil
}
