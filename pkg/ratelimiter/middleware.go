package ratelimiter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/courtlens/tenancy/pkg/logger"
	"github.com/courtlens/tenancy/pkg/tenant"
)

// RejectRateLimited is reported to the observer for refused requests.
const RejectRateLimited = "rate_limited"

type middlewareConfig struct {
	logger   *slog.Logger
	observer tenant.Observer
	now      func() time.Time
}

type Option func(*middlewareConfig)

func WithLogger(l *slog.Logger) Option {
	return func(c *middlewareConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithObserver(o tenant.Observer) Option {
	return func(c *middlewareConfig) {
		if o != nil {
			c.observer = o
		}
	}
}

func WithMiddlewareClock(now func() time.Time) Option {
	return func(c *middlewareConfig) { c.now = now }
}

// window is one of a tenant's buckets.
type window struct {
	suffix string
	cfg    Config
}

// tenantWindows returns the minute and hour buckets for the tenant's
// API rate limit. Zero limits are skipped.
func tenantWindows(limits tenant.RateLimit) []window {
	var ws []window
	if limits.PerMinute > 0 {
		ws = append(ws, window{suffix: ":m", cfg: Config{
			Capacity:       limits.PerMinute,
			RefillRate:     limits.PerMinute,
			RefillInterval: time.Minute,
		}})
	}
	if limits.PerHour > 0 {
		ws = append(ws, window{suffix: ":h", cfg: Config{
			Capacity:       limits.PerHour,
			RefillRate:     limits.PerHour,
			RefillInterval: time.Hour,
		}})
	}
	return ws
}

// TenantMiddleware limits requests per tenant. It must run after
// tenant.Middleware; requests without a tenant Context pass through.
// A store failure is logged and the request is let through.
func TenantMiddleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		logger:   logger.Discard(),
		observer: tenant.NopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tc, ok := tenant.ContextFromContext(ctx)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			var tightest *Result
			for _, win := range tenantWindows(tc.ResourceLimits.API.RateLimit) {
				res, err := Allow(ctx, store, tc.TenantID.String()+win.suffix, win.cfg)
				if err != nil {
					cfg.logger.ErrorContext(ctx, "rate limit check failed",
						logger.TenantID(tc.TenantID.String()), logger.Error(err))
					next.ServeHTTP(w, r)
					return
				}
				if tightest == nil || res.Remaining < tightest.Remaining {
					tightest = res
				}
				if !res.Allowed() {
					break
				}
			}
			if tightest == nil {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(tightest.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, tightest.Remaining)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(tightest.ResetAt.Unix(), 10))

			if !tightest.Allowed() {
				cfg.observer.Rejected(RejectRateLimited)
				retry := int(tightest.RetryAfter(cfg.now()).Round(time.Second).Seconds())
				h.Set("Retry-After", strconv.Itoa(max(retry, 1)))
				h.Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(tenant.ErrorResponse{
					Error:    "Too many requests",
					Message:  "Tenant API rate limit exceeded",
					TenantID: tc.TenantID.String(),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
