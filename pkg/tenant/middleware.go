package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/courtlens/tenancy/pkg/accesslog"
	"github.com/courtlens/tenancy/pkg/clientip"
	"github.com/courtlens/tenancy/pkg/jwt"
	"github.com/courtlens/tenancy/pkg/logger"
	"github.com/courtlens/tenancy/pkg/requestid"
)

var (
	userClaims  = []string{"sub", "user_id", "uid"}
	userHeaders = []string{"X-User-ID", "User-ID"}
)

// Middleware resolves the tenant of each request, rejects inactive
// tenants, attaches the tenant, its Context and an isolated connection to
// the request context, and writes an access-log entry.
//
// Unresolved requests get 400 when an active tenant is required (the
// default) and pass through untouched otherwise. Failures while building
// the context or acquiring the connection become a generic 500.
func Middleware(finder Finder, opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{
		errorHandler:  DefaultErrorHandler,
		requireActive: true,
		logger:        logger.Discard(),
		observer:      NopObserver{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.strategies == nil {
		cfg.strategies = DefaultStrategies(finder)
	}
	if cfg.builder == nil {
		cfg.builder = NewBuilder(finder)
	}

	m := &middleware{
		config: cfg,
		chain: &Chain{
			strategies: cfg.strategies,
			logger:     cfg.logger,
			observer:   cfg.observer,
		},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.skipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			scoped, conn, err := m.attach(r)
			if err != nil {
				m.reject(w, r, err)
				return
			}
			if conn != nil {
				defer conn.Release()
			}
			next.ServeHTTP(w, scoped)
		})
	}
}

type middleware struct {
	*config
	chain *Chain
}

// attach returns r unchanged when no tenant was resolved and none is
// required. The returned connection, if any, is leased for the request.
// Panics are converted to errors so the caller answers 500.
func (m *middleware) attach(r *http.Request) (_ *http.Request, conn Connection, err error) {
	defer func() {
		if p := recover(); p != nil {
			if conn != nil {
				conn.Release()
				conn = nil
			}
			err = fmt.Errorf("tenant: panic during resolution: %v", p)
		}
	}()

	res, ok := m.chain.Resolve(r)
	if !ok {
		if m.requireActive {
			return nil, nil, ErrTenantNotResolved
		}
		return r, nil, nil
	}

	if res.Tenant != nil && !res.Tenant.IsActive() {
		return nil, nil, &InactiveError{TenantID: res.TenantID, Status: res.Tenant.Status}
	}

	ctx := r.Context()
	userID := UserIDFromRequest(r)

	tc, err := m.tenantContext(ctx, res, userID)
	if errors.Is(err, ErrTenantNotFound) {
		if m.requireActive {
			return nil, nil, errors.Join(ErrTenantNotResolved, err)
		}
		return r, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("tenant: build context for %s: %w", res.TenantID, err)
	}

	t := res.Tenant
	if t == nil {
		t = tc.Tenant
	}
	if !t.IsActive() {
		return nil, nil, &InactiveError{TenantID: t.ID.String(), Status: t.Status}
	}

	ctx = WithTenant(ctx, t)
	ctx = WithContext(ctx, tc)

	if m.connections != nil {
		conn, err = m.connections.Connection(ctx, tc)
		if err != nil {
			return nil, nil, fmt.Errorf("tenant: isolated connection for %s: %w", t.ID, err)
		}
		ctx = WithConnection(ctx, conn)
	}

	m.logAccess(ctx, r, t, userID, res.Strategy)
	return r.WithContext(ctx), conn, nil
}

func (m *middleware) tenantContext(ctx context.Context, res Resolution, userID string) (*Context, error) {
	build := func(ctx context.Context) (*Context, error) {
		if res.Tenant != nil {
			return m.builder.ForTenant(ctx, res.Tenant, userID)
		}
		return m.builder.Build(ctx, res.TenantID, userID)
	}
	if m.cache == nil {
		return build(ctx)
	}
	return m.cache.GetOrBuild(ctx, res.TenantID, userID, build)
}

// logAccess never fails the request; sink errors and panics are logged.
func (m *middleware) logAccess(ctx context.Context, r *http.Request, t *Tenant, userID, strategy string) {
	if m.accessLog == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			m.logger.WarnContext(ctx, "access log sink panicked", slog.Any("panic", p))
		}
	}()

	err := m.accessLog.Write(ctx, accesslog.Entry{
		Time:       time.Now().UTC(),
		TenantID:   t.ID.String(),
		TenantName: t.Name,
		UserID:     userID,
		Method:     r.Method,
		Path:       r.URL.Path,
		UserAgent:  r.UserAgent(),
		IP:         clientip.FromRequest(r),
		RequestID:  requestid.FromContext(ctx),
		Strategy:   strategy,
	})
	if err != nil {
		m.logger.DebugContext(ctx, "access log write failed", logger.Error(err))
	}
}

func (m *middleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrTenantNotResolved):
		m.observer.Rejected(RejectNotResolved)
		m.logger.DebugContext(r.Context(), "tenant not resolved", slog.String("path", r.URL.Path))
	case errors.Is(err, ErrInactiveTenant):
		m.observer.Rejected(RejectInactive)
		m.logger.InfoContext(r.Context(), "inactive tenant rejected", logger.Error(err))
	default:
		m.observer.Rejected(RejectInternal)
		m.logger.ErrorContext(r.Context(), "tenant middleware error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	m.errorHandler(w, r, err)
}

// UserIDFromRequest returns the user id from the bearer token (sub,
// user_id or uid), then the X-User-ID or User-ID header, then a User
// attached by earlier authentication middleware. Token decoding errors
// are ignored.
func UserIDFromRequest(r *http.Request) string {
	if claims, err := jwt.FromRequest(r); err == nil {
		if id, ok := jwt.Lookup(claims, userClaims...); ok {
			return id
		}
	}
	for _, h := range userHeaders {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	if u, ok := UserFromContext(r.Context()); ok {
		return u.ID
	}
	return ""
}

// RequireTenant rejects requests that reach it without a tenant in
// context. Use it on routes mounted behind Middleware with
// WithRequireActive(false).
func RequireTenant(errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = DefaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); !ok {
				errorHandler(w, r, ErrNoTenantInContext)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DefaultTenant attaches tenantID's tenant and Context to requests that
// carry none. Intended for local development.
func DefaultTenant(builder ContextBuilder, tenantID string, errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = DefaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			tc, err := builder.Build(r.Context(), tenantID, UserIDFromRequest(r))
			if err != nil {
				errorHandler(w, r, err)
				return
			}

			ctx := WithTenant(r.Context(), tc.Tenant)
			ctx = WithContext(ctx, tc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
