package tenant_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtlens/tenancy/pkg/accesslog"
	"github.com/courtlens/tenancy/pkg/tenant"
)

type fakeConn struct {
	tenantID uuid.UUID
	released *atomic.Int32
}

func (fakeConn) Ping(context.Context) error { return nil }

func (c fakeConn) Release() { c.released.Add(1) }

type fakeConnections struct {
	err      error
	leased   atomic.Int32
	released atomic.Int32
}

func (p *fakeConnections) Connection(_ context.Context, tc *tenant.Context) (tenant.Connection, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.leased.Add(1)
	return fakeConn{tenantID: tc.TenantID, released: &p.released}, nil
}

type recordingSink struct {
	mu      sync.Mutex
	entries []accesslog.Entry
	err     error
}

func (s *recordingSink) Write(_ context.Context, e accesslog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.err
}

type failingBuilder struct{ err error }

func (b failingBuilder) Build(context.Context, string, string) (*tenant.Context, error) {
	return nil, b.err
}

func (b failingBuilder) ForTenant(context.Context, *tenant.Tenant, string) (*tenant.Context, error) {
	return nil, b.err
}

type panickingBuilder struct{}

func (panickingBuilder) Build(context.Context, string, string) (*tenant.Context, error) {
	panic("boom")
}

func (panickingBuilder) ForTenant(context.Context, *tenant.Tenant, string) (*tenant.Context, error) {
	panic("boom")
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) tenant.ErrorResponse {
	t.Helper()
	var body tenant.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func okHandler(t *testing.T, check func(r *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func mustNotRun(t *testing.T) http.Handler {
	return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler should not be called")
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("attaches tenant, context and connection", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("Acme", "app.example.com", "acme", tenant.StatusActive)
		store := seed(t, acme)
		sink := &recordingSink{}

		mw := tenant.Middleware(store,
			tenant.WithContextCache(tenant.NewContextCache()),
			tenant.WithConnectionProvider(&fakeConnections{}),
			tenant.WithAccessLog(sink),
		)
		h := mw(okHandler(t, func(r *http.Request) {
			got, ok := tenant.FromContext(r.Context())
			require.True(t, ok)
			assert.Equal(t, acme.ID, got.ID)

			tc, ok := tenant.ContextFromContext(r.Context())
			require.True(t, ok)
			assert.Equal(t, acme.ID, tc.TenantID)
			assert.Equal(t, "u-42", tc.UserID())
			assert.Equal(t, tenant.SharedDatabase, tc.Isolation.Mode)

			conn, ok := tenant.ConnectionFromContext(r.Context())
			require.True(t, ok)
			assert.Equal(t, acme.ID, conn.(fakeConn).tenantID)

			id, ok := tenant.IDFromContext(r.Context())
			require.True(t, ok)
			assert.Equal(t, acme.ID, id)
		}))

		req := httptest.NewRequest(http.MethodGet, "/cases", nil)
		req.Host = "acme.app.example.com"
		req.Header.Set("X-User-ID", "u-42")
		req.Header.Set("User-Agent", "test-agent")
		req.RemoteAddr = "192.0.2.10:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, sink.entries, 1)
		entry := sink.entries[0]
		assert.Equal(t, acme.ID.String(), entry.TenantID)
		assert.Equal(t, "Acme", entry.TenantName)
		assert.Equal(t, "u-42", entry.UserID)
		assert.Equal(t, "/cases", entry.Path)
		assert.Equal(t, "test-agent", entry.UserAgent)
		assert.Equal(t, "192.0.2.10", entry.IP)
		assert.Equal(t, tenant.StrategySubdomain, entry.Strategy)
	})

	t.Run("unresolved request gets 400 when tenant required", func(t *testing.T) {
		t.Parallel()

		h := tenant.Middleware(tenant.NewMemoryStore())(mustNotRun(t))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		body := decodeError(t, rec)
		assert.Equal(t, "Tenant not found", body.Error)
		assert.Equal(t, "Unable to resolve tenant from request", body.Message)
	})

	t.Run("unresolved request passes through when not required", func(t *testing.T) {
		t.Parallel()

		h := tenant.Middleware(tenant.NewMemoryStore(), tenant.WithRequireActive(false))(okHandler(t, func(r *http.Request) {
			_, ok := tenant.FromContext(r.Context())
			assert.False(t, ok)
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("inactive tenant gets 403 whichever strategy resolved it", func(t *testing.T) {
		t.Parallel()

		for _, status := range []tenant.Status{tenant.StatusSuspended, tenant.StatusPendingSetup, tenant.StatusArchived} {
			suspended := newTenant("Sus", "app.example.com", "sus-"+string(status), status)
			store := seed(t, suspended)
			strategies, err := tenant.StrategiesByName(store, "subdomain", "header")
			require.NoError(t, err)
			h := tenant.Middleware(store, tenant.WithStrategies(strategies...))(mustNotRun(t))

			bySub := httptest.NewRequest(http.MethodGet, "/", nil)
			bySub.Host = suspended.Subdomain + ".app.example.com"
			byHeader := httptest.NewRequest(http.MethodGet, "/", nil)
			byHeader.Header.Set("X-Tenant-ID", suspended.ID.String())

			for _, req := range []*http.Request{bySub, byHeader} {
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)

				assert.Equal(t, http.StatusForbidden, rec.Code)
				body := decodeError(t, rec)
				assert.Equal(t, "Tenant not active", body.Error)
				assert.Equal(t, "Tenant status: "+string(status), body.Message)
				assert.Equal(t, suspended.ID.String(), body.TenantID)
			}
		}
	})

	t.Run("known id without record is treated as unresolved", func(t *testing.T) {
		t.Parallel()

		store := tenant.NewMemoryStore()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", uuid.NewString())

		rec := httptest.NewRecorder()
		tenant.Middleware(store)(mustNotRun(t)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = httptest.NewRecorder()
		tenant.Middleware(store, tenant.WithRequireActive(false))(okHandler(t, nil)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("build failure becomes 500 without leaking details", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("Acme", "acme.com", "", tenant.StatusActive)
		h := tenant.Middleware(seed(t, acme),
			tenant.WithBuilder(failingBuilder{err: errors.New("permission store down: secret-dsn")}),
		)(mustNotRun(t))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", acme.ID.String())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret-dsn")
		body := decodeError(t, rec)
		assert.Equal(t, "Tenant resolution failed", body.Error)
		assert.Equal(t, "Internal server error during tenant resolution", body.Message)
	})

	t.Run("connection failure becomes 500", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("Acme", "acme.com", "", tenant.StatusActive)
		h := tenant.Middleware(seed(t, acme),
			tenant.WithConnectionProvider(&fakeConnections{err: errors.New("pool exhausted")}),
		)(mustNotRun(t))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", acme.ID.String())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("panicking strategy is skipped", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("Acme", "acme.com", "", tenant.StatusActive)
		store := seed(t, acme)
		panicking := tenant.StrategyFunc{StrategyName: "panic", Fn: func(*http.Request) (tenant.Resolution, error) {
			panic("boom")
		}}
		h := tenant.Middleware(store,
			tenant.WithStrategies(panicking, tenant.NewHeaderStrategy(store)),
		)(okHandler(t, func(r *http.Request) {
			id, ok := tenant.IDFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, acme.ID, id)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", acme.ID.String())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("builder panic becomes 500", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("Acme", "acme.com", "", tenant.StatusActive)
		h := tenant.Middleware(seed(t, acme), tenant.WithBuilder(panickingBuilder{}))(mustNotRun(t))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", acme.ID.String())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("connection is released after the handler", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("Acme", "acme.com", "", tenant.StatusActive)
		conns := &fakeConnections{}
		h := tenant.Middleware(seed(t, acme), tenant.WithConnectionProvider(conns))(okHandler(t, func(r *http.Request) {
			_, ok := tenant.ConnectionFromContext(r.Context())
			assert.True(t, ok)
			assert.Zero(t, conns.released.Load())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", acme.ID.String())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int32(1), conns.leased.Load())
		assert.Equal(t, int32(1), conns.released.Load())
	})

	t.Run("access log failures are swallowed", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("Acme", "acme.com", "", tenant.StatusActive)
		sink := &recordingSink{err: errors.New("sink down")}
		h := tenant.Middleware(seed(t, acme), tenant.WithAccessLog(sink))(okHandler(t, nil))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", acme.ID.String())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, sink.entries, 1)
	})

	t.Run("skip paths bypass resolution", func(t *testing.T) {
		t.Parallel()

		h := tenant.Middleware(tenant.NewMemoryStore(), tenant.WithSkipPaths("/health"))(okHandler(t, nil))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("contexts are cached per user", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("Acme", "acme.com", "", tenant.StatusActive)
		cache := tenant.NewContextCache()
		var seen []*tenant.Context
		h := tenant.Middleware(seed(t, acme), tenant.WithContextCache(cache))(okHandler(t, func(r *http.Request) {
			tc, _ := tenant.ContextFromContext(r.Context())
			seen = append(seen, tc)
		}))

		for _, user := range []string{"u1", "u1", "u2"} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Tenant-ID", acme.ID.String())
			req.Header.Set("User-ID", user)
			h.ServeHTTP(httptest.NewRecorder(), req)
		}

		require.Len(t, seen, 3)
		assert.Same(t, seen[0], seen[1])
		assert.NotSame(t, seen[0], seen[2])
		assert.Equal(t, 2, cache.Len())
	})
}

func TestUserIDFromRequest(t *testing.T) {
	t.Parallel()

	t.Run("jwt claim first", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", bearer(t, gojwt.MapClaims{"user_id": "from-jwt"}))
		req.Header.Set("X-User-ID", "from-header")
		assert.Equal(t, "from-jwt", tenant.UserIDFromRequest(req))
	})

	t.Run("header when token is malformed", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		req.Header.Set("User-ID", "from-header")
		assert.Equal(t, "from-header", tenant.UserIDFromRequest(req))
	})

	t.Run("user from context last", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(tenant.WithUser(req.Context(), &tenant.User{ID: "from-auth"}))
		assert.Equal(t, "from-auth", tenant.UserIDFromRequest(req))
	})

	t.Run("anonymous", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, tenant.UserIDFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)))
	})
}

func TestRequireTenant(t *testing.T) {
	t.Parallel()

	h := tenant.RequireTenant(nil)(okHandler(t, nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(tenant.WithTenant(req.Context(), newTenant("A", "a.com", "", tenant.StatusActive)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDefaultTenant(t *testing.T) {
	t.Parallel()

	def := newTenant("Default", "localhost", "", tenant.StatusActive)
	builder := tenant.NewBuilder(seed(t, def))

	h := tenant.DefaultTenant(builder, def.ID.String(), nil)(okHandler(t, func(r *http.Request) {
		got := tenant.MustFromContext(r.Context())
		assert.Equal(t, def.ID, got.ID)
		_, ok := tenant.ContextFromContext(r.Context())
		assert.True(t, ok)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	missing := tenant.DefaultTenant(builder, uuid.NewString(), nil)(mustNotRun(t))
	rec = httptest.NewRecorder()
	missing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
