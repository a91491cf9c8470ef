package tenant_test

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtlens/tenancy/pkg/tenant"
)

func newTenant(name, domain, subdomain string, status tenant.Status) *tenant.Tenant {
	return &tenant.Tenant{
		ID:        uuid.New(),
		Name:      name,
		Domain:    domain,
		Subdomain: subdomain,
		Status:    status,
		Plan:      tenant.PlanStarter,
		Isolation: tenant.Isolation{Mode: tenant.SharedDatabase},
	}
}

func seed(t *testing.T, tenants ...*tenant.Tenant) *tenant.MemoryStore {
	t.Helper()
	store := tenant.NewMemoryStore()
	for _, tn := range tenants {
		require.NoError(t, store.Create(context.Background(), tn))
	}
	return store
}

func bearer(t *testing.T, claims gojwt.MapClaims) string {
	t.Helper()
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestSubdomainStrategy(t *testing.T) {
	t.Parallel()

	acme := newTenant("Acme", "app.example.com", "acme", tenant.StatusActive)
	s := tenant.NewSubdomainStrategy(seed(t, acme))

	t.Run("three labels resolve", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "acme.app.example.com:8080"

		res, err := s.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, acme.ID.String(), res.TenantID)
		require.NotNil(t, res.Tenant)
		assert.Equal(t, "Acme", res.Tenant.Name)
	})

	t.Run("two labels never match", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "example.com"

		res, err := s.Resolve(req)
		require.NoError(t, err)
		assert.True(t, res.Empty())
	})

	t.Run("unknown subdomain yields nothing", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "globex.app.example.com"

		res, err := s.Resolve(req)
		require.NoError(t, err)
		assert.True(t, res.Empty())
	})
}

func TestDomainStrategy(t *testing.T) {
	t.Parallel()

	acme := newTenant("Acme", "acme-law.com", "", tenant.StatusActive)
	s := tenant.NewDomainStrategy(seed(t, acme))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "acme-law.com:443"
	res, err := s.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, acme.ID.String(), res.TenantID)
}

func TestIdentifierStrategies(t *testing.T) {
	t.Parallel()

	acme := newTenant("Acme", "acme.com", "", tenant.StatusActive)
	store := seed(t, acme)
	unknown := uuid.New()

	tests := []struct {
		name     string
		strategy tenant.Strategy
		prepare  func(t *testing.T, r *http.Request, id string)
	}{
		{
			name:     "header",
			strategy: tenant.NewHeaderStrategy(store),
			prepare:  func(_ *testing.T, r *http.Request, id string) { r.Header.Set("Tenant-ID", id) },
		},
		{
			name:     "jwt claim",
			strategy: tenant.NewJWTClaimStrategy(store),
			prepare: func(t *testing.T, r *http.Request, id string) {
				r.Header.Set("Authorization", bearer(t, gojwt.MapClaims{"tid": id}))
			},
		},
		{
			name:     "query param",
			strategy: tenant.NewQueryParamStrategy(store),
			prepare:  func(_ *testing.T, r *http.Request, id string) { r.URL.RawQuery = "tenantId=" + id },
		},
		{
			name:     "path param",
			strategy: tenant.NewPathParamStrategy(store),
			prepare:  func(_ *testing.T, r *http.Request, id string) { r.URL.Path = "/tenant/" + id + "/cases" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.prepare(t, req, acme.ID.String())
			res, err := tt.strategy.Resolve(req)
			require.NoError(t, err)
			assert.Equal(t, acme.ID.String(), res.TenantID)
			assert.NotNil(t, res.Tenant)

			req = httptest.NewRequest(http.MethodGet, "/", nil)
			tt.prepare(t, req, unknown.String())
			res, err = tt.strategy.Resolve(req)
			require.NoError(t, err)
			assert.Equal(t, unknown.String(), res.TenantID, "identifier is kept when the record is missing")
			assert.Nil(t, res.Tenant)

			res, err = tt.strategy.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			assert.True(t, res.Empty())
		})
	}
}

func TestHeaderStrategyPriority(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Tenant-ID", "last")
	req.Header.Set("X-Organization-ID", "first")

	res, err := tenant.NewHeaderStrategy(tenant.NewMemoryStore()).Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "first", res.TenantID)
}

func TestJWTClaimStrategyMalformedToken(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not.a-token")

	res, err := tenant.NewJWTClaimStrategy(tenant.NewMemoryStore()).Resolve(req)
	assert.Error(t, err)
	assert.True(t, res.Empty())
}

func TestJWTClaimStrategyReadsPayloadOnly(t *testing.T) {
	t.Parallel()

	acme := newTenant("Acme", "acme.com", "", tenant.StatusActive)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"tid":"` + acme.ID.String() + `","sub":"u1"}`))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+header+"."+payload+".")

	res, err := tenant.NewJWTClaimStrategy(seed(t, acme)).Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, acme.ID.String(), res.TenantID)
	require.NotNil(t, res.Tenant)
	assert.Equal(t, "u1", tenant.UserIDFromRequest(req))
}

func TestChain(t *testing.T) {
	t.Parallel()

	t.Run("first matching strategy wins", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("Acme", "app.example.com", "acme", tenant.StatusActive)
		globex := newTenant("Globex", "globex.com", "", tenant.StatusActive)
		store := seed(t, acme, globex)

		strategies, err := tenant.StrategiesByName(store, "header", "subdomain")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "acme.app.example.com"
		req.Header.Set("X-Tenant-ID", globex.ID.String())

		res, ok := tenant.NewChain(strategies...).Resolve(req)
		require.True(t, ok)
		assert.Equal(t, globex.ID.String(), res.TenantID)
		assert.Equal(t, tenant.StrategyHeader, res.Strategy)
	})

	t.Run("later strategies are not invoked", func(t *testing.T) {
		t.Parallel()

		called := false
		first := tenant.StrategyFunc{StrategyName: "first", Fn: func(*http.Request) (tenant.Resolution, error) {
			return tenant.Resolution{TenantID: "t1"}, nil
		}}
		second := tenant.StrategyFunc{StrategyName: "second", Fn: func(*http.Request) (tenant.Resolution, error) {
			called = true
			return tenant.Resolution{TenantID: "t2"}, nil
		}}

		res, ok := tenant.NewChain(first, second).Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
		require.True(t, ok)
		assert.Equal(t, "t1", res.TenantID)
		assert.False(t, called)
	})

	t.Run("errors are skipped", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("Acme", "acme.com", "", tenant.StatusActive)
		store := seed(t, acme)
		failing := tenant.StrategyFunc{StrategyName: "failing", Fn: func(*http.Request) (tenant.Resolution, error) {
			return tenant.Resolution{}, errors.New("boom")
		}}

		req := httptest.NewRequest(http.MethodGet, "/?tenant_id="+acme.ID.String(), nil)
		req.Header.Set("Authorization", "Bearer garbage")

		res, ok := tenant.NewChain(failing, tenant.NewJWTClaimStrategy(store), tenant.NewQueryParamStrategy(store)).Resolve(req)
		require.True(t, ok)
		assert.Equal(t, acme.ID.String(), res.TenantID)
		assert.Equal(t, tenant.StrategyQueryParam, res.Strategy)
	})

	t.Run("no match", func(t *testing.T) {
		t.Parallel()

		_, ok := tenant.NewChain(tenant.DefaultStrategies(tenant.NewMemoryStore())...).Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
		assert.False(t, ok)
	})
}

func TestStrategiesByName(t *testing.T) {
	t.Parallel()

	strategies, err := tenant.StrategiesByName(tenant.NewMemoryStore(),
		"subdomain", "domain", "header", "jwt_claim", "query_param", "path_param")
	require.NoError(t, err)

	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"subdomain", "domain", "header", "jwt_claim", "query_param", "path_param"}, names)

	_, err = tenant.StrategiesByName(tenant.NewMemoryStore(), "cookie")
	assert.ErrorIs(t, err, tenant.ErrUnknownStrategy)
}
