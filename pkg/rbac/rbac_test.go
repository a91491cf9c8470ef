package rbac_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtlens/tenancy/pkg/rbac"
	"github.com/courtlens/tenancy/pkg/tenant"
)

var testRoles = map[string]rbac.Role{
	"viewer": {Permissions: []string{"documents:read", "cases:read"}},
	"editor": {Permissions: []string{"documents:write"}, Inherits: []string{"viewer"}},
	"admin":  {Permissions: []string{"members:*"}, Inherits: []string{"editor"}},
	"owner":  {Permissions: []string{"*"}},
}

func newAuthorizer(t *testing.T) *rbac.Authorizer {
	t.Helper()
	authz, err := rbac.NewAuthorizer(context.Background(), rbac.NewMemoryRoleSource(testRoles))
	require.NoError(t, err)
	return authz
}

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		granted, required string
		want              bool
	}{
		{"*", "anything:goes", true},
		{"documents:read", "documents:read", true},
		{"documents:read", "documents:write", false},
		{"documents:*", "documents:share:external", true},
		{"documents:*", "documentsx:read", false},
		{"doc*", "documents:read", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rbac.Match(tt.granted, tt.required), "%s covers %s", tt.granted, tt.required)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a:read", "b:read"}, rbac.Normalize([]string{" b:read", "a:read", "", "b:read"}))
	assert.Equal(t, []string{"*"}, rbac.Normalize([]string{"a:read", "*"}))
	assert.Empty(t, rbac.Normalize(nil))
}

func TestAuthorizer(t *testing.T) {
	t.Parallel()

	authz := newAuthorizer(t)

	t.Run("inherited permissions", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, authz.Can("admin", "cases:read"))
		assert.NoError(t, authz.Can("admin", "members:invite"))
		assert.ErrorIs(t, authz.Can("viewer", "documents:write"), rbac.ErrInsufficientPermissions)
		assert.ErrorIs(t, authz.Can("ghost", "cases:read"), rbac.ErrInvalidRole)
	})

	t.Run("union of roles", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{"cases:read", "documents:read", "documents:write"}, authz.Permissions("editor", "viewer", "ghost"))
		assert.Equal(t, []string{"*"}, authz.Permissions("owner", "viewer"))
	})

	t.Run("roles sorted", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{"admin", "editor", "owner", "viewer"}, authz.Roles())
		assert.True(t, authz.HasRole("editor"))
		assert.False(t, authz.HasRole("ghost"))
	})

	t.Run("circular inheritance rejected", func(t *testing.T) {
		t.Parallel()
		_, err := rbac.NewAuthorizer(context.Background(), rbac.NewMemoryRoleSource(map[string]rbac.Role{
			"a": {Inherits: []string{"b"}},
			"b": {Inherits: []string{"a"}},
		}))
		assert.ErrorIs(t, err, rbac.ErrCircularInheritance)
	})

	t.Run("too deep inheritance rejected", func(t *testing.T) {
		t.Parallel()
		roles := map[string]rbac.Role{}
		for i := 0; i < rbac.MaxInheritanceDepth+2; i++ {
			roles[string(rune('a'+i))] = rbac.Role{Inherits: []string{string(rune('a' + i + 1))}}
		}
		_, err := rbac.NewAuthorizer(context.Background(), rbac.NewMemoryRoleSource(roles))
		assert.ErrorIs(t, err, rbac.ErrCircularInheritance)
	})
}

func TestYAMLRoleSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
roles:
  viewer:
    permissions: [documents:read]
  editor:
    permissions: [documents:write]
    inherits: [viewer]
`), 0o600))

	authz, err := rbac.NewAuthorizer(context.Background(), rbac.NewYAMLRoleSource(path))
	require.NoError(t, err)
	assert.NoError(t, authz.Can("editor", "documents:read"))

	_, err = rbac.ParseRoles([]byte("roles: [unclosed"))
	assert.ErrorIs(t, err, rbac.ErrInvalidRoleFile)

	_, err = rbac.NewYAMLRoleSource(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background())
	assert.Error(t, err)
}

func TestProvider(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tenantID := uuid.New()
	members := rbac.NewMemoryMembers()
	members.Put(rbac.Member{TenantID: tenantID, UserID: "u1", Email: "u1@acme.test", Roles: []string{"editor"}})
	p := rbac.NewProvider(newAuthorizer(t), members)

	t.Run("member", func(t *testing.T) {
		t.Parallel()
		u, err := p.User(ctx, tenantID, "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1@acme.test", u.Email)
		assert.Equal(t, []string{"editor"}, u.Roles)

		perms, err := p.Permissions(ctx, tenantID, "u1")
		require.NoError(t, err)
		assert.Contains(t, perms, "documents:write")
		assert.Contains(t, perms, "cases:read")
	})

	t.Run("non member", func(t *testing.T) {
		t.Parallel()
		u, err := p.User(ctx, uuid.New(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", u.ID)
		assert.Empty(t, u.Roles)

		perms, err := p.Permissions(ctx, uuid.New(), "u1")
		require.NoError(t, err)
		assert.Empty(t, perms)
	})

	t.Run("feeds the tenant context builder", func(t *testing.T) {
		t.Parallel()
		store := tenant.NewMemoryStore()
		tn := &tenant.Tenant{ID: tenantID, Name: "Acme", Domain: "acme.test", Status: tenant.StatusActive}
		require.NoError(t, store.Create(ctx, tn))

		b := tenant.NewBuilder(store, tenant.WithUserProvider(p), tenant.WithPermissionProvider(p))
		tc, err := b.Build(ctx, tenantID.String(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1@acme.test", tc.User.Email)
		assert.Contains(t, tc.Permissions, "documents:read")
	})

	t.Run("remove", func(t *testing.T) {
		t.Parallel()
		m := rbac.NewMemoryMembers()
		m.Put(rbac.Member{TenantID: tenantID, UserID: "x"})
		assert.True(t, m.Remove(tenantID, "x"))
		assert.False(t, m.Remove(tenantID, "x"))
	})
}

func TestMemoryMembers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tenantID := uuid.New()
	m := rbac.NewMemoryMembers()

	require.NoError(t, m.PutMember(ctx, rbac.Member{TenantID: tenantID, UserID: "u2", Roles: []string{"viewer"}}))
	require.NoError(t, m.PutMember(ctx, rbac.Member{TenantID: tenantID, UserID: "u1", Roles: []string{"editor"}}))
	require.NoError(t, m.PutMember(ctx, rbac.Member{TenantID: uuid.New(), UserID: "u3"}))

	list, err := m.Members(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "u1", list[0].UserID)
	assert.Equal(t, "u2", list[1].UserID)

	require.NoError(t, m.PutMember(ctx, rbac.Member{TenantID: tenantID, UserID: "u1", Roles: []string{"admin"}}))
	got, err := m.Member(ctx, tenantID, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, got.Roles)

	require.NoError(t, m.RemoveMember(ctx, tenantID, "u1"))
	assert.ErrorIs(t, m.RemoveMember(ctx, tenantID, "u1"), rbac.ErrMemberNotFound)
	_, err = m.Member(ctx, tenantID, "u1")
	assert.ErrorIs(t, err, rbac.ErrMemberNotFound)

	empty, err := m.Members(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRequire(t *testing.T) {
	t.Parallel()

	h := rbac.Require("documents:write")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(perms []string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if perms != nil {
			req = req.WithContext(tenant.WithContext(req.Context(), &tenant.Context{Permissions: perms}))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, serve([]string{"documents:*"}))
	assert.Equal(t, http.StatusForbidden, serve([]string{"documents:read"}))
	assert.Equal(t, http.StatusForbidden, serve(nil))
}
