package jwt_test

import (
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtlens/tenancy/pkg/jwt"
)

func token(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body, err := json.Marshal(claims)
	require.NoError(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(body) + ".signature"
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"bearer", "Bearer abc", "abc", true},
		{"lowercase scheme", "bearer abc", "abc", true},
		{"basic", "Basic abc", "", false},
		{"empty token", "Bearer ", "", false},
		{"missing", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := jwt.BearerToken(r)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("reads claims without verification", func(t *testing.T) {
		t.Parallel()
		claims, err := jwt.Decode(token(t, map[string]any{"tenant_id": "t1", "sub": "u1"}))
		require.NoError(t, err)

		id, ok := jwt.Lookup(claims, "tenant_id", "tid")
		assert.True(t, ok)
		assert.Equal(t, "t1", id)
	})

	t.Run("ignores the header", func(t *testing.T) {
		t.Parallel()
		header := base64.RawURLEncoding.EncodeToString([]byte(`{"typ":"JWT"}`))
		payload := base64.RawURLEncoding.EncodeToString([]byte(`{"tid":"t3","sub":"u3"}`))

		claims, err := jwt.Decode(header + "." + payload + ".")
		require.NoError(t, err)
		id, ok := jwt.Lookup(claims, "tenant_id", "tid")
		assert.True(t, ok)
		assert.Equal(t, "t3", id)

		claims, err = jwt.Decode("garbage." + payload)
		require.NoError(t, err)
		id, _ = jwt.Lookup(claims, "sub")
		assert.Equal(t, "u3", id)
	})

	t.Run("malformed token", func(t *testing.T) {
		t.Parallel()
		_, err := jwt.Decode("not-a-token")
		assert.ErrorIs(t, err, jwt.ErrMalformedToken)

		_, err = jwt.Decode("a.%%%.c")
		assert.ErrorIs(t, err, jwt.ErrMalformedToken)

		_, err = jwt.Decode("a." + base64.RawURLEncoding.EncodeToString([]byte("[1,2]")) + ".c")
		assert.ErrorIs(t, err, jwt.ErrMalformedToken)
	})

	t.Run("from request", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest("GET", "/", nil)
		_, err := jwt.FromRequest(r)
		assert.ErrorIs(t, err, jwt.ErrNoToken)

		r.Header.Set("Authorization", "Bearer "+token(t, map[string]any{"tid": "t2"}))
		claims, err := jwt.FromRequest(r)
		require.NoError(t, err)
		id, _ := jwt.Lookup(claims, "tenant_id", "tid")
		assert.Equal(t, "t2", id)
	})
}

func TestLookup(t *testing.T) {
	t.Parallel()

	claims := jwt.Claims{"empty": "", "uid": float64(42), "sub": "u1"}

	v, ok := jwt.Lookup(claims, "missing", "empty", "sub")
	assert.True(t, ok)
	assert.Equal(t, "u1", v)

	v, ok = jwt.Lookup(claims, "uid")
	assert.True(t, ok)
	assert.Equal(t, "42", v)

	_, ok = jwt.Lookup(claims, "missing")
	assert.False(t, ok)
}
