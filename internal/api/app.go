package api

import (
	"net/http"

	"github.com/courtlens/tenancy/pkg/tenant"
)

// WhoAmIResponse summarizes the resolved tenant Context.
type WhoAmIResponse struct {
	TenantID      string       `json:"tenant_id"`
	TenantName    string       `json:"tenant_name"`
	Plan          tenant.Plan  `json:"plan"`
	IsolationMode string       `json:"isolation_mode"`
	User          *tenant.User `json:"user,omitempty"`
	Permissions   []string     `json:"permissions"`
}

// HandleWhoAmI reports the tenant and user the middleware resolved.
func HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.ContextFromContext(r.Context())
	if !ok {
		tenant.DefaultErrorHandler(w, r, tenant.ErrNoTenantInContext)
		return
	}

	resp := WhoAmIResponse{
		TenantID:    tc.TenantID.String(),
		User:        tc.User,
		Permissions: tc.Permissions,
	}
	if tc.Tenant != nil {
		resp.TenantName = tc.Tenant.Name
		resp.Plan = tc.Tenant.Plan
	}
	if tc.Isolation.Mode != nil {
		resp.IsolationMode = tc.Isolation.Mode.String()
	}
	if resp.Permissions == nil {
		resp.Permissions = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleConnectionPing pings the tenant's isolated database connection.
// It answers 503 when the connection is missing or unreachable.
func HandleConnectionPing(w http.ResponseWriter, r *http.Request) {
	conn, ok := tenant.ConnectionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "unavailable",
			Message: "no tenant connection",
		})
		return
	}
	if err := conn.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "unavailable",
			Message: "tenant database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
