package tenant

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorHandler writes the response for a request the middleware refuses.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// ErrorResponse is the JSON body of a refused request.
type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	TenantID string `json:"tenantId,omitempty"`
}

// DefaultErrorHandler maps resolution errors to JSON responses: 400 when no
// tenant could be resolved, 403 for inactive tenants and 500 otherwise.
// Error details never reach the client.
func DefaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	status, body := errorResponse(err)
	writeJSON(w, status, body)
}

func errorResponse(err error) (int, ErrorResponse) {
	var inactive *InactiveError
	switch {
	case errors.As(err, &inactive):
		return http.StatusForbidden, ErrorResponse{
			Error:    "Tenant not active",
			Message:  "Tenant status: " + string(inactive.Status),
			TenantID: inactive.TenantID,
		}
	case errors.Is(err, ErrInactiveTenant):
		return http.StatusForbidden, ErrorResponse{
			Error:   "Tenant not active",
			Message: "Tenant is not active",
		}
	case errors.Is(err, ErrTenantNotResolved),
		errors.Is(err, ErrTenantNotFound),
		errors.Is(err, ErrNoTenantInContext):
		return http.StatusBadRequest, ErrorResponse{
			Error:   "Tenant not found",
			Message: "Unable to resolve tenant from request",
		}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error:   "Tenant resolution failed",
			Message: "Internal server error during tenant resolution",
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
