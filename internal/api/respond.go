package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/courtlens/tenancy/pkg/provisioning"
	"github.com/courtlens/tenancy/pkg/rbac"
	"github.com/courtlens/tenancy/pkg/tenant"
)

// ErrorResponse is the JSON body of every failed admin request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errInvalidID = errors.New("invalid id")

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errInvalidID),
		errors.Is(err, provisioning.ErrInvalidInput),
		errors.Is(err, tenant.ErrInvalidOverrides),
		errors.Is(err, tenant.ErrUnknownMode),
		errors.Is(err, rbac.ErrInvalidRole):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, tenant.ErrTenantNotFound),
		errors.Is(err, provisioning.ErrRecordNotFound),
		errors.Is(err, provisioning.ErrTemplateNotFound),
		errors.Is(err, rbac.ErrMemberNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, tenant.ErrDomainTaken),
		errors.Is(err, provisioning.ErrHasChildren):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
