package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/courtlens/tenancy/pkg/logger"
	"github.com/courtlens/tenancy/pkg/provisioning"
	"github.com/courtlens/tenancy/pkg/rbac"
)

// RoleSet reports whether a role is defined. *rbac.Authorizer satisfies it.
type RoleSet interface {
	HasRole(name string) bool
}

// Invalidator drops cached tenant contexts. *tenant.ContextCache
// satisfies it.
type Invalidator interface {
	Invalidate(tenantID string) int
}

// MembersHandler serves the tenant membership admin routes.
type MembersHandler struct {
	tenants  Service
	members  rbac.MemberDirectory
	roles    RoleSet
	contexts Invalidator
	logger   *slog.Logger
}

// NewMembersHandler creates the handler. roles and contexts may be nil,
// in which case role names are not checked and no cache is flushed.
func NewMembersHandler(tenants Service, members rbac.MemberDirectory, roles RoleSet, contexts Invalidator, log *slog.Logger) *MembersHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &MembersHandler{
		tenants:  tenants,
		members:  members,
		roles:    roles,
		contexts: contexts,
		logger:   log,
	}
}

// Register mounts the membership routes on r.
func (h *MembersHandler) Register(r chi.Router) {
	r.Get("/tenants/{id}/members", h.HandleList)
	r.Put("/tenants/{id}/members/{user}", h.HandlePut)
	r.Delete("/tenants/{id}/members/{user}", h.HandleDelete)
}

// MemberRequest is the body of PUT /tenants/{id}/members/{user}.
type MemberRequest struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func (h *MembersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.tenants.Get(ctx, id); err != nil {
		h.fail(r, w, "list members failed", err)
		return
	}

	members, err := h.members.Members(ctx, id)
	if err != nil {
		h.fail(r, w, "list members failed", err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// HandlePut adds or replaces a membership. Every role must be defined.
func (h *MembersHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	user := strings.TrimSpace(chi.URLParam(r, "user"))
	if user == "" {
		writeError(w, fmt.Errorf("%w: user is required", provisioning.ErrInvalidInput))
		return
	}

	var req MemberRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if h.roles != nil {
		for _, role := range req.Roles {
			if !h.roles.HasRole(role) {
				writeError(w, fmt.Errorf("%w: %q", rbac.ErrInvalidRole, role))
				return
			}
		}
	}

	if _, err := h.tenants.Get(ctx, id); err != nil {
		h.fail(r, w, "put member failed", err)
		return
	}

	m := rbac.Member{TenantID: id, UserID: user, Email: req.Email, Roles: req.Roles}
	if m.Roles == nil {
		m.Roles = []string{}
	}
	if err := h.members.PutMember(ctx, m); err != nil {
		h.fail(r, w, "put member failed", err)
		return
	}
	h.invalidate(id.String())

	writeJSON(w, http.StatusOK, m)
}

func (h *MembersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.members.RemoveMember(r.Context(), id, chi.URLParam(r, "user")); err != nil {
		h.fail(r, w, "remove member failed", err)
		return
	}
	h.invalidate(id.String())

	w.WriteHeader(http.StatusNoContent)
}

// invalidate drops cached contexts so role changes apply on the next request.
func (h *MembersHandler) invalidate(tenantID string) {
	if h.contexts == nil {
		return
	}
	n := h.contexts.Invalidate(tenantID)
	h.logger.Debug("tenant contexts invalidated",
		logger.TenantID(tenantID),
		slog.Int("count", n),
	)
}

func (h *MembersHandler) fail(r *http.Request, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelDebug
	if status, _ := errorStatus(err); status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.LogAttrs(r.Context(), level, msg,
		logger.TenantID(chi.URLParam(r, "id")),
		logger.UserID(chi.URLParam(r, "user")),
		logger.Error(err),
	)
	writeError(w, err)
}
