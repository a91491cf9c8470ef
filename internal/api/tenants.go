package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/courtlens/tenancy/pkg/logger"
	"github.com/courtlens/tenancy/pkg/provisioning"
	"github.com/courtlens/tenancy/pkg/tenant"
)

const maxBodyBytes = 1 << 20

// Service is the tenant lifecycle API the admin handlers drive.
// *provisioning.Service satisfies it.
type Service interface {
	Create(ctx context.Context, in provisioning.CreateInput) (*tenant.Tenant, uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)
	Update(ctx context.Context, id uuid.UUID, p provisioning.Patch) (*tenant.Tenant, error)
	Delete(ctx context.Context, id uuid.UUID, hard bool) error
	ProvisioningStatus(ctx context.Context, id uuid.UUID) (*provisioning.Record, error)
	LatestProvisioning(ctx context.Context, tenantID uuid.UUID) (*provisioning.Record, error)
}

// Handler serves the tenant admin routes.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{service: service, logger: log}
}

// Register mounts the admin routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/tenants", h.HandleCreate)
	r.Get("/tenants/{id}", h.HandleGet)
	r.Patch("/tenants/{id}", h.HandleUpdate)
	r.Delete("/tenants/{id}", h.HandleDelete)
	r.Get("/tenants/{id}/provisioning", h.HandleLatestProvisioning)
	r.Get("/provisioning/{id}", h.HandleProvisioningStatus)
}

// CreateResponse is returned by POST /tenants.
type CreateResponse struct {
	Tenant         *tenant.Tenant `json:"tenant"`
	ProvisioningID uuid.UUID      `json:"provisioning_id"`
}

// HandleCreate stores a tenant and starts provisioning. It answers 201
// with the pending tenant; progress is polled via /provisioning/{id}.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in provisioning.CreateInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	t, recordID, err := h.service.Create(ctx, in)
	if err != nil {
		h.fail(ctx, w, "create tenant failed", err)
		return
	}

	w.Header().Set("Location", "/tenants/"+t.ID.String())
	writeJSON(w, http.StatusCreated, CreateResponse{Tenant: t, ProvisioningID: recordID})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(r.Context(), w, "get tenant failed", err, logger.TenantID(id.String()))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandleUpdate applies a partial update. Overrides in the body are deep
// merged into the stored settings, isolation and resources.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var p provisioning.Patch
	if err := decode(w, r, &p); err != nil {
		writeError(w, err)
		return
	}

	t, err := h.service.Update(r.Context(), id, p)
	if err != nil {
		h.fail(r.Context(), w, "update tenant failed", err, logger.TenantID(id.String()))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandleDelete archives the tenant, or removes it and its isolated
// resources with ?hard=true.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	hard := false
	if v := r.URL.Query().Get("hard"); v != "" {
		hard, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: hard must be a boolean", provisioning.ErrInvalidInput))
			return
		}
	}

	if err := h.service.Delete(r.Context(), id, hard); err != nil {
		h.fail(r.Context(), w, "delete tenant failed", err, logger.TenantID(id.String()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleLatestProvisioning(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.service.LatestProvisioning(r.Context(), id)
	if err != nil {
		h.fail(r.Context(), w, "get provisioning failed", err, logger.TenantID(id.String()))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) HandleProvisioningStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.service.ProvisioningStatus(r.Context(), id)
	if err != nil {
		h.fail(r.Context(), w, "get provisioning failed", err, logger.ProvisioningID(id.String()))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// fail logs server errors at error level and client errors at debug.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...slog.Attr) {
	level := slog.LevelDebug
	if status, _ := errorStatus(err); status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.LogAttrs(ctx, level, msg, append(attrs, logger.Error(err))...)
	writeError(w, err)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", errInvalidID, chi.URLParam(r, "id"))
	}
	return id, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", provisioning.ErrInvalidInput, err)
	}
	return nil
}
