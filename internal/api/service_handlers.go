package api

import (
	"errors"
	"net/http"

	"github.com/technosupport/ts-auth/internal/data"
	"github.com/technosupport/ts-auth/internal/metrics"
	"github.com/technosupport/ts-auth/internal/tokens"
)

type ServiceHandler struct {
	Services *data.ServiceModel
	Tokens   *tokens.Manager
}

type serviceRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// CreateService POST /services
func (h *ServiceHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if !decodeBody(r, &req) || req.Name == nil || *req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	service, err := h.Services.Create(r.Context(), *req.Name, req.Description)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create_service_failed")
		return
	}
	writeJSON(w, http.StatusCreated, service)
}

// ListServices GET /services
func (h *ServiceHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.Services.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_services_failed")
		return
	}
	writeJSON(w, http.StatusOK, services)
}

// UpdateService PUT /services/{id}. A rename or disable can change what
// any cached view in this service means, so the service invalidator runs.
func (h *ServiceHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_service_id")
		return
	}
	var req serviceRequest
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	if err := h.Services.Update(r.Context(), id, req.Name, req.Description); err != nil {
		writeError(w, http.StatusInternalServerError, "update_service_failed")
		return
	}
	if _, err := h.Tokens.InvalidateAccessForService(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "update_service_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// DeleteService DELETE /services/{id}
func (h *ServiceHandler) DeleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_service_id")
		return
	}
	if err := h.Services.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "delete_service_failed")
		return
	}
	if _, err := h.Tokens.InvalidateAccessForService(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "delete_service_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "service_deleted",
		"service_id": id,
	})
}

// IssueServiceToken POST /services/{id}/token
func (h *ServiceHandler) IssueServiceToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_service_id")
		return
	}

	info, err := h.Services.Info(r.Context(), id)
	if errors.Is(err, data.ErrServiceNotFound) {
		writeError(w, http.StatusNotFound, "service_not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load_service_failed")
		return
	}
	if !info.Status {
		writeError(w, http.StatusForbidden, "service_inactive")
		return
	}

	issued, err := h.Tokens.IssueServiceToken(r.Context(), info.ID, info.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "issue_service_token_failed")
		return
	}
	metrics.RecordTokenIssued("service")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service_id":    info.ID,
		"service_name":  info.Name,
		"service_token": issued.Token,
		"expires_at":    issued.ExpiresAt,
	})
}
