package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/technosupport/ts-auth/internal/data"
	"github.com/technosupport/ts-auth/internal/tokens"
)

type RoleHandler struct {
	Roles  data.RoleModel
	Tokens *tokens.Manager
}

type roleRequest struct {
	Name string `json:"name"`
}

// CreateRole POST /roles
func (h *RoleHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decodeBody(r, &req) || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	role, err := h.Roles.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create_role_failed")
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

// ListRoles GET /roles
func (h *RoleHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Roles.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_roles_failed")
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

// GetRole GET /roles/{id}
func (h *RoleHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_role_id")
		return
	}
	role, err := h.Roles.Get(r.Context(), id)
	if errors.Is(err, data.ErrRoleNotFound) {
		writeError(w, http.StatusNotFound, "role_not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get_role_failed")
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// UpdateRole PUT /roles/{id}. The old name lives on in materialized
// roles[] snapshots across services, so the whole cache goes.
func (h *RoleHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_role_id")
		return
	}
	var req roleRequest
	if !decodeBody(r, &req) || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	if err := h.Roles.Update(r.Context(), id, req.Name); err != nil {
		writeError(w, http.StatusInternalServerError, "update_role_failed")
		return
	}
	if _, err := h.Tokens.ClearAccessCache(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "update_role_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// DeleteRole DELETE /roles/{id}. A role can span services, so no narrower
// invalidator is safe: the whole permissions cache goes.
func (h *RoleHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_role_id")
		return
	}
	if err := h.Roles.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "delete_role_failed")
		return
	}
	if _, err := h.Tokens.ClearAccessCache(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "delete_role_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "role_deleted",
		"role_id": id,
	})
}
