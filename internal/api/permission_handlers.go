package api

import (
	"net/http"
	"strings"

	"github.com/technosupport/ts-auth/internal/data"
	"github.com/technosupport/ts-auth/internal/tokens"
)

type PermissionHandler struct {
	Permissions data.PermissionModel
	Tokens      *tokens.Manager
}

type permissionRequest struct {
	Name string `json:"name"`
}

// CreatePermission POST /permissions
func (h *PermissionHandler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if !decodeBody(r, &req) || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	permission, err := h.Permissions.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create_permission_failed")
		return
	}
	writeJSON(w, http.StatusCreated, permission)
}

// ListPermissions GET /permissions
func (h *PermissionHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.Permissions.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_permissions_failed")
		return
	}
	writeJSON(w, http.StatusOK, permissions)
}

// UpdatePermission PUT /permissions/{id}. Renames show up in every
// materialized snapshot carrying the permission, and a permission can span
// services, so the whole cache goes.
func (h *PermissionHandler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_permission_id")
		return
	}
	var req permissionRequest
	if !decodeBody(r, &req) || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	if err := h.Permissions.Update(r.Context(), id, req.Name); err != nil {
		writeError(w, http.StatusInternalServerError, "update_permission_failed")
		return
	}
	if _, err := h.Tokens.ClearAccessCache(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "update_permission_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// DeletePermission DELETE /permissions/{id}. The delete cascades through
// role_permission, so cached views could keep granting it; clear them all.
func (h *PermissionHandler) DeletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_permission_id")
		return
	}
	if err := h.Permissions.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "delete_permission_failed")
		return
	}
	if _, err := h.Tokens.ClearAccessCache(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "delete_permission_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "permission_deleted",
		"permission_id": id,
	})
}
