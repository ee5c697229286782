package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-auth/internal/data"
	"github.com/technosupport/ts-auth/internal/tokens"
)

// RelationHandler covers the three RBAC edge tables and the direct-grant
// path. Every mutation here ends with the narrowest cache invalidator
// that covers it.
type RelationHandler struct {
	Relations   data.RelationModel
	People      data.PersonModel
	Services    *data.ServiceModel
	Permissions data.PermissionModel
	Grants      data.GrantModel
	Tokens      *tokens.Manager
}

type serviceRolePayload struct {
	ServiceID data.FlexibleID `json:"service_id"`
	RoleID    int             `json:"role_id"`
}

type rolePermissionPayload struct {
	ServiceID    int `json:"service_id"`
	RoleID       int `json:"role_id"`
	PermissionID int `json:"permission_id"`
}

type personServiceRolePayload struct {
	PersonID  data.FlexibleID `json:"person_id"`
	ServiceID data.FlexibleID `json:"service_id"`
	RoleID    int             `json:"role_id"`
}

type directGrantPayload struct {
	PersonID       data.FlexibleID `json:"person_id"`
	ServiceID      data.FlexibleID `json:"service_id"`
	PermissionID   data.FlexibleID `json:"permission_id"`
	PermissionName string          `json:"permission_name"`
}

// resolvePerson maps resolution failures onto their wire codes; a false
// return means the response was already written.
func (h *RelationHandler) resolvePerson(w http.ResponseWriter, r *http.Request, fid data.FlexibleID) (int, bool) {
	id, err := h.People.ResolveID(r.Context(), fid)
	switch {
	case errors.Is(err, data.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "invalid_person_id")
		return 0, false
	case errors.Is(err, data.ErrPersonNotFound):
		writeError(w, http.StatusNotFound, "person_not_found")
		return 0, false
	case err != nil:
		writeError(w, http.StatusInternalServerError, "resolve_person_failed")
		return 0, false
	}
	return id, true
}

func (h *RelationHandler) resolveService(w http.ResponseWriter, r *http.Request, fid data.FlexibleID, createIfMissing bool) (int, bool) {
	id, err := h.Services.ResolveID(r.Context(), fid, createIfMissing)
	switch {
	case errors.Is(err, data.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "invalid_service_id")
		return 0, false
	case errors.Is(err, data.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found")
		return 0, false
	case err != nil:
		writeError(w, http.StatusInternalServerError, "resolve_service_failed")
		return 0, false
	}
	return id, true
}

func (h *RelationHandler) resolvePermission(w http.ResponseWriter, r *http.Request, fid data.FlexibleID) (int, bool) {
	id, err := h.Permissions.ResolveID(r.Context(), fid)
	switch {
	case errors.Is(err, data.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "invalid_permission_id")
		return 0, false
	case errors.Is(err, data.ErrPermissionNotFound):
		writeError(w, http.StatusNotFound, "permission_not_found")
		return 0, false
	case err != nil:
		writeError(w, http.StatusInternalServerError, "resolve_permission_failed")
		return 0, false
	}
	return id, true
}

// AssignRoleToService POST /service-roles. The service may be named into
// existence here; this is the one create-if-missing path.
func (h *RelationHandler) AssignRoleToService(w http.ResponseWriter, r *http.Request) {
	var req serviceRolePayload
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	serviceID, ok := h.resolveService(w, r, req.ServiceID, true)
	if !ok {
		return
	}
	if err := h.Relations.AssignRoleToService(r.Context(), serviceID, req.RoleID); err != nil {
		writeError(w, http.StatusInternalServerError, "assign_role_service_failed")
		return
	}
	if _, err := h.Tokens.InvalidateAccessForService(r.Context(), serviceID); err != nil {
		writeError(w, http.StatusInternalServerError, "assign_role_service_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// RemoveRoleFromService DELETE /service-roles
func (h *RelationHandler) RemoveRoleFromService(w http.ResponseWriter, r *http.Request) {
	var req serviceRolePayload
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	serviceID, ok := h.resolveService(w, r, req.ServiceID, false)
	if !ok {
		return
	}
	if err := h.Relations.RemoveRoleFromService(r.Context(), serviceID, req.RoleID); err != nil {
		writeError(w, http.StatusInternalServerError, "remove_role_service_failed")
		return
	}
	if _, err := h.Tokens.InvalidateAccessForService(r.Context(), serviceID); err != nil {
		writeError(w, http.StatusInternalServerError, "remove_role_service_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "role_removed_from_service"})
}

// ListServiceRoles GET /services/{id}/roles
func (h *RelationHandler) ListServiceRoles(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := h.resolveService(w, r, data.FlexibleStr(chi.URLParam(r, "id")), false)
	if !ok {
		return
	}
	roles, err := h.Relations.ListServiceRoles(r.Context(), serviceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_service_roles_failed")
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

// AssignPermissionToRole POST /role-permissions. The (service, role) edge
// must already exist: a permission can only enter a role through a
// service the role is visible in.
func (h *RelationHandler) AssignPermissionToRole(w http.ResponseWriter, r *http.Request) {
	var req rolePermissionPayload
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	exists, err := h.Relations.ServiceRoleExists(r.Context(), req.ServiceID, req.RoleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "service_role_check_failed")
		return
	}
	if !exists {
		writeError(w, http.StatusBadRequest, "role_not_in_service")
		return
	}
	if err := h.Relations.AssignPermissionToRole(r.Context(), req.ServiceID, req.RoleID, req.PermissionID); err != nil {
		writeError(w, http.StatusInternalServerError, "assign_permission_failed")
		return
	}
	if _, err := h.Tokens.InvalidateAccessForService(r.Context(), req.ServiceID); err != nil {
		writeError(w, http.StatusInternalServerError, "assign_permission_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// RemovePermissionFromRole DELETE /role-permissions
func (h *RelationHandler) RemovePermissionFromRole(w http.ResponseWriter, r *http.Request) {
	var req rolePermissionPayload
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	if err := h.Relations.RemovePermissionFromRole(r.Context(), req.ServiceID, req.RoleID, req.PermissionID); err != nil {
		writeError(w, http.StatusInternalServerError, "remove_permission_failed")
		return
	}
	if _, err := h.Tokens.InvalidateAccessForService(r.Context(), req.ServiceID); err != nil {
		writeError(w, http.StatusInternalServerError, "remove_permission_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "permission_removed_from_role",
		"service_id":    req.ServiceID,
		"role_id":       req.RoleID,
		"permission_id": req.PermissionID,
	})
}

// ListRolePermissions GET /roles/{id}/permissions?service_id=N
func (h *RelationHandler) ListRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_role_id")
		return
	}
	serviceID, err := strconv.Atoi(r.URL.Query().Get("service_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_service_id")
		return
	}
	permissions, lerr := h.Relations.ListRolePermissions(r.Context(), roleID, serviceID)
	if lerr != nil {
		writeError(w, http.StatusInternalServerError, "list_role_permissions_failed")
		return
	}
	writeJSON(w, http.StatusOK, permissions)
}

// AssignRoleToPersonInService POST /person-service-roles
func (h *RelationHandler) AssignRoleToPersonInService(w http.ResponseWriter, r *http.Request) {
	var req personServiceRolePayload
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	personID, ok := h.resolvePerson(w, r, req.PersonID)
	if !ok {
		return
	}
	serviceID, ok := h.resolveService(w, r, req.ServiceID, false)
	if !ok {
		return
	}
	if err := h.Relations.AssignRoleToPersonInService(r.Context(), personID, serviceID, req.RoleID); err != nil {
		writeError(w, http.StatusInternalServerError, "assign_role_person_failed")
		return
	}
	if _, err := h.Tokens.InvalidateAccessForUserInService(r.Context(), personID, serviceID); err != nil {
		writeError(w, http.StatusInternalServerError, "assign_role_person_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// RemoveRoleFromPersonInService DELETE /person-service-roles
func (h *RelationHandler) RemoveRoleFromPersonInService(w http.ResponseWriter, r *http.Request) {
	var req personServiceRolePayload
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	personID, ok := h.resolvePerson(w, r, req.PersonID)
	if !ok {
		return
	}
	serviceID, ok := h.resolveService(w, r, req.ServiceID, false)
	if !ok {
		return
	}
	if err := h.Relations.RemoveRoleFromPersonInService(r.Context(), personID, serviceID, req.RoleID); err != nil {
		writeError(w, http.StatusInternalServerError, "remove_role_person_failed")
		return
	}
	if _, err := h.Tokens.InvalidateAccessForUserInService(r.Context(), personID, serviceID); err != nil {
		writeError(w, http.StatusInternalServerError, "remove_role_person_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "role_removed_from_person"})
}

// ListPersonRolesInService GET /people/{person_id}/services/{service_id}/roles
func (h *RelationHandler) ListPersonRolesInService(w http.ResponseWriter, r *http.Request) {
	personID, ok := h.resolvePerson(w, r, data.FlexibleStr(chi.URLParam(r, "person_id")))
	if !ok {
		return
	}
	serviceID, ok := h.resolveService(w, r, data.FlexibleStr(chi.URLParam(r, "service_id")), false)
	if !ok {
		return
	}
	roles, err := h.Relations.ListPersonRolesInService(r.Context(), personID, serviceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_person_roles_failed")
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

// ListPersonsWithRoleInService GET /services/{service_id}/roles/{role_id}/people
func (h *RelationHandler) ListPersonsWithRoleInService(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := h.resolveService(w, r, data.FlexibleStr(chi.URLParam(r, "service_id")), false)
	if !ok {
		return
	}
	roleID, ok := pathInt(r, "role_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_role_id")
		return
	}
	people, err := h.Relations.ListPersonsWithRoleInService(r.Context(), serviceID, roleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_persons_with_role_failed")
		return
	}
	writeJSON(w, http.StatusOK, people)
}

// ListServicesOfPerson GET /people/{person_id}/services
func (h *RelationHandler) ListServicesOfPerson(w http.ResponseWriter, r *http.Request) {
	personID, ok := h.resolvePerson(w, r, data.FlexibleStr(chi.URLParam(r, "person_id")))
	if !ok {
		return
	}
	services, err := h.Relations.ListServicesOfPerson(r.Context(), personID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_person_services_failed")
		return
	}
	writeJSON(w, http.StatusOK, services)
}

// CheckPersonPermission GET /people/{person_id}/services/{service_id}/permissions/{permission_name}.
// Point check in the store, bypassing the materialized cache.
func (h *RelationHandler) CheckPersonPermission(w http.ResponseWriter, r *http.Request) {
	personID, ok := h.resolvePerson(w, r, data.FlexibleStr(chi.URLParam(r, "person_id")))
	if !ok {
		return
	}
	serviceID, ok := h.resolveService(w, r, data.FlexibleStr(chi.URLParam(r, "service_id")), false)
	if !ok {
		return
	}
	permissionName := chi.URLParam(r, "permission_name")
	if permissionName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	allowed, err := h.Relations.CheckPersonPermission(r.Context(), personID, serviceID, permissionName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "check_permission_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"has_permission": allowed})
}

// GrantDirectPermission POST /person-service-permissions. The permission
// may arrive as id or name.
func (h *RelationHandler) GrantDirectPermission(w http.ResponseWriter, r *http.Request) {
	var req directGrantPayload
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}

	permissionFID := req.PermissionID
	if !permissionFID.IsSet() {
		if req.PermissionName == "" {
			writeError(w, http.StatusBadRequest, "invalid_request_body")
			return
		}
		permissionFID = data.FlexibleStr(req.PermissionName)
	}

	personID, ok := h.resolvePerson(w, r, req.PersonID)
	if !ok {
		return
	}
	serviceID, ok := h.resolveService(w, r, req.ServiceID, false)
	if !ok {
		return
	}
	permissionID, ok := h.resolvePermission(w, r, permissionFID)
	if !ok {
		return
	}

	result, err := h.Grants.Grant(r.Context(), personID, serviceID, permissionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "direct_grant_failed")
		return
	}
	if _, err := h.Tokens.InvalidateAccessForUserInService(r.Context(), personID, serviceID); err != nil {
		writeError(w, http.StatusInternalServerError, "direct_grant_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "permission_granted",
		"person_id":     result.PersonID,
		"service_id":    result.ServiceID,
		"permission_id": result.PermissionID,
		"role_id":       result.RoleID,
	})
}
