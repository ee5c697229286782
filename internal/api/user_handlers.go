package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-auth/internal/auth"
	"github.com/technosupport/ts-auth/internal/data"
	"github.com/technosupport/ts-auth/internal/tokens"
)

type UserHandler struct {
	People data.PersonModel
	Tokens *tokens.Manager
}

type createUserRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	Name           string `json:"name"`
	PersonType     string `json:"person_type"`     // N or J
	DocumentType   string `json:"document_type"`   // DNI, CE, or RUC
	DocumentNumber string `json:"document_number"`
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
	Name     *string `json:"name"`
}

// CreateUser POST /users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}

	blank := func(v string) bool { return strings.TrimSpace(v) == "" }
	if blank(req.Username) || blank(req.Password) || blank(req.Name) ||
		blank(req.PersonType) || blank(req.DocumentType) || blank(req.DocumentNumber) {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	personType := strings.TrimSpace(req.PersonType)
	documentType := strings.TrimSpace(req.DocumentType)
	if !data.ValidPersonType(personType) || !data.ValidDocumentType(documentType) {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}

	digest, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hash_password_failed")
		return
	}

	person, err := h.People.Create(r.Context(), req.Username, digest, req.Name,
		personType, documentType, req.DocumentNumber)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create_user_failed")
		return
	}
	writeJSON(w, http.StatusCreated, person)
}

// ListUsers GET /users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	people, err := h.People.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_users_failed")
		return
	}
	writeJSON(w, http.StatusOK, people)
}

// GetUser GET /users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_user_id")
		return
	}
	person, err := h.People.Get(r.Context(), id)
	if errors.Is(err, data.ErrPersonNotFound) {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get_user_failed")
		return
	}
	writeJSON(w, http.StatusOK, person)
}

// UpdateUser PUT /users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_user_id")
		return
	}
	var req updateUserRequest
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}

	var digest *string
	if req.Password != nil {
		hashed, err := auth.HashPassword(*req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "hash_password_failed")
			return
		}
		digest = &hashed
	}

	if err := h.People.Update(r.Context(), id, req.Username, digest, req.Name); err != nil {
		writeError(w, http.StatusInternalServerError, "update_user_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// DeleteUser DELETE /users/{id}. Soft delete, then revoke every token and
// cache row the person still holds.
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_user_id")
		return
	}
	if err := h.People.SoftDelete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "delete_user_failed")
		return
	}

	// Cache rows are keyed by the person's tokens, so drop them while the
	// token rows still exist.
	if _, err := h.Tokens.InvalidateAccessForUser(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "user_token_cleanup_failed")
		return
	}
	revoked, err := h.Tokens.RevokeTokensOfUser(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "user_token_cleanup_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "user_deleted",
		"user_id":        id,
		"revoked_tokens": revoked,
	})
}

func pathInt(r *http.Request, key string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, key))
	if err != nil {
		return 0, false
	}
	return n, true
}
