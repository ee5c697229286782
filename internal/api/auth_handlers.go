package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/technosupport/ts-auth/internal/auth"
	"github.com/technosupport/ts-auth/internal/authz"
	"github.com/technosupport/ts-auth/internal/data"
	"github.com/technosupport/ts-auth/internal/metrics"
	"github.com/technosupport/ts-auth/internal/middleware"
	"github.com/technosupport/ts-auth/internal/session"
	"github.com/technosupport/ts-auth/internal/tokens"
)

type AuthHandler struct {
	People       data.PersonModel
	Tokens       *tokens.Manager
	Orchestrator *authz.Orchestrator
	Lockout      *session.Lockout
}

// Home GET /
func (h *AuthHandler) Home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<h1>Welcome to the Auth API</h1>"))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserToken string             `json:"user_token"`
	ExpiresAt int64              `json:"expires_at"`
	Payload   tokens.UserPayload `json:"payload"`
}

// Login POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(r, &req) {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}

	if h.Lockout.IsLocked(r.Context(), req.Username) {
		metrics.RecordLoginFailure()
		writeError(w, http.StatusUnauthorized, authz.CodeInvalidCredentials)
		return
	}

	creds, err := h.People.GetCredentials(r.Context(), req.Username)
	if errors.Is(err, data.ErrPersonNotFound) {
		// Burn a verification so unknown usernames cost the same time.
		auth.CheckDummy(req.Password)
		h.loginFailed(w, r, req.Username)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login_lookup_failed")
		return
	}

	if !auth.CheckPassword(req.Password, creds.PasswordDigest) {
		h.loginFailed(w, r, req.Username)
		return
	}
	_ = h.Lockout.Reset(r.Context(), req.Username)

	payload := tokens.UserPayload{UserID: creds.ID, Username: creds.Username, Name: creds.Name}

	// Reuse the newest live token so repeated logins don't grow the table.
	existing, err := h.Tokens.LiveTokenForUser(r.Context(), creds.ID)
	if err != nil && !errors.Is(err, tokens.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "login_lookup_failed")
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusOK, loginResponse{
			UserToken: existing.Token,
			ExpiresAt: existing.ExpiresAt,
			Payload:   payload,
		})
		return
	}

	issued, err := h.Tokens.IssueUserToken(r.Context(), payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login_issue_failed")
		return
	}
	metrics.RecordTokenIssued("user")

	writeJSON(w, http.StatusOK, loginResponse{
		UserToken: issued.Token,
		ExpiresAt: issued.ExpiresAt,
		Payload:   payload,
	})
}

func (h *AuthHandler) loginFailed(w http.ResponseWriter, r *http.Request, username string) {
	_ = h.Lockout.RecordFailure(r.Context(), username)
	metrics.RecordLoginFailure()
	writeError(w, http.StatusUnauthorized, authz.CodeInvalidCredentials)
}

// Logout POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromContext(r.Context())
	if _, err := h.Tokens.RevokeToken(r.Context(), token); err != nil {
		writeError(w, http.StatusInternalServerError, "logout_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Profile GET /auth/profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.Identity(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, authz.CodeInvalidToken)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"payload":    identity.Payload,
		"renewed":    identity.Renewed,
		"expires_at": identity.ExpiresAt,
	})
}

// CheckToken POST /check-token. Not behind the auth middleware: the
// orchestrator call is the whole point of the endpoint.
func (h *AuthHandler) CheckToken(w http.ResponseWriter, r *http.Request) {
	token := middleware.UserToken(r)
	res, err := h.Orchestrator.CheckToken(r.Context(), token, r.URL.Path, middleware.ClientIP(r))
	if err != nil {
		respondFailure(w, err, "check_token_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":      true,
		"payload":    res.Payload,
		"renewed":    res.Renewed,
		"expires_at": res.ExpiresAt,
	})
}

type checkPermissionRequest struct {
	ServiceID      data.FlexibleID `json:"service_id"`
	PermissionName string          `json:"permission_name"`
}

// CheckPermission POST /check-permission. Service context comes from a
// service-token header or a body service_id, exactly one of the two.
func (h *AuthHandler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var req checkPermissionRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}

	in := authz.AccessInput{
		UserToken:      middleware.UserToken(r),
		ServiceToken:   strings.TrimSpace(r.Header.Get("service-token")),
		ServiceID:      req.ServiceID,
		PermissionName: req.PermissionName,
	}

	res, err := h.Orchestrator.CheckAccess(r.Context(), in, r.URL.Path, middleware.ClientIP(r))
	if err != nil {
		respondFailure(w, err, "check_permission_failed")
		return
	}

	if res.HasPermission != nil {
		writeJSON(w, http.StatusOK, map[string]bool{"has_permission": *res.HasPermission})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":      true,
		"access":     res.Document,
		"renewed":    res.Renewed,
		"expires_at": res.ExpiresAt,
	})
}

// decodeOptionalBody treats an absent or empty body as the zero value.
func decodeOptionalBody(r *http.Request, v interface{}) error {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
