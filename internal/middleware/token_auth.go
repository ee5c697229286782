package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/technosupport/ts-auth/internal/authz"
)

// TokenAuth guards the authenticated surface: it validates the user-token
// header (sliding renewal included) and injects the identity into the
// request context. Header names match case-insensitively per RFC 7230.
type TokenAuth struct {
	Orchestrator *authz.Orchestrator
}

func NewTokenAuth(o *authz.Orchestrator) *TokenAuth {
	return &TokenAuth{Orchestrator: o}
}

// UserToken extracts the user token. Older clients send it as "token",
// newer ones as "user-token"; both stay accepted.
func UserToken(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("user-token")); v != "" {
		return v
	}
	return strings.TrimSpace(r.Header.Get("token"))
}

// ClientIP prefers proxy headers over the socket address.
func ClientIP(r *http.Request) string {
	for _, header := range []string{"X-Forwarded-For", "X-Real-IP"} {
		if v := r.Header.Get(header); v != "" {
			first := strings.TrimSpace(strings.Split(v, ",")[0])
			if first != "" {
				return first
			}
		}
	}
	return r.RemoteAddr
}

func (m *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := UserToken(r)

		res, err := m.Orchestrator.CheckToken(r.Context(), token, r.URL.Path, ClientIP(r))
		if err != nil {
			code, ok := authz.DenialCode(err)
			if !ok {
				code = "token_validation_failed"
				writeAuthError(w, http.StatusInternalServerError, code)
				return
			}
			writeAuthError(w, http.StatusUnauthorized, code)
			return
		}

		ctx := WithIdentity(r.Context(), res)
		ctx = withRawToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeAuthError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := map[string]string{"error": code}
	if detail := authz.Detail(code); detail != "" {
		body["detail"] = detail
	}
	_ = json.NewEncoder(w).Encode(body)
}
