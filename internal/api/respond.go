package api

import (
	"encoding/json"
	"net/http"

	"github.com/technosupport/ts-auth/internal/authz"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorPayload struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorPayload{Error: code, Detail: authz.Detail(code)})
}

// statusForDenial maps the orchestrator's machine codes onto HTTP
// statuses. Everything unauthenticated-shaped lands on 401.
func statusForDenial(code string) int {
	switch code {
	case authz.CodeInvalidRequestBody, authz.CodeInvalidServiceID:
		return http.StatusBadRequest
	default:
		return http.StatusUnauthorized
	}
}

// respondFailure writes denials with their mapped status and anything
// else as a 500 carrying the per-operation code.
func respondFailure(w http.ResponseWriter, err error, opCode string) {
	if code, ok := authz.DenialCode(err); ok {
		writeError(w, statusForDenial(code), code)
		return
	}
	writeError(w, http.StatusInternalServerError, opCode)
}

func decodeBody(r *http.Request, v interface{}) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}
