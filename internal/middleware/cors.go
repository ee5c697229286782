package middleware

import (
	"net/http"
	"strings"
)

// requiredHeaders must always be allowed: clients send tokens in custom
// headers, and a preflight that drops them locks everyone out.
var requiredHeaders = []string{"Content-Type", "token", "user-token", "service-token"}

// CORS allows cross-origin requests from the configured origin ("*" when
// unset) and merges any extra allow-headers with the required set.
func CORS(origin string, extraHeaders []string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	allowHeaders := strings.Join(mergeHeaders(extraHeaders), ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", allowHeaders)

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func mergeHeaders(extra []string) []string {
	seen := map[string]bool{}
	merged := []string{}
	for _, h := range append(append([]string{}, requiredHeaders...), extra...) {
		key := strings.ToLower(strings.TrimSpace(h))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, strings.TrimSpace(h))
	}
	return merged
}
