package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// responseWriter captures the status code for the logging and metrics
// middleware.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestLogger tags every request with an id, echoes it in X-Request-ID,
// and writes one completion line. Denials land in the same line via the
// status code; token values never appear here.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		log.Printf("[req:%s] %s %s -> %d (%v) ip=%s",
			reqID[:8], r.Method, r.URL.Path, rw.status, time.Since(start), r.RemoteAddr)
	})
}
