package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestID echoes the caller's X-Request-ID header on the response, minting
// one when absent, so clients can correlate responses with their logs.
func RequestID() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r)
		})
	}
}
