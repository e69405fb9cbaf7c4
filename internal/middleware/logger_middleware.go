package middleware

import (
	"log"
	"net/http"

	"github.com/felixge/httpsnoop"
)

// LoggerMiddleware logs one line per request. httpsnoop keeps the optional
// interfaces of the ResponseWriter, so websocket upgrades still work.
func LoggerMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics := httpsnoop.CaptureMetrics(next, w, r)

			log.Printf("[%s] %s %s - Status: %d - Bytes: %d - Duration: %v",
				r.Method,
				r.URL.Path,
				r.RemoteAddr,
				metrics.Code,
				metrics.Written,
				metrics.Duration,
			)
		})
	}
}
