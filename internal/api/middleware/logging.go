// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	"github.com/ManuGH/smartcam/internal/log"
)

// Logging writes one access log line per request. Probe and scrape
// requests are logged at debug level.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, r)

		logger := log.WithComponentFromContext(r.Context(), "api")
		ev := logger.Info()
		if !shouldTrace(r) {
			ev = logger.Debug()
		}
		traceID, _ := ExtractTraceContext(r)
		ev.Str("event", "http.request").
			Str("method", r.Method).
			Str(log.FieldPath, r.URL.Path).
			Int("status", sw.statusCode).
			Int("bytes", sw.bytesWritten).
			Dur("duration", time.Since(start)).
			Str("trace_id", traceID).
			Msg("http request")
	})
}
