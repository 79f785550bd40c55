package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// agencyLogKey carries the per-request agency holder through the context.
type agencyLogKey struct{}

// requestAgency is installed into the context by StructuredLogger and
// filled in by RequireAgency once the bearer token checks out, so the
// request log line can name the agency that made the call.
type requestAgency struct {
	id string
}

// responseRecorder captures the status code and body size written by the
// handler chain. The first WriteHeader wins; a Write without an explicit
// status records 200.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// StructuredLogger logs one slog line per request: request ID (from chi's
// RequestID middleware), method, path, status, bytes written, duration,
// remote address, and the authenticated agency when the route required
// one. Server errors log at error level.
func StructuredLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		agency := &requestAgency{}

		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), agencyLogKey{}, agency)))

		attrs := []any{
			"request_id", chimw.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		}
		if agency.id != "" {
			attrs = append(attrs, "agency_id", agency.id)
		}
		if rec.status >= http.StatusInternalServerError {
			slog.Error("http request", attrs...)
			return
		}
		slog.Info("http request", attrs...)
	})
}
