package admin

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	maxAuditBodyBytes = 1024
	truncatedSuffix   = "...(truncated)"
)

// AuditMiddleware logs one entry per mutating admin call. Reads pass through
// untouched.
func AuditMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	logger = logger.With("component", "admin_audit")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		entry := auditEntry{
			id:      uuid.NewString(),
			started: time.Now(),
			body:    captureBody(r),
		}
		w.Header().Set("X-Request-ID", entry.id)

		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)
		entry.status = rec.status

		logger.LogAttrs(r.Context(), slog.LevelInfo, "admin API audit", entry.attrs(r)...)
	})
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

type auditEntry struct {
	id      string
	started time.Time
	body    string
	status  int
}

func (e auditEntry) attrs(r *http.Request) []slog.Attr {
	return []slog.Attr{
		slog.String("request_id", e.id),
		slog.String("timestamp", e.started.UTC().Format(time.RFC3339)),
		slog.String("subject", SubjectFromContext(r.Context())),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("body_summary", e.body),
		slog.Int("response_status", e.status),
		slog.Int64("duration_ms", time.Since(e.started).Milliseconds()),
	}
}

// captureBody returns at most maxAuditBodyBytes of the request body and puts
// what it read back on r for the handler.
func captureBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxAuditBodyBytes+1))
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), r.Body))
	if err != nil {
		return ""
	}
	if len(raw) > maxAuditBodyBytes {
		return string(raw[:maxAuditBodyBytes]) + truncatedSuffix
	}
	return string(raw)
}

// statusRecorder remembers the first status code written.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}
