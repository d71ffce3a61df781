// Package httpmw holds the middleware every GHIA route runs behind: request
// ids, per-request log annotations, the JSON access log, panic recovery and
// security headers.
package httpmw

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const requestKey contextKey = "ghia.request"

// maxRequestIDLen caps an inbound X-Request-Id before it reaches the logs.
const maxRequestIDLen = 64

// request is the per-request record shared by the middleware and handlers.
type request struct {
	id string

	mu     sync.Mutex
	fields map[string]any
}

func (q *request) set(key string, v any) {
	q.mu.Lock()
	q.fields[key] = v
	q.mu.Unlock()
}

func (q *request) snapshot() map[string]any {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]any, len(q.fields))
	for k, v := range q.fields {
		out[k] = v
	}
	return out
}

func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	if h == nil {
		h = http.NotFoundHandler()
	}
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

func requestFrom(ctx context.Context) *request {
	if ctx == nil {
		return nil
	}
	q, _ := ctx.Value(requestKey).(*request)
	return q
}

// attach returns the request record for r, creating it (and the
// X-Request-Id response header) on first use.
func attach(w http.ResponseWriter, r *http.Request) (*request, *http.Request) {
	if q := requestFrom(r.Context()); q != nil {
		return q, r
	}
	id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
	if !validRequestID(id) {
		id = uuid.NewString()
	}
	q := &request{id: id, fields: map[string]any{}}
	w.Header().Set("X-Request-Id", id)
	return q, r.WithContext(context.WithValue(r.Context(), requestKey, q))
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}

func RequestIDFromContext(ctx context.Context) string {
	if q := requestFrom(ctx); q != nil {
		return q.id
	}
	return ""
}

// Annotate adds a field to the request's access log line. It is a no-op
// outside WithRequestID or WithAccessLog.
func Annotate(ctx context.Context, key string, v any) {
	if q := requestFrom(ctx); q != nil {
		q.set(key, v)
	}
}

func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, r = attach(w, r)
		next.ServeHTTP(w, r)
	})
}

// WithRecover turns a panic into a 500. API paths get a JSON body; pages
// get errorPage, or plain text when it is nil.
func WithRecover(logger *log.Logger, errorPage http.Handler) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q, r := attach(w, r)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				fields := q.snapshot()
				fields["request_id"] = q.id
				fields["method"] = r.Method
				fields["path"] = r.URL.Path
				fields["panic"] = fmt.Sprint(rec)
				fields["stack"] = string(debug.Stack())
				Log(logger, "error", "panic_recovered", fields)
				q.set("panic", true)

				switch {
				case strings.HasPrefix(r.URL.Path, "/api/"):
					w.Header().Set("Content-Type", "application/json; charset=utf-8")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]any{
						"error":      "internal server error",
						"request_id": q.id,
					})
				case errorPage != nil:
					errorPage.ServeHTTP(w, r)
				default:
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// WithAccessLog writes one http_request line per request, including any
// fields handlers added with Annotate.
func WithAccessLog(logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q, r := attach(w, r)
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			fields := q.snapshot()
			fields["request_id"] = q.id
			fields["method"] = r.Method
			fields["path"] = r.URL.Path
			fields["status"] = sw.status
			fields["bytes"] = sw.bytes
			fields["duration_ms"] = time.Since(start).Milliseconds()
			fields["remote_ip"] = clientIP(r)
			level := "info"
			if sw.status >= http.StatusInternalServerError {
				level = "error"
			}
			Log(logger, level, "http_request", fields)
		})
	}
}

// WithSecurityHeaders sets the static response headers every page gets.
func WithSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xrip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xrip != "" {
		return xrip
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// Log writes one JSON line with the standard ts/level/msg keys plus fields.
// The standard keys win over fields of the same name.
func Log(logger *log.Logger, level, msg string, fields map[string]any) {
	if logger == nil {
		return
	}
	payload := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		payload[k] = v
	}
	payload["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	payload["level"] = level
	payload["msg"] = msg
	b, err := json.Marshal(payload)
	if err != nil {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		logger.Printf(`{"level":"error","msg":"log_marshal_failed","error":%q,"fields":%q}`, err.Error(), strings.Join(keys, ","))
		return
	}
	logger.Print(string(b))
}
