package httpmw

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_OrderAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	var seen string
	h := Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = RequestIDFromContext(r.Context())
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("short and stout"))
		}),
		WithAccessLog(logger),
		WithRequestID,
		WithSecurityHeaders,
	)

	req := httptest.NewRequest(http.MethodGet, "/briefing", nil)
	req.Header.Set("X-Request-Id", "rid-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "rid-1", seen)
	assert.Equal(t, "rid-1", rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "http_request", entry["msg"])
	assert.Equal(t, "/briefing", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.EqualValues(t, len("short and stout"), entry["bytes"])
}

func TestWithRequestID_Generates(t *testing.T) {
	h := WithRequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	id := rec.Header().Get("X-Request-Id")
	assert.Len(t, id, 36)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestWithRequestID_ReplacesUnsafeInboundID(t *testing.T) {
	h := WithRequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	for _, bad := range []string{"a b", `x"y`, "id;drop", strings.Repeat("a", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", bad)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		got := rec.Header().Get("X-Request-Id")
		assert.NotEqual(t, bad, got)
		assert.Len(t, got, 36, bad)
	}
}

func TestAccessLog_IncludesAnnotations(t *testing.T) {
	var buf bytes.Buffer
	h := Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Annotate(r.Context(), "page", "mission-4")
			Annotate(r.Context(), "session", "abcd1234")
			w.WriteHeader(http.StatusNoContent)
		}),
		WithAccessLog(log.New(&buf, "", 0)),
		WithRequestID,
	)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mission/4", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "mission-4", entry["page"])
	assert.Equal(t, "abcd1234", entry["session"])
	assert.Equal(t, rec.Header().Get("X-Request-Id"), entry["request_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestAnnotate_NoRequestRecord(t *testing.T) {
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	assert.NotPanics(t, func() { Annotate(ctx, "page", "x") })
	assert.Empty(t, RequestIDFromContext(ctx))
}

func TestWithRecover_API(t *testing.T) {
	var buf bytes.Buffer
	h := Chain(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		WithAccessLog(log.New(&buf, "", 0)),
		WithRecover(log.New(&buf, "", 0), nil),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/missions/1/state", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["error"])
	assert.Equal(t, rec.Header().Get("X-Request-Id"), body["request_id"])

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "panic_recovered")
	var access map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &access))
	assert.Equal(t, "error", access["level"])
	assert.Equal(t, true, access["panic"])
	assert.EqualValues(t, http.StatusInternalServerError, access["status"])
}

func TestWithRecover_PageUsesErrorPage(t *testing.T) {
	errorPage := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<h1>Signal lost</h1>"))
	})
	h := WithRecover(log.New(&bytes.Buffer{}, "", 0), errorPage)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mission/1", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Signal lost")
}

func TestWithRecover_PlainTextWithoutErrorPage(t *testing.T) {
	h := WithRecover(log.New(&bytes.Buffer{}, "", 0), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mission/1", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(req))
	req.Header.Set("X-Real-Ip", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", clientIP(req))
	req.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	assert.Equal(t, "10.0.0.3", clientIP(req))
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	Log(log.New(&buf, "", 0), "info", "server_start", map[string]any{"addr": ":8080", "msg": "ignored"})
	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "server_start", entry["msg"])
	assert.Equal(t, ":8080", entry["addr"])
	assert.Equal(t, "info", entry["level"])
}
