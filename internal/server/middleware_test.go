package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoggingMiddlewareLevels(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		status  int
		delay   time.Duration
		wantMsg string
		level   string
	}{
		{"fast ok", "/api/jobs/x", http.StatusOK, 0, "request completed", "DEBUG"},
		{"server error", "/api/query", http.StatusInternalServerError, 0, "request failed", "ERROR"},
		{"slow", "/api/history", http.StatusOK, 150 * time.Millisecond, "slow request", "WARN"},
		{"slow stream", "/api/jobs/x/stream", http.StatusOK, 150 * time.Millisecond, "request completed", "DEBUG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			h := LoggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(tt.delay)
				w.WriteHeader(tt.status)
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			out := buf.String()
			assert.Contains(t, out, "level="+tt.level)
			assert.Contains(t, out, `msg="`+tt.wantMsg+`"`)
			assert.Contains(t, out, "path="+tt.path)
		})
	}
}

func TestStatusRecorderImplicitOK(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _ = rec.Write([]byte("hi"))
	rec.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, rec.status)
}

func TestIsStream(t *testing.T) {
	assert.True(t, isStream(httptest.NewRequest(http.MethodGet, "/api/jobs/a/stream", nil)))
	assert.True(t, isStream(httptest.NewRequest(http.MethodGet, "/api/skills/a/generate", nil)))
	assert.True(t, isStream(httptest.NewRequest(http.MethodGet, "/api/jobs/a/ws", nil)))
	assert.False(t, isStream(httptest.NewRequest(http.MethodGet, "/api/jobs/a", nil)))
}
