package httpx

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogging_RecordsStatusAndBytes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/members", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "/members", entry["path"])
	assert.InDelta(t, float64(http.StatusTeapot), entry["status"], 0)
	assert.InDelta(t, 15, entry["bytes"], 0)
}

func TestRequestLogLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{path: "/members", status: http.StatusOK, want: slog.LevelInfo},
		{path: "/members/9", status: http.StatusNotFound, want: slog.LevelInfo},
		{path: "/members", status: http.StatusForbidden, want: slog.LevelWarn},
		{path: "/members", status: http.StatusBadGateway, want: slog.LevelError},
		{path: PathHealth, status: http.StatusOK, want: slog.LevelDebug},
		{path: PathStatic + "css/console.css", status: http.StatusOK, want: slog.LevelDebug},
		{path: PathHealth, status: http.StatusServiceUnavailable, want: slog.LevelError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, requestLogLevel(tt.path, tt.status), "%s %d", tt.path, tt.status)
	}
}

func TestRecover_Returns500(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/members", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
