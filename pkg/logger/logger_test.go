package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNew_LevelOverride(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "production", "warn")
	l.Info("hidden")
	l.Warn("shown")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["msg"] != "shown" {
		t.Fatalf("unexpected output: %v", lines)
	}
	if lines[0]["service"] != serviceName || lines[0]["env"] != "production" {
		t.Fatalf("missing base attributes: %v", lines[0])
	}
}

func TestNew_DevDefaultsToDebug(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "dev", "bogus").Debug("d")
	if len(decodeLines(t, &buf)) != 1 {
		t.Fatalf("expected debug record on dev")
	}
}

func TestFrom_FallsBackToDefault(t *testing.T) {
	if From(context.Background()) != slog.Default() {
		t.Fatalf("expected slog.Default fallback")
	}
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if From(With(context.Background(), l)) != l {
		t.Fatalf("expected stored logger")
	}
}

func TestMiddleware_RequestLoggerReachesContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	r := gin.New()
	r.Use(Middleware(base, "/healthz"))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/webhooks/:id", func(c *gin.Context) {
		if From(c.Request.Context()) != FromGin(c) {
			t.Errorf("request context logger differs from gin logger")
		}
		if RequestID(c) != "rid-1" {
			t.Errorf("unexpected request id %q", RequestID(c))
		}
		_ = c.PostForm("CallSid")
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	form := url.Values{"CallSid": {"CA42"}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/abc", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(headerRequestID, "rid-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get(headerRequestID); got != "rid-1" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected health check to be quiet, got %v", lines)
	}
	if lines[0]["path"] != "/webhooks/:id" || lines[0]["call_sid"] != "CA42" || lines[0]["request_id"] != "rid-1" {
		t.Fatalf("unexpected summary: %v", lines[0])
	}
}
