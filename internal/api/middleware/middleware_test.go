package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nff/ingestion/internal/logger"
)

func pingRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestCORSPreflightAndExposedHeaders(t *testing.T) {
	r := pingRouter(CORS(CORSConfig{AllowAllOrigins: true}))

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q, want *", got)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, "X-Request-ID") {
		t.Errorf("expose-headers = %q, want X-Request-ID exposed", got)
	}
}

func TestCORSAllowList(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"https://dashboard.example.com"}}
	r := pingRouter(CORS(cfg))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://other.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin = %q for a rejected origin, want unset", got)
	}

	if !IsOriginAllowed("https://DASHBOARD.example.com", cfg) {
		t.Error("IsOriginAllowed should match origins case-insensitively")
	}
	if IsOriginAllowed("https://other.example.com", cfg) {
		t.Error("IsOriginAllowed accepted an origin outside the list")
	}
}

func TestLoggerMiddlewareEmitsRequestMetrics(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "info", Format: "json", Output: &buf})

	r := pingRouter(LoggerMiddleware(log))

	req := httptest.NewRequest(http.MethodGet, "/ping?verbose=1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
	out := buf.String()
	if !strings.Contains(out, "Request completed") {
		t.Fatalf("output missing completion log: %s", out)
	}
	for _, field := range []string{
		logger.FieldDurationMs, logger.FieldSize, logger.FieldStatus, logger.FieldRequestID,
	} {
		if !strings.Contains(out, field) {
			t.Errorf("completion log missing %s field: %s", field, out)
		}
	}
}
