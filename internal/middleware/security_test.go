package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func applySecurityHeaders(cfg SecurityHeadersConfig, status int) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(status) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestSecurityHeadersMiddleware_API(t *testing.T) {
	w := applySecurityHeaders(APISecurityHeadersConfig(), http.StatusOK)

	want := map[string]string{
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"X-Frame-Options":           "DENY",
		"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":           "no-referrer",
		"Cache-Control":             "no-store",
		"X-Content-Type-Options":    "nosniff",
	}
	for h, v := range want {
		if got := w.Header().Get(h); got != v {
			t.Errorf("%s = %q, want %q", h, got, v)
		}
	}
}

func TestSecurityHeadersMiddleware_Disabled(t *testing.T) {
	w := applySecurityHeaders(SecurityHeadersConfig{}, http.StatusOK)

	for _, h := range []string{"Strict-Transport-Security", "X-Frame-Options", "Content-Security-Policy", "Cache-Control"} {
		if got := w.Header().Get(h); got != "" {
			t.Errorf("%s = %q, want empty", h, got)
		}
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestSecurityHeadersMiddleware_PresentOnErrors(t *testing.T) {
	w := applySecurityHeaders(APISecurityHeadersConfig(), http.StatusInternalServerError)
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing on 500 response")
	}
}
