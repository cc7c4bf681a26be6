package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newRequestIDRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})
	return r
}

func TestRequestIDMiddleware_GeneratesUUID(t *testing.T) {
	r := newRequestIDRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	id := w.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("X-Request-ID = %q, not a UUID: %v", id, err)
	}
	if w.Body.String() != id {
		t.Errorf("context id = %q, header id = %q", w.Body.String(), id)
	}
}

func TestRequestIDMiddleware_PropagatesIncomingID(t *testing.T) {
	const upstream = "upstream-request-001"
	r := newRequestIDRouter()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, upstream)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != upstream {
		t.Errorf("X-Request-ID = %q, want %q", got, upstream)
	}
}

func TestRequestIDMiddleware_ReplacesOversizedID(t *testing.T) {
	r := newRequestIDRouter()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLength+1))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Errorf("oversized id was not replaced: %q", got)
	}
}

func TestRequestIDMiddleware_UniquePerRequest(t *testing.T) {
	r := newRequestIDRouter()
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get(RequestIDHeader)
		if seen[id] {
			t.Fatalf("duplicate request id %q", id)
		}
		seen[id] = true
	}
}
