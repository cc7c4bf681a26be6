package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/orgspace/orgspace/internal/telemetry"
)

func newMetricsRouter() *gin.Engine {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/org/get/:org_name", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.DELETE("/org/delete", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })
	return r
}

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	r := newMetricsRouter()
	counter := telemetry.HTTPRequestsTotal.WithLabelValues("GET", "/org/get/:org_name", "200")
	before := testutil.ToFloat64(counter)

	for _, name := range []string{"acme", "globex", "initech"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/org/get/"+name, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("requests counted on template = %v, want 3", got)
	}
}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	r := newMetricsRouter()
	counter := telemetry.HTTPRequestsTotal.WithLabelValues("DELETE", "/org/delete", "401")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/org/delete", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("401 counter delta = %v, want 1", got)
	}
}

func TestMetricsMiddleware_NoRoute(t *testing.T) {
	r := newMetricsRouter()
	counter := telemetry.HTTPRequestsTotal.WithLabelValues("GET", "<no-route>", "404")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/does/not/exist", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("no-route counter delta = %v, want 1", got)
	}
}

func TestMetricsMiddleware_ObservesDuration(t *testing.T) {
	r := newMetricsRouter()
	before := testutil.CollectAndCount(telemetry.HTTPRequestDuration)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/org/get/acme", nil))

	if after := testutil.CollectAndCount(telemetry.HTTPRequestDuration); after < before || after == 0 {
		t.Errorf("histogram series = %d (before %d), want at least one", after, before)
	}
}
