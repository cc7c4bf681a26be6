package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orgspace/orgspace/internal/audit"
	"github.com/orgspace/orgspace/internal/tenant"
)

type recordingShipper struct {
	shipped chan *audit.Event
	delay   time.Duration
	err     error
}

func newRecordingShipper() *recordingShipper {
	return &recordingShipper{shipped: make(chan *audit.Event, 16)}
}

func (r *recordingShipper) Ship(_ context.Context, e *audit.Event) error {
	time.Sleep(r.delay)
	r.shipped <- e
	return r.err
}

// next waits for the next shipped event.
func (r *recordingShipper) next(t *testing.T) *audit.Event {
	t.Helper()
	select {
	case e := <-r.shipped:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event shipped")
		return nil
	}
}

// lockedBuffer guards log output written from the shipping goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (r *recordingShipper) Close() error { return nil }

func newAuditRouter(buf *bytes.Buffer, principal *tenant.Principal, status int) *gin.Engine {
	return newShippingAuditRouter(buf, nil, principal, status)
}

func newShippingAuditRouter(buf io.Writer, shipper audit.Shipper, principal *tenant.Principal, status int) *gin.Engine {
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if principal != nil {
			c.Set(PrincipalKey, principal)
		}
		c.Next()
	})
	r.Use(AuditMiddleware(logger, shipper))
	handler := func(c *gin.Context) { c.Status(status) }
	r.GET("/org/list", handler)
	r.PUT("/org/update", handler)
	r.POST("/org/create", handler)
	r.POST("/admin/login", func(c *gin.Context) {
		SetAuditSubject(c, "a9", "Globex")
		c.Status(status)
	})
	return r
}

func auditRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestAuditMiddleware_SkipsReads(t *testing.T) {
	var buf bytes.Buffer
	r := newAuditRouter(&buf, nil, http.StatusOK)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/org/list", nil))

	if got := auditRecords(t, &buf); len(got) != 0 {
		t.Errorf("GET produced %d audit records, want 0", len(got))
	}
}

func TestAuditMiddleware_RecordsPrincipal(t *testing.T) {
	var buf bytes.Buffer
	p := &tenant.Principal{AdminID: "a1", OrgName: "Acme"}
	r := newAuditRouter(&buf, p, http.StatusOK)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/org/update?new_org_name=x", nil))

	recs := auditRecords(t, &buf)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec["log_type"] != "audit" || rec["outcome"] != "success" {
		t.Errorf("record = %v", rec)
	}
	if rec["action"] != "PUT /org/update" {
		t.Errorf("action = %v, want PUT /org/update", rec["action"])
	}
	if rec["admin_id"] != "a1" || rec["org_name"] != "Acme" {
		t.Errorf("principal attrs missing: %v", rec)
	}
}

func TestAuditMiddleware_Failure(t *testing.T) {
	var buf bytes.Buffer
	r := newAuditRouter(&buf, nil, http.StatusBadRequest)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/org/create", nil))

	recs := auditRecords(t, &buf)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0]["outcome"] != "failure" || recs[0]["level"] != "WARN" {
		t.Errorf("record = %v, want WARN failure", recs[0])
	}
	if _, ok := recs[0]["admin_id"]; ok {
		t.Error("anonymous request carries admin_id")
	}
}

func TestAuditMiddleware_ShipsEvent(t *testing.T) {
	var buf bytes.Buffer
	shipper := newRecordingShipper()
	p := &tenant.Principal{AdminID: "a1", OrgName: "Acme"}
	r := newShippingAuditRouter(&buf, shipper, p, http.StatusOK)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/org/list", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/org/update", nil))

	e := shipper.next(t)
	if e.Action != "PUT /org/update" || e.Outcome != "success" || e.AdminID != "a1" || e.OrgName != "Acme" {
		t.Errorf("event = %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("event has no timestamp")
	}
	select {
	case extra := <-shipper.shipped:
		t.Errorf("unexpected second event %+v (GET must not be shipped)", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAuditMiddleware_SubjectOverridesPrincipal(t *testing.T) {
	var buf bytes.Buffer
	shipper := newRecordingShipper()
	p := &tenant.Principal{AdminID: "a1", OrgName: "Acme"}
	r := newShippingAuditRouter(&buf, shipper, p, http.StatusOK)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/admin/login", nil))

	e := shipper.next(t)
	if e.AdminID != "a9" || e.OrgName != "Globex" {
		t.Errorf("event subject = %s/%s, want a9/Globex", e.AdminID, e.OrgName)
	}
}

func TestAuditMiddleware_SlowShipperDoesNotDelayResponse(t *testing.T) {
	var buf bytes.Buffer
	shipper := newRecordingShipper()
	shipper.delay = 500 * time.Millisecond
	r := newShippingAuditRouter(&buf, shipper, nil, http.StatusOK)

	start := time.Now()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/org/create", nil))
	elapsed := time.Since(start)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if elapsed >= shipper.delay {
		t.Errorf("request took %v, shipping must not block it", elapsed)
	}
	shipper.next(t)
}

func TestAuditMiddleware_ShipFailureDoesNotAffectResponse(t *testing.T) {
	var buf lockedBuffer
	shipper := newRecordingShipper()
	shipper.err = errors.New("sink down")
	r := newShippingAuditRouter(&buf, shipper, nil, http.StatusOK)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/org/create", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	shipper.next(t)

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(buf.String(), "failed to ship audit event") {
		if time.Now().After(deadline) {
			t.Fatal("ship failure was not logged")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
