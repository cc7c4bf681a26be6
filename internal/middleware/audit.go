// audit.go records every state-changing request as a structured audit event.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orgspace/orgspace/internal/audit"
	"github.com/orgspace/orgspace/internal/safego"
)

const (
	auditAdminKey = "audit_admin_id"
	auditOrgKey   = "audit_org_name"
)

// shipTimeout bounds delivery of one event to the sinks.
const shipTimeout = 10 * time.Second

// SetAuditSubject records who a request acted as once the handler knows it: the
// admin that just logged in or was created, or the organization's name after a
// rename. It takes precedence over the request's principal.
func SetAuditSubject(c *gin.Context, adminID, orgName string) {
	c.Set(auditAdminKey, adminID)
	c.Set(auditOrgKey, orgName)
}

// AuditMiddleware emits one "audit" record per non-GET request after the handler
// ran. Each record carries the client address plus the admin and organization
// from the principal or SetAuditSubject, when known. When shipper is non-nil the
// event is also delivered to the configured audit sinks in the background; a sink
// failure is logged and never changes or delays the response.
//
// Register it ahead of AuthMiddleware so rejected credentials are recorded too.
func AuditMiddleware(logger *slog.Logger, shipper audit.Shipper) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("log_type", "audit")

	return func(c *gin.Context) {
		c.Next()

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		status := c.Writer.Status()
		event := &audit.Event{
			Timestamp: time.Now().UTC(),
			Action:    c.Request.Method + " " + routeOf(c),
			Outcome:   "success",
			Status:    status,
			IPAddress: c.ClientIP(),
			RequestID: GetRequestID(c),
		}
		if status >= http.StatusBadRequest {
			event.Outcome = "failure"
		}
		if p, ok := GetPrincipal(c); ok {
			event.AdminID = p.AdminID
			event.OrgName = p.OrgName
		}
		if id := c.GetString(auditAdminKey); id != "" {
			event.AdminID = id
			event.OrgName = c.GetString(auditOrgKey)
		}

		attrs := []any{
			"action", event.Action,
			"status", status,
			"ip", event.IPAddress,
			"request_id", event.RequestID,
			"outcome", event.Outcome,
		}
		if event.AdminID != "" {
			attrs = append(attrs, "admin_id", event.AdminID, "org_name", event.OrgName)
		}
		level := slog.LevelInfo
		if event.Outcome == "failure" {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "audit", attrs...)

		if shipper != nil {
			ctx := context.WithoutCancel(c.Request.Context())
			safego.Go("audit-ship", func() {
				ctx, cancel := context.WithTimeout(ctx, shipTimeout)
				defer cancel()
				if err := shipper.Ship(ctx, event); err != nil {
					logger.Error("failed to ship audit event", "action", event.Action, "error", err)
				}
			})
		}
	}
}

func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}
