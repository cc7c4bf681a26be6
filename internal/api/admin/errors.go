package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orgspace/orgspace/internal/tenant"
)

// writeError maps a tenant error to its HTTP status and a client-safe message.
// notFound is the message used for tenant.ErrNotFound.
func writeError(c *gin.Context, err error, notFound string) {
	status, msg := classify(err, notFound)
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", c.GetString("request_id"),
			"error", err)
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.JSON(status, gin.H{"error": msg})
}

func classify(err error, notFound string) (int, string) {
	switch {
	case errors.Is(err, tenant.ErrInternal):
		return http.StatusInternalServerError, "Internal server error"
	case errors.Is(err, tenant.ErrValidation):
		return http.StatusBadRequest, validationMessage(err)
	case errors.Is(err, tenant.ErrOrgAlreadyExists):
		return http.StatusBadRequest, "Organization name already exists"
	case errors.Is(err, tenant.ErrNoOpRename):
		return http.StatusBadRequest, "New name is same as old name"
	case errors.Is(err, tenant.ErrNotFound):
		return http.StatusNotFound, notFound
	case errors.Is(err, tenant.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, tenant.ErrUnauthorized):
		return http.StatusUnauthorized, "Invalid or expired token"
	case errors.Is(err, tenant.ErrBusy):
		return http.StatusConflict, "Organization is busy, retry later"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// validationMessage strips the taxonomy prefix so the client sees only the
// problem with its input.
func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), tenant.ErrValidation.Error()+": ")
	if msg == "" {
		return "Invalid request"
	}
	return msg
}
