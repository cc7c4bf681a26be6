// auth.go implements admin login.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orgspace/orgspace/internal/middleware"
	"github.com/orgspace/orgspace/internal/tenant"
)

// AuthHandlers handles admin authentication
type AuthHandlers struct {
	tenants TenantService
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(tenants TenantService) *AuthHandlers {
	return &AuthHandlers{tenants: tenants}
}

// @Summary      Admin login
// @Description  Exchanges admin credentials for a bearer token bound to the admin's organization.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  tenant.LoginRequest  true  "Credentials"
// @Success      200  {object}  tenant.LoginResult
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials"
// @Failure      429  {object}  map[string]interface{}  "Rate limit exceeded"
// @Router       /admin/login [post]
// LoginHandler authenticates an admin
// POST /admin/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tenant.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, tenant.ErrInvalidCredentials, "")
			return
		}

		res, err := h.tenants.Login(c.Request.Context(), req)
		if err != nil {
			writeError(c, err, "")
			return
		}
		middleware.SetAuditSubject(c, res.AdminID, res.OrgName)
		c.JSON(http.StatusOK, res)
	}
}
