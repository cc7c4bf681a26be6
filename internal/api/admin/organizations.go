// organizations.go implements the organization lifecycle endpoints.
package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orgspace/orgspace/internal/docstore"
	"github.com/orgspace/orgspace/internal/middleware"
	"github.com/orgspace/orgspace/internal/registry"
	"github.com/orgspace/orgspace/internal/tenant"
)

// TenantService is the lifecycle surface the handlers consume.
type TenantService interface {
	Create(ctx context.Context, req tenant.CreateRequest) (*tenant.CreateResult, error)
	Get(ctx context.Context, name string) (*registry.Organization, error)
	List(ctx context.Context) ([]*registry.Organization, error)
	Login(ctx context.Context, req tenant.LoginRequest) (*tenant.LoginResult, error)
	Rename(ctx context.Context, p *tenant.Principal, newName string) (*registry.Organization, error)
	Delete(ctx context.Context, p *tenant.Principal) error

	InsertDocument(ctx context.Context, p *tenant.Principal, coll string, doc docstore.Document) (any, error)
	ListCollections(ctx context.Context, p *tenant.Principal) ([]string, error)
	ListDocuments(ctx context.Context, p *tenant.Principal, coll string, limit int) ([]docstore.Document, error)
	GetDocument(ctx context.Context, p *tenant.Principal, coll string, id any) (docstore.Document, error)
	DeleteDocument(ctx context.Context, p *tenant.Principal, coll string, id any) error
}

var _ TenantService = (*tenant.Manager)(nil)

const orgNotFound = "Organization not found"

// OrganizationHandlers handles the /org endpoints.
type OrganizationHandlers struct {
	tenants TenantService
}

// NewOrganizationHandlers creates a new OrganizationHandlers instance
func NewOrganizationHandlers(tenants TenantService) *OrganizationHandlers {
	return &OrganizationHandlers{tenants: tenants}
}

// orgResponse is the public view of an organization.
type orgResponse struct {
	ID             string `json:"_id"`
	OrgName        string `json:"org_name"`
	CollectionName string `json:"collection_name"`
	AdminID        string `json:"admin_id"`
	CreatedAt      string `json:"created_at,omitempty"`
}

func toResponse(org *registry.Organization) orgResponse {
	resp := orgResponse{
		ID:             org.ID,
		OrgName:        org.Name,
		CollectionName: org.NamespaceID.String(),
		AdminID:        org.AdminID,
	}
	if !org.CreatedAt.IsZero() {
		resp.CreatedAt = org.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

// @Summary      Create organization
// @Description  Registers a new organization and its admin. The tenant namespace is created on first write.
// @Tags         Organizations
// @Accept       json
// @Produce      json
// @Param        body  body  tenant.CreateRequest  true  "Organization and admin"
// @Success      200  {object}  map[string]interface{}  "org_name, collection_name"
// @Failure      400  {object}  map[string]interface{}  "Validation failed or name already exists"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /org/create [post]
// CreateOrganizationHandler creates an organization
// POST /org/create
func (h *OrganizationHandlers) CreateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tenant.CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "organization_name, admin_email and admin_password are required",
			})
			return
		}

		res, err := h.tenants.Create(c.Request.Context(), req)
		if err != nil {
			writeError(c, err, orgNotFound)
			return
		}
		middleware.SetAuditSubject(c, res.AdminID, res.OrgName)

		c.JSON(http.StatusOK, gin.H{
			"org_name":        res.OrgName,
			"collection_name": res.NamespaceID,
		})
	}
}

// @Summary      Get organization
// @Description  Looks up an organization by name, ignoring case.
// @Tags         Organizations
// @Produce      json
// @Param        org_name  path  string  true  "Organization name"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Router       /org/get/{org_name} [get]
// GetOrganizationHandler returns the public record of an organization
// GET /org/get/:org_name
func (h *OrganizationHandlers) GetOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := h.tenants.Get(c.Request.Context(), c.Param("org_name"))
		if err != nil {
			writeError(c, err, orgNotFound)
			return
		}
		c.JSON(http.StatusOK, toResponse(org))
	}
}

// ListOrganizationsHandler lists every organization
// GET /org/list
func (h *OrganizationHandlers) ListOrganizationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgs, err := h.tenants.List(c.Request.Context())
		if err != nil {
			writeError(c, err, orgNotFound)
			return
		}
		out := make([]orgResponse, 0, len(orgs))
		for _, org := range orgs {
			out = append(out, toResponse(org))
		}
		c.JSON(http.StatusOK, gin.H{"organizations": out, "total": len(out)})
	}
}

// @Summary      Rename organization
// @Description  Renames the caller's organization, moving all its data to the new namespace. Existing tokens stop working.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Param        new_org_name  query  string  true  "New organization name"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "No-op rename, name taken, or invalid name"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      409  {object}  map[string]interface{}  "Organization busy"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /org/update [put]
// RenameOrganizationHandler renames the caller's organization
// PUT /org/update?new_org_name=
func (h *OrganizationHandlers) RenameOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.GetPrincipal(c)
		if !ok {
			writeError(c, tenant.ErrUnauthorized, orgNotFound)
			return
		}
		newName, present := c.GetQuery("new_org_name")
		if !present {
			c.JSON(http.StatusBadRequest, gin.H{"error": "new_org_name is required"})
			return
		}

		org, err := h.tenants.Rename(c.Request.Context(), p, newName)
		if err != nil {
			writeError(c, err, orgNotFound)
			return
		}
		middleware.SetAuditSubject(c, p.AdminID, org.Name)
		c.JSON(http.StatusOK, gin.H{
			"message":         "Organization renamed successfully",
			"org_name":        org.Name,
			"collection_name": org.NamespaceID,
		})
	}
}

// @Summary      Delete organization
// @Description  Deletes the caller's organization, its data and its admin.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /org/delete [delete]
// DeleteOrganizationHandler deletes the caller's organization
// DELETE /org/delete
func (h *OrganizationHandlers) DeleteOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.GetPrincipal(c)
		if !ok {
			writeError(c, tenant.ErrUnauthorized, orgNotFound)
			return
		}
		if err := h.tenants.Delete(c.Request.Context(), p); err != nil {
			writeError(c, err, orgNotFound)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Organization deleted successfully"})
	}
}
