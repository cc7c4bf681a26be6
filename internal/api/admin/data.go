// data.go implements the tenant data endpoints, scoped to the caller's namespace.
package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orgspace/orgspace/internal/docstore"
	"github.com/orgspace/orgspace/internal/middleware"
	"github.com/orgspace/orgspace/internal/tenant"
)

const (
	docNotFound  = "Document not found"
	maxListLimit = 1000
)

// DataHandlers handles the /data endpoints
type DataHandlers struct {
	tenants TenantService
}

// NewDataHandlers creates a new DataHandlers instance
func NewDataHandlers(tenants TenantService) *DataHandlers {
	return &DataHandlers{tenants: tenants}
}

func principal(c *gin.Context) (*tenant.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		writeError(c, tenant.ErrUnauthorized, "")
	}
	return p, ok
}

// ListCollectionsHandler lists the collections in the caller's namespace
// GET /data
func (h *DataHandlers) ListCollectionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		colls, err := h.tenants.ListCollections(c.Request.Context(), p)
		if err != nil {
			writeError(c, err, docNotFound)
			return
		}
		c.JSON(http.StatusOK, gin.H{"collections": colls})
	}
}

// ListDocumentsHandler lists documents of a collection
// GET /data/:collection?limit=100
func (h *DataHandlers) ListDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(tenant.DefaultListLimit)))
		if err != nil || limit < 1 || limit > maxListLimit {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limit must be between 1 and " + strconv.Itoa(maxListLimit),
			})
			return
		}

		docs, err := h.tenants.ListDocuments(c.Request.Context(), p, c.Param("collection"), limit)
		if err != nil {
			writeError(c, err, docNotFound)
			return
		}
		c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
	}
}

// InsertDocumentHandler stores a JSON object in a collection
// POST /data/:collection
func (h *DataHandlers) InsertDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		var doc docstore.Document
		if err := c.ShouldBindJSON(&doc); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
			return
		}

		id, err := h.tenants.InsertDocument(c.Request.Context(), p, c.Param("collection"), doc)
		if err != nil {
			writeError(c, err, docNotFound)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"_id": id})
	}
}

// GetDocumentHandler returns one document
// GET /data/:collection/:id
func (h *DataHandlers) GetDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		doc, err := h.tenants.GetDocument(c.Request.Context(), p, c.Param("collection"), c.Param("id"))
		if err != nil {
			writeError(c, err, docNotFound)
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

// DeleteDocumentHandler removes one document
// DELETE /data/:collection/:id
func (h *DataHandlers) DeleteDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		if err := h.tenants.DeleteDocument(c.Request.Context(), p, c.Param("collection"), c.Param("id")); err != nil {
			writeError(c, err, docNotFound)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Document deleted successfully"})
	}
}
