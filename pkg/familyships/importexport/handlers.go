package importexport

import (
	"fmt"
	"net/http"
	"time"

	"github.com/familyships/familyships/pkg/familyships/apperror"
	"github.com/familyships/familyships/pkg/familyships/auth"
	"github.com/familyships/familyships/pkg/familyships/relations"
	"github.com/gin-gonic/gin"
)

// maxImportBytes bounds the size of an import document.
const maxImportBytes = 8 << 20

// Handler handles whole-tree requests
type Handler struct {
	service *relations.Service
}

// NewHandler creates a new import/export handler
func NewHandler(service *relations.Service) *Handler {
	return &Handler{service: service}
}

// Tree returns the caller's whole tree
func (h *Handler) Tree(c *gin.Context) {
	tree, ok := auth.CurrentTree(c)
	if !ok {
		apperror.Respond(c, apperror.ErrUnauthorized)
		return
	}

	snap, err := h.service.Snapshot(c.Request.Context(), tree)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Export downloads the caller's tree as a document
func (h *Handler) Export(c *gin.Context) {
	tree, ok := auth.CurrentTree(c)
	if !ok {
		apperror.Respond(c, apperror.ErrUnauthorized)
		return
	}

	doc, err := h.service.Export(c.Request.Context(), tree)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	filename := fmt.Sprintf("familyships-tree-%d-%s.json", tree.ID, time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.JSON(http.StatusOK, doc)
}

// Import replays a document into the caller's tree
func (h *Handler) Import(c *gin.Context) {
	tree, ok := auth.CurrentTree(c)
	if !ok {
		apperror.Respond(c, apperror.ErrUnauthorized)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	var doc relations.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		apperror.Respond(c, apperror.ErrBadRequest.WithMessage("Invalid document: "+err.Error()))
		return
	}

	result, err := h.service.Import(c.Request.Context(), tree, &doc)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// RegisterRoutes registers whole-tree routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/tree", h.Tree)
	rg.GET("/export", h.Export)
	rg.POST("/import", h.Import)
}
