package families

import (
	"net/http"
	"strconv"

	"github.com/familyships/familyships/pkg/familyships/apperror"
	"github.com/familyships/familyships/pkg/familyships/auth"
	"github.com/familyships/familyships/pkg/familyships/models"
	"github.com/familyships/familyships/pkg/familyships/relations"
	"github.com/gin-gonic/gin"
)

// Handler handles family-related requests
type Handler struct {
	service *relations.Service
}

// NewHandler creates a new families handler
func NewHandler(service *relations.Service) *Handler {
	return &Handler{service: service}
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		apperror.Respond(c, apperror.ErrBadRequest.WithMessage("Invalid "+param))
		return 0, false
	}
	return uint(id), true
}

// target resolves the caller's tree and the family and person ids of a link route.
func target(c *gin.Context) (tree *models.Tree, familyID, personID uint, ok bool) {
	tree, ok = auth.CurrentTree(c)
	if !ok {
		apperror.Respond(c, apperror.ErrUnauthorized)
		return nil, 0, 0, false
	}
	if familyID, ok = parseID(c, "id"); !ok {
		return nil, 0, 0, false
	}
	if personID, ok = parseID(c, "personId"); !ok {
		return nil, 0, 0, false
	}
	return tree, familyID, personID, true
}

// List returns every family in the caller's tree
func (h *Handler) List(c *gin.Context) {
	tree, ok := auth.CurrentTree(c)
	if !ok {
		apperror.Respond(c, apperror.ErrUnauthorized)
		return
	}

	families, err := h.service.ListFamilies(c.Request.Context(), tree)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	if families == nil {
		families = []relations.FamilyView{}
	}
	c.JSON(http.StatusOK, families)
}

// Create adds an empty family to the caller's tree
func (h *Handler) Create(c *gin.Context) {
	tree, ok := auth.CurrentTree(c)
	if !ok {
		apperror.Respond(c, apperror.ErrUnauthorized)
		return
	}

	family, err := h.service.CreateFamily(c.Request.Context(), tree)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, family)
}

// Get returns a family with its parents and children
func (h *Handler) Get(c *gin.Context) {
	tree, ok := auth.CurrentTree(c)
	if !ok {
		apperror.Respond(c, apperror.ErrUnauthorized)
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	view, err := h.service.GetFamily(c.Request.Context(), tree, id)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Delete removes a family and its links
func (h *Handler) Delete(c *gin.Context) {
	tree, ok := auth.CurrentTree(c)
	if !ok {
		apperror.Respond(c, apperror.ErrUnauthorized)
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteFamily(c.Request.Context(), tree, id); err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Family deleted"})
}

// AttachParent links a person to the family as a parent
func (h *Handler) AttachParent(c *gin.Context) {
	tree, familyID, personID, ok := target(c)
	if !ok {
		return
	}

	link, err := h.service.AttachParent(c.Request.Context(), tree, familyID, personID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}

// DetachParent removes a parent link
func (h *Handler) DetachParent(c *gin.Context) {
	tree, familyID, personID, ok := target(c)
	if !ok {
		return
	}

	result, err := h.service.DetachParent(c.Request.Context(), tree, familyID, personID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AttachChild links a person to the family as a child
func (h *Handler) AttachChild(c *gin.Context) {
	tree, familyID, personID, ok := target(c)
	if !ok {
		return
	}

	link, err := h.service.AttachChild(c.Request.Context(), tree, familyID, personID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}

// DetachChild removes a child link
func (h *Handler) DetachChild(c *gin.Context) {
	tree, familyID, personID, ok := target(c)
	if !ok {
		return
	}

	result, err := h.service.DetachChild(c.Request.Context(), tree, familyID, personID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RegisterRoutes registers family routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/families", h.List)
	rg.POST("/families", h.Create)
	rg.GET("/families/:id", h.Get)
	rg.DELETE("/families/:id", h.Delete)
	rg.PUT("/families/:id/parents/:personId", h.AttachParent)
	rg.DELETE("/families/:id/parents/:personId", h.DetachParent)
	rg.PUT("/families/:id/children/:personId", h.AttachChild)
	rg.DELETE("/families/:id/children/:personId", h.DetachChild)
}
