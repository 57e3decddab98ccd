package people

import (
	"context"
	"net/http"
	"strconv"

	"github.com/familyships/familyships/pkg/familyships/apperror"
	"github.com/familyships/familyships/pkg/familyships/auth"
	"github.com/familyships/familyships/pkg/familyships/models"
	"github.com/familyships/familyships/pkg/familyships/relations"
	"github.com/gin-gonic/gin"
)

// Handler handles person-related requests
type Handler struct {
	service *relations.Service
}

// NewHandler creates a new people handler
func NewHandler(service *relations.Service) *Handler {
	return &Handler{service: service}
}

// NamesRequest carries an ordered list of names
type NamesRequest struct {
	Names []string `json:"names" binding:"required"`
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		apperror.Respond(c, apperror.ErrBadRequest.WithMessage("Invalid "+param))
		return 0, false
	}
	return uint(id), true
}

func currentTree(c *gin.Context) (*models.Tree, bool) {
	tree, ok := auth.CurrentTree(c)
	if !ok {
		apperror.Respond(c, apperror.ErrUnauthorized)
	}
	return tree, ok
}

// List returns every person in the caller's tree
func (h *Handler) List(c *gin.Context) {
	tree, ok := currentTree(c)
	if !ok {
		return
	}

	people, err := h.service.ListPeople(c.Request.Context(), tree)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	if people == nil {
		people = []models.Person{}
	}
	c.JSON(http.StatusOK, people)
}

// Create adds a person to the caller's tree
func (h *Handler) Create(c *gin.Context) {
	tree, ok := currentTree(c)
	if !ok {
		return
	}

	var req NamesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, apperror.ErrBadRequest.WithMessage(err.Error()))
		return
	}

	person, err := h.service.CreatePerson(c.Request.Context(), tree, req.Names)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, person)
}

// Get returns a person with their family memberships
func (h *Handler) Get(c *gin.Context) {
	tree, ok := currentTree(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	view, err := h.service.GetPerson(c.Request.Context(), tree, id)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Delete removes a person and their links
func (h *Handler) Delete(c *gin.Context) {
	tree, ok := currentTree(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.service.DeletePerson(c.Request.Context(), tree, id)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SetNames replaces a person's names
func (h *Handler) SetNames(c *gin.Context) {
	tree, ok := currentTree(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req NamesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, apperror.ErrBadRequest.WithMessage(err.Error()))
		return
	}

	person, err := h.service.SetNames(c.Request.Context(), tree, id, req.Names)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, person)
}

type relativesFunc func(ctx context.Context, tree *models.Tree, personID uint) ([]models.Person, error)

// relatives serves one of the relative queries
func (h *Handler) relatives(query relativesFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		tree, ok := currentTree(c)
		if !ok {
			return
		}
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		people, err := query(c.Request.Context(), tree, id)
		if err != nil {
			apperror.Respond(c, err)
			return
		}
		if people == nil {
			people = []models.Person{}
		}
		c.JSON(http.StatusOK, people)
	}
}

// RegisterRoutes registers person routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/people", h.List)
	rg.POST("/people", h.Create)
	rg.GET("/people/:id", h.Get)
	rg.DELETE("/people/:id", h.Delete)
	rg.PUT("/people/:id/names", h.SetNames)
	rg.GET("/people/:id/parents", h.relatives(h.service.Parents))
	rg.GET("/people/:id/children", h.relatives(h.service.Children))
	rg.GET("/people/:id/ancestors", h.relatives(h.service.Ancestors))
	rg.GET("/people/:id/descendants", h.relatives(h.service.Descendants))
}
