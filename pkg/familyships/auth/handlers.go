package auth

import (
	"net/http"

	"github.com/familyships/familyships/pkg/familyships/apperror"
	"github.com/gin-gonic/gin"
)

// Handler handles session requests
type Handler struct {
	tokens *Tokens
}

// NewHandler creates a new auth handler
func NewHandler(tokens *Tokens) *Handler {
	return &Handler{tokens: tokens}
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// UserResponse represents the caller in responses
type UserResponse struct {
	Name       string `json:"name"`
	Provider   string `json:"provider"`
	ExternalID string `json:"external_id"`
	TreeID     uint   `json:"tree_id"`
}

// Me returns the current caller and their tree
func (h *Handler) Me(c *gin.Context) {
	id, ok := CurrentIdentity(c)
	if !ok {
		apperror.Respond(c, apperror.ErrUnauthorized)
		return
	}
	tree, ok := CurrentTree(c)
	if !ok {
		apperror.Respond(c, apperror.ErrUnauthorized)
		return
	}

	c.JSON(http.StatusOK, UserResponse{
		Name:       id.DisplayName,
		Provider:   string(id.Provider),
		ExternalID: id.ExternalID,
		TreeID:     tree.ID,
	})
}

// Refresh issues a fresh session token for the current caller
func (h *Handler) Refresh(c *gin.Context) {
	id, ok := CurrentIdentity(c)
	if !ok {
		apperror.Respond(c, apperror.ErrUnauthorized)
		return
	}

	token, err := h.tokens.GenerateToken(id)
	if err != nil {
		apperror.Respond(c, apperror.ErrInternal.WithInternal(err))
		return
	}

	resp := AuthResponse{Token: token, User: UserResponse{
		Name:       id.DisplayName,
		Provider:   string(id.Provider),
		ExternalID: id.ExternalID,
	}}
	if tree, ok := CurrentTree(c); ok {
		resp.User.TreeID = tree.ID
	}
	c.JSON(http.StatusOK, resp)
}

// RegisterRoutes registers session routes. The group must carry the
// authentication and tree middlewares.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.Me)
	rg.POST("/refresh", h.Refresh)
}
