package auth

import (
	"errors"
	"strings"

	"github.com/familyships/familyships/pkg/familyships/apperror"
	"github.com/familyships/familyships/pkg/familyships/identity"
	"github.com/familyships/familyships/pkg/familyships/models"
	"github.com/familyships/familyships/pkg/familyships/ownership"
	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyIdentity is the key for the caller's identity in gin context
	ContextKeyIdentity = "identity"
	// ContextKeyTree is the key for the caller's tree in gin context
	ContextKeyTree = "tree"
)

var errMissingIdentity = errors.New("no identity in request context")

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", apperror.ErrUnauthorized.WithMessage("Authorization header required")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", apperror.ErrUnauthorized.WithMessage("Invalid authorization header format")
	}
	return parts[1], nil
}

// AuthMiddleware validates JWT tokens and sets the caller's identity in context
func AuthMiddleware(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := BearerToken(c)
		if err != nil {
			apperror.Respond(c, err)
			return
		}

		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				apperror.Respond(c, apperror.ErrInvalidToken.WithMessage("Token has expired"))
			} else {
				apperror.Respond(c, apperror.ErrInvalidToken)
			}
			return
		}

		SetIdentity(c, claims.Identity())
		c.Next()
	}
}

// TreeMiddleware resolves the authenticated caller's tree, creating it on
// first use. It must run after an authentication middleware.
func TreeMiddleware(gate *ownership.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			apperror.Respond(c, apperror.ErrUnauthorized.WithInternal(errMissingIdentity))
			return
		}

		tree, err := gate.ResolveTree(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, identity.ErrInvalid) {
				apperror.Respond(c, apperror.ErrUnauthorized.WithInternal(err))
				return
			}
			apperror.Respond(c, err)
			return
		}

		c.Set(ContextKeyTree, tree)
		c.Next()
	}
}

// SetIdentity stores the authenticated caller in the gin context.
func SetIdentity(c *gin.Context, id identity.Identity) {
	c.Set(ContextKeyIdentity, id)
}

// CurrentIdentity returns the authenticated caller from the gin context
func CurrentIdentity(c *gin.Context) (identity.Identity, bool) {
	v, exists := c.Get(ContextKeyIdentity)
	if !exists {
		return identity.Identity{}, false
	}
	id, ok := v.(identity.Identity)
	return id, ok
}

// CurrentTree returns the caller's tree from the gin context
func CurrentTree(c *gin.Context) (*models.Tree, bool) {
	v, exists := c.Get(ContextKeyTree)
	if !exists {
		return nil, false
	}
	tree, ok := v.(*models.Tree)
	return tree, ok
}
