package apikeys

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/familyships/familyships/pkg/familyships/apperror"
	"github.com/familyships/familyships/pkg/familyships/auth"
	"github.com/familyships/familyships/pkg/familyships/identity"
	"github.com/familyships/familyships/pkg/familyships/models"
	"github.com/familyships/familyships/pkg/familyships/ownership"
	"github.com/familyships/familyships/pkg/familyships/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyPrefix marks a bearer token as an API key
	KeyPrefix = "fsk_"
	// SecretLength is the length of the secret part in bytes (32 bytes = 64 hex chars)
	SecretLength = 32
	// LookupLength is the length of the lookup part in bytes
	LookupLength = 4
)

var ErrInvalidKey = errors.New("invalid API key")

// Handler handles API key requests
type Handler struct {
	store  *store.Store
	gate   *ownership.Gate
	logger *zap.Logger
}

// NewHandler creates a new API keys handler
func NewHandler(s *store.Store, gate *ownership.Gate, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: s, gate: gate, logger: logger}
}

// APIKeyResponse represents an API key in responses
type APIKeyResponse struct {
	ID          uint       `json:"id"`
	KeyPrefix   string     `json:"key_prefix"`
	Description string     `json:"description"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateAPIKeyRequest represents a request to create an API key
type CreateAPIKeyRequest struct {
	Description string `json:"description" binding:"max=200"`
}

// CreateAPIKeyResponse includes the full key (only shown once)
type CreateAPIKeyResponse struct {
	ID          uint      `json:"id"`
	Key         string    `json:"key"`
	KeyPrefix   string    `json:"key_prefix"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// generateAPIKey returns the full key, its lookup prefix and its secret part.
func generateAPIKey() (key, lookup, secret string, err error) {
	if lookup, err = randomHex(LookupLength); err != nil {
		return "", "", "", err
	}
	if secret, err = randomHex(SecretLength); err != nil {
		return "", "", "", err
	}
	return KeyPrefix + lookup + "_" + secret, lookup, secret, nil
}

// parseAPIKey splits a key into its lookup prefix and secret.
func parseAPIKey(key string) (lookup, secret string, ok bool) {
	rest, found := strings.CutPrefix(key, KeyPrefix)
	if !found {
		return "", "", false
	}
	lookup, secret, found = strings.Cut(rest, "_")
	if !found || lookup == "" || secret == "" {
		return "", "", false
	}
	return lookup, secret, true
}

// callerIdentity returns the stored identity of the authenticated caller.
func (h *Handler) callerIdentity(c *gin.Context) (*models.UserIdentity, error) {
	id, ok := auth.CurrentIdentity(c)
	if !ok {
		return nil, apperror.ErrUnauthorized
	}
	return h.gate.Identity(c.Request.Context(), id)
}

// Create creates a new API key for the authenticated caller
func (h *Handler) Create(c *gin.Context) {
	var req CreateAPIKeyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apperror.Respond(c, apperror.ErrBadRequest.WithMessage(err.Error()))
			return
		}
	}

	owner, err := h.callerIdentity(c)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	key, lookup, secret, err := generateAPIKey()
	if err != nil {
		apperror.Respond(c, apperror.ErrInternal.WithInternal(err))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		apperror.Respond(c, apperror.ErrInternal.WithInternal(err))
		return
	}

	apiKey := models.APIKey{
		IdentityID:  owner.ID,
		KeyPrefix:   lookup,
		SecretHash:  string(hash),
		Description: req.Description,
	}
	if err := store.Create(c.Request.Context(), h.store, &apiKey); err != nil {
		apperror.Respond(c, err)
		return
	}

	// Return the full key - this is the only time it's visible
	c.JSON(http.StatusCreated, CreateAPIKeyResponse{
		ID:          apiKey.ID,
		Key:         key,
		KeyPrefix:   apiKey.KeyPrefix,
		Description: apiKey.Description,
		CreatedAt:   apiKey.CreatedAt,
	})
}

// List returns all API keys of the authenticated caller
func (h *Handler) List(c *gin.Context) {
	owner, err := h.callerIdentity(c)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	apiKeys, err := store.FindByForeignKey[models.APIKey](c.Request.Context(), h.store, "identity_id", owner.ID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	responses := make([]APIKeyResponse, len(apiKeys))
	for i, key := range apiKeys {
		responses[i] = APIKeyResponse{
			ID:          key.ID,
			KeyPrefix:   key.KeyPrefix,
			Description: key.Description,
			LastUsedAt:  key.LastUsedAt,
			CreatedAt:   key.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, responses)
}

// Delete deletes an API key
func (h *Handler) Delete(c *gin.Context) {
	keyID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		apperror.Respond(c, apperror.ErrBadRequest.WithMessage("Invalid API key ID"))
		return
	}

	owner, err := h.callerIdentity(c)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	ctx := c.Request.Context()
	apiKey, err := store.Get[models.APIKey](ctx, h.store, uint(keyID))
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	if apiKey.IdentityID != owner.ID {
		apperror.Respond(c, apperror.ErrNotFound)
		return
	}

	if err := store.Delete[models.APIKey](ctx, h.store, apiKey.ID); err != nil {
		apperror.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key deleted"})
}

// ValidateAPIKey checks an API key and returns the identity it belongs to
func ValidateAPIKey(ctx context.Context, s *store.Store, key string) (*models.APIKey, *models.UserIdentity, error) {
	lookup, secret, ok := parseAPIKey(key)
	if !ok {
		return nil, nil, ErrInvalidKey
	}

	apiKey, err := store.First[models.APIKey](ctx, s, map[string]any{"key_prefix": lookup})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrInvalidKey
	}
	if err != nil {
		return nil, nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(apiKey.SecretHash), []byte(secret)) != nil {
		return nil, nil, ErrInvalidKey
	}

	owner, err := store.Get[models.UserIdentity](ctx, s, apiKey.IdentityID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrInvalidKey
	}
	if err != nil {
		return nil, nil, err
	}
	return apiKey, owner, nil
}

// CombinedAuthMiddleware returns a middleware that authenticates via JWT or API key.
// Both are passed in the Authorization header as "Bearer <token>".
func CombinedAuthMiddleware(tokens *auth.Tokens, s *store.Store, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c)
		if err != nil {
			apperror.Respond(c, err)
			return
		}

		if !strings.HasPrefix(token, KeyPrefix) {
			claims, err := tokens.ValidateToken(token)
			if err != nil {
				apperror.Respond(c, apperror.ErrInvalidToken)
				return
			}
			auth.SetIdentity(c, claims.Identity())
			c.Next()
			return
		}

		ctx := c.Request.Context()
		apiKey, owner, err := ValidateAPIKey(ctx, s, token)
		if err != nil {
			if errors.Is(err, ErrInvalidKey) {
				apperror.Respond(c, apperror.ErrInvalidToken.WithMessage("Invalid API key"))
			} else {
				apperror.Respond(c, err)
			}
			return
		}

		now := time.Now()
		apiKey.LastUsedAt = &now
		if err := store.Save(ctx, s, apiKey); err != nil {
			logger.Warn("failed to record API key use", zap.Uint("api_key_id", apiKey.ID), zap.Error(err))
		}

		auth.SetIdentity(c, identity.Identity{
			ExternalID:  owner.ExternalID,
			Provider:    identity.Provider(owner.Provider),
			DisplayName: owner.DisplayName,
		})
		c.Next()
	}
}

// RegisterRoutes registers API key routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/api-keys", h.Create)
	rg.GET("/api-keys", h.List)
	rg.DELETE("/api-keys/:id", h.Delete)
}
