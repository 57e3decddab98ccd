// Package oauth implements the Google and GitHub login flows. A successful
// callback resolves (or lazily creates) the caller's tree and returns a
// session token.
package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/familyships/familyships/pkg/familyships/apperror"
	"github.com/familyships/familyships/pkg/familyships/auth"
	"github.com/familyships/familyships/pkg/familyships/identity"
	"github.com/familyships/familyships/pkg/familyships/ownership"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const stateCookie = "familyships_oauth_state"

// Config holds the client credentials of the login providers. A provider
// without a client id is disabled.
type Config struct {
	BaseURL            string
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string
}

// Handler handles login requests
type Handler struct {
	baseURL   string
	gate      *ownership.Gate
	tokens    *auth.Tokens
	logger    *zap.Logger
	providers map[identity.Provider]provider
}

// StateData is carried through the provider in the state parameter
type StateData struct {
	Provider  identity.Provider `json:"provider"`
	ReturnURL string            `json:"return_url"`
	Nonce     string            `json:"nonce"`
}

// NewHandler creates a new login handler
func NewHandler(cfg Config, gate *ownership.Gate, tokens *auth.Tokens, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		gate:      gate,
		tokens:    tokens,
		logger:    logger,
		providers: make(map[identity.Provider]provider),
	}
	if cfg.GoogleClientID != "" {
		h.providers[identity.ProviderGoogle] = newGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret,
			callbackURL(h.baseURL, identity.ProviderGoogle))
	}
	if cfg.GitHubClientID != "" {
		h.providers[identity.ProviderGitHub] = newGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret,
			callbackURL(h.baseURL, identity.ProviderGitHub))
	}
	return h
}

func callbackURL(baseURL string, p identity.Provider) string {
	return baseURL + "/api/auth/" + string(p) + "/callback"
}

func generateRandomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// parseReturnURL accepts empty, site-relative and same-site URLs only.
// Backslashes and control characters are refused outright because browsers
// rewrite "/\host" into the protocol-relative "//host".
func (h *Handler) parseReturnURL(raw string) (*url.URL, bool) {
	if raw == "" {
		return nil, true
	}
	for _, r := range raw {
		if r == '\\' || r < 0x20 || r == 0x7f {
			return nil, false
		}
	}
	u, err := url.Parse(raw)
	if err != nil || u.User != nil {
		return nil, false
	}
	if u.Scheme == "" && u.Host == "" {
		return u, strings.HasPrefix(u.Path, "/") && !strings.HasPrefix(raw, "//")
	}
	base, err := url.Parse(h.baseURL)
	if err != nil || h.baseURL == "" {
		return nil, false
	}
	return u, strings.EqualFold(u.Scheme, base.Scheme) && strings.EqualFold(u.Host, base.Host)
}

// withToken appends the session token to the return URL's query.
func withToken(u *url.URL, token string) string {
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// ListProviders returns the enabled login providers (public endpoint)
func (h *Handler) ListProviders(c *gin.Context) {
	names := make([]string, 0, len(h.providers))
	for p := range h.providers {
		names = append(names, string(p))
	}
	sort.Strings(names)
	c.JSON(http.StatusOK, gin.H{"providers": names})
}

func (h *Handler) provider(c *gin.Context) (identity.Provider, provider, bool) {
	kind := identity.Provider(c.Param("provider"))
	p, ok := h.providers[kind]
	if !ok {
		apperror.Respond(c, apperror.ErrNotFound.WithMessage("Provider not found"))
		return "", nil, false
	}
	return kind, p, true
}

// Login returns the provider's authorization URL
func (h *Handler) Login(c *gin.Context) {
	kind, p, ok := h.provider(c)
	if !ok {
		return
	}

	returnURL := c.Query("return_url")
	if _, ok := h.parseReturnURL(returnURL); !ok {
		apperror.Respond(c, apperror.ErrBadRequest.WithMessage("Invalid return URL"))
		return
	}

	nonce, err := generateRandomString(32)
	if err != nil {
		apperror.Respond(c, apperror.ErrInternal.WithInternal(err))
		return
	}

	stateData := StateData{
		Provider:  kind,
		ReturnURL: returnURL,
		Nonce:     nonce,
	}
	stateJSON, _ := json.Marshal(stateData)
	state := base64.URLEncoding.EncodeToString(stateJSON)

	authURL := p.AuthCodeURL(state, stateData.Nonce)
	if authURL == "" {
		apperror.Respond(c, apperror.ErrUnavailable.WithMessage("Login provider unavailable"))
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, stateData.Nonce, 600, "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, gin.H{"auth_url": authURL})
}

// Callback completes the login, provisioning the caller's tree on first use
func (h *Handler) Callback(c *gin.Context) {
	kind, p, ok := h.provider(c)
	if !ok {
		return
	}

	stateJSON, err := base64.URLEncoding.DecodeString(c.Query("state"))
	if err != nil {
		apperror.Respond(c, apperror.ErrBadRequest.WithMessage("Invalid state"))
		return
	}
	var stateData StateData
	if err := json.Unmarshal(stateJSON, &stateData); err != nil || stateData.Provider != kind {
		apperror.Respond(c, apperror.ErrBadRequest.WithMessage("Invalid state"))
		return
	}
	returnURL, ok := h.parseReturnURL(stateData.ReturnURL)
	if !ok {
		apperror.Respond(c, apperror.ErrBadRequest.WithMessage("Invalid state"))
		return
	}
	nonce, err := c.Cookie(stateCookie)
	if err != nil || nonce != stateData.Nonce {
		apperror.Respond(c, apperror.ErrBadRequest.WithMessage("Invalid state"))
		return
	}

	code := c.Query("code")
	if code == "" {
		errorDesc := c.Query("error_description")
		if errorDesc == "" {
			errorDesc = c.Query("error")
		}
		apperror.Respond(c, apperror.ErrUnauthorized.WithMessage("Authentication failed: "+errorDesc))
		return
	}

	ctx := c.Request.Context()
	id, err := p.Exchange(ctx, code, stateData.Nonce)
	if err != nil {
		h.logger.Warn("login exchange failed", zap.String("provider", string(kind)), zap.Error(err))
		if errors.Is(err, ErrProviderUnavailable) {
			apperror.Respond(c, apperror.ErrUnavailable.WithMessage("Login provider unavailable").WithInternal(err))
			return
		}
		apperror.Respond(c, apperror.ErrUnauthorized.WithMessage("Authentication failed").WithInternal(err))
		return
	}

	tree, err := h.gate.ResolveTree(ctx, id)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	token, err := h.tokens.GenerateToken(id)
	if err != nil {
		apperror.Respond(c, apperror.ErrInternal.WithInternal(err))
		return
	}

	c.SetCookie(stateCookie, "", -1, "/", "", c.Request.TLS != nil, true)

	if returnURL != nil {
		c.Redirect(http.StatusFound, withToken(returnURL, token))
		return
	}

	c.JSON(http.StatusOK, auth.AuthResponse{
		Token: token,
		User: auth.UserResponse{
			Name:       id.DisplayName,
			Provider:   string(id.Provider),
			ExternalID: id.ExternalID,
			TreeID:     tree.ID,
		},
	})
}

// RegisterRoutes registers the public login routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/providers", h.ListProviders)
	rg.GET("/:provider/login", h.Login)
	rg.GET("/:provider/callback", h.Callback)
}
