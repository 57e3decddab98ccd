package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/familyships/familyships/pkg/familyships/identity"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	googleIssuer     = "https://accounts.google.com"
	githubAPIBaseURL = "https://api.github.com"
)

var (
	ErrProviderUnavailable = errors.New("login provider unavailable")
	ErrExchangeFailed      = errors.New("login exchange failed")
)

// provider performs one kind of login.
type provider interface {
	AuthCodeURL(state, nonce string) string
	Exchange(ctx context.Context, code, nonce string) (identity.Identity, error)
}

// googleProvider logs in with OpenID Connect. Discovery happens on first
// use and is retried until it succeeds.
type googleProvider struct {
	clientID     string
	clientSecret string
	redirectURL  string
	issuer       string

	mu       sync.Mutex
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func newGoogleProvider(clientID, clientSecret, redirectURL string) *googleProvider {
	return &googleProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		issuer:       googleIssuer,
	}
}

func (p *googleProvider) init(ctx context.Context) (*oauth2.Config, *oidc.IDTokenVerifier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config != nil {
		return p.config, p.verifier, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	discovered, err := oidc.NewProvider(ctx, p.issuer)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	p.config = &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		Endpoint:     discovered.Endpoint(),
		RedirectURL:  p.redirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile"},
	}
	p.verifier = discovered.Verifier(&oidc.Config{ClientID: p.clientID})
	return p.config, p.verifier, nil
}

func (p *googleProvider) AuthCodeURL(state, nonce string) string {
	config, _, err := p.init(context.Background())
	if err != nil {
		return ""
	}
	return config.AuthCodeURL(state, oidc.Nonce(nonce))
}

func (p *googleProvider) Exchange(ctx context.Context, code, nonce string) (identity.Identity, error) {
	config, verifier, err := p.init(ctx)
	if err != nil {
		return identity.Identity{}, err
	}

	oauth2Token, err := config.Exchange(ctx, code)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return identity.Identity{}, fmt.Errorf("%w: no ID token in response", ErrExchangeFailed)
	}

	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if idToken.Nonce != nonce {
		return identity.Identity{}, fmt.Errorf("%w: nonce mismatch", ErrExchangeFailed)
	}

	var claims struct {
		GivenName string `json:"given_name"`
		Name      string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	name := claims.GivenName
	if name == "" {
		name = claims.Name
	}
	return identity.Identity{
		ExternalID:  idToken.Subject,
		Provider:    identity.ProviderGoogle,
		DisplayName: name,
	}, nil
}

// githubProvider logs in with OAuth2 and reads the profile from the REST API.
type githubProvider struct {
	config  oauth2.Config
	apiBase string
}

func newGitHubProvider(clientID, clientSecret, redirectURL string) *githubProvider {
	return &githubProvider{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     github.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user"},
		},
		apiBase: githubAPIBaseURL,
	}
}

func (p *githubProvider) AuthCodeURL(state, _ string) string {
	return p.config.AuthCodeURL(state)
}

func (p *githubProvider) Exchange(ctx context.Context, code, _ string) (identity.Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(p.apiBase, "/")+"/user", nil)
	if err != nil {
		return identity.Identity{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return identity.Identity{}, fmt.Errorf("%w: user lookup returned %d", ErrExchangeFailed, resp.StatusCode)
	}

	var user struct {
		Login string `json:"login"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if user.Login == "" {
		return identity.Identity{}, fmt.Errorf("%w: no login in profile", ErrExchangeFailed)
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	return identity.Identity{
		ExternalID:  user.Login,
		Provider:    identity.ProviderGitHub,
		DisplayName: name,
	}, nil
}
