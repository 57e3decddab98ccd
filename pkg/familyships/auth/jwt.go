package auth

import (
	"errors"
	"time"

	"github.com/familyships/familyships/pkg/familyships/identity"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const issuer = "familyships"

// DefaultTokenTTL is used when no TTL is configured.
const DefaultTokenTTL = 24 * time.Hour

// Claims represents the JWT claims
type Claims struct {
	Provider   string `json:"provider"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	jwt.RegisteredClaims
}

// Identity returns the caller described by the claims.
func (c *Claims) Identity() identity.Identity {
	return identity.Identity{
		ExternalID:  c.ExternalID,
		Provider:    identity.Provider(c.Provider),
		DisplayName: c.Name,
	}
}

// Tokens issues and validates session tokens signed with one secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

// NewTokens creates a token issuer.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

// GenerateToken creates a new JWT token for an identity
func (t *Tokens) GenerateToken(id identity.Identity) (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	now := time.Now()
	claims := &Claims{
		Provider:   string(id.Provider),
		ExternalID: id.ExternalID,
		Name:       id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id.Provider) + ":" + id.ExternalID,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (t *Tokens) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if err := claims.Identity().Validate(); err != nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
