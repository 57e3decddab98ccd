// Package identity describes an authenticated caller as reported by a login
// provider.
package identity

import (
	"errors"
	"strings"
)

// Provider is the kind of external account an identity comes from.
type Provider string

const (
	// ProviderGoogle identities are keyed by the OpenID subject claim.
	ProviderGoogle Provider = "google"
	// ProviderGitHub identities are keyed by the login handle.
	ProviderGitHub Provider = "github"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid identity")

// Identity is the caller as established by authentication.
type Identity struct {
	ExternalID  string   `json:"external_id"`
	Provider    Provider `json:"provider"`
	DisplayName string   `json:"display_name"`
}

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderGitHub
}

// Validate checks that the identity can be used as a tree owner.
func (id Identity) Validate() error {
	if !id.Provider.Valid() {
		return errors.Join(ErrInvalid, errors.New("unknown provider "+string(id.Provider)))
	}
	if strings.TrimSpace(id.ExternalID) == "" {
		return errors.Join(ErrInvalid, errors.New("missing external id"))
	}
	return nil
}
