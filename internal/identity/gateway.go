// Package identity talks to the external identity provider. The rest of the
// service only sees the Gateway interface.
package identity

import (
	"context"
	"errors"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

var (
	// ErrInvalidToken is returned for malformed, expired or foreign tokens.
	ErrInvalidToken = errors.New("identity: invalid token")
	// ErrInvalidCredentials is returned when a password or refresh grant is refused.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrIdentityExists is returned when the provider already holds the username.
	ErrIdentityExists = errors.New("identity: identity already exists")
	// ErrIdentityNotFound is returned when an update targets an unknown identity.
	ErrIdentityNotFound = errors.New("identity: identity not found")
)

// Gateway is the contract with the identity provider. Failures other than the
// sentinel errors above are provider outages.
type Gateway interface {
	VerifyToken(ctx context.Context, token string) (domain.VerifiedIdentity, error)
	Authenticate(ctx context.Context, username, password string) (domain.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (domain.Tokens, error)
	CreateIdentity(ctx context.Context, profile domain.IdentityProfile) (string, error)
	// UpdateIdentity rewrites username, email and names. An empty password
	// leaves the credential untouched.
	UpdateIdentity(ctx context.Context, externalID string, profile domain.IdentityProfile) error
	DeleteIdentity(ctx context.Context, externalID string) error
}
