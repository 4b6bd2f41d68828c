package domain

import "time"

// Actor is the verified caller of an operation. It is only built by the
// authentication boundary, after the directory confirmed role and status.
type Actor struct {
	UserID    string
	Role      Role
	Status    UserStatus
	SessionID string
}

// Is reports whether the actor is the given user.
func (a Actor) Is(userID string) bool {
	return a.UserID != "" && a.UserID == userID
}

// IsAdmin reports whether the actor holds the super-admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleSuperAdmin
}

// Tokens is the credential pair handed out by the identity provider.
type Tokens struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
}

// VerifiedIdentity is what the identity provider vouches for after token validation.
type VerifiedIdentity struct {
	ExternalID string
	SessionID  string
	Email      string
}

// IdentityProfile is the payload used to provision a provider-side identity.
type IdentityProfile struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      Role
}
