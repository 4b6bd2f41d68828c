package domain

import "time"

// Role is the marketplace role a user acts under.
type Role string

const (
	RoleClient     Role = "CLIENT"
	RoleFreelancer Role = "FREELANCER"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleFreelancer, RoleSuperAdmin:
		return true
	}
	return false
}

// UserStatus represents lifecycle states for a user. DELETED is terminal.
type UserStatus string

const (
	UserStatusActive  UserStatus = "ACTIVE"
	UserStatusBanned  UserStatus = "BANNED"
	UserStatusDeleted UserStatus = "DELETED"
)

// RegistrationType records how an account came to exist.
type RegistrationType string

const (
	RegistrationSelf  RegistrationType = "self"
	RegistrationAdmin RegistrationType = "admin"
)

// User is a directory entry. ExternalID links it to the identity provider.
type User struct {
	ID               string
	ExternalID       string
	Role             Role
	Status           UserStatus
	Name             string
	Email            string
	PhoneNumber      string
	PhotoID          *string
	RegistrationType RegistrationType
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
