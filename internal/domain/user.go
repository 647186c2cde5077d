package domain

import "time"

// Role is the coarse privilege level carried by every identity.
type Role string

const (
	RoleUser    Role = "user"
	RoleSupport Role = "support"
	RoleAdmin   Role = "admin"
)

// ParseRole maps a raw role onto a known Role. Unknown or empty values fall
// back to RoleUser.
func ParseRole(raw string) Role {
	switch Role(raw) {
	case RoleSupport:
		return RoleSupport
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleSupport || r == RoleAdmin
}

// IsStaff reports whether the role sees every ticket.
func (r Role) IsStaff() bool {
	return r == RoleSupport || r == RoleAdmin
}

// User is the domain model for registered accounts.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
