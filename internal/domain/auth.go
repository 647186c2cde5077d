package domain

import "time"

// Identity is the authenticated caller as decoded from a bearer credential.
type Identity struct {
	SubjectID string
	Email     string
	Role      Role
}

// Credential is an issued bearer token.
type Credential struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IdentityOf builds the identity a credential for u would carry.
func IdentityOf(u *User) Identity {
	return Identity{SubjectID: u.ID, Email: u.Email, Role: ParseRole(string(u.Role))}
}
