package models

import (
	"time"
)

type Role string

const (
	RoleUser       Role = "USER"
	RoleHR         Role = "HR"
	RoleManager    Role = "MANAGER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// Roles lists every known role in table order.
var Roles = []Role{RoleUser, RoleHR, RoleManager, RoleAdmin, RoleSuperAdmin}

// Authority strings granted through roles.
const (
	AuthorityRead   = "read"
	AuthorityUpdate = "update"
	AuthorityCreate = "create"
	AuthorityDelete = "delete"
)

// Identity is the account record of a portal user.
type Identity struct {
	ID                   int64      `json:"id"`
	UserID               string     `json:"userId"`
	FirstName            string     `json:"firstName"`
	LastName             string     `json:"lastName"`
	Username             string     `json:"username"`
	Email                string     `json:"email"`
	PasswordHash         string     `json:"-"`
	Role                 Role       `json:"role"`
	Authorities          []string   `json:"authorities"`
	IsActive             bool       `json:"active"`
	IsLocked             bool       `json:"locked"`
	JoinDate             time.Time  `json:"joinDate"`
	LastLoginDate        *time.Time `json:"lastLoginDate"`
	LastLoginDateDisplay *time.Time `json:"lastLoginDateDisplay"`
}

// Profile carries the caller-supplied fields of an identity.
type Profile struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
}

// AccountChanges describes an administrative create or update.
type AccountChanges struct {
	Profile
	Role     Role
	IsActive bool
	IsLocked bool
}

// Claims is the decoded content of a validated token.
type Claims struct {
	Subject     string    `json:"sub"`
	Authorities []string  `json:"authorities"`
	IssuedAt    time.Time `json:"iat"`
	ExpiresAt   time.Time `json:"exp"`
}

// HasAuthority reports whether the claims grant authority.
func (c *Claims) HasAuthority(authority string) bool {
	for _, a := range c.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}
