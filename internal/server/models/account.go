// Package models defines server-side data models persisted in the database.
package models

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// IsAdministrator reports whether the role may manage payments and accounts.
func (r Role) IsAdministrator() bool {
	return r == RoleManager || r == RoleAdmin
}

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Account is a login identity. Active stays false until EmailVerified is
// set, unless an administrator reactivates the account.
type Account struct {
	ID            string
	UserName      string
	Email         string
	FirstName     string
	LastName      string
	Phone         string
	PasswordHash  []byte
	Active        bool
	EmailVerified bool
	Role          Role
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
