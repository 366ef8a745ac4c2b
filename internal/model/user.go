package model

import "time"

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// Roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// ValidRole reports whether role is one the schema accepts.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
