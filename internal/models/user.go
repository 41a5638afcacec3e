package models

import "time"

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type User struct {
	ID                  string        `json:"id"`
	Email               string        `json:"email" example:"user@example.com"` // User email
	FirstName           string        `json:"FirstName" example:"John"`         // User first name
	LastName            string        `json:"LastName" example:"Doe"`           // User last name
	PhoneNumber         string        `json:"PhoneNumber"`                      // User phone number
	Role                string        `json:"role"`
	PasswordHash        string        `json:"-"`
	Stats               StatsSnapshot `json:"stats"`
	StatsUpdatedAt      *time.Time    `json:"stats_updated_at,omitempty"`
	FailedLoginAttempts int           `json:"-"`
	LockedUntil         *time.Time    `json:"-"`
	LastLogin           *time.Time    `json:"last_login,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}
