package models

import "time"

// Card represents a managed payment card
type Card struct {
	ID             string        `json:"id" db:"id"`
	UserID         string        `json:"user_id" db:"user_id"`
	Label          string        `json:"label" db:"label"`
	Supplier       string        `json:"supplier" db:"supplier"`
	Currency       string        `json:"currency" db:"currency"`
	Status         string        `json:"status" db:"status"`
	Stats          StatsSnapshot `json:"stats" db:"stats"`
	StatsUpdatedAt *time.Time    `json:"stats_updated_at,omitempty" db:"stats_updated_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// CardStatus represents card status
const (
	CardStatusActive    = "active"
	CardStatusInactive  = "inactive"
	CardStatusSuspended = "suspended"
	CardStatusClosed    = "closed"
)

// CardIssueRequest represents new card issuance
type CardIssueRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Label    string `json:"label" validate:"required,max=100"`
	Supplier string `json:"supplier" validate:"max=50"`
	Currency string `json:"currency" validate:"required,len=3"`
}
