package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Operation is the closed set of typed financial events a ledger entry can carry.
type Operation string

const (
	OpDeposit         Operation = "DEPOSIT"
	OpBalanceOverride Operation = "BALANCE_OVERRIDE"
	OpRefund          Operation = "REFUND"
	OpApproved        Operation = "APPROVED"
	OpReversed        Operation = "REVERSED"
	OpRejected        Operation = "REJECTED"
	OpPending         Operation = "PENDING"
	OpWithdrawal      Operation = "WITHDRAWAL"
)

// Known reports whether op is part of the closed operation set.
func (op Operation) Known() bool {
	switch op {
	case OpDeposit, OpBalanceOverride, OpRefund, OpApproved,
		OpReversed, OpRejected, OpPending, OpWithdrawal:
		return true
	}
	return false
}

// Entry status values. DELETED is the soft-delete state; the others are
// operation sub-states and orthogonal to deletion.
const (
	EntryStatusSuccess = "SUCCESS"
	EntryStatusPending = "PENDING"
	EntryStatusDeleted = "DELETED"
)

// History actions recorded per entry mutation.
const (
	HistoryCreated  = "created"
	HistoryUpdated  = "updated"
	HistoryDeleted  = "deleted"
	HistoryRestored = "restored"
)

// ChangeRecord is one row of an entry's mutation history. ChangedFields holds
// the prior values of the fields the mutation touched.
type ChangeRecord struct {
	Version       int            `json:"version"`
	Action        string         `json:"action"`
	ChangedFields map[string]any `json:"changed_fields,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Actor         string         `json:"actor"`
}

// History is the append-only change log of a ledger entry, stored as JSONB.
// Invariant: len(History) == Version at all times.
type History []ChangeRecord

// Value implements driver.Valuer for History
func (h History) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner for History
func (h *History) Scan(value any) error {
	if value == nil {
		*h = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, h)
}

// LastDeleted returns the most recent "deleted" record, or nil if the entry
// was never deleted. Restore uses it to recover the pre-delete status.
func (h History) LastDeleted() *ChangeRecord {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Action == HistoryDeleted {
			return &h[i]
		}
	}
	return nil
}

// LedgerEntry is one typed financial event belonging to a card and user.
// Amounts are stored in minor units and are always non-negative; direction
// is implied by Operation.
type LedgerEntry struct {
	ID               string     `json:"id" db:"id"`
	UserID           string     `json:"user_id" db:"user_id"`
	CardID           string     `json:"card_id" db:"card_id"`
	Operation        Operation  `json:"operation" db:"operation"`
	Amount           int64      `json:"amount" db:"amount"` // in cents
	Status           string     `json:"status" db:"status"`
	IsDeleted        bool       `json:"is_deleted" db:"is_deleted"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	Version          int        `json:"version" db:"version"` // for optimistic locking
	History          History    `json:"history" db:"history"`
	Reconciled       bool       `json:"reconciled" db:"reconciled"`
	ReconciliationID *string    `json:"reconciliation_id,omitempty" db:"reconciliation_id"`
	Supplier         string     `json:"supplier,omitempty" db:"supplier"`
	SupplierRef      string     `json:"supplier_ref,omitempty" db:"supplier_ref"`
	Description      string     `json:"description,omitempty" db:"description"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}
