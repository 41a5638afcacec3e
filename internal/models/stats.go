package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// StatsSnapshot holds the derived running balances for a card or user.
// It is never authoritative: it is rebuilt from ledger entries and written
// last-write-wins onto the owning record. All amounts are in cents.
type StatsSnapshot struct {
	MoneyIn             int64 `json:"money_in" db:"money_in"`
	Refund              int64 `json:"refund" db:"refund"`
	Posted              int64 `json:"posted" db:"posted"`
	Reversed            int64 `json:"reversed" db:"reversed"`
	Rejected            int64 `json:"rejected" db:"rejected"`
	Pending             int64 `json:"pending" db:"pending"`
	Withdrawal          int64 `json:"withdrawal" db:"withdrawal"`
	Available           int64 `json:"available" db:"available"`
	TotalAllEntries     int64 `json:"total_all_entries" db:"total_all_entries"`
	TotalDeletedEntries int64 `json:"total_deleted_entries" db:"total_deleted_entries"`
	DeletedAmount       int64 `json:"deleted_amount" db:"deleted_amount"`
}

// ComputeAvailable derives the available balance from the financial buckets.
// Reversed and rejected are informational and do not participate.
func (s *StatsSnapshot) ComputeAvailable() {
	s.Available = s.MoneyIn + s.Refund - s.Posted - s.Pending - s.Withdrawal
}

// Add returns the bucket-wise sum of two snapshots, with Available recomputed
// from the summed buckets rather than added.
func (s StatsSnapshot) Add(o StatsSnapshot) StatsSnapshot {
	out := StatsSnapshot{
		MoneyIn:             s.MoneyIn + o.MoneyIn,
		Refund:              s.Refund + o.Refund,
		Posted:              s.Posted + o.Posted,
		Reversed:            s.Reversed + o.Reversed,
		Rejected:            s.Rejected + o.Rejected,
		Pending:             s.Pending + o.Pending,
		Withdrawal:          s.Withdrawal + o.Withdrawal,
		TotalAllEntries:     s.TotalAllEntries + o.TotalAllEntries,
		TotalDeletedEntries: s.TotalDeletedEntries + o.TotalDeletedEntries,
		DeletedAmount:       s.DeletedAmount + o.DeletedAmount,
	}
	out.ComputeAvailable()
	return out
}

// Value implements driver.Valuer for StatsSnapshot (stored as JSONB)
func (s StatsSnapshot) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for StatsSnapshot
func (s *StatsSnapshot) Scan(value any) error {
	if value == nil {
		*s = StatsSnapshot{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, s)
}
