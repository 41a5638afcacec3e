package models

import "time"

// Consolidation is one immutable link in the reconciliation audit chain for a
// (user, card) pair. Once persisted its fields are never mutated; each new
// version extends the previous one's membership and flips the IsLatest head.
type Consolidation struct {
	ID                  string        `json:"id" db:"id"`
	UserID              string        `json:"user_id" db:"user_id"`
	CardID              string        `json:"card_id" db:"card_id"`
	Version             int           `json:"version" db:"version"`
	BaseConsolidationID *string       `json:"base_consolidation_id,omitempty" db:"base_consolidation_id"`
	IsLatest            bool          `json:"is_latest" db:"is_latest"`
	MemberEntryIDs      []string      `json:"member_entry_ids" db:"member_entry_ids"`
	NewEntryIDs         []string      `json:"new_entry_ids" db:"new_entry_ids"`
	Summary             StatsSnapshot `json:"summary" db:"summary"`
	PreviousSummary     StatsSnapshot `json:"previous_summary" db:"previous_summary"`
	Name                string        `json:"name" db:"name"`
	Notes               string        `json:"notes,omitempty" db:"notes"`
	Archived            bool          `json:"archived" db:"archived"`
	CreatedAt           time.Time     `json:"created_at" db:"created_at"`
	CreatedBy           string        `json:"created_by" db:"created_by"`
}

// HasMember reports whether entryID is already part of this consolidation.
func (c *Consolidation) HasMember(entryID string) bool {
	for _, id := range c.MemberEntryIDs {
		if id == entryID {
			return true
		}
	}
	return false
}
