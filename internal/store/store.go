// Package store defines the persistence contracts consumed by the services
// and their Postgres and in-memory implementations.
package store

import (
	"context"

	"github.com/loopcard/backend/internal/models"
)

// LedgerStore is the mutable log of ledger entries. Edits, soft deletes and
// restores happen in place guarded by the entry version; callers never see a
// torn entry.
type LedgerStore interface {
	Insert(ctx context.Context, e *models.LedgerEntry) error
	FindByID(ctx context.Context, id string) (*models.LedgerEntry, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.LedgerEntry, error)
	// FindByCard returns entries for a card in creation order. With
	// includeDeleted set it returns soft-deleted entries too, which the
	// aggregator needs for its audit counters.
	FindByCard(ctx context.Context, cardID string, includeDeleted bool) ([]models.LedgerEntry, error)
	FindByUser(ctx context.Context, userID string, includeDeleted bool) ([]models.LedgerEntry, error)
	// Update writes the whole entry back, guarded by expectedVersion.
	// A lost race returns a Conflict error.
	Update(ctx context.Context, e *models.LedgerEntry, expectedVersion int) error
	// ExistsSupplierRef reports whether a provider record was already imported.
	ExistsSupplierRef(ctx context.Context, supplier, ref string) (bool, error)
}

// CardStore persists card records and their derived stats snapshots.
type CardStore interface {
	Insert(ctx context.Context, c *models.Card) error
	Get(ctx context.Context, id string) (*models.Card, error)
	ListIDs(ctx context.Context) ([]string, error)
	ListIDsBySupplier(ctx context.Context, supplier string) ([]string, error)
	WriteStats(ctx context.Context, id string, stats models.StatsSnapshot) error
	SetStatus(ctx context.Context, id, status string) error
}

// UserStore persists users and their coarse per-user stats snapshots.
type UserStore interface {
	Insert(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	WriteStats(ctx context.Context, id string, stats models.StatsSnapshot) error
}

// ConsolidationStore persists the append-only reconciliation chain.
type ConsolidationStore interface {
	// Latest returns the single is_latest consolidation for the pair, or a
	// NotFound error when the chain is empty.
	Latest(ctx context.Context, userID, cardID string) (*models.Consolidation, error)
	Get(ctx context.Context, id string) (*models.Consolidation, error)
	// Append persists c with is_latest=true, flips base's is_latest off and
	// stamps membership onto c.NewEntryIDs, all in one transaction. base is
	// nil for the first version of a chain. A concurrent append racing on the
	// same base returns a Conflict error and writes nothing.
	Append(ctx context.Context, c *models.Consolidation, base *models.Consolidation) error
	// ListChain returns all versions for the pair ordered by version ascending.
	ListChain(ctx context.Context, userID, cardID string) ([]models.Consolidation, error)
	// PurgeChain removes every consolidation for the pair and resets the
	// reconciled flags on all affected entries. Returns the number of
	// consolidations removed.
	PurgeChain(ctx context.Context, userID, cardID string) (int64, error)
}
