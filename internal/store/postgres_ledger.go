package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/loopcard/backend/internal/apperr"
	"github.com/loopcard/backend/internal/models"
)

const ledgerColumns = `id, user_id, card_id, operation, amount, status, is_deleted, deleted_at,
		version, history, reconciled, reconciliation_id, supplier, supplier_ref, description,
		created_at, updated_at`

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

func (s *PostgresLedgerStore) Insert(ctx context.Context, e *models.LedgerEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+ledgerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		e.ID, e.UserID, e.CardID, string(e.Operation), e.Amount, e.Status, e.IsDeleted, e.DeletedAt,
		e.Version, e.History, e.Reconciled, e.ReconciliationID, e.Supplier, e.SupplierRef, e.Description,
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "store.ledger.insert", e.ID, err)
	}
	return nil
}

func (s *PostgresLedgerStore) FindByID(ctx context.Context, id string) (*models.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE id = $1`, id)

	e, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "store.ledger.find", id, "ledger entry not found")
		}
		return nil, apperr.Wrap(apperr.KindUpstream, "store.ledger.find", id, err)
	}
	return e, nil
}

func (s *PostgresLedgerStore) FindByIDs(ctx context.Context, ids []string) ([]models.LedgerEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE id = ANY($1)
		ORDER BY created_at, id`, pq.Array(ids))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "store.ledger.find_ids", "", err)
	}
	defer rows.Close()
	return collectLedgerEntries(rows)
}

func (s *PostgresLedgerStore) FindByCard(ctx context.Context, cardID string, includeDeleted bool) ([]models.LedgerEntry, error) {
	return s.findByOwner(ctx, "card_id", cardID, includeDeleted)
}

func (s *PostgresLedgerStore) FindByUser(ctx context.Context, userID string, includeDeleted bool) ([]models.LedgerEntry, error) {
	return s.findByOwner(ctx, "user_id", userID, includeDeleted)
}

func (s *PostgresLedgerStore) findByOwner(ctx context.Context, column, ownerID string, includeDeleted bool) ([]models.LedgerEntry, error) {
	query := fmt.Sprintf(`
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE %s = $1`, column)
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "store.ledger.find_owner", ownerID, err)
	}
	defer rows.Close()
	return collectLedgerEntries(rows)
}

// Update writes the whole entry back guarded by the version the caller read.
// The version check at write time is what makes restore-from-history safe: if
// the read was stale the update matches zero rows and the caller must retry.
func (s *PostgresLedgerStore) Update(ctx context.Context, e *models.LedgerEntry, expectedVersion int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE ledger_entries
		SET operation = $1, amount = $2, status = $3, is_deleted = $4, deleted_at = $5,
			version = $6, history = $7, reconciled = $8, reconciliation_id = $9,
			description = $10, updated_at = $11
		WHERE id = $12 AND version = $13`,
		string(e.Operation), e.Amount, e.Status, e.IsDeleted, e.DeletedAt,
		e.Version, e.History, e.Reconciled, e.ReconciliationID,
		e.Description, e.UpdatedAt, e.ID, expectedVersion)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "store.ledger.update", e.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "store.ledger.update", e.ID, err)
	}
	if rowsAffected == 0 {
		return apperr.Newf(apperr.KindConflict, "store.ledger.update", e.ID,
			"optimistic lock failed at version %d", expectedVersion)
	}
	return nil
}

func (s *PostgresLedgerStore) ExistsSupplierRef(ctx context.Context, supplier, ref string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE supplier = $1 AND supplier_ref = $2)`,
		supplier, ref).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.KindUpstream, "store.ledger.supplier_ref", ref, err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedgerEntry(row rowScanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var operation string
	var deletedAt, updatedAt sql.NullTime
	err := row.Scan(&e.ID, &e.UserID, &e.CardID, &operation, &e.Amount, &e.Status,
		&e.IsDeleted, &deletedAt, &e.Version, &e.History, &e.Reconciled,
		&e.ReconciliationID, &e.Supplier, &e.SupplierRef, &e.Description,
		&e.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	e.Operation = models.Operation(operation)
	if deletedAt.Valid {
		t := deletedAt.Time
		e.DeletedAt = &t
	}
	if updatedAt.Valid {
		e.UpdatedAt = updatedAt.Time
	}
	return &e, nil
}

func collectLedgerEntries(rows *sql.Rows) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUpstream, "store.ledger.scan", "", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "store.ledger.scan", "", err)
	}
	return entries, nil
}

// markReconciledTx stamps membership onto the delta entries inside the
// consolidation append transaction.
func markReconciledTx(ctx context.Context, tx *sql.Tx, ids []string, consolidationID string, now time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET reconciled = TRUE, reconciliation_id = $1, updated_at = $2
		WHERE id = ANY($3)`,
		consolidationID, now, pq.Array(ids))
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n != int64(len(ids)) {
		return fmt.Errorf("stamped %d of %d entries", n, len(ids))
	}
	return nil
}
