package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/loopcard/backend/internal/apperr"
	"github.com/loopcard/backend/internal/models"
)

const consolidationColumns = `id, user_id, card_id, version, base_consolidation_id, is_latest,
		member_entry_ids, new_entry_ids, summary, previous_summary, name, notes, archived,
		created_at, created_by`

type PostgresConsolidationStore struct {
	db *sql.DB
}

func NewPostgresConsolidationStore(db *sql.DB) *PostgresConsolidationStore {
	return &PostgresConsolidationStore{db: db}
}

func (s *PostgresConsolidationStore) Latest(ctx context.Context, userID, cardID string) (*models.Consolidation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+consolidationColumns+`
		FROM consolidations
		WHERE user_id = $1 AND card_id = $2 AND is_latest = TRUE`, userID, cardID)

	c, err := scanConsolidation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "store.consolidation.latest", cardID, "no consolidation for pair")
		}
		return nil, apperr.Wrap(apperr.KindUpstream, "store.consolidation.latest", cardID, err)
	}
	return c, nil
}

func (s *PostgresConsolidationStore) Get(ctx context.Context, id string) (*models.Consolidation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+consolidationColumns+`
		FROM consolidations
		WHERE id = $1`, id)

	c, err := scanConsolidation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "store.consolidation.get", id, "consolidation not found")
		}
		return nil, apperr.Wrap(apperr.KindUpstream, "store.consolidation.get", id, err)
	}
	return c, nil
}

// Append persists the new chain head, retires the old one and stamps
// membership onto the delta entries in a single transaction. The flip is
// guarded by the base's version so two appends racing on the same base cannot
// both land: the loser sees zero rows flipped (or a unique violation on the
// single-latest index for version 1) and gets a Conflict back.
func (s *PostgresConsolidationStore) Append(ctx context.Context, c *models.Consolidation, base *models.Consolidation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "store.consolidation.append", c.ID, err)
	}
	defer tx.Rollback()

	if base != nil {
		result, err := tx.ExecContext(ctx, `
			UPDATE consolidations
			SET is_latest = FALSE
			WHERE id = $1 AND is_latest = TRUE AND version = $2`,
			base.ID, base.Version)
		if err != nil {
			return apperr.Wrap(apperr.KindUpstream, "store.consolidation.append", c.ID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return apperr.Wrap(apperr.KindUpstream, "store.consolidation.append", c.ID, err)
		}
		if n == 0 {
			return apperr.New(apperr.KindConflict, "store.consolidation.append", base.ID,
				"base consolidation is no longer latest")
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO consolidations (`+consolidationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		c.ID, c.UserID, c.CardID, c.Version, c.BaseConsolidationID, c.IsLatest,
		pq.Array(c.MemberEntryIDs), pq.Array(c.NewEntryIDs), c.Summary, c.PreviousSummary,
		c.Name, c.Notes, c.Archived, c.CreatedAt, c.CreatedBy)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return apperr.New(apperr.KindConflict, "store.consolidation.append", c.ID,
				"another consolidation won the latest flip")
		}
		return apperr.Wrap(apperr.KindUpstream, "store.consolidation.append", c.ID, err)
	}

	if err := markReconciledTx(ctx, tx, c.NewEntryIDs, c.ID, time.Now()); err != nil {
		return apperr.Wrap(apperr.KindUpstream, "store.consolidation.append", c.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindUpstream, "store.consolidation.append", c.ID, err)
	}
	return nil
}

func (s *PostgresConsolidationStore) ListChain(ctx context.Context, userID, cardID string) ([]models.Consolidation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+consolidationColumns+`
		FROM consolidations
		WHERE user_id = $1 AND card_id = $2
		ORDER BY version ASC`, userID, cardID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "store.consolidation.chain", cardID, err)
	}
	defer rows.Close()

	var chain []models.Consolidation
	for rows.Next() {
		c, err := scanConsolidation(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUpstream, "store.consolidation.chain", cardID, err)
		}
		chain = append(chain, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "store.consolidation.chain", cardID, err)
	}
	return chain, nil
}

func (s *PostgresConsolidationStore) PurgeChain(ctx context.Context, userID, cardID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUpstream, "store.consolidation.purge", cardID, err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM consolidations WHERE user_id = $1 AND card_id = $2`, userID, cardID)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUpstream, "store.consolidation.purge", cardID, err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUpstream, "store.consolidation.purge", cardID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET reconciled = FALSE, reconciliation_id = NULL, updated_at = $1
		WHERE user_id = $2 AND card_id = $3 AND reconciled = TRUE`,
		time.Now(), userID, cardID)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUpstream, "store.consolidation.purge", cardID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.Wrap(apperr.KindUpstream, "store.consolidation.purge", cardID, err)
	}
	return removed, nil
}

func scanConsolidation(row rowScanner) (*models.Consolidation, error) {
	var c models.Consolidation
	var members, fresh pq.StringArray
	err := row.Scan(&c.ID, &c.UserID, &c.CardID, &c.Version, &c.BaseConsolidationID,
		&c.IsLatest, &members, &fresh, &c.Summary, &c.PreviousSummary,
		&c.Name, &c.Notes, &c.Archived, &c.CreatedAt, &c.CreatedBy)
	if err != nil {
		return nil, err
	}
	c.MemberEntryIDs = []string(members)
	c.NewEntryIDs = []string(fresh)
	return &c, nil
}
