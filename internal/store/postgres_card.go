package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/loopcard/backend/internal/apperr"
	"github.com/loopcard/backend/internal/models"
)

type PostgresCardStore struct {
	db *sql.DB
}

func NewPostgresCardStore(db *sql.DB) *PostgresCardStore {
	return &PostgresCardStore{db: db}
}

func (s *PostgresCardStore) Insert(ctx context.Context, c *models.Card) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cards (id, user_id, label, supplier, currency, status, stats, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.UserID, c.Label, c.Supplier, c.Currency, c.Status, c.Stats, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "store.card.insert", c.ID, err)
	}
	return nil
}

func (s *PostgresCardStore) Get(ctx context.Context, id string) (*models.Card, error) {
	var c models.Card
	var statsUpdatedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, label, supplier, currency, status, stats, stats_updated_at, created_at, updated_at
		FROM cards
		WHERE id = $1`, id).
		Scan(&c.ID, &c.UserID, &c.Label, &c.Supplier, &c.Currency, &c.Status,
			&c.Stats, &statsUpdatedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "store.card.get", id, "card not found")
		}
		return nil, apperr.Wrap(apperr.KindUpstream, "store.card.get", id, err)
	}
	if statsUpdatedAt.Valid {
		t := statsUpdatedAt.Time
		c.StatsUpdatedAt = &t
	}
	return &c, nil
}

func (s *PostgresCardStore) ListIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM cards ORDER BY created_at, id`)
}

func (s *PostgresCardStore) ListIDsBySupplier(ctx context.Context, supplier string) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM cards WHERE supplier = $1 ORDER BY created_at, id`, supplier)
}

func (s *PostgresCardStore) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "store.card.list", "", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.KindUpstream, "store.card.list", "", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "store.card.list", "", err)
	}
	return ids, nil
}

// WriteStats replaces the card's derived snapshot, last-write-wins. The
// snapshot is deterministic from current store state so no version guard is
// needed here.
func (s *PostgresCardStore) WriteStats(ctx context.Context, id string, stats models.StatsSnapshot) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cards SET stats = $1, stats_updated_at = $2, updated_at = $2 WHERE id = $3`,
		stats, time.Now(), id)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "store.card.write_stats", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "store.card.write_stats", id, err)
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "store.card.write_stats", id, "card not found")
	}
	return nil
}

func (s *PostgresCardStore) SetStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cards SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "store.card.set_status", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "store.card.set_status", id, err)
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "store.card.set_status", id, "card not found")
	}
	return nil
}
