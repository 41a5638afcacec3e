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

type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

const userColumns = `id, email, first_name, last_name, phone_number, role, password_hash,
		stats, stats_updated_at, failed_login_attempts, locked_until, last_login, created_at, updated_at`

func (s *PostgresUserStore) Insert(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, phone_number, role, password_hash, stats, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.PhoneNumber, u.Role, u.PasswordHash,
		u.Stats, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return apperr.New(apperr.KindConflict, "store.user.insert", u.Email, "email already registered")
		}
		return apperr.Wrap(apperr.KindUpstream, "store.user.insert", u.ID, err)
	}
	return nil
}

func (s *PostgresUserStore) Get(ctx context.Context, id string) (*models.User, error) {
	return s.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *PostgresUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.get(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *PostgresUserStore) get(ctx context.Context, query, key string) (*models.User, error) {
	var u models.User
	var statsUpdatedAt, lockedUntil, lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx, query, key).
		Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PhoneNumber, &u.Role,
			&u.PasswordHash, &u.Stats, &statsUpdatedAt, &u.FailedLoginAttempts,
			&lockedUntil, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "store.user.get", key, "user not found")
		}
		return nil, apperr.Wrap(apperr.KindUpstream, "store.user.get", key, err)
	}
	if statsUpdatedAt.Valid {
		t := statsUpdatedAt.Time
		u.StatsUpdatedAt = &t
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		u.LockedUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

func (s *PostgresUserStore) WriteStats(ctx context.Context, id string, stats models.StatsSnapshot) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET stats = $1, stats_updated_at = $2, updated_at = $2 WHERE id = $3`,
		stats, time.Now(), id)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "store.user.write_stats", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "store.user.write_stats", id, err)
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "store.user.write_stats", id, "user not found")
	}
	return nil
}
