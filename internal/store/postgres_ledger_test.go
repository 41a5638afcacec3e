package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/loopcard/backend/internal/apperr"
	"github.com/loopcard/backend/internal/models"
)

func ledgerRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "card_id", "operation", "amount", "status", "is_deleted", "deleted_at",
		"version", "history", "reconciled", "reconciliation_id", "supplier", "supplier_ref",
		"description", "created_at", "updated_at",
	})
}

func TestPostgresLedgerStore_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewPostgresLedgerStore(db)

	t.Run("found", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("WHERE id = \\$1").
			WithArgs("e1").
			WillReturnRows(ledgerRows().AddRow(
				"e1", "u1", "c1", "DEPOSIT", 100, "SUCCESS", false, nil,
				1, []byte(`[{"version":1,"action":"created"}]`), false, nil, "", "",
				"", now, now))

		e, err := store.FindByID(context.Background(), "e1")
		assert.NoError(t, err)
		assert.Equal(t, models.OpDeposit, e.Operation)
		assert.Equal(t, int64(100), e.Amount)
		assert.Len(t, e.History, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("WHERE id = \\$1").
			WithArgs("ghost").
			WillReturnRows(ledgerRows())

		_, err := store.FindByID(context.Background(), "ghost")
		assert.True(t, apperr.IsNotFound(err))
	})
}

func TestPostgresLedgerStore_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewPostgresLedgerStore(db)
	entry := &models.LedgerEntry{
		ID:        "e1",
		Operation: models.OpDeposit,
		Amount:    100,
		Status:    models.EntryStatusSuccess,
		Version:   2,
		History:   models.History{{Version: 1, Action: models.HistoryCreated}},
		UpdatedAt: time.Now(),
	}

	t.Run("guarded write succeeds", func(t *testing.T) {
		mock.ExpectExec("UPDATE ledger_entries").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.Update(context.Background(), entry, 1)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version is a conflict", func(t *testing.T) {
		mock.ExpectExec("UPDATE ledger_entries").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.Update(context.Background(), entry, 1)
		assert.True(t, apperr.IsConflict(err))
	})
}

func TestPostgresLedgerStore_FindByCard(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewPostgresLedgerStore(db)
	now := time.Now()

	t.Run("excludes deleted by default", func(t *testing.T) {
		mock.ExpectQuery("WHERE card_id = \\$1 AND is_deleted = FALSE ORDER BY created_at, id").
			WithArgs("c1").
			WillReturnRows(ledgerRows().AddRow(
				"e1", "u1", "c1", "DEPOSIT", 100, "SUCCESS", false, nil,
				1, []byte(`[]`), false, nil, "", "", "", now, now))

		entries, err := store.FindByCard(context.Background(), "c1", false)
		assert.NoError(t, err)
		assert.Len(t, entries, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("includes deleted on request", func(t *testing.T) {
		mock.ExpectQuery("WHERE card_id = \\$1 ORDER BY created_at, id").
			WithArgs("c1").
			WillReturnRows(ledgerRows())

		_, err := store.FindByCard(context.Background(), "c1", true)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresLedgerStore_ExistsSupplierRef(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewPostgresLedgerStore(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("acme", "ref-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.ExistsSupplierRef(context.Background(), "acme", "ref-1")
	assert.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
