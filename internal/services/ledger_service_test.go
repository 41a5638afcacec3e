package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loopcard/backend/internal/apperr"
	"github.com/loopcard/backend/internal/models"
)

func TestLedgerService_Create(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID, cardID := env.seedUserAndCard(ctx)

	t.Run("creates with version one and history", func(t *testing.T) {
		e := env.createEntry(ctx, userID, cardID, models.OpDeposit, 100)

		assert.Equal(t, 1, e.Version)
		assert.Len(t, e.History, 1)
		assert.Equal(t, models.HistoryCreated, e.History[0].Action)
		assert.Equal(t, "tester", e.History[0].Actor)
		assert.Equal(t, models.EntryStatusSuccess, e.Status)
	})

	t.Run("pending operation gets pending status", func(t *testing.T) {
		e := env.createEntry(ctx, userID, cardID, models.OpPending, 10)
		assert.Equal(t, models.EntryStatusPending, e.Status)
	})

	t.Run("unknown operation rejected", func(t *testing.T) {
		_, err := env.ledger.Create(ctx, CreateEntryInput{
			UserID:    userID,
			CardID:    cardID,
			Operation: "TELEPORT",
			Amount:    5,
		}, "tester")
		assert.True(t, apperr.IsValidation(err))
	})

	t.Run("missing card rejected", func(t *testing.T) {
		_, err := env.ledger.Create(ctx, CreateEntryInput{
			UserID:    userID,
			CardID:    "no-such-card",
			Operation: models.OpDeposit,
			Amount:    5,
		}, "tester")
		assert.True(t, apperr.IsNotFound(err))
	})

	t.Run("card held by another user rejected", func(t *testing.T) {
		otherUser, _ := env.seedUserAndCard(ctx)
		_, err := env.ledger.Create(ctx, CreateEntryInput{
			UserID:    otherUser,
			CardID:    cardID,
			Operation: models.OpDeposit,
			Amount:    5,
		}, "tester")
		assert.True(t, apperr.IsValidation(err))
	})

	t.Run("create refreshes card stats", func(t *testing.T) {
		card, err := env.store.Cards().Get(ctx, cardID)
		assert.NoError(t, err)
		assert.Equal(t, int64(100), card.Stats.MoneyIn)
		assert.Equal(t, int64(10), card.Stats.Pending)
	})
}

func TestLedgerService_Edit(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID, cardID := env.seedUserAndCard(ctx)

	t.Run("edit bumps version and records prior values", func(t *testing.T) {
		e := env.createEntry(ctx, userID, cardID, models.OpDeposit, 100)

		amount := int64(250)
		updated, err := env.ledger.Edit(ctx, e.ID, EditEntryInput{Amount: &amount}, "editor")
		assert.NoError(t, err)
		assert.Equal(t, 2, updated.Version)
		assert.Equal(t, int64(250), updated.Amount)

		last := updated.History[len(updated.History)-1]
		assert.Equal(t, models.HistoryUpdated, last.Action)
		assert.Equal(t, int64(100), last.ChangedFields["amount"])

		card, _ := env.store.Cards().Get(ctx, cardID)
		assert.Equal(t, int64(250), card.Stats.MoneyIn)
	})

	t.Run("operation change moves buckets on recompute", func(t *testing.T) {
		e := env.createEntry(ctx, userID, cardID, models.OpPending, 40)

		op := models.OpApproved
		_, err := env.ledger.Edit(ctx, e.ID, EditEntryInput{Operation: &op}, "editor")
		assert.NoError(t, err)

		card, _ := env.store.Cards().Get(ctx, cardID)
		assert.Equal(t, int64(0), card.Stats.Pending)
		assert.Equal(t, int64(40), card.Stats.Posted)
	})

	t.Run("no-op edit leaves version untouched", func(t *testing.T) {
		e := env.createEntry(ctx, userID, cardID, models.OpDeposit, 10)

		same := e.Amount
		updated, err := env.ledger.Edit(ctx, e.ID, EditEntryInput{Amount: &same}, "editor")
		assert.NoError(t, err)
		assert.Equal(t, e.Version, updated.Version)
		assert.Len(t, updated.History, len(e.History))
	})

	t.Run("editing a deleted entry fails", func(t *testing.T) {
		e := env.createEntry(ctx, userID, cardID, models.OpDeposit, 10)
		_, err := env.ledger.SoftDelete(ctx, e.ID, "tester")
		assert.NoError(t, err)

		amount := int64(99)
		_, err = env.ledger.Edit(ctx, e.ID, EditEntryInput{Amount: &amount}, "editor")
		assert.True(t, apperr.IsValidation(err))
	})
}

func TestLedgerService_DeleteRestore(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID, cardID := env.seedUserAndCard(ctx)

	t.Run("delete then restore round-trips the status", func(t *testing.T) {
		e := env.createEntry(ctx, userID, cardID, models.OpPending, 25)
		assert.Equal(t, models.EntryStatusPending, e.Status)

		deleted, err := env.ledger.SoftDelete(ctx, e.ID, "tester")
		assert.NoError(t, err)
		assert.True(t, deleted.IsDeleted)
		assert.Equal(t, models.EntryStatusDeleted, deleted.Status)
		assert.NotNil(t, deleted.DeletedAt)
		assert.Equal(t, 2, deleted.Version)

		card, _ := env.store.Cards().Get(ctx, cardID)
		assert.Equal(t, int64(0), card.Stats.Pending)
		assert.Equal(t, int64(1), card.Stats.TotalDeletedEntries)

		restored, err := env.ledger.Restore(ctx, e.ID, "tester")
		assert.NoError(t, err)
		assert.False(t, restored.IsDeleted)
		assert.Nil(t, restored.DeletedAt)
		assert.Equal(t, models.EntryStatusPending, restored.Status)
		assert.Equal(t, 3, restored.Version)
		assert.Len(t, restored.History, 3)

		card, _ = env.store.Cards().Get(ctx, cardID)
		assert.Equal(t, int64(25), card.Stats.Pending)
		assert.Equal(t, int64(0), card.Stats.TotalDeletedEntries)
	})

	t.Run("double delete fails", func(t *testing.T) {
		e := env.createEntry(ctx, userID, cardID, models.OpDeposit, 10)
		_, err := env.ledger.SoftDelete(ctx, e.ID, "tester")
		assert.NoError(t, err)

		_, err = env.ledger.SoftDelete(ctx, e.ID, "tester")
		assert.True(t, apperr.IsValidation(err))
	})

	t.Run("restore of a live entry fails", func(t *testing.T) {
		e := env.createEntry(ctx, userID, cardID, models.OpDeposit, 10)
		_, err := env.ledger.Restore(ctx, e.ID, "tester")
		assert.True(t, apperr.IsValidation(err))
	})

	t.Run("history length matches version", func(t *testing.T) {
		e := env.createEntry(ctx, userID, cardID, models.OpDeposit, 10)

		amount := int64(20)
		e, err := env.ledger.Edit(ctx, e.ID, EditEntryInput{Amount: &amount}, "tester")
		assert.NoError(t, err)
		e, err = env.ledger.SoftDelete(ctx, e.ID, "tester")
		assert.NoError(t, err)
		e, err = env.ledger.Restore(ctx, e.ID, "tester")
		assert.NoError(t, err)

		assert.Equal(t, 4, e.Version)
		assert.Len(t, e.History, 4)
	})
}

// Delete and restore must be exact inverses on the per-user snapshot: the
// entry is counted once in TotalAllEntries for its lifetime, and the deletion
// counters return to zero after a restore, however many cycles run.
func TestLedgerService_RestoreUserCounters(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID, cardID := env.seedUserAndCard(ctx)

	e := env.createEntry(ctx, userID, cardID, models.OpDeposit, 100)

	for cycle := 0; cycle < 2; cycle++ {
		_, err := env.ledger.SoftDelete(ctx, e.ID, "tester")
		assert.NoError(t, err)

		user, _ := env.store.Users().Get(ctx, userID)
		assert.Equal(t, int64(0), user.Stats.MoneyIn)
		assert.Equal(t, int64(1), user.Stats.TotalAllEntries)
		assert.Equal(t, int64(1), user.Stats.TotalDeletedEntries)
		assert.Equal(t, int64(100), user.Stats.DeletedAmount)

		_, err = env.ledger.Restore(ctx, e.ID, "tester")
		assert.NoError(t, err)

		user, _ = env.store.Users().Get(ctx, userID)
		assert.Equal(t, int64(100), user.Stats.MoneyIn)
		assert.Equal(t, int64(100), user.Stats.Available)
		assert.Equal(t, int64(1), user.Stats.TotalAllEntries)
		assert.Equal(t, int64(0), user.Stats.TotalDeletedEntries)
		assert.Equal(t, int64(0), user.Stats.DeletedAmount)
	}
}

func TestLedgerService_OptimisticLock(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID, cardID := env.seedUserAndCard(ctx)

	e := env.createEntry(ctx, userID, cardID, models.OpDeposit, 100)

	// Simulate a concurrent writer bumping the version underneath us.
	stale := *e
	stale.Version = 2
	err := env.store.Ledger().Update(ctx, &stale, 5)
	assert.True(t, apperr.IsConflict(err))
}
