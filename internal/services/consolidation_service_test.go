package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loopcard/backend/internal/apperr"
	"github.com/loopcard/backend/internal/models"
)

func TestConsolidationService_Append(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID, cardID := env.seedUserAndCard(ctx)

	e1 := env.createEntry(ctx, userID, cardID, models.OpDeposit, 1000)
	e2 := env.createEntry(ctx, userID, cardID, models.OpApproved, 400)
	e3 := env.createEntry(ctx, userID, cardID, models.OpWithdrawal, 100)

	t.Run("first consolidation starts the chain", func(t *testing.T) {
		c, err := env.consolidations.Append(ctx, AppendRequest{
			UserID:      userID,
			CardID:      cardID,
			NewEntryIDs: []string{e1.ID, e2.ID},
			Name:        "week 1",
			Actor:       "reconciler",
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, c.Version)
		assert.Nil(t, c.BaseConsolidationID)
		assert.True(t, c.IsLatest)
		assert.ElementsMatch(t, []string{e1.ID, e2.ID}, c.MemberEntryIDs)
		assert.Equal(t, models.StatsSnapshot{}, c.PreviousSummary)
		assert.Equal(t, int64(1000), c.Summary.MoneyIn)
		assert.Equal(t, int64(400), c.Summary.Posted)
		assert.Equal(t, int64(600), c.Summary.Available)

		// Members are stamped as reconciled.
		stamped, _ := env.store.Ledger().FindByID(ctx, e1.ID)
		assert.True(t, stamped.Reconciled)
		assert.Equal(t, c.ID, *stamped.ReconciliationID)
	})

	t.Run("second version chains off the first", func(t *testing.T) {
		c, err := env.consolidations.Append(ctx, AppendRequest{
			UserID:      userID,
			CardID:      cardID,
			NewEntryIDs: []string{e3.ID},
			Actor:       "reconciler",
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, c.Version)
		assert.NotNil(t, c.BaseConsolidationID)
		assert.ElementsMatch(t, []string{e1.ID, e2.ID, e3.ID}, c.MemberEntryIDs)
		assert.ElementsMatch(t, []string{e3.ID}, c.NewEntryIDs)

		// summary = previous plus aggregate of the delta only
		assert.Equal(t, int64(1000), c.PreviousSummary.MoneyIn)
		assert.Equal(t, int64(100), c.Summary.Withdrawal)
		assert.Equal(t, int64(500), c.Summary.Available)

		// The old head is no longer latest.
		prior, _ := env.consolidations.Get(ctx, *c.BaseConsolidationID)
		assert.False(t, prior.IsLatest)

		latest, err := env.store.Consolidations().Latest(ctx, userID, cardID)
		assert.NoError(t, err)
		assert.Equal(t, c.ID, latest.ID)
	})

	t.Run("already reconciled entry is a conflict", func(t *testing.T) {
		_, err := env.consolidations.Append(ctx, AppendRequest{
			UserID:      userID,
			CardID:      cardID,
			NewEntryIDs: []string{e1.ID},
			Actor:       "reconciler",
		})
		assert.True(t, apperr.IsConflict(err))
	})

	t.Run("missing entry is not found", func(t *testing.T) {
		_, err := env.consolidations.Append(ctx, AppendRequest{
			UserID:      userID,
			CardID:      cardID,
			NewEntryIDs: []string{"ghost"},
			Actor:       "reconciler",
		})
		assert.True(t, apperr.IsNotFound(err))
	})

	t.Run("entry from another owner is rejected", func(t *testing.T) {
		otherUser, otherCard := env.seedUserAndCard(ctx)
		foreign := env.createEntry(ctx, otherUser, otherCard, models.OpDeposit, 5)

		_, err := env.consolidations.Append(ctx, AppendRequest{
			UserID:      userID,
			CardID:      cardID,
			NewEntryIDs: []string{foreign.ID},
			Actor:       "reconciler",
		})
		assert.True(t, apperr.IsValidation(err))
	})

	t.Run("chain lists oldest first", func(t *testing.T) {
		chain, err := env.consolidations.ListChain(ctx, userID, cardID)
		assert.NoError(t, err)
		assert.Len(t, chain, 2)
		assert.Equal(t, 1, chain[0].Version)
		assert.Equal(t, 2, chain[1].Version)
	})
}

func TestConsolidationService_SummaryVerification(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID, cardID := env.seedUserAndCard(ctx)
	e := env.createEntry(ctx, userID, cardID, models.OpDeposit, 1000)

	t.Run("matching summary is accepted", func(t *testing.T) {
		supplied := models.StatsSnapshot{MoneyIn: 1000, Available: 1000, TotalAllEntries: 1}
		c, err := env.consolidations.Append(ctx, AppendRequest{
			UserID:      userID,
			CardID:      cardID,
			NewEntryIDs: []string{e.ID},
			Summary:     &supplied,
			Actor:       "reconciler",
		})
		assert.NoError(t, err)
		// The persisted summary is always the derived one.
		assert.Equal(t, int64(1000), c.Summary.MoneyIn)
	})

	t.Run("drifted summary names the bucket", func(t *testing.T) {
		e2 := env.createEntry(ctx, userID, cardID, models.OpDeposit, 500)
		supplied := models.StatsSnapshot{MoneyIn: 1337}

		_, err := env.consolidations.Append(ctx, AppendRequest{
			UserID:      userID,
			CardID:      cardID,
			NewEntryIDs: []string{e2.ID},
			Summary:     &supplied,
			Actor:       "reconciler",
		})
		assert.True(t, apperr.IsValidation(err))
		assert.Contains(t, err.Error(), "money_in")
	})
}

func TestConsolidationService_ConcurrentAppend(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID, cardID := env.seedUserAndCard(ctx)

	e1 := env.createEntry(ctx, userID, cardID, models.OpDeposit, 100)
	e2 := env.createEntry(ctx, userID, cardID, models.OpDeposit, 200)

	// Two appends race on the empty chain. Exactly one becomes version 1.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{e1.ID, e2.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = env.consolidations.Append(ctx, AppendRequest{
				UserID:      userID,
				CardID:      cardID,
				NewEntryIDs: []string{id},
				Actor:       "racer",
			})
		}(i, id)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, apperr.IsConflict(err))
		}
	}
	// Interleaving may let both land sequentially, but never more than one
	// per base version.
	assert.GreaterOrEqual(t, winners, 1)

	chain, err := env.consolidations.ListChain(ctx, userID, cardID)
	assert.NoError(t, err)
	assert.Len(t, chain, winners)
}

func TestConsolidationService_DeleteAndPurge(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID, cardID := env.seedUserAndCard(ctx)
	e := env.createEntry(ctx, userID, cardID, models.OpDeposit, 100)

	c, err := env.consolidations.Append(ctx, AppendRequest{
		UserID:      userID,
		CardID:      cardID,
		NewEntryIDs: []string{e.ID},
		Actor:       "reconciler",
	})
	assert.NoError(t, err)

	t.Run("delete is always rejected", func(t *testing.T) {
		err := env.consolidations.Delete(ctx, c.ID)
		assert.True(t, apperr.IsValidation(err))
	})

	t.Run("purge removes the chain and resets entries", func(t *testing.T) {
		removed, err := env.consolidations.Purge(ctx, userID, cardID, "admin")
		assert.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		_, err = env.store.Consolidations().Latest(ctx, userID, cardID)
		assert.True(t, apperr.IsNotFound(err))

		entry, _ := env.store.Ledger().FindByID(ctx, e.ID)
		assert.False(t, entry.Reconciled)
		assert.Nil(t, entry.ReconciliationID)
	})

	t.Run("purging an empty chain is not found", func(t *testing.T) {
		_, err := env.consolidations.Purge(ctx, userID, cardID, "admin")
		assert.True(t, apperr.IsNotFound(err))
	})
}
