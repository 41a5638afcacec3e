package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loopcard/backend/internal/apperr"
	"github.com/loopcard/backend/internal/models"
)

func TestCardService(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID, _ := env.seedUserAndCard(ctx)

	t.Run("issue", func(t *testing.T) {
		card, err := env.cards.Issue(ctx, models.CardIssueRequest{
			UserID:   userID,
			Label:    "travel",
			Supplier: "acme",
			Currency: "EUR",
		})
		assert.NoError(t, err)
		assert.Equal(t, models.CardStatusActive, card.Status)
		assert.NotEmpty(t, card.ID)
	})

	t.Run("issue for unknown user fails", func(t *testing.T) {
		_, err := env.cards.Issue(ctx, models.CardIssueRequest{
			UserID:   "ghost",
			Label:    "x",
			Currency: "EUR",
		})
		assert.True(t, apperr.IsNotFound(err))
	})

	t.Run("suspend and reinstate", func(t *testing.T) {
		card, err := env.cards.Issue(ctx, models.CardIssueRequest{UserID: userID, Label: "y", Currency: "USD"})
		assert.NoError(t, err)

		assert.NoError(t, env.cards.Suspend(ctx, card.ID))
		got, _ := env.cards.Get(ctx, card.ID)
		assert.Equal(t, models.CardStatusSuspended, got.Status)

		assert.NoError(t, env.cards.Reinstate(ctx, card.ID))
		got, _ = env.cards.Get(ctx, card.ID)
		assert.Equal(t, models.CardStatusActive, got.Status)
	})

	t.Run("reinstate of an active card fails", func(t *testing.T) {
		card, err := env.cards.Issue(ctx, models.CardIssueRequest{UserID: userID, Label: "z", Currency: "USD"})
		assert.NoError(t, err)

		err = env.cards.Reinstate(ctx, card.ID)
		assert.True(t, apperr.IsValidation(err))
	})
}
