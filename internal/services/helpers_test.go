package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/loopcard/backend/internal/audit"
	"github.com/loopcard/backend/internal/cache"
	"github.com/loopcard/backend/internal/config"
	"github.com/loopcard/backend/internal/events"
	"github.com/loopcard/backend/internal/models"
	"github.com/loopcard/backend/internal/store"
)

// testEnv wires the services against the in-memory store so the full
// mutation-then-refresh path runs in process.
type testEnv struct {
	store          *store.MemoryStore
	publisher      *events.MemoryPublisher
	stats          *StatsService
	ledger         *LedgerService
	consolidations *ConsolidationService
	cards          *CardService
}

func newTestEnv() *testEnv {
	mem := store.NewMemoryStore()
	publisher := events.NewMemoryPublisher()
	auditLog := audit.NewLogger()
	cfg := &config.EngineConfig{StatsBatchSize: 2, StatsWorkers: 2}

	stats := NewStatsService(mem.Ledger(), mem.Cards(), mem.Users(), cache.Noop{}, publisher, cfg)
	return &testEnv{
		store:          mem,
		publisher:      publisher,
		stats:          stats,
		ledger:         NewLedgerService(mem.Ledger(), mem.Cards(), stats, auditLog, publisher),
		consolidations: NewConsolidationService(mem.Consolidations(), mem.Ledger(), auditLog, publisher, 0),
		cards:          NewCardService(mem.Cards(), mem.Users()),
	}
}

// seedUserAndCard creates a user with one active card and returns their ids.
func (env *testEnv) seedUserAndCard(ctx context.Context) (userID, cardID string) {
	userID = uuid.NewString()
	cardID = uuid.NewString()
	env.store.Users().Insert(ctx, &models.User{
		ID:    userID,
		Email: userID + "@example.com",
	})
	env.store.Cards().Insert(ctx, &models.Card{
		ID:       cardID,
		UserID:   userID,
		Label:    "main",
		Currency: "USD",
		Status:   models.CardStatusActive,
	})
	return userID, cardID
}

func (env *testEnv) createEntry(ctx context.Context, userID, cardID string, op models.Operation, amount int64) *models.LedgerEntry {
	e, err := env.ledger.Create(ctx, CreateEntryInput{
		UserID:    userID,
		CardID:    cardID,
		Operation: op,
		Amount:    amount,
	}, "tester")
	if err != nil {
		panic(err)
	}
	return e
}
