package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/loopcard/backend/internal/apperr"
	"github.com/loopcard/backend/internal/cache"
	"github.com/loopcard/backend/internal/config"
	"github.com/loopcard/backend/internal/events"
	"github.com/loopcard/backend/internal/models"
	"github.com/loopcard/backend/internal/store"
)

// RefreshAction tells the incremental user path what happened to the entry.
type RefreshAction string

const (
	ActionCreate  RefreshAction = "create"
	ActionUpdate  RefreshAction = "update"
	ActionDelete  RefreshAction = "delete"
	ActionRestore RefreshAction = "restore"
)

// RefreshFailure records one card that failed inside a batch refresh.
type RefreshFailure struct {
	CardID string `json:"card_id"`
	Error  string `json:"error"`
}

// RefreshReport summarises a batch refresh. Per-card failures never abort
// the batch; they are collected here.
type RefreshReport struct {
	Processed int              `json:"processed"`
	Failed    int              `json:"failed"`
	Failures  []RefreshFailure `json:"failures,omitempty"`
}

// StatsService decides when the aggregator runs and persists its output.
// Card snapshots are always full recomputes: deletes, restores and edits can
// retroactively move an entry between buckets, which an incremental delta
// cannot represent. The per-user snapshot is a coarser incremental path.
type StatsService struct {
	ledger    store.LedgerStore
	cards     store.CardStore
	users     store.UserStore
	cache     cache.Client
	events    events.Publisher
	batchSize int
	workers   int
	cacheTTL  time.Duration
}

func NewStatsService(ledger store.LedgerStore, cards store.CardStore, users store.UserStore, cacheClient cache.Client, publisher events.Publisher, cfg *config.EngineConfig) *StatsService {
	batchSize := cfg.StatsBatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	workers := cfg.StatsWorkers
	if workers <= 0 {
		workers = 5
	}
	return &StatsService{
		ledger:    ledger,
		cards:     cards,
		users:     users,
		cache:     cacheClient,
		events:    publisher,
		batchSize: batchSize,
		workers:   workers,
		cacheTTL:  cfg.StatsCacheTTL,
	}
}

// RefreshCard recomputes the card snapshot from a single consistent read of
// all entries (deleted included, for the audit counters) and writes it
// last-write-wins. Safe to retry; concurrent recomputes for the same card
// converge because the fold is deterministic from store state.
func (s *StatsService) RefreshCard(ctx context.Context, cardID string) (models.StatsSnapshot, error) {
	if _, err := s.cards.Get(ctx, cardID); err != nil {
		return models.StatsSnapshot{}, err
	}

	entries, err := s.ledger.FindByCard(ctx, cardID, true)
	if err != nil {
		return models.StatsSnapshot{}, err
	}

	stats := Aggregate(entries)
	if err := s.cards.WriteStats(ctx, cardID, stats); err != nil {
		return models.StatsSnapshot{}, err
	}

	if err := s.cache.Invalidate(ctx, cache.CardStatsKey(cardID)); err != nil {
		log.Printf("[STATS] cache invalidation failed for card %s: %v", cardID, err)
	}
	s.events.Publish(ctx, events.Event{Type: events.TypeStatsRefreshed, EntityID: cardID, CardID: cardID})
	return stats, nil
}

// RefreshUser applies an incremental delta to the coarse per-user snapshot.
// Create, delete and restore produce deltas; updates are deliberately a no-op
// because an edit can change the entry's operation, and only a full
// recompute can represent that. Callers needing precision after an edit use
// RefreshCard. A restore is the exact inverse of the preceding delete, so the
// counters round-trip: it refills the bucket and unwinds the deletion
// counters without touching TotalAllEntries, which the delete never
// decremented.
func (s *StatsService) RefreshUser(ctx context.Context, userID string, entry models.LedgerEntry, action RefreshAction) error {
	if action == ActionUpdate {
		return nil
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}

	stats := user.Stats
	switch action {
	case ActionCreate:
		applyBucket(&stats, entry, 1)
		stats.TotalAllEntries++
	case ActionDelete:
		applyBucket(&stats, entry, -1)
		stats.TotalDeletedEntries++
		stats.DeletedAmount += entry.Amount
	case ActionRestore:
		applyBucket(&stats, entry, 1)
		stats.TotalDeletedEntries--
		stats.DeletedAmount -= entry.Amount
	default:
		return apperr.Newf(apperr.KindValidation, "stats.refresh_user", userID, "unknown refresh action %q", action)
	}
	stats.ComputeAvailable()

	if err := s.users.WriteStats(ctx, userID, stats); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, cache.UserStatsKey(userID)); err != nil {
		log.Printf("[STATS] cache invalidation failed for user %s: %v", userID, err)
	}
	return nil
}

// CardStats is the read path: cache hit, else the stored snapshot, which is
// then cached. The cache never affects correctness, only latency.
func (s *StatsService) CardStats(ctx context.Context, cardID string) (models.StatsSnapshot, error) {
	key := cache.CardStatsKey(cardID)
	if stats, ok, err := s.cache.GetStats(ctx, key); err == nil && ok {
		return stats, nil
	} else if err != nil {
		log.Printf("[STATS] cache read failed for card %s: %v", cardID, err)
	}

	card, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return models.StatsSnapshot{}, err
	}
	if err := s.cache.SetStats(ctx, key, card.Stats, s.cacheTTL); err != nil {
		log.Printf("[STATS] cache write failed for card %s: %v", cardID, err)
	}
	return card.Stats, nil
}

// RefreshAll recomputes every card snapshot in fixed-size batches with
// bounded concurrency. One failing card is recorded and the sweep moves on;
// cancelling the context stops scheduling new batches but cards already
// processed keep their fully recomputed snapshots.
func (s *StatsService) RefreshAll(ctx context.Context) (*RefreshReport, error) {
	ids, err := s.cards.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	return s.refreshMany(ctx, ids)
}

// RefreshBySupplier recomputes the snapshots of every card issued by one
// provider, typically after a sync import.
func (s *StatsService) RefreshBySupplier(ctx context.Context, supplier string) (*RefreshReport, error) {
	ids, err := s.cards.ListIDsBySupplier(ctx, supplier)
	if err != nil {
		return nil, err
	}
	return s.refreshMany(ctx, ids)
}

func (s *StatsService) refreshMany(ctx context.Context, cardIDs []string) (*RefreshReport, error) {
	report := &RefreshReport{}
	var mu sync.Mutex

	for start := 0; start < len(cardIDs); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			log.Printf("[STATS] batch refresh stopped after %d cards: %v", report.Processed+report.Failed, err)
			return report, err
		}

		end := start + s.batchSize
		if end > len(cardIDs) {
			end = len(cardIDs)
		}
		batch := cardIDs[start:end]

		sem := make(chan struct{}, s.workers)
		var wg sync.WaitGroup
		for _, cardID := range batch {
			wg.Add(1)
			sem <- struct{}{}
			go func(cardID string) {
				defer wg.Done()
				defer func() { <-sem }()

				_, err := s.RefreshCard(ctx, cardID)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Failed++
					report.Failures = append(report.Failures, RefreshFailure{CardID: cardID, Error: err.Error()})
					log.Printf("[STATS] refresh failed for card %s: %v", cardID, err)
					return
				}
				report.Processed++
			}(cardID)
		}
		wg.Wait()
	}

	log.Printf("[STATS] batch refresh complete: %d processed, %d failed", report.Processed, report.Failed)
	return report, nil
}

// applyBucket adds sign*amount to the bucket the entry's operation maps to.
func applyBucket(stats *models.StatsSnapshot, e models.LedgerEntry, sign int64) {
	amount := sign * e.Amount
	switch e.Operation {
	case models.OpDeposit, models.OpBalanceOverride:
		stats.MoneyIn += amount
	case models.OpRefund:
		stats.Refund += amount
	case models.OpApproved:
		stats.Posted += amount
	case models.OpReversed:
		stats.Reversed += amount
	case models.OpRejected:
		stats.Rejected += amount
	case models.OpPending:
		stats.Pending += amount
	case models.OpWithdrawal:
		stats.Withdrawal += amount
	default:
		log.Printf("[STATS] data quality: unknown operation %q on entry %s", e.Operation, e.ID)
	}
}
