package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/loopcard/backend/internal/apperr"
	"github.com/loopcard/backend/internal/audit"
	"github.com/loopcard/backend/internal/events"
	"github.com/loopcard/backend/internal/models"
	"github.com/loopcard/backend/internal/store"
)

// ConsolidationService maintains the append-only reconciliation chain for
// each (user, card) pair. Every append extends the previous head's
// membership with a delta of newly included entries; the chain never shrinks
// and committed versions are never touched again.
type ConsolidationService struct {
	consolidations store.ConsolidationStore
	ledger         store.LedgerStore
	audit          *audit.Logger
	events         events.Publisher
	tolerance      int64 // max per-bucket drift accepted from a caller summary, in cents
}

func NewConsolidationService(consolidations store.ConsolidationStore, ledger store.LedgerStore, auditLog *audit.Logger, publisher events.Publisher, tolerance int64) *ConsolidationService {
	return &ConsolidationService{
		consolidations: consolidations,
		ledger:         ledger,
		audit:          auditLog,
		events:         publisher,
		tolerance:      tolerance,
	}
}

// AppendRequest carries one incremental consolidation. Summary is optional:
// when present it is verified against the recomputed aggregate within the
// configured tolerance, when absent the engine derives it.
type AppendRequest struct {
	UserID      string                `json:"user_id" validate:"required"`
	CardID      string                `json:"card_id" validate:"required"`
	NewEntryIDs []string              `json:"new_entry_ids" validate:"required,min=1"`
	Summary     *models.StatsSnapshot `json:"summary"`
	Name        string                `json:"name" validate:"max=100"`
	Notes       string                `json:"notes" validate:"max=1000"`
	Actor       string                `json:"-"`
}

// Append creates the next version of the chain. The persisted summary always
// equals previousSummary plus the aggregate of exactly the new entries, so
// the chain stays internally consistent even if members are edited later.
// A concurrent append racing on the same base returns Conflict; the caller
// must re-derive its delta against the new head before retrying.
func (s *ConsolidationService) Append(ctx context.Context, req AppendRequest) (*models.Consolidation, error) {
	const op = "consolidation.append"

	delta := dedupe(req.NewEntryIDs)
	if len(delta) == 0 {
		return nil, apperr.New(apperr.KindValidation, op, req.CardID, "new entry ids must not be empty")
	}

	var base *models.Consolidation
	latest, err := s.consolidations.Latest(ctx, req.UserID, req.CardID)
	switch {
	case err == nil:
		base = latest
	case apperr.IsNotFound(err):
		// First consolidation for this pair.
	default:
		return nil, err
	}

	entries, err := s.ledger.FindByIDs(ctx, delta)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.LedgerEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	deltaEntries := make([]models.LedgerEntry, 0, len(delta))
	for _, id := range delta {
		e, ok := byID[id]
		if !ok {
			return nil, apperr.New(apperr.KindNotFound, op, id, "ledger entry not found")
		}
		if e.UserID != req.UserID || e.CardID != req.CardID {
			return nil, apperr.New(apperr.KindValidation, op, id, "entry belongs to a different owner")
		}
		if e.Reconciled || (base != nil && base.HasMember(id)) {
			return nil, apperr.New(apperr.KindConflict, op, id, "entry is already reconciled")
		}
		deltaEntries = append(deltaEntries, e)
	}

	var previous models.StatsSnapshot
	version := 1
	var baseID *string
	if base != nil {
		previous = base.Summary
		version = base.Version + 1
		id := base.ID
		baseID = &id
	}

	summary := previous.Add(Aggregate(deltaEntries))
	if req.Summary != nil {
		if err := s.verifySummary(op, req.CardID, *req.Summary, summary); err != nil {
			return nil, err
		}
	}

	members := delta
	if base != nil {
		members = unionMembers(base.MemberEntryIDs, delta)
	}

	consolidation := &models.Consolidation{
		ID:                  uuid.NewString(),
		UserID:              req.UserID,
		CardID:              req.CardID,
		Version:             version,
		BaseConsolidationID: baseID,
		IsLatest:            true,
		MemberEntryIDs:      members,
		NewEntryIDs:         delta,
		Summary:             summary,
		PreviousSummary:     previous,
		Name:                req.Name,
		Notes:               req.Notes,
		CreatedAt:           time.Now(),
		CreatedBy:           req.Actor,
	}

	if err := s.consolidations.Append(ctx, consolidation, base); err != nil {
		return nil, err
	}

	s.audit.LogConsolidation(consolidation.ID, req.CardID, req.UserID, version, req.Actor)
	s.events.Publish(ctx, events.Event{
		Type:     events.TypeConsolidationCreated,
		EntityID: consolidation.ID,
		CardID:   req.CardID,
		UserID:   req.UserID,
	})
	return consolidation, nil
}

// ListChain returns every version for the pair, oldest first.
func (s *ConsolidationService) ListChain(ctx context.Context, userID, cardID string) ([]models.Consolidation, error) {
	return s.consolidations.ListChain(ctx, userID, cardID)
}

// Get returns one consolidation by id.
func (s *ConsolidationService) Get(ctx context.Context, id string) (*models.Consolidation, error) {
	return s.consolidations.Get(ctx, id)
}

// Delete always fails: the chain is an audit trail and must never shrink.
func (s *ConsolidationService) Delete(ctx context.Context, id string) error {
	return apperr.New(apperr.KindValidation, "consolidation.delete", id,
		"consolidations are immutable audit records and cannot be deleted")
}

// Purge is the maintenance escape hatch: it removes the entire chain for the
// pair and resets membership on every affected entry. Partial removal is
// never offered.
func (s *ConsolidationService) Purge(ctx context.Context, userID, cardID, actor string) (int64, error) {
	const op = "consolidation.purge"

	removed, err := s.consolidations.PurgeChain(ctx, userID, cardID)
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, apperr.New(apperr.KindNotFound, op, cardID, "no consolidation chain for pair")
	}

	s.audit.LogPurge(cardID, userID, removed, actor)
	s.events.Publish(ctx, events.Event{
		Type:     events.TypeConsolidationPurged,
		EntityID: cardID,
		CardID:   cardID,
		UserID:   userID,
	})
	return removed, nil
}

// verifySummary compares a caller-supplied aggregate bucket by bucket
// against the recomputed one. Drift beyond the tolerance is a validation
// failure naming the first offending bucket, never a silent acceptance.
func (s *ConsolidationService) verifySummary(op, key string, supplied, derived models.StatsSnapshot) error {
	buckets := []struct {
		name     string
		supplied int64
		derived  int64
	}{
		{"money_in", supplied.MoneyIn, derived.MoneyIn},
		{"refund", supplied.Refund, derived.Refund},
		{"posted", supplied.Posted, derived.Posted},
		{"reversed", supplied.Reversed, derived.Reversed},
		{"rejected", supplied.Rejected, derived.Rejected},
		{"pending", supplied.Pending, derived.Pending},
		{"withdrawal", supplied.Withdrawal, derived.Withdrawal},
		{"available", supplied.Available, derived.Available},
	}
	for _, b := range buckets {
		diff := b.supplied - b.derived
		if diff < 0 {
			diff = -diff
		}
		if diff > s.tolerance {
			return apperr.Newf(apperr.KindValidation, op, key,
				"summary mismatch on %s: supplied %d, computed %d", b.name, b.supplied, b.derived)
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// unionMembers keeps the base's ordering and appends the delta. The set
// semantics guard against double counting even if the precondition check
// was bypassed.
func unionMembers(base, delta []string) []string {
	seen := make(map[string]struct{}, len(base)+len(delta))
	out := make([]string, 0, len(base)+len(delta))
	for _, id := range base {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range delta {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
