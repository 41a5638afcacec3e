package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/loopcard/backend/internal/apperr"
	"github.com/loopcard/backend/internal/audit"
	"github.com/loopcard/backend/internal/events"
	"github.com/loopcard/backend/internal/models"
	"github.com/loopcard/backend/internal/store"
)

// LedgerService owns the ledger entry lifecycle: create, edit, soft delete,
// restore. Every mutation bumps the entry version, appends a history record
// with the prior values, and triggers a stats refresh for the owning card and
// user.
type LedgerService struct {
	ledger store.LedgerStore
	cards  store.CardStore
	stats  *StatsService
	audit  *audit.Logger
	events events.Publisher
}

func NewLedgerService(ledger store.LedgerStore, cards store.CardStore, stats *StatsService, auditLog *audit.Logger, publisher events.Publisher) *LedgerService {
	return &LedgerService{
		ledger: ledger,
		cards:  cards,
		stats:  stats,
		audit:  auditLog,
		events: publisher,
	}
}

// CreateEntryInput carries a manual or provider-imported ledger entry.
type CreateEntryInput struct {
	UserID      string           `json:"user_id" validate:"required"`
	CardID      string           `json:"card_id" validate:"required"`
	Operation   models.Operation `json:"operation" validate:"required"`
	Amount      int64            `json:"amount" validate:"gte=0"`
	Description string           `json:"description" validate:"max=500"`
	Supplier    string           `json:"supplier" validate:"max=50"`
	SupplierRef string           `json:"supplier_ref" validate:"max=100"`
}

// EditEntryInput updates an entry in place. Nil fields are left untouched.
// Operation and amount are editable, which is why the card refresh after an
// edit is always a full recompute.
type EditEntryInput struct {
	Operation   *models.Operation `json:"operation"`
	Amount      *int64            `json:"amount" validate:"omitempty,gte=0"`
	Description *string           `json:"description" validate:"omitempty,max=500"`
}

func (s *LedgerService) Create(ctx context.Context, in CreateEntryInput, actor string) (*models.LedgerEntry, error) {
	const op = "ledger.create"

	if !in.Operation.Known() {
		return nil, apperr.Newf(apperr.KindValidation, op, "", "unknown operation %q", in.Operation)
	}
	if in.Amount < 0 {
		return nil, apperr.New(apperr.KindValidation, op, "", "amount must be non-negative")
	}
	card, err := s.cards.Get(ctx, in.CardID)
	if err != nil {
		return nil, err
	}
	if card.UserID != in.UserID {
		return nil, apperr.Newf(apperr.KindValidation, op, in.CardID, "card is not held by user %s", in.UserID)
	}

	now := time.Now()
	status := models.EntryStatusSuccess
	if in.Operation == models.OpPending {
		status = models.EntryStatusPending
	}

	entry := &models.LedgerEntry{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		CardID:      in.CardID,
		Operation:   in.Operation,
		Amount:      in.Amount,
		Status:      status,
		Version:     1,
		Supplier:    in.Supplier,
		SupplierRef: in.SupplierRef,
		Description: in.Description,
		History: models.History{{
			Version:   1,
			Action:    models.HistoryCreated,
			Timestamp: now,
			Actor:     actor,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.ledger.Insert(ctx, entry); err != nil {
		return nil, err
	}

	s.afterMutation(ctx, entry, models.HistoryCreated, ActionCreate, actor)
	return entry, nil
}

func (s *LedgerService) Edit(ctx context.Context, id string, in EditEntryInput, actor string) (*models.LedgerEntry, error) {
	const op = "ledger.edit"

	entry, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.IsDeleted {
		return nil, apperr.New(apperr.KindValidation, op, id, "cannot edit a deleted entry")
	}
	if in.Operation != nil && !in.Operation.Known() {
		return nil, apperr.Newf(apperr.KindValidation, op, id, "unknown operation %q", *in.Operation)
	}
	if in.Amount != nil && *in.Amount < 0 {
		return nil, apperr.New(apperr.KindValidation, op, id, "amount must be non-negative")
	}
	if entry.Reconciled {
		// Allowed by policy: the consolidation summary that absorbed this
		// entry stays frozen, the edit only affects stats going forward.
		log.Printf("[LEDGER] editing reconciled entry %s; consolidated summaries stay frozen", id)
	}

	changed := map[string]any{}
	if in.Operation != nil && *in.Operation != entry.Operation {
		changed["operation"] = string(entry.Operation)
		entry.Operation = *in.Operation
	}
	if in.Amount != nil && *in.Amount != entry.Amount {
		changed["amount"] = entry.Amount
		entry.Amount = *in.Amount
	}
	if in.Description != nil && *in.Description != entry.Description {
		changed["description"] = entry.Description
		entry.Description = *in.Description
	}
	if len(changed) == 0 {
		return entry, nil
	}

	expected := entry.Version
	now := time.Now()
	entry.Version++
	entry.UpdatedAt = now
	entry.History = append(entry.History, models.ChangeRecord{
		Version:       entry.Version,
		Action:        models.HistoryUpdated,
		ChangedFields: changed,
		Timestamp:     now,
		Actor:         actor,
	})

	if err := s.ledger.Update(ctx, entry, expected); err != nil {
		return nil, err
	}

	// Update deltas are not computed for the user snapshot; only the full
	// card recompute can represent an operation change.
	s.afterMutation(ctx, entry, models.HistoryUpdated, ActionUpdate, actor)
	return entry, nil
}

func (s *LedgerService) SoftDelete(ctx context.Context, id, actor string) (*models.LedgerEntry, error) {
	const op = "ledger.delete"

	entry, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.IsDeleted {
		return nil, apperr.New(apperr.KindValidation, op, id, "entry is already deleted")
	}

	expected := entry.Version
	now := time.Now()
	entry.Version++
	entry.IsDeleted = true
	entry.DeletedAt = &now
	entry.UpdatedAt = now
	entry.History = append(entry.History, models.ChangeRecord{
		Version:       entry.Version,
		Action:        models.HistoryDeleted,
		ChangedFields: map[string]any{"status": entry.Status},
		Timestamp:     now,
		Actor:         actor,
	})
	entry.Status = models.EntryStatusDeleted

	if err := s.ledger.Update(ctx, entry, expected); err != nil {
		return nil, err
	}

	s.afterMutation(ctx, entry, models.HistoryDeleted, ActionDelete, actor)
	return entry, nil
}

// Restore brings a soft-deleted entry back, reproducing the pre-delete status
// from the most recent "deleted" history record. The version guard on the
// write ensures the history we read was not stale: a concurrent mutation
// turns the restore into a Conflict instead of resurrecting an old status.
func (s *LedgerService) Restore(ctx context.Context, id, actor string) (*models.LedgerEntry, error) {
	const op = "ledger.restore"

	entry, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entry.IsDeleted {
		return nil, apperr.New(apperr.KindValidation, op, id, "entry is not deleted")
	}

	deleted := entry.History.LastDeleted()
	if deleted == nil {
		return nil, apperr.New(apperr.KindValidation, op, id, "history has no deleted record to restore from")
	}
	priorStatus, ok := deleted.ChangedFields["status"].(string)
	if !ok || priorStatus == "" {
		return nil, apperr.New(apperr.KindValidation, op, id, "deleted record does not carry the prior status")
	}

	expected := entry.Version
	now := time.Now()
	entry.Version++
	entry.IsDeleted = false
	entry.DeletedAt = nil
	entry.Status = priorStatus
	entry.UpdatedAt = now
	entry.History = append(entry.History, models.ChangeRecord{
		Version:   entry.Version,
		Action:    models.HistoryRestored,
		Timestamp: now,
		Actor:     actor,
	})

	if err := s.ledger.Update(ctx, entry, expected); err != nil {
		return nil, err
	}

	s.afterMutation(ctx, entry, models.HistoryRestored, ActionRestore, actor)
	return entry, nil
}

func (s *LedgerService) Get(ctx context.Context, id string) (*models.LedgerEntry, error) {
	return s.ledger.FindByID(ctx, id)
}

func (s *LedgerService) ListByCard(ctx context.Context, cardID string, includeDeleted bool) ([]models.LedgerEntry, error) {
	return s.ledger.FindByCard(ctx, cardID, includeDeleted)
}

func (s *LedgerService) ListByUser(ctx context.Context, userID string, includeDeleted bool) ([]models.LedgerEntry, error) {
	return s.ledger.FindByUser(ctx, userID, includeDeleted)
}

// afterMutation runs the per-mutation bookkeeping: full card recompute,
// incremental user delta, audit record and domain event. The entry mutation
// has already committed at this point, so failures here are logged rather
// than surfaced; the next refresh heals any missed snapshot.
func (s *LedgerService) afterMutation(ctx context.Context, entry *models.LedgerEntry, action string, userAction RefreshAction, actor string) {
	if _, err := s.stats.RefreshCard(ctx, entry.CardID); err != nil {
		log.Printf("[LEDGER] card stats refresh failed for %s: %v", entry.CardID, err)
		s.audit.LogError(entry.ID, entry.CardID, err)
	}
	if err := s.stats.RefreshUser(ctx, entry.UserID, *entry, userAction); err != nil {
		log.Printf("[LEDGER] user stats refresh failed for %s: %v", entry.UserID, err)
	}

	s.audit.LogEntryChange(action, entry.ID, entry.CardID, entry.UserID, entry.Amount, actor)
	s.events.Publish(ctx, events.Event{
		Type:     eventTypeFor(action),
		EntityID: entry.ID,
		CardID:   entry.CardID,
		UserID:   entry.UserID,
	})
}

func eventTypeFor(action string) string {
	switch action {
	case models.HistoryCreated:
		return events.TypeEntryCreated
	case models.HistoryDeleted:
		return events.TypeEntryDeleted
	case models.HistoryRestored:
		return events.TypeEntryRestored
	default:
		return events.TypeEntryUpdated
	}
}
