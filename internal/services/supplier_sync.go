package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/loopcard/backend/internal/apperr"
	"github.com/loopcard/backend/internal/config"
	"github.com/loopcard/backend/internal/models"
	"github.com/loopcard/backend/internal/store"
)

// supplierTransaction is one record in the provider feed.
type supplierTransaction struct {
	Reference string `json:"reference"`
	Type      string `json:"type"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// supplierOperations maps provider transaction types onto ledger operations.
var supplierOperations = map[string]models.Operation{
	"TOPUP":      models.OpDeposit,
	"ADJUSTMENT": models.OpBalanceOverride,
	"REFUND":     models.OpRefund,
	"CAPTURE":    models.OpApproved,
	"REVERSAL":   models.OpReversed,
	"DECLINE":    models.OpRejected,
	"AUTH":       models.OpPending,
	"CASHOUT":    models.OpWithdrawal,
}

// SyncResult summarises one card's import run.
type SyncResult struct {
	CardID   string `json:"card_id"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
}

// SupplierSyncService pulls transaction feeds from the upstream card
// provider and imports unseen records as ledger entries. Records already
// imported (matched by provider reference) are skipped, so the job is safe
// to re-run.
type SupplierSyncService struct {
	client  *http.Client
	baseURL string
	apiKey  string
	ledger  store.LedgerStore
	cards   store.CardStore
	entries *LedgerService
}

func NewSupplierSyncService(cfg *config.SupplierConfig, ledger store.LedgerStore, cards store.CardStore, entries *LedgerService) *SupplierSyncService {
	return &SupplierSyncService{
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		ledger:  ledger,
		cards:   cards,
		entries: entries,
	}
}

// SyncCard imports the provider feed for one card. Per-record failures are
// counted and logged without aborting the run.
func (s *SupplierSyncService) SyncCard(ctx context.Context, cardID string) (*SyncResult, error) {
	const op = "supplier.sync_card"

	card, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.Supplier == "" {
		return nil, apperr.New(apperr.KindValidation, op, cardID, "card has no supplier")
	}

	feed, err := s.fetchFeed(ctx, cardID)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{CardID: cardID}
	for _, record := range feed {
		operation, ok := supplierOperations[record.Type]
		if !ok {
			log.Printf("[SYNC] data quality: unknown supplier type %q on %s", record.Type, record.Reference)
			result.Failed++
			continue
		}

		exists, err := s.ledger.ExistsSupplierRef(ctx, card.Supplier, record.Reference)
		if err != nil {
			return result, err
		}
		if exists {
			result.Skipped++
			continue
		}

		_, err = s.entries.Create(ctx, CreateEntryInput{
			UserID:      card.UserID,
			CardID:      cardID,
			Operation:   operation,
			Amount:      record.Amount,
			Supplier:    card.Supplier,
			SupplierRef: record.Reference,
			Description: fmt.Sprintf("imported from %s", card.Supplier),
		}, "supplier-sync")
		if err != nil {
			log.Printf("[SYNC] import failed for %s: %v", record.Reference, err)
			result.Failed++
			continue
		}
		result.Imported++
	}

	log.Printf("[SYNC] card %s: %d imported, %d skipped, %d failed",
		cardID, result.Imported, result.Skipped, result.Failed)
	return result, nil
}

func (s *SupplierSyncService) fetchFeed(ctx context.Context, cardID string) ([]supplierTransaction, error) {
	const op = "supplier.fetch"

	url := fmt.Sprintf("%s/v1/cards/%s/transactions", s.baseURL, cardID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, op, cardID, err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, op, cardID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Newf(apperr.KindUpstream, op, cardID, "supplier returned status %d", resp.StatusCode)
	}

	var payload struct {
		Transactions []supplierTransaction `json:"transactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, op, cardID, err)
	}
	return payload.Transactions, nil
}
