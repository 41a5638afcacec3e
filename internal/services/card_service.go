package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/loopcard/backend/internal/apperr"
	"github.com/loopcard/backend/internal/models"
	"github.com/loopcard/backend/internal/store"
)

// CardService manages card records. Financial state lives in the ledger;
// the card only carries its derived stats snapshot.
type CardService struct {
	cards store.CardStore
	users store.UserStore
}

func NewCardService(cards store.CardStore, users store.UserStore) *CardService {
	return &CardService{cards: cards, users: users}
}

func (s *CardService) Issue(ctx context.Context, req models.CardIssueRequest) (*models.Card, error) {
	if _, err := s.users.Get(ctx, req.UserID); err != nil {
		return nil, err
	}

	now := time.Now()
	card := &models.Card{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Label:     req.Label,
		Supplier:  req.Supplier,
		Currency:  req.Currency,
		Status:    models.CardStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.cards.Insert(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

func (s *CardService) Get(ctx context.Context, id string) (*models.Card, error) {
	return s.cards.Get(ctx, id)
}

func (s *CardService) Suspend(ctx context.Context, id string) error {
	card, err := s.cards.Get(ctx, id)
	if err != nil {
		return err
	}
	if card.Status == models.CardStatusClosed {
		return apperr.New(apperr.KindValidation, "card.suspend", id, "closed cards cannot be suspended")
	}
	return s.cards.SetStatus(ctx, id, models.CardStatusSuspended)
}

func (s *CardService) Reinstate(ctx context.Context, id string) error {
	card, err := s.cards.Get(ctx, id)
	if err != nil {
		return err
	}
	if card.Status != models.CardStatusSuspended {
		return apperr.New(apperr.KindValidation, "card.reinstate", id, "only suspended cards can be reinstated")
	}
	return s.cards.SetStatus(ctx, id, models.CardStatusActive)
}
