package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/loopcard/backend/internal/apperr"
	"github.com/loopcard/backend/internal/models"
)

// MemoryStore backs every store interface with in-process maps. It mirrors
// the Postgres semantics (optimistic version checks, atomic latest flip,
// membership stamping) so service tests and local development run without a
// database. Facet accessors hand out the individual interfaces.
type MemoryStore struct {
	mu             sync.Mutex
	entries        map[string]models.LedgerEntry
	cards          map[string]models.Card
	users          map[string]models.User
	consolidations map[string]models.Consolidation
	seq            int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:        make(map[string]models.LedgerEntry),
		cards:          make(map[string]models.Card),
		users:          make(map[string]models.User),
		consolidations: make(map[string]models.Consolidation),
	}
}

func (m *MemoryStore) Ledger() LedgerStore                { return memoryLedger{m} }
func (m *MemoryStore) Cards() CardStore                   { return memoryCards{m} }
func (m *MemoryStore) Users() UserStore                   { return memoryUsers{m} }
func (m *MemoryStore) Consolidations() ConsolidationStore { return memoryConsolidations{m} }

func cloneEntry(e models.LedgerEntry) models.LedgerEntry {
	out := e
	out.History = append(models.History(nil), e.History...)
	if e.ReconciliationID != nil {
		id := *e.ReconciliationID
		out.ReconciliationID = &id
	}
	if e.DeletedAt != nil {
		t := *e.DeletedAt
		out.DeletedAt = &t
	}
	return out
}

func cloneConsolidation(c models.Consolidation) models.Consolidation {
	out := c
	out.MemberEntryIDs = append([]string(nil), c.MemberEntryIDs...)
	out.NewEntryIDs = append([]string(nil), c.NewEntryIDs...)
	if c.BaseConsolidationID != nil {
		id := *c.BaseConsolidationID
		out.BaseConsolidationID = &id
	}
	return out
}

func sortEntries(entries []models.LedgerEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}

// --- LedgerStore facet ---

type memoryLedger struct{ m *MemoryStore }

func (l memoryLedger) Insert(ctx context.Context, e *models.LedgerEntry) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	l.m.seq++
	entry := cloneEntry(*e)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Unix(0, l.m.seq)
	}
	l.m.entries[e.ID] = entry
	return nil
}

func (l memoryLedger) FindByID(ctx context.Context, id string) (*models.LedgerEntry, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	e, ok := l.m.entries[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "store.ledger.find", id, "ledger entry not found")
	}
	out := cloneEntry(e)
	return &out, nil
}

func (l memoryLedger) FindByIDs(ctx context.Context, ids []string) ([]models.LedgerEntry, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	var entries []models.LedgerEntry
	for _, id := range ids {
		if e, ok := l.m.entries[id]; ok {
			entries = append(entries, cloneEntry(e))
		}
	}
	sortEntries(entries)
	return entries, nil
}

func (l memoryLedger) FindByCard(ctx context.Context, cardID string, includeDeleted bool) ([]models.LedgerEntry, error) {
	return l.findByOwner(func(e models.LedgerEntry) bool { return e.CardID == cardID }, includeDeleted)
}

func (l memoryLedger) FindByUser(ctx context.Context, userID string, includeDeleted bool) ([]models.LedgerEntry, error) {
	return l.findByOwner(func(e models.LedgerEntry) bool { return e.UserID == userID }, includeDeleted)
}

func (l memoryLedger) findByOwner(match func(models.LedgerEntry) bool, includeDeleted bool) ([]models.LedgerEntry, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	var entries []models.LedgerEntry
	for _, e := range l.m.entries {
		if !match(e) {
			continue
		}
		if e.IsDeleted && !includeDeleted {
			continue
		}
		entries = append(entries, cloneEntry(e))
	}
	sortEntries(entries)
	return entries, nil
}

func (l memoryLedger) Update(ctx context.Context, e *models.LedgerEntry, expectedVersion int) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	current, ok := l.m.entries[e.ID]
	if !ok || current.Version != expectedVersion {
		return apperr.Newf(apperr.KindConflict, "store.ledger.update", e.ID,
			"optimistic lock failed at version %d", expectedVersion)
	}
	updated := cloneEntry(*e)
	updated.CreatedAt = current.CreatedAt
	l.m.entries[e.ID] = updated
	return nil
}

func (l memoryLedger) ExistsSupplierRef(ctx context.Context, supplier, ref string) (bool, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	for _, e := range l.m.entries {
		if e.Supplier == supplier && e.SupplierRef == ref {
			return true, nil
		}
	}
	return false, nil
}

// --- CardStore facet ---

type memoryCards struct{ m *MemoryStore }

func (c memoryCards) Insert(ctx context.Context, card *models.Card) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.cards[card.ID] = *card
	return nil
}

func (c memoryCards) Get(ctx context.Context, id string) (*models.Card, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	card, ok := c.m.cards[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "store.card.get", id, "card not found")
	}
	out := card
	return &out, nil
}

func (c memoryCards) ListIDs(ctx context.Context) ([]string, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	ids := make([]string, 0, len(c.m.cards))
	for id := range c.m.cards {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c memoryCards) ListIDsBySupplier(ctx context.Context, supplier string) ([]string, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	var ids []string
	for id, card := range c.m.cards {
		if card.Supplier == supplier {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (c memoryCards) WriteStats(ctx context.Context, id string, stats models.StatsSnapshot) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	card, ok := c.m.cards[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "store.card.write_stats", id, "card not found")
	}
	now := time.Now()
	card.Stats = stats
	card.StatsUpdatedAt = &now
	c.m.cards[id] = card
	return nil
}

func (c memoryCards) SetStatus(ctx context.Context, id, status string) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	card, ok := c.m.cards[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "store.card.set_status", id, "card not found")
	}
	card.Status = status
	c.m.cards[id] = card
	return nil
}

// --- UserStore facet ---

type memoryUsers struct{ m *MemoryStore }

func (u memoryUsers) Insert(ctx context.Context, user *models.User) error {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	u.m.users[user.ID] = *user
	return nil
}

func (u memoryUsers) Get(ctx context.Context, id string) (*models.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	user, ok := u.m.users[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "store.user.get", id, "user not found")
	}
	out := user
	return &out, nil
}

func (u memoryUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	for _, user := range u.m.users {
		if user.Email == email {
			out := user
			return &out, nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "store.user.get", email, "user not found")
}

func (u memoryUsers) WriteStats(ctx context.Context, id string, stats models.StatsSnapshot) error {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	user, ok := u.m.users[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "store.user.write_stats", id, "user not found")
	}
	now := time.Now()
	user.Stats = stats
	user.StatsUpdatedAt = &now
	u.m.users[id] = user
	return nil
}

// --- ConsolidationStore facet ---

type memoryConsolidations struct{ m *MemoryStore }

func (s memoryConsolidations) Latest(ctx context.Context, userID, cardID string) (*models.Consolidation, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, c := range s.m.consolidations {
		if c.UserID == userID && c.CardID == cardID && c.IsLatest {
			out := cloneConsolidation(c)
			return &out, nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "store.consolidation.latest", cardID, "no consolidation for pair")
}

func (s memoryConsolidations) Get(ctx context.Context, id string) (*models.Consolidation, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	c, ok := s.m.consolidations[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "store.consolidation.get", id, "consolidation not found")
	}
	out := cloneConsolidation(c)
	return &out, nil
}

func (s memoryConsolidations) Append(ctx context.Context, c *models.Consolidation, base *models.Consolidation) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if base != nil {
		current, ok := s.m.consolidations[base.ID]
		if !ok || !current.IsLatest || current.Version != base.Version {
			return apperr.New(apperr.KindConflict, "store.consolidation.append", base.ID,
				"base consolidation is no longer latest")
		}
		current.IsLatest = false
		s.m.consolidations[base.ID] = current
	} else {
		for _, existing := range s.m.consolidations {
			if existing.UserID == c.UserID && existing.CardID == c.CardID && existing.IsLatest {
				return apperr.New(apperr.KindConflict, "store.consolidation.append", c.ID,
					"another consolidation won the latest flip")
			}
		}
	}

	s.m.consolidations[c.ID] = cloneConsolidation(*c)

	now := time.Now()
	for _, id := range c.NewEntryIDs {
		e, ok := s.m.entries[id]
		if !ok {
			continue
		}
		cid := c.ID
		e.Reconciled = true
		e.ReconciliationID = &cid
		e.UpdatedAt = now
		s.m.entries[id] = e
	}
	return nil
}

func (s memoryConsolidations) ListChain(ctx context.Context, userID, cardID string) ([]models.Consolidation, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var chain []models.Consolidation
	for _, c := range s.m.consolidations {
		if c.UserID == userID && c.CardID == cardID {
			chain = append(chain, cloneConsolidation(c))
		}
	}
	sort.Slice(chain, func(i, j int) bool { return chain[i].Version < chain[j].Version })
	return chain, nil
}

func (s memoryConsolidations) PurgeChain(ctx context.Context, userID, cardID string) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var removed int64
	for id, c := range s.m.consolidations {
		if c.UserID == userID && c.CardID == cardID {
			delete(s.m.consolidations, id)
			removed++
		}
	}
	for id, e := range s.m.entries {
		if e.UserID == userID && e.CardID == cardID && e.Reconciled {
			e.Reconciled = false
			e.ReconciliationID = nil
			s.m.entries[id] = e
		}
	}
	return removed, nil
}
