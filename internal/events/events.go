// Package events publishes domain events for downstream consumers (dashboard
// refreshes, provider webhooks). Publishing is best-effort: a failed publish
// is logged and never fails the originating operation.
package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Event types emitted by the services.
const (
	TypeEntryCreated         = "ledger.entry.created"
	TypeEntryUpdated         = "ledger.entry.updated"
	TypeEntryDeleted         = "ledger.entry.deleted"
	TypeEntryRestored        = "ledger.entry.restored"
	TypeStatsRefreshed       = "stats.refreshed"
	TypeConsolidationCreated = "consolidation.created"
	TypeConsolidationPurged  = "consolidation.purged"
)

// Event is the envelope published on the bus.
type Event struct {
	Type      string    `json:"type"`
	EntityID  string    `json:"entity_id"`
	CardID    string    `json:"card_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the injected event boundary, constructed at startup and
// passed into the services.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// RedisPublisher fans events out over a Redis pub/sub channel.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[EVENTS] marshal failed for %s: %v", event.Type, err)
		return
	}
	if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		log.Printf("[EVENTS] publish failed for %s: %v", event.Type, err)
	}
}

// MemoryPublisher records events in process, used by tests and when Redis is
// unavailable.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}
