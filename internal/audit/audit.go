package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	EntityID  string    `json:"entity_id"`
	CardID    string    `json:"card_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

// Logger is the fire-and-forget audit sink. Failures here never fail the
// core operation.
type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogEntryChange(action, entryID, cardID, userID string, amount int64, actor string) {
	event := Event{
		Timestamp: time.Now(),
		EventType: "LEDGER_" + action,
		EntityID:  entryID,
		CardID:    cardID,
		UserID:    userID,
		Amount:    amount,
		Actor:     actor,
		Status:    "SUCCESS",
	}
	a.log(event)
}

func (a *Logger) LogConsolidation(consolidationID, cardID, userID string, version int, actor string) {
	event := Event{
		Timestamp: time.Now(),
		EventType: "CONSOLIDATION_APPEND",
		EntityID:  consolidationID,
		CardID:    cardID,
		UserID:    userID,
		Actor:     actor,
		Status:    "SUCCESS",
		Details:   map[string]int{"version": version},
	}
	a.log(event)
}

func (a *Logger) LogPurge(cardID, userID string, removed int64, actor string) {
	event := Event{
		Timestamp: time.Now(),
		EventType: "CONSOLIDATION_PURGE",
		CardID:    cardID,
		UserID:    userID,
		Actor:     actor,
		Status:    "SUCCESS",
		Details:   map[string]int64{"removed": removed},
	}
	a.log(event)
}

func (a *Logger) LogError(entityID, cardID string, err error) {
	event := Event{
		Timestamp: time.Now(),
		EventType: "ERROR",
		EntityID:  entityID,
		CardID:    cardID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
