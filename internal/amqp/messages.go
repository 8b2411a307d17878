package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names the ledger mutation an event describes.
type EventType string

const (
	EventBalanceSet     EventType = "balance_set"
	EventExpenseAdded   EventType = "expense_added"
	EventExpenseEdited  EventType = "expense_edited"
	EventExpenseDeleted EventType = "expense_deleted"
	EventMonthCleared   EventType = "month_cleared"
)

// LedgerEvent is published after a mutation has been persisted. Consumers
// get enough to audit the change, not the whole document.
type LedgerEvent struct {
	Type      EventType `json:"type"`
	Month     string    `json:"month"`
	Item      string    `json:"item,omitempty"`
	Date      string    `json:"date,omitempty"`
	ID        string    `json:"id,omitempty"`
	Count     int       `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time.
func NewLedgerEvent(typ EventType, month string) *LedgerEvent {
	return &LedgerEvent{
		Type:      typ,
		Month:     month,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON parses an event and rejects ones without type or month.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.Type == "" || ev.Month == "" {
		return nil, fmt.Errorf("incomplete ledger event: type=%q month=%q", ev.Type, ev.Month)
	}
	return &ev, nil
}
