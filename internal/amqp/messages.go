package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tally/internal/core"
)

// EventKind names what happened to a transaction.
type EventKind string

const (
	TransactionRecorded EventKind = "transaction.recorded"
	TransactionRemoved  EventKind = "transaction.removed"
)

var ErrInvalidEvent = errors.New("invalid ledger event")

// LedgerEvent is published after a committed mutation. It carries the full
// transaction snapshot so consumers never need to read it back; a removed
// transaction no longer exists in the store.
type LedgerEvent struct {
	Kind        EventKind        `json:"kind"`
	Owner       string           `json:"owner"`
	Transaction core.Transaction `json:"transaction"`
	Timestamp   time.Time        `json:"timestamp"`
}

func NewTransactionRecorded(tx core.Transaction) LedgerEvent {
	return LedgerEvent{Kind: TransactionRecorded, Owner: tx.Owner, Transaction: tx, Timestamp: time.Now().UTC()}
}

func NewTransactionRemoved(tx core.Transaction) LedgerEvent {
	return LedgerEvent{Kind: TransactionRemoved, Owner: tx.Owner, Transaction: tx, Timestamp: time.Now().UTC()}
}

func (e LedgerEvent) Validate() error {
	switch e.Kind {
	case TransactionRecorded, TransactionRemoved:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	if e.Owner == "" || e.Transaction.ID == "" {
		return fmt.Errorf("%w: missing owner or transaction id", ErrInvalidEvent)
	}
	if e.Transaction.Owner != e.Owner {
		return fmt.Errorf("%w: owner mismatch", ErrInvalidEvent)
	}
	return nil
}

// Day returns the day bucket touched by the event.
func (e LedgerEvent) Day() core.DayKey { return e.Transaction.Day() }

func (e LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and validates an event.
func LedgerEventFromJSON(data []byte) (LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return LedgerEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := e.Validate(); err != nil {
		return LedgerEvent{}, err
	}
	return e, nil
}
