package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/ledger"
)

// EventPublisher delivers ledger events to asynchronous consumers.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, e amqp.LedgerEvent) error
}

// LedgerStore is the part of ledger.Store the ledger service writes through.
type LedgerStore interface {
	ledger.CategoryStore
	ledger.TransactionRecorder
	ledger.TransactionReader
}

const defaultRetryDelay = 100 * time.Millisecond

// LedgerService orchestrates category and transaction mutations. The store
// commits first; events are published afterwards on a best effort basis.
type LedgerService struct {
	store      LedgerStore
	publisher  EventPublisher
	maxRetries int
	retryDelay time.Duration
}

// NewLedgerService builds the service. publisher may be nil. maxRetries
// bounds the extra attempts made for a storage failure on a keyed record.
func NewLedgerService(store LedgerStore, publisher EventPublisher, maxRetries int) *LedgerService {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &LedgerService{
		store:      store,
		publisher:  publisher,
		maxRetries: maxRetries,
		retryDelay: defaultRetryDelay,
	}
}

func (s *LedgerService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	created, err := s.store.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	slog.InfoContext(ctx, "Category created", "owner", c.Owner, "name", created.Name, "type", created.Type)
	return created, nil
}

func (s *LedgerService) ListCategories(ctx context.Context, owner string, typ core.TransactionType) ([]core.Category, error) {
	if typ != "" {
		if err := typ.Validate(); err != nil {
			return nil, err
		}
	}
	cats, err := s.store.ListCategories(ctx, owner, typ)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// DeleteCategory removes the category only. Transactions keep their copy of
// its name and icon.
func (s *LedgerService) DeleteCategory(ctx context.Context, owner, name string, typ core.TransactionType) (core.Category, error) {
	if err := typ.Validate(); err != nil {
		return core.Category{}, err
	}
	deleted, err := s.store.DeleteCategory(ctx, owner, name, typ)
	if err != nil {
		return core.Category{}, fmt.Errorf("delete category: %w", err)
	}
	slog.InfoContext(ctx, "Category deleted", "owner", owner, "name", deleted.Name, "type", deleted.Type)
	return deleted, nil
}

// RecordTransaction resolves the category's current icon, records the
// transaction and publishes a recorded event.
//
// A storage failure is retried only when the input carries an idempotency
// key: without one, a commit that succeeded but reported an error would be
// applied twice.
func (s *LedgerService) RecordTransaction(ctx context.Context, in core.NewTransaction) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}

	cat, err := s.store.GetCategory(ctx, in.Owner, in.Category, in.Type)
	if err != nil {
		return "", fmt.Errorf("resolve category: %w", err)
	}
	in.Category = cat.Name
	in.CategoryIcon = cat.Icon

	var id string
	for attempt := 0; ; attempt++ {
		id, err = s.store.RecordTransaction(ctx, in)
		if err == nil {
			break
		}
		if !s.retryable(in, err, attempt) {
			return "", fmt.Errorf("record transaction: %w", err)
		}
		slog.WarnContext(ctx, "Retrying transaction record",
			"owner", in.Owner,
			"idempotency_key", in.IdempotencyKey,
			"attempt", attempt+1,
			"error", err)
		if err := sleepCtx(ctx, s.retryDelay<<attempt); err != nil {
			return "", err
		}
	}

	slog.InfoContext(ctx, "Transaction recorded",
		"id", id,
		"owner", in.Owner,
		"type", in.Type,
		"category", in.Category,
		"amount", in.Amount.String())

	tx, err := s.store.GetTransaction(ctx, in.Owner, id)
	if err != nil {
		slog.WarnContext(ctx, "Recorded transaction not readable for event", "id", id, "error", err)
		tx = core.Transaction{
			ID: id, Owner: in.Owner, Amount: in.Amount, Description: in.Description, Date: in.Date.UTC(),
			Type: in.Type, Category: in.Category, CategoryIcon: in.CategoryIcon,
		}
	}
	s.publish(ctx, amqp.NewTransactionRecorded(tx))
	return id, nil
}

func (s *LedgerService) retryable(in core.NewTransaction, err error, attempt int) bool {
	return in.IdempotencyKey != "" && errors.Is(err, core.ErrStorage) && attempt < s.maxRetries
}

// RemoveTransaction is never retried: a removal whose commit was reported as
// failed is simply reported back to the caller.
func (s *LedgerService) RemoveTransaction(ctx context.Context, owner, id string) (core.Transaction, error) {
	removed, err := s.store.RemoveTransaction(ctx, owner, id)
	if errors.Is(err, core.ErrConsistency) {
		slog.ErrorContext(ctx, "History aggregate invariant violated",
			"owner", owner,
			"transaction_id", id,
			"error", err)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("remove transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction removed",
		"id", id,
		"owner", owner,
		"type", removed.Type,
		"amount", removed.Amount.String())
	s.publish(ctx, amqp.NewTransactionRemoved(removed))
	return removed, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, owner, id string) (core.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, owner, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// TransactionHistory lists the owner's transactions in r, newest first.
func (s *LedgerService) TransactionHistory(ctx context.Context, owner string, r core.DateRange) ([]core.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, owner, r)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *LedgerService) publish(ctx context.Context, e amqp.LedgerEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher, skipping ledger event", "kind", e.Kind)
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, e); err != nil {
		// The mutation is committed; consumers catch up through periodic verification.
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"kind", e.Kind,
			"transaction_id", e.Transaction.ID,
			"error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
