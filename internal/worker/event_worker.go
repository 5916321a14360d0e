package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/services"
	"tally/internal/sheets"
)

// Verifier is the part of services.Reconciler the worker depends on.
type Verifier interface {
	VerifyBucket(ctx context.Context, owner string, year, month, day int) error
	VerifyAll(ctx context.Context) (services.Report, error)
}

// EventWorker reacts to ledger events: it checks the buckets the event touched
// and mirrors the change to the spreadsheet when one is configured.
type EventWorker struct {
	verifier Verifier
	mirror   sheets.TransactionMirror
}

// NewEventWorker builds a worker. mirror may be nil.
func NewEventWorker(verifier Verifier, mirror sheets.TransactionMirror) *EventWorker {
	return &EventWorker{verifier: verifier, mirror: mirror}
}

// HandleEvent processes one ledger event. A returned error asks the consumer
// to redeliver the event, so only transient failures are returned: a bucket
// that is out of sync is logged and left for a rebuild.
func (w *EventWorker) HandleEvent(ctx context.Context, e amqp.LedgerEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	day := e.Day()

	slog.InfoContext(ctx, "Processing ledger event",
		"kind", e.Kind,
		"owner", e.Owner,
		"transaction_id", e.Transaction.ID)

	if err := w.verifier.VerifyBucket(ctx, e.Owner, day.Year, day.Month, day.Day); err != nil {
		if !errors.Is(err, core.ErrConsistency) {
			return fmt.Errorf("verify buckets: %w", err)
		}
		slog.ErrorContext(ctx, "History aggregate invariant violated",
			"kind", e.Kind,
			"owner", e.Owner,
			"transaction_id", e.Transaction.ID,
			"error", err)
	}

	if w.mirror == nil {
		return nil
	}
	switch e.Kind {
	case amqp.TransactionRecorded:
		if err := w.mirror.AppendTransaction(ctx, e.Transaction); err != nil {
			return fmt.Errorf("mirror append: %w", err)
		}
	case amqp.TransactionRemoved:
		if err := w.mirror.RemoveTransaction(ctx, e.Transaction.ID); err != nil {
			return fmt.Errorf("mirror remove: %w", err)
		}
	}
	return nil
}

// VerifyOnce runs a full verification and logs the outcome. Mismatches are
// not returned as errors.
func (w *EventWorker) VerifyOnce(ctx context.Context) error {
	start := time.Now()
	rep, err := w.verifier.VerifyAll(ctx)
	if err != nil && !errors.Is(err, core.ErrConsistency) {
		return fmt.Errorf("verify all: %w", err)
	}
	slog.InfoContext(ctx, "Periodic verification completed",
		"owners", rep.Owners,
		"buckets", rep.Buckets,
		"mismatches", len(rep.Mismatches),
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// PeriodicVerify runs VerifyOnce every interval until ctx is done.
func (w *EventWorker) PeriodicVerify(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		slog.InfoContext(ctx, "Periodic verification disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.VerifyOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic verification failed", "error", err)
			}
		}
	}
}
