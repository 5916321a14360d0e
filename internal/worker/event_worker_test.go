package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/services"
	sheetsmem "tally/internal/sheets/memory"
	"tally/internal/storage/memory"
)

type failingVerifier struct{ err error }

func (f failingVerifier) VerifyBucket(context.Context, string, int, int, int) error { return f.err }
func (f failingVerifier) VerifyAll(context.Context) (services.Report, error) {
	return services.Report{}, f.err
}

func seed(t *testing.T, store *memory.Store) core.Transaction {
	t.Helper()
	ctx := context.Background()
	if _, err := store.CreateCategory(ctx, core.Category{Owner: "u1", Name: "Food", Icon: "🍔", Type: core.Expense}); err != nil {
		t.Fatal(err)
	}
	id, err := store.RecordTransaction(ctx, core.NewTransaction{
		Owner:        "u1",
		Amount:       core.Money{Cents: 990},
		Date:         time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC),
		Type:         core.Expense,
		Category:     "Food",
		CategoryIcon: "🍔",
	})
	if err != nil {
		t.Fatal(err)
	}
	tx, err := store.GetTransaction(ctx, "u1", id)
	if err != nil {
		t.Fatal(err)
	}
	return tx
}

func TestHandleEvent_MirrorsRecordAndRemove(t *testing.T) {
	store := memory.New()
	mirror := sheetsmem.New()
	w := NewEventWorker(services.NewReconciler(store, 2), mirror)
	ctx := context.Background()

	tx := seed(t, store)
	if err := w.HandleEvent(ctx, amqp.NewTransactionRecorded(tx)); err != nil {
		t.Fatalf("recorded: %v", err)
	}
	if rows := mirror.Rows(); len(rows) != 1 || rows[0][0] != tx.ID {
		t.Fatalf("unexpected mirror rows %v", rows)
	}

	if _, err := store.RemoveTransaction(ctx, "u1", tx.ID); err != nil {
		t.Fatal(err)
	}
	if err := w.HandleEvent(ctx, amqp.NewTransactionRemoved(tx)); err != nil {
		t.Fatalf("removed: %v", err)
	}
	if rows := mirror.Rows(); len(rows) != 0 {
		t.Fatalf("row not removed: %v", rows)
	}
}

func TestHandleEvent_ErrorClassification(t *testing.T) {
	tx := core.Transaction{ID: "t1", Owner: "u1", Date: time.Now(), Type: core.Income, Category: "Salary"}
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"consistent", nil, false},
		{"out of sync is logged only", core.Consistencyf("bucket out of sync"), false},
		{"storage failure is redelivered", core.NewStorageError("live totals", errors.New("disk I/O error")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mirror := sheetsmem.New()
			w := NewEventWorker(failingVerifier{err: tt.err}, mirror)
			err := w.HandleEvent(context.Background(), amqp.NewTransactionRecorded(tx))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(mirror.Rows()) != 1 {
				t.Fatal("transaction should be mirrored")
			}
		})
	}
}

func TestHandleEvent_InvalidEvent(t *testing.T) {
	w := NewEventWorker(failingVerifier{}, nil)
	err := w.HandleEvent(context.Background(), amqp.LedgerEvent{Kind: "transaction.edited"})
	if !errors.Is(err, amqp.ErrInvalidEvent) {
		t.Fatalf("expected invalid event error, got %v", err)
	}
}

func TestVerifyOnce(t *testing.T) {
	store := memory.New()
	seed(t, store)
	store.SetBucket("u1", 2024, 5, 2, core.Totals{})
	w := NewEventWorker(services.NewReconciler(store, 1), nil)

	if err := w.VerifyOnce(context.Background()); err != nil {
		t.Fatalf("mismatches must not fail the pass: %v", err)
	}

	w = NewEventWorker(failingVerifier{err: core.NewStorageError("owners", errors.New("closed"))}, nil)
	if err := w.VerifyOnce(context.Background()); !errors.Is(err, core.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestPeriodicVerifyStopsOnCancel(t *testing.T) {
	w := NewEventWorker(failingVerifier{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.PeriodicVerify(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PeriodicVerify did not return after cancel")
	}
}
