package services

import (
	"context"
	"errors"
	"testing"

	"tally/internal/core"
	"tally/internal/storage/memory"
)

func TestReconciler(t *testing.T) {
	svc, store, _ := newLedgerFixture(t)
	ctx := context.Background()
	for _, c := range []int64{100, 250, 400} {
		if _, err := svc.RecordTransaction(ctx, expense(c)); err != nil {
			t.Fatal(err)
		}
	}
	rec := NewReconciler(store, 4)

	if err := rec.VerifyBucket(ctx, "u1", 2024, 3, 15); err != nil {
		t.Fatalf("consistent bucket reported: %v", err)
	}
	rep, err := rec.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("verify all: %v", err)
	}
	if rep.Owners != 1 || rep.Buckets != 2 || len(rep.Mismatches) != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}

	// Lose an update on the day bucket.
	store.SetBucket("u1", 2024, 3, 15, core.Totals{Expense: core.Money{Cents: 100}})

	if err := rec.VerifyBucket(ctx, "u1", 2024, 3, 15); !errors.Is(err, core.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	if err := rec.VerifyBucket(ctx, "u1", 2024, 3, 0); err != nil {
		t.Fatalf("month bucket is still fine: %v", err)
	}

	rep, err = rec.VerifyAll(ctx)
	if !errors.Is(err, core.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	if len(rep.Mismatches) != 1 || rep.Mismatches[0].Day != 15 || rep.Mismatches[0].Live.Expense.Cents != 750 {
		t.Fatalf("unexpected mismatches %+v", rep.Mismatches)
	}

	n, err := rec.RebuildAll(ctx)
	if err != nil || n != 1 {
		t.Fatalf("rebuild all: %d, %v", n, err)
	}
	if _, err := rec.VerifyAll(ctx); err != nil {
		t.Fatalf("still inconsistent after rebuild: %v", err)
	}
}

func TestReconcilerChecksMonthWithoutDays(t *testing.T) {
	_, store, _ := newLedgerFixture(t)
	ctx := context.Background()
	store.SetBucket("u1", 2023, 1, 0, core.Totals{Income: core.Money{Cents: 5}})

	rep, err := NewReconciler(store, 2).VerifyAll(ctx)
	if !errors.Is(err, core.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	if len(rep.Mismatches) != 1 {
		t.Fatalf("unexpected mismatches %+v", rep.Mismatches)
	}
	m := rep.Mismatches[0]
	if m.Year != 2023 || m.Month != 1 || m.Day != 0 || m.Stored.Income.Cents != 5 || !m.Live.IsZero() {
		t.Fatalf("unexpected mismatch %+v", m)
	}
}

// interleavingStore records a transaction between the stored and the live
// read of a bucket when they are issued as separate calls.
type interleavingStore struct {
	*memory.Store
	svc *LedgerService
	t   *testing.T
}

func (s interleavingStore) StoredTotals(ctx context.Context, owner string, year, month, day int) (core.Totals, error) {
	tot, err := s.Store.StoredTotals(ctx, owner, year, month, day)
	if _, err := s.svc.RecordTransaction(ctx, expense(10)); err != nil {
		s.t.Errorf("concurrent record: %v", err)
	}
	return tot, err
}

func TestReconcilerReadsBucketAtomically(t *testing.T) {
	svc, store, _ := newLedgerFixture(t)
	ctx := context.Background()
	if _, err := svc.RecordTransaction(ctx, expense(100)); err != nil {
		t.Fatal(err)
	}

	rec := NewReconciler(interleavingStore{Store: store, svc: svc, t: t}, 1)
	if err := rec.VerifyBucket(ctx, "u1", 2024, 3, 15); err != nil {
		t.Fatalf("verification saw a torn bucket: %v", err)
	}
	rep, err := rec.VerifyAll(ctx)
	if err != nil || len(rep.Mismatches) != 0 {
		t.Fatalf("verify all: %+v, %v", rep, err)
	}
}
