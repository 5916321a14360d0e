package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"tally/internal/core"
	"tally/internal/ledger"
)

// Mismatch is a bucket whose stored totals differ from the live sum of its
// transactions. Day is 0 for a month bucket.
type Mismatch struct {
	Owner  string
	Year   int
	Month  int
	Day    int
	Stored core.Totals
	Live   core.Totals
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s %04d-%02d-%02d stored=%s/%s live=%s/%s", m.Owner, m.Year, m.Month, m.Day,
		m.Stored.Income, m.Stored.Expense, m.Live.Income, m.Live.Expense)
}

// Report summarizes a verification pass.
type Report struct {
	Owners     int
	Buckets    int
	Mismatches []Mismatch
}

// Reconciler checks that the history buckets still equal the sums of the
// transactions they derive from, and rebuilds them when asked.
type Reconciler struct {
	auditor     ledger.HistoryAuditor
	concurrency int
}

func NewReconciler(auditor ledger.HistoryAuditor, concurrency int) *Reconciler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reconciler{auditor: auditor, concurrency: concurrency}
}

// VerifyBucket checks the day bucket (when day > 0) and its month bucket.
// A difference is reported as a consistency error.
func (r *Reconciler) VerifyBucket(ctx context.Context, owner string, year, month, day int) error {
	days := []int{0}
	if day > 0 {
		days = []int{day, 0}
	}
	for _, d := range days {
		m, err := r.check(ctx, owner, year, month, d)
		if err != nil {
			return err
		}
		if m != nil {
			return core.Consistencyf("bucket out of sync: %s", m)
		}
	}
	return nil
}

func (r *Reconciler) check(ctx context.Context, owner string, year, month, day int) (*Mismatch, error) {
	stored, live, err := r.auditor.AuditBucket(ctx, owner, year, month, day)
	if err != nil {
		return nil, fmt.Errorf("audit bucket: %w", err)
	}
	if stored == live {
		return nil, nil
	}
	return &Mismatch{Owner: owner, Year: year, Month: month, Day: day, Stored: stored, Live: live}, nil
}

// VerifyOwner checks every active day of owner, then every active month.
// A month bucket with no day behind it is still checked.
func (r *Reconciler) VerifyOwner(ctx context.Context, owner string) (Report, error) {
	days, err := r.auditor.ActiveDays(ctx, owner)
	if err != nil {
		return Report{}, fmt.Errorf("active days: %w", err)
	}
	months, err := r.auditor.ActiveMonths(ctx, owner)
	if err != nil {
		return Report{}, fmt.Errorf("active months: %w", err)
	}

	rep := Report{Owners: 1}
	verify := func(year, month, day int) error {
		m, err := r.check(ctx, owner, year, month, day)
		if err != nil {
			return err
		}
		rep.Buckets++
		if m != nil {
			rep.Mismatches = append(rep.Mismatches, *m)
		}
		return nil
	}
	for _, k := range days {
		if err := verify(k.Year, k.Month, k.Day); err != nil {
			return rep, err
		}
	}
	for _, k := range months {
		if err := verify(k.Year, k.Month, 0); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// VerifyAll verifies every owner with bounded parallelism. Mismatches are
// logged and returned in the report together with a consistency error.
func (r *Reconciler) VerifyAll(ctx context.Context) (Report, error) {
	owners, err := r.auditor.Owners(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list owners: %w", err)
	}

	var (
		mu    sync.Mutex
		total Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, owner := range owners {
		g.Go(func() error {
			rep, err := r.VerifyOwner(gctx, owner)
			if err != nil {
				return fmt.Errorf("verify owner %s: %w", owner, err)
			}
			mu.Lock()
			total.Owners += rep.Owners
			total.Buckets += rep.Buckets
			total.Mismatches = append(total.Mismatches, rep.Mismatches...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}

	for _, m := range total.Mismatches {
		slog.ErrorContext(ctx, "History bucket out of sync",
			"owner", m.Owner,
			"year", m.Year,
			"month", m.Month,
			"day", m.Day,
			"stored_income", m.Stored.Income.String(),
			"stored_expense", m.Stored.Expense.String(),
			"live_income", m.Live.Income.String(),
			"live_expense", m.Live.Expense.String())
	}
	slog.InfoContext(ctx, "History verification finished",
		"owners", total.Owners,
		"buckets", total.Buckets,
		"mismatches", len(total.Mismatches))

	if len(total.Mismatches) > 0 {
		return total, core.Consistencyf("%d history buckets out of sync", len(total.Mismatches))
	}
	return total, nil
}

// Rebuild recomputes every bucket of owner from its transactions.
func (r *Reconciler) Rebuild(ctx context.Context, owner string) error {
	if err := r.auditor.RebuildHistory(ctx, owner); err != nil {
		return fmt.Errorf("rebuild history for %s: %w", owner, err)
	}
	slog.InfoContext(ctx, "History rebuilt", "owner", owner)
	return nil
}

// RebuildAll rebuilds every owner with bounded parallelism.
func (r *Reconciler) RebuildAll(ctx context.Context) (int, error) {
	owners, err := r.auditor.Owners(ctx)
	if err != nil {
		return 0, fmt.Errorf("list owners: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, owner := range owners {
		g.Go(func() error { return r.Rebuild(gctx, owner) })
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(owners), nil
}
