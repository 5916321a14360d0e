// Package ledger defines the storage ports of the ledger core.
//
// Every method is scoped to a single owner. Implementations must enforce the
// scoping themselves: a row that belongs to another owner behaves exactly like
// a row that does not exist.
package ledger

import (
	"context"

	"tally/internal/core"
)

type (
	CategoryStore interface {
		// CreateCategory fails with core.ErrConflict when (owner, name, type) exists.
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		GetCategory(ctx context.Context, owner, name string, typ core.TransactionType) (core.Category, error)
		// ListCategories returns categories ordered by name. An empty typ lists both types.
		ListCategories(ctx context.Context, owner string, typ core.TransactionType) ([]core.Category, error)
		// DeleteCategory removes the category and returns it. Transactions keep
		// their snapshot of name and icon.
		DeleteCategory(ctx context.Context, owner, name string, typ core.TransactionType) (core.Category, error)
	}

	// TransactionRecorder holds the two atomic mutations. Each one commits the
	// transaction row and both history buckets together or not at all.
	TransactionRecorder interface {
		// RecordTransaction returns the id of the new transaction. When the input
		// carries an idempotency key already used by the owner, the id of the
		// original transaction is returned and nothing is applied.
		RecordTransaction(ctx context.Context, tx core.NewTransaction) (string, error)
		// RemoveTransaction returns the removed transaction. Missing and foreign
		// ids both yield core.ErrNotFound.
		RemoveTransaction(ctx context.Context, owner, id string) (core.Transaction, error)
	}

	TransactionReader interface {
		GetTransaction(ctx context.Context, owner, id string) (core.Transaction, error)
		// ListTransactions returns transactions in the range, newest date first.
		ListTransactions(ctx context.Context, owner string, r core.DateRange) ([]core.Transaction, error)
	}

	// StatsReader serves the read side. Balance and CategoryTotals are live
	// sums over transactions; the history reads return stored buckets, sparse.
	StatsReader interface {
		Balance(ctx context.Context, owner string, r core.DateRange) (core.Balance, error)
		CategoryTotals(ctx context.Context, owner string, r core.DateRange) ([]core.CategoryTotal, error)
		DayHistory(ctx context.Context, owner string, year, month int) ([]core.DayHistory, error)
		MonthHistory(ctx context.Context, owner string, year int) ([]core.MonthHistory, error)
		// HistoryYears returns the distinct years present in the month buckets, ascending.
		HistoryYears(ctx context.Context, owner string) ([]int, error)
	}

	SettingsStore interface {
		GetSettings(ctx context.Context, owner string) (core.UserSettings, error)
		// SaveSettings inserts or updates the owner's settings.
		SaveSettings(ctx context.Context, s core.UserSettings) (core.UserSettings, error)
		// EnsureSettings returns the stored settings, creating them with
		// defaultCurrency when absent.
		EnsureSettings(ctx context.Context, owner, defaultCurrency string) (core.UserSettings, error)
	}

	// HistoryAuditor exposes what is needed to check and repair the history
	// buckets against the transactions they derive from. A day of 0 selects
	// the month bucket.
	HistoryAuditor interface {
		Owners(ctx context.Context) ([]string, error)
		// ActiveDays returns every day that has a transaction or a stored
		// bucket, ordered chronologically.
		ActiveDays(ctx context.Context, owner string) ([]core.DayKey, error)
		// ActiveMonths returns every month that has a transaction, a day
		// bucket or a month bucket, ordered chronologically.
		ActiveMonths(ctx context.Context, owner string) ([]core.MonthKey, error)
		LiveTotals(ctx context.Context, owner string, year, month, day int) (core.Totals, error)
		StoredTotals(ctx context.Context, owner string, year, month, day int) (core.Totals, error)
		// AuditBucket reads the stored and the live totals of one bucket from
		// the same snapshot, so a concurrent mutation is seen by both or by
		// neither.
		AuditBucket(ctx context.Context, owner string, year, month, day int) (stored, live core.Totals, err error)
		// RebuildHistory recomputes every bucket of owner from its
		// transactions in one atomic step.
		RebuildHistory(ctx context.Context, owner string) error
	}

	Store interface {
		CategoryStore
		TransactionRecorder
		TransactionReader
		StatsReader
		SettingsStore
		HistoryAuditor
		Ping(ctx context.Context) error
		Close() error
	}
)

// Step names a point inside an atomic mutation, right after the named write.
type Step string

const (
	StepInsertTransaction Step = "insert_transaction"
	StepDeleteTransaction Step = "delete_transaction"
	StepDayHistory        Step = "day_history"
	StepMonthHistory      Step = "month_history"
)

// FaultInjector is implemented by stores that can fail a mutation on purpose.
// The fault fires once, on the next mutation that reaches step, after the
// write of that step has been issued. A nil err clears the fault.
type FaultInjector interface {
	InjectFault(step Step, err error)
}
