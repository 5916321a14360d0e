// Package postgres is the PostgreSQL implementation of ledger.Store.
//
// Every call runs inside a database transaction that first sets
// app.owner_id, so the row level security policies installed by the
// migrations scope each statement to the caller even if a query forgot its
// owner predicate.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tally/internal/core"
	"tally/internal/ledger"
)

type Store struct {
	ledger.Faults

	pool *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

// New migrates the database at url and opens a connection pool to it.
func New(ctx context.Context, url string) (*Store, error) {
	if err := RunMigrations(url); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return core.NewStorageError("ping", err)
	}
	return nil
}

// asOwner runs fn in a transaction scoped to owner by the RLS policies.
func (s *Store) asOwner(ctx context.Context, owner, op string, fn func(tx pgx.Tx) error) error {
	return s.asOwnerWith(ctx, owner, op, pgx.TxOptions{}, fn)
}

func (s *Store) asOwnerWith(ctx context.Context, owner, op string, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	if strings.TrimSpace(owner) == "" {
		return core.ErrEmptyOwner
	}
	return s.inTxWith(ctx, op, opts, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, setOwner, owner); err != nil {
			return core.NewStorageError(op+": set owner", err)
		}
		return fn(tx)
	})
}

func (s *Store) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	return s.inTxWith(ctx, op, pgx.TxOptions{}, fn)
}

func (s *Store) inTxWith(ctx context.Context, op string, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return core.NewStorageError(op+": begin", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return core.NewStorageError(op+": commit", err)
	}
	return nil
}

func (s *Store) fault(step ledger.Step) error {
	if err := s.Fire(step); err != nil {
		return core.NewStorageError(string(step), err)
	}
	return nil
}

func (s *Store) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	err := s.asOwner(ctx, c.Owner, "create category", func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertCategory, c.Owner, c.Name, c.Icon, string(c.Type)).Scan(&c.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Conflictf("category %q (%s) already exists", c.Name, c.Type)
		}
		if err != nil {
			return core.NewStorageError("insert category", err)
		}
		return nil
	})
	if err != nil {
		return core.Category{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func (s *Store) GetCategory(ctx context.Context, owner, name string, typ core.TransactionType) (core.Category, error) {
	var c core.Category
	err := s.asOwner(ctx, owner, "get category", func(tx pgx.Tx) error {
		var err error
		c, err = scanCategory(tx.QueryRow(ctx, getCategory, owner, strings.TrimSpace(name), string(typ)))
		if errors.Is(err, pgx.ErrNoRows) {
			return core.NotFoundf("category %q (%s)", name, typ)
		}
		if err != nil {
			return core.NewStorageError("get category", err)
		}
		return nil
	})
	c.Owner = owner
	return c, err
}

func (s *Store) ListCategories(ctx context.Context, owner string, typ core.TransactionType) ([]core.Category, error) {
	var out []core.Category
	err := s.asOwner(ctx, owner, "list categories", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, listCategories, owner, string(typ))
		if err != nil {
			return core.NewStorageError("list categories", err)
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanCategory(rows)
			if err != nil {
				return core.NewStorageError("scan category", err)
			}
			c.Owner = owner
			out = append(out, c)
		}
		return core.NewStorageError("list categories", rows.Err())
	})
	return out, err
}

func (s *Store) DeleteCategory(ctx context.Context, owner, name string, typ core.TransactionType) (core.Category, error) {
	var c core.Category
	err := s.asOwner(ctx, owner, "delete category", func(tx pgx.Tx) error {
		var err error
		c, err = scanCategory(tx.QueryRow(ctx, deleteCategory, owner, strings.TrimSpace(name), string(typ)))
		if errors.Is(err, pgx.ErrNoRows) {
			return core.NotFoundf("category %q (%s)", name, typ)
		}
		if err != nil {
			return core.NewStorageError("delete category", err)
		}
		return nil
	})
	c.Owner = owner
	return c, err
}

func (s *Store) RecordTransaction(ctx context.Context, in core.NewTransaction) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	id, err := s.recordOnce(ctx, in)
	if isIdempotencyRace(err) && in.IdempotencyKey != "" {
		// A concurrent call with the same key committed first.
		return s.recordOnce(ctx, in)
	}
	return id, err
}

func (s *Store) recordOnce(ctx context.Context, in core.NewTransaction) (string, error) {
	date := in.Date.UTC()
	k := core.DayKeyOf(date)
	income, expense := split(in.Type, in.Amount)
	category := strings.TrimSpace(in.Category)

	var id string
	err := s.asOwner(ctx, in.Owner, "record transaction", func(tx pgx.Tx) error {
		if in.IdempotencyKey != "" {
			err := tx.QueryRow(ctx, transactionByIdempotencyKey, in.Owner, in.IdempotencyKey).Scan(&id)
			if err == nil {
				return nil
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return core.NewStorageError("lookup idempotency key", err)
			}
		}

		var exists bool
		if err := tx.QueryRow(ctx, categoryExists, in.Owner, category, string(in.Type)).Scan(&exists); err != nil {
			return core.NewStorageError("lookup category", err)
		}
		if !exists {
			return core.NotFoundf("category %q (%s)", category, in.Type)
		}

		id = uuid.NewString()
		if _, err := tx.Exec(ctx, insertTransaction,
			id, in.Owner, in.Amount.Cents, in.Description, date, k.Year, k.Month, k.Day,
			string(in.Type), category, in.CategoryIcon, in.IdempotencyKey,
		); err != nil {
			return core.NewStorageError("insert transaction", err)
		}
		if err := s.fault(ledger.StepInsertTransaction); err != nil {
			return err
		}

		if err := execUpsert(ctx, tx, "day", upsertDayHistory, in.Owner, k.Year, k.Month, k.Day, income, expense); err != nil {
			return err
		}
		if err := s.fault(ledger.StepDayHistory); err != nil {
			return err
		}

		if err := execUpsert(ctx, tx, "month", upsertMonthHistory, in.Owner, k.Year, k.Month, income, expense); err != nil {
			return err
		}
		return s.fault(ledger.StepMonthHistory)
	})
	if err != nil {
		return "", err
	}

	slog.DebugContext(ctx, "Transaction stored in PostgreSQL",
		"id", id,
		"owner", in.Owner,
		"type", in.Type,
		"amount_cents", in.Amount.Cents)
	return id, nil
}

func isIdempotencyRace(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation &&
		pgErr.ConstraintName == "idx_transactions_owner_idempotency"
}

func (s *Store) RemoveTransaction(ctx context.Context, owner, id string) (core.Transaction, error) {
	var removed core.Transaction
	err := s.asOwner(ctx, owner, "remove transaction", func(tx pgx.Tx) error {
		t, err := scanTransaction(tx.QueryRow(ctx, lockTransaction, id, owner))
		if errors.Is(err, pgx.ErrNoRows) {
			return core.NotFoundf("transaction %s", id)
		}
		if err != nil {
			return core.NewStorageError("read transaction", err)
		}

		if _, err := tx.Exec(ctx, deleteTransaction, id, owner); err != nil {
			return core.NewStorageError("delete transaction", err)
		}
		if err := s.fault(ledger.StepDeleteTransaction); err != nil {
			return err
		}

		k := t.Day()
		income, expense := split(t.Type, t.Amount)
		if err := execGuarded(ctx, tx, "day", subtractDayHistory, income, expense, owner, k.Year, k.Month, k.Day); err != nil {
			return err
		}
		if err := s.fault(ledger.StepDayHistory); err != nil {
			return err
		}
		if err := execGuarded(ctx, tx, "month", subtractMonthHistory, income, expense, owner, k.Year, k.Month); err != nil {
			return err
		}
		if err := s.fault(ledger.StepMonthHistory); err != nil {
			return err
		}
		removed = t
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	return removed, nil
}

// execUpsert adds to a bucket. Zero affected rows means the sum would leave
// the bigint range.
func execUpsert(ctx context.Context, tx pgx.Tx, bucket, query string, args ...any) error {
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return core.NewStorageError("upsert "+bucket+" history", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s bucket: %w", bucket, core.ErrAmountOverflow)
	}
	return nil
}

func execGuarded(ctx context.Context, tx pgx.Tx, bucket, query string, args ...any) error {
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return core.NewStorageError("update "+bucket+" history", err)
	}
	if tag.RowsAffected() == 0 {
		return core.Consistencyf("%s bucket %v would go negative", bucket, args[2:])
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, owner, id string) (core.Transaction, error) {
	var t core.Transaction
	err := s.asOwner(ctx, owner, "get transaction", func(tx pgx.Tx) error {
		var err error
		t, err = scanTransaction(tx.QueryRow(ctx, getTransaction, id, owner))
		if errors.Is(err, pgx.ErrNoRows) {
			return core.NotFoundf("transaction %s", id)
		}
		if err != nil {
			return core.NewStorageError("get transaction", err)
		}
		return nil
	})
	return t, err
}

func (s *Store) ListTransactions(ctx context.Context, owner string, r core.DateRange) ([]core.Transaction, error) {
	var out []core.Transaction
	err := s.asOwner(ctx, owner, "list transactions", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, listTransactions, owner, r.From, r.End())
		if err != nil {
			return core.NewStorageError("list transactions", err)
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTransaction(rows)
			if err != nil {
				return core.NewStorageError("scan transaction", err)
			}
			out = append(out, t)
		}
		return core.NewStorageError("list transactions", rows.Err())
	})
	return out, err
}

func (s *Store) Balance(ctx context.Context, owner string, r core.DateRange) (core.Balance, error) {
	var b core.Balance
	err := s.asOwner(ctx, owner, "balance", func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, balance, owner, r.From, r.End()).Scan(&b.Income.Cents, &b.Expense.Cents)
		return core.NewStorageError("balance", err)
	})
	return b, err
}

func (s *Store) CategoryTotals(ctx context.Context, owner string, r core.DateRange) ([]core.CategoryTotal, error) {
	var out []core.CategoryTotal
	err := s.asOwner(ctx, owner, "category totals", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, categoryTotals, owner, r.From, r.End())
		if err != nil {
			return core.NewStorageError("category totals", err)
		}
		defer rows.Close()
		for rows.Next() {
			var ct core.CategoryTotal
			var typ string
			if err := rows.Scan(&typ, &ct.Category, &ct.CategoryIcon, &ct.Amount.Cents); err != nil {
				return core.NewStorageError("scan category total", err)
			}
			ct.Type = core.TransactionType(typ)
			out = append(out, ct)
		}
		return core.NewStorageError("category totals", rows.Err())
	})
	return out, err
}

func (s *Store) DayHistory(ctx context.Context, owner string, year, month int) ([]core.DayHistory, error) {
	var out []core.DayHistory
	err := s.asOwner(ctx, owner, "day history", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, dayHistory, owner, year, month)
		if err != nil {
			return core.NewStorageError("day history", err)
		}
		defer rows.Close()
		for rows.Next() {
			h := core.DayHistory{Owner: owner, DayKey: core.DayKey{Year: year, Month: month}}
			if err := rows.Scan(&h.Day, &h.Income.Cents, &h.Expense.Cents); err != nil {
				return core.NewStorageError("scan day history", err)
			}
			out = append(out, h)
		}
		return core.NewStorageError("day history", rows.Err())
	})
	return out, err
}

func (s *Store) MonthHistory(ctx context.Context, owner string, year int) ([]core.MonthHistory, error) {
	var out []core.MonthHistory
	err := s.asOwner(ctx, owner, "month history", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, monthHistory, owner, year)
		if err != nil {
			return core.NewStorageError("month history", err)
		}
		defer rows.Close()
		for rows.Next() {
			h := core.MonthHistory{Owner: owner, MonthKey: core.MonthKey{Year: year}}
			if err := rows.Scan(&h.MonthKey.Month, &h.Income.Cents, &h.Expense.Cents); err != nil {
				return core.NewStorageError("scan month history", err)
			}
			out = append(out, h)
		}
		return core.NewStorageError("month history", rows.Err())
	})
	return out, err
}

func (s *Store) HistoryYears(ctx context.Context, owner string) ([]int, error) {
	var years []int
	err := s.asOwner(ctx, owner, "history years", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, historyYears, owner)
		if err != nil {
			return core.NewStorageError("history years", err)
		}
		years, err = pgx.CollectRows(rows, pgx.RowTo[int])
		return core.NewStorageError("history years", err)
	})
	return years, err
}

func (s *Store) GetSettings(ctx context.Context, owner string) (core.UserSettings, error) {
	var st core.UserSettings
	err := s.asOwner(ctx, owner, "get settings", func(tx pgx.Tx) error {
		var err error
		st, err = readSettings(ctx, tx, owner)
		return err
	})
	return st, err
}

func (s *Store) SaveSettings(ctx context.Context, in core.UserSettings) (core.UserSettings, error) {
	var st core.UserSettings
	err := s.asOwner(ctx, in.Owner, "save settings", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertSettings, in.Owner, in.Currency); err != nil {
			return core.NewStorageError("save settings", err)
		}
		var err error
		st, err = readSettings(ctx, tx, in.Owner)
		return err
	})
	return st, err
}

func (s *Store) EnsureSettings(ctx context.Context, owner, defaultCurrency string) (core.UserSettings, error) {
	var st core.UserSettings
	err := s.asOwner(ctx, owner, "ensure settings", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertDefaultSettings, owner, defaultCurrency); err != nil {
			return core.NewStorageError("ensure settings", err)
		}
		var err error
		st, err = readSettings(ctx, tx, owner)
		return err
	})
	return st, err
}

func readSettings(ctx context.Context, tx pgx.Tx, owner string) (core.UserSettings, error) {
	st := core.UserSettings{Owner: owner}
	err := tx.QueryRow(ctx, getSettings, owner).Scan(&st.Currency, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.UserSettings{}, core.NotFoundf("settings for %s", owner)
	}
	if err != nil {
		return core.UserSettings{}, core.NewStorageError("get settings", err)
	}
	st.CreatedAt = st.CreatedAt.UTC()
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, nil
}

// Owners is the only cross-owner read. It runs under the maintenance role.
func (s *Store) Owners(ctx context.Context) ([]string, error) {
	var out []string
	err := s.inTx(ctx, "list owners", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, setMaintenance); err != nil {
			return core.NewStorageError("list owners: set role", err)
		}
		rows, err := tx.Query(ctx, owners)
		if err != nil {
			return core.NewStorageError("list owners", err)
		}
		out, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return core.NewStorageError("list owners", err)
	})
	return out, err
}

func (s *Store) ActiveDays(ctx context.Context, owner string) ([]core.DayKey, error) {
	var out []core.DayKey
	err := s.asOwner(ctx, owner, "active days", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, activeDays, owner)
		if err != nil {
			return core.NewStorageError("active days", err)
		}
		defer rows.Close()
		for rows.Next() {
			var k core.DayKey
			if err := rows.Scan(&k.Year, &k.Month, &k.Day); err != nil {
				return core.NewStorageError("scan day", err)
			}
			out = append(out, k)
		}
		return core.NewStorageError("active days", rows.Err())
	})
	return out, err
}

func (s *Store) ActiveMonths(ctx context.Context, owner string) ([]core.MonthKey, error) {
	var out []core.MonthKey
	err := s.asOwner(ctx, owner, "active months", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, activeMonths, owner)
		if err != nil {
			return core.NewStorageError("active months", err)
		}
		defer rows.Close()
		for rows.Next() {
			var k core.MonthKey
			if err := rows.Scan(&k.Year, &k.Month); err != nil {
				return core.NewStorageError("scan month", err)
			}
			out = append(out, k)
		}
		return core.NewStorageError("active months", rows.Err())
	})
	return out, err
}

func (s *Store) LiveTotals(ctx context.Context, owner string, year, month, day int) (core.Totals, error) {
	var t core.Totals
	err := s.asOwner(ctx, owner, "live totals", func(tx pgx.Tx) error {
		var err error
		t, err = readLiveTotals(ctx, tx, owner, year, month, day)
		return err
	})
	return t, err
}

func (s *Store) StoredTotals(ctx context.Context, owner string, year, month, day int) (core.Totals, error) {
	var t core.Totals
	err := s.asOwner(ctx, owner, "stored totals", func(tx pgx.Tx) error {
		var err error
		t, err = readStoredTotals(ctx, tx, owner, year, month, day)
		return err
	})
	return t, err
}

// AuditBucket reads both sides in one REPEATABLE READ transaction, which
// pins a single snapshot for the two queries.
func (s *Store) AuditBucket(ctx context.Context, owner string, year, month, day int) (stored, live core.Totals, err error) {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err = s.asOwnerWith(ctx, owner, "audit bucket", opts, func(tx pgx.Tx) error {
		var err error
		if stored, err = readStoredTotals(ctx, tx, owner, year, month, day); err != nil {
			return err
		}
		live, err = readLiveTotals(ctx, tx, owner, year, month, day)
		return err
	})
	return stored, live, err
}

func readLiveTotals(ctx context.Context, tx pgx.Tx, owner string, year, month, day int) (core.Totals, error) {
	var t core.Totals
	err := tx.QueryRow(ctx, liveTotals, owner, year, month, day).Scan(&t.Income.Cents, &t.Expense.Cents)
	return t, core.NewStorageError("live totals", err)
}

func readStoredTotals(ctx context.Context, tx pgx.Tx, owner string, year, month, day int) (core.Totals, error) {
	var row pgx.Row
	if day == 0 {
		row = tx.QueryRow(ctx, storedMonthTotals, owner, year, month)
	} else {
		row = tx.QueryRow(ctx, storedDayTotals, owner, year, month, day)
	}
	var t core.Totals
	err := row.Scan(&t.Income.Cents, &t.Expense.Cents)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Totals{}, nil
	}
	return t, core.NewStorageError("stored totals", err)
}

func (s *Store) RebuildHistory(ctx context.Context, owner string) error {
	return s.asOwner(ctx, owner, "rebuild history", func(tx pgx.Tx) error {
		for _, q := range []string{clearDayHistory, clearMonthHistory, rebuildDayHistory, rebuildMonthHistory} {
			if _, err := tx.Exec(ctx, q, owner); err != nil {
				return core.NewStorageError("rebuild history", err)
			}
		}
		return nil
	})
}

func scanCategory(row pgx.Row) (core.Category, error) {
	var c core.Category
	var typ string
	if err := row.Scan(&c.Name, &c.Icon, &typ, &c.CreatedAt); err != nil {
		return core.Category{}, err
	}
	c.Type = core.TransactionType(typ)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var t core.Transaction
	var typ string
	if err := row.Scan(&t.ID, &t.Owner, &t.Amount.Cents, &t.Description, &t.Date,
		&typ, &t.Category, &t.CategoryIcon, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.Date = t.Date.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func split(typ core.TransactionType, amount core.Money) (int64, int64) {
	if typ == core.Income {
		return amount.Cents, 0
	}
	return 0, amount.Cents
}
