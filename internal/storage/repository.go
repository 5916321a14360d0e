package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/ledger"

	_ "modernc.org/sqlite"
)

// busyTimeout bounds how long a writer waits for the database lock.
const busyTimeout = 5 * time.Second

// SQLiteRepository is the SQLite implementation of ledger.Store. Write
// transactions start with BEGIN IMMEDIATE so concurrent mutations serialize
// on the database lock instead of failing at commit.
type SQLiteRepository struct {
	ledger.Faults

	db  *sql.DB
	now func() time.Time
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path, sep, busyTimeout.Milliseconds())
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return core.NewStorageError("ping", err)
	}
	return nil
}

// inTx runs fn in a write transaction. Any error from fn rolls back.
func (r *SQLiteRepository) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewStorageError(op+": begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return core.NewStorageError(op+": commit", err)
	}
	return nil
}

// fault reports the fault armed for step as a storage error.
func (r *SQLiteRepository) fault(step ledger.Step) error {
	if err := r.Fire(step); err != nil {
		return core.NewStorageError(string(step), err)
	}
	return nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	c.CreatedAt = r.now().UTC().Truncate(time.Millisecond)

	res, err := r.db.ExecContext(ctx, insertCategory, c.Owner, c.Name, c.Icon, string(c.Type), c.CreatedAt.UnixMilli())
	if err != nil {
		return core.Category{}, core.NewStorageError("insert category", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return core.Category{}, core.NewStorageError("insert category", err)
	} else if n == 0 {
		return core.Category{}, core.Conflictf("category %q (%s) already exists", c.Name, c.Type)
	}
	return c, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, owner, name string, typ core.TransactionType) (core.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx, getCategory, owner, strings.TrimSpace(name), string(typ)))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NotFoundf("category %q (%s)", name, typ)
	}
	if err != nil {
		return core.Category{}, core.NewStorageError("get category", err)
	}
	c.Owner = owner
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, owner string, typ core.TransactionType) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, listCategories, owner, string(typ), string(typ))
	if err != nil {
		return nil, core.NewStorageError("list categories", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, core.NewStorageError("scan category", err)
		}
		c.Owner = owner
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list categories", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, owner, name string, typ core.TransactionType) (core.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx, deleteCategory, owner, strings.TrimSpace(name), string(typ)))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NotFoundf("category %q (%s)", name, typ)
	}
	if err != nil {
		return core.Category{}, core.NewStorageError("delete category", err)
	}
	c.Owner = owner
	return c, nil
}

func (r *SQLiteRepository) RecordTransaction(ctx context.Context, in core.NewTransaction) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	now := r.now().UTC()
	date := in.Date.UTC()
	k := core.DayKeyOf(date)
	income, expense := split(in.Type, in.Amount)
	category := strings.TrimSpace(in.Category)

	var id string
	err := r.inTx(ctx, "record transaction", func(tx *sql.Tx) error {
		if in.IdempotencyKey != "" {
			err := tx.QueryRowContext(ctx, transactionByIdempotencyKey, in.Owner, in.IdempotencyKey).Scan(&id)
			if err == nil {
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return core.NewStorageError("lookup idempotency key", err)
			}
		}

		var one int
		err := tx.QueryRowContext(ctx, categoryExists, in.Owner, category, string(in.Type)).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return core.NotFoundf("category %q (%s)", category, in.Type)
		}
		if err != nil {
			return core.NewStorageError("lookup category", err)
		}

		id = uuid.NewString()
		if _, err := tx.ExecContext(ctx, insertTransaction,
			id, in.Owner, in.Amount.Cents, in.Description, date.UnixMilli(), k.Year, k.Month, k.Day,
			string(in.Type), category, in.CategoryIcon, nullString(in.IdempotencyKey),
			now.UnixMilli(), now.UnixMilli(),
		); err != nil {
			return core.NewStorageError("insert transaction", err)
		}
		if err := r.fault(ledger.StepInsertTransaction); err != nil {
			return err
		}

		if err := execUpsert(ctx, tx, "day", upsertDayHistory, in.Owner, k.Year, k.Month, k.Day, income, expense); err != nil {
			return err
		}
		if err := r.fault(ledger.StepDayHistory); err != nil {
			return err
		}

		if err := execUpsert(ctx, tx, "month", upsertMonthHistory, in.Owner, k.Year, k.Month, income, expense); err != nil {
			return err
		}
		return r.fault(ledger.StepMonthHistory)
	})
	if err != nil {
		return "", err
	}

	slog.DebugContext(ctx, "Transaction stored in SQLite",
		"id", id,
		"owner", in.Owner,
		"type", in.Type,
		"amount_cents", in.Amount.Cents,
		"day", fmt.Sprintf("%04d-%02d-%02d", k.Year, k.Month, k.Day))
	return id, nil
}

func (r *SQLiteRepository) RemoveTransaction(ctx context.Context, owner, id string) (core.Transaction, error) {
	var removed core.Transaction
	err := r.inTx(ctx, "remove transaction", func(tx *sql.Tx) error {
		t, err := scanTransaction(tx.QueryRowContext(ctx, getTransaction, id, owner))
		if errors.Is(err, sql.ErrNoRows) {
			return core.NotFoundf("transaction %s", id)
		}
		if err != nil {
			return core.NewStorageError("read transaction", err)
		}

		if _, err := tx.ExecContext(ctx, deleteTransaction, id, owner); err != nil {
			return core.NewStorageError("delete transaction", err)
		}
		if err := r.fault(ledger.StepDeleteTransaction); err != nil {
			return err
		}

		k := t.Day()
		income, expense := split(t.Type, t.Amount)
		if err := execGuarded(ctx, tx, "day", subtractDayHistory, income, expense, owner, k.Year, k.Month, k.Day); err != nil {
			return err
		}
		if err := r.fault(ledger.StepDayHistory); err != nil {
			return err
		}
		if err := execGuarded(ctx, tx, "month", subtractMonthHistory, income, expense, owner, k.Year, k.Month); err != nil {
			return err
		}
		if err := r.fault(ledger.StepMonthHistory); err != nil {
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

// execGuarded runs a guarded subtraction. Zero affected rows means the bucket
// is missing or smaller than the amount being removed.
func execGuarded(ctx context.Context, tx *sql.Tx, bucket, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return core.NewStorageError("update "+bucket+" history", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.NewStorageError("update "+bucket+" history", err)
	}
	if n == 0 {
		return core.Consistencyf("%s bucket %v would go negative", bucket, args[2:])
	}
	return nil
}

// execUpsert adds to a bucket. Zero affected rows means the sum would leave
// the int64 range.
func execUpsert(ctx context.Context, tx *sql.Tx, bucket, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return core.NewStorageError("upsert "+bucket+" history", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.NewStorageError("upsert "+bucket+" history", err)
	}
	if n == 0 {
		return fmt.Errorf("%s bucket: %w", bucket, core.ErrAmountOverflow)
	}
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, owner, id string) (core.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx, getTransaction, id, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFoundf("transaction %s", id)
	}
	if err != nil {
		return core.Transaction{}, core.NewStorageError("get transaction", err)
	}
	return t, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, owner string, rng core.DateRange) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, listTransactions, owner, rng.From.UnixMilli(), rng.End().UnixMilli())
	if err != nil {
		return nil, core.NewStorageError("list transactions", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, core.NewStorageError("scan transaction", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list transactions", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Balance(ctx context.Context, owner string, rng core.DateRange) (core.Balance, error) {
	var b core.Balance
	err := r.db.QueryRowContext(ctx, balance, owner, rng.From.UnixMilli(), rng.End().UnixMilli()).
		Scan(&b.Income.Cents, &b.Expense.Cents)
	if err != nil {
		return core.Balance{}, core.NewStorageError("balance", err)
	}
	return b, nil
}

func (r *SQLiteRepository) CategoryTotals(ctx context.Context, owner string, rng core.DateRange) ([]core.CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx, categoryTotals, owner, rng.From.UnixMilli(), rng.End().UnixMilli())
	if err != nil {
		return nil, core.NewStorageError("category totals", err)
	}
	defer rows.Close()

	var out []core.CategoryTotal
	for rows.Next() {
		var ct core.CategoryTotal
		var typ string
		if err := rows.Scan(&typ, &ct.Category, &ct.CategoryIcon, &ct.Amount.Cents); err != nil {
			return nil, core.NewStorageError("scan category total", err)
		}
		ct.Type = core.TransactionType(typ)
		out = append(out, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("category totals", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DayHistory(ctx context.Context, owner string, year, month int) ([]core.DayHistory, error) {
	rows, err := r.db.QueryContext(ctx, dayHistory, owner, year, month)
	if err != nil {
		return nil, core.NewStorageError("day history", err)
	}
	defer rows.Close()

	var out []core.DayHistory
	for rows.Next() {
		h := core.DayHistory{Owner: owner, DayKey: core.DayKey{Year: year, Month: month}}
		if err := rows.Scan(&h.Day, &h.Income.Cents, &h.Expense.Cents); err != nil {
			return nil, core.NewStorageError("scan day history", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("day history", err)
	}
	return out, nil
}

func (r *SQLiteRepository) MonthHistory(ctx context.Context, owner string, year int) ([]core.MonthHistory, error) {
	rows, err := r.db.QueryContext(ctx, monthHistory, owner, year)
	if err != nil {
		return nil, core.NewStorageError("month history", err)
	}
	defer rows.Close()

	var out []core.MonthHistory
	for rows.Next() {
		h := core.MonthHistory{Owner: owner, MonthKey: core.MonthKey{Year: year}}
		if err := rows.Scan(&h.MonthKey.Month, &h.Income.Cents, &h.Expense.Cents); err != nil {
			return nil, core.NewStorageError("scan month history", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("month history", err)
	}
	return out, nil
}

func (r *SQLiteRepository) HistoryYears(ctx context.Context, owner string) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, historyYears, owner)
	if err != nil {
		return nil, core.NewStorageError("history years", err)
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, core.NewStorageError("scan year", err)
		}
		years = append(years, y)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("history years", err)
	}
	return years, nil
}

func (r *SQLiteRepository) GetSettings(ctx context.Context, owner string) (core.UserSettings, error) {
	st, err := scanSettings(r.db.QueryRowContext(ctx, getSettings, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserSettings{}, core.NotFoundf("settings for %s", owner)
	}
	if err != nil {
		return core.UserSettings{}, core.NewStorageError("get settings", err)
	}
	st.Owner = owner
	return st, nil
}

func (r *SQLiteRepository) SaveSettings(ctx context.Context, st core.UserSettings) (core.UserSettings, error) {
	if strings.TrimSpace(st.Owner) == "" {
		return core.UserSettings{}, core.ErrEmptyOwner
	}
	now := r.now().UTC().UnixMilli()
	if _, err := r.db.ExecContext(ctx, upsertSettings, st.Owner, st.Currency, now, now); err != nil {
		return core.UserSettings{}, core.NewStorageError("save settings", err)
	}
	return r.GetSettings(ctx, st.Owner)
}

func (r *SQLiteRepository) EnsureSettings(ctx context.Context, owner, defaultCurrency string) (core.UserSettings, error) {
	if strings.TrimSpace(owner) == "" {
		return core.UserSettings{}, core.ErrEmptyOwner
	}
	now := r.now().UTC().UnixMilli()
	if _, err := r.db.ExecContext(ctx, insertDefaultSettings, owner, defaultCurrency, now, now); err != nil {
		return core.UserSettings{}, core.NewStorageError("ensure settings", err)
	}
	return r.GetSettings(ctx, owner)
}

func (r *SQLiteRepository) Owners(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, owners)
	if err != nil {
		return nil, core.NewStorageError("list owners", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, core.NewStorageError("scan owner", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list owners", err)
	}
	return out, nil
}

func (r *SQLiteRepository) ActiveDays(ctx context.Context, owner string) ([]core.DayKey, error) {
	rows, err := r.db.QueryContext(ctx, activeDays, owner)
	if err != nil {
		return nil, core.NewStorageError("active days", err)
	}
	defer rows.Close()

	var out []core.DayKey
	for rows.Next() {
		var k core.DayKey
		if err := rows.Scan(&k.Year, &k.Month, &k.Day); err != nil {
			return nil, core.NewStorageError("scan day", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("active days", err)
	}
	return out, nil
}

func (r *SQLiteRepository) ActiveMonths(ctx context.Context, owner string) ([]core.MonthKey, error) {
	rows, err := r.db.QueryContext(ctx, activeMonths, owner)
	if err != nil {
		return nil, core.NewStorageError("active months", err)
	}
	defer rows.Close()

	var out []core.MonthKey
	for rows.Next() {
		var k core.MonthKey
		if err := rows.Scan(&k.Year, &k.Month); err != nil {
			return nil, core.NewStorageError("scan month", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("active months", err)
	}
	return out, nil
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) LiveTotals(ctx context.Context, owner string, year, month, day int) (core.Totals, error) {
	return readLiveTotals(ctx, r.db, owner, year, month, day)
}

func (r *SQLiteRepository) StoredTotals(ctx context.Context, owner string, year, month, day int) (core.Totals, error) {
	return readStoredTotals(ctx, r.db, owner, year, month, day)
}

// AuditBucket reads both sides inside one transaction. The immediate lock
// keeps writers out until both reads are done.
func (r *SQLiteRepository) AuditBucket(ctx context.Context, owner string, year, month, day int) (stored, live core.Totals, err error) {
	err = r.inTx(ctx, "audit bucket", func(tx *sql.Tx) error {
		var err error
		if stored, err = readStoredTotals(ctx, tx, owner, year, month, day); err != nil {
			return err
		}
		live, err = readLiveTotals(ctx, tx, owner, year, month, day)
		return err
	})
	return stored, live, err
}

func readLiveTotals(ctx context.Context, q rowQuerier, owner string, year, month, day int) (core.Totals, error) {
	var t core.Totals
	if err := q.QueryRowContext(ctx, liveTotals, owner, year, month, day).Scan(&t.Income.Cents, &t.Expense.Cents); err != nil {
		return core.Totals{}, core.NewStorageError("live totals", err)
	}
	return t, nil
}

func readStoredTotals(ctx context.Context, q rowQuerier, owner string, year, month, day int) (core.Totals, error) {
	var row *sql.Row
	if day == 0 {
		row = q.QueryRowContext(ctx, storedMonthTotals, owner, year, month)
	} else {
		row = q.QueryRowContext(ctx, storedDayTotals, owner, year, month, day)
	}
	var t core.Totals
	err := row.Scan(&t.Income.Cents, &t.Expense.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Totals{}, nil
	}
	if err != nil {
		return core.Totals{}, core.NewStorageError("stored totals", err)
	}
	return t, nil
}

func (r *SQLiteRepository) RebuildHistory(ctx context.Context, owner string) error {
	return r.inTx(ctx, "rebuild history", func(tx *sql.Tx) error {
		for _, q := range []string{clearDayHistory, clearMonthHistory, rebuildDayHistory, rebuildMonthHistory} {
			if _, err := tx.ExecContext(ctx, q, owner); err != nil {
				return core.NewStorageError("rebuild history", err)
			}
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (core.Category, error) {
	var c core.Category
	var typ string
	var created int64
	if err := row.Scan(&c.Name, &c.Icon, &typ, &created); err != nil {
		return core.Category{}, err
	}
	c.Type = core.TransactionType(typ)
	c.CreatedAt = time.UnixMilli(created).UTC()
	return c, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var t core.Transaction
	var typ string
	var occurred, created, updated int64
	if err := row.Scan(&t.ID, &t.Owner, &t.Amount.Cents, &t.Description, &occurred,
		&typ, &t.Category, &t.CategoryIcon, &created, &updated); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.Date = time.UnixMilli(occurred).UTC()
	t.CreatedAt = time.UnixMilli(created).UTC()
	t.UpdatedAt = time.UnixMilli(updated).UTC()
	return t, nil
}

func scanSettings(row rowScanner) (core.UserSettings, error) {
	var st core.UserSettings
	var created, updated int64
	if err := row.Scan(&st.Currency, &created, &updated); err != nil {
		return core.UserSettings{}, err
	}
	st.CreatedAt = time.UnixMilli(created).UTC()
	st.UpdatedAt = time.UnixMilli(updated).UTC()
	return st, nil
}

// split returns the (income, expense) deltas of an amount.
func split(typ core.TransactionType, amount core.Money) (int64, int64) {
	if typ == core.Income {
		return amount.Cents, 0
	}
	return 0, amount.Cents
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
