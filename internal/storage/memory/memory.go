// Package memory is an in-process ledger store for tests and local runs.
//
// All state lives behind one mutex. A mutation stages its writes in locals and
// applies them only after every step succeeded, which gives the same
// all-or-nothing behaviour as a database transaction.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/ledger"
)

type (
	catKey struct {
		owner string
		name  string
		typ   core.TransactionType
	}

	// bucketKey addresses a day bucket, or a month bucket when day is 0.
	bucketKey struct {
		owner             string
		year, month, day int
	}

	idemKey struct {
		owner string
		key   string
	}
)

type Store struct {
	ledger.Faults

	mu         sync.Mutex
	now        func() time.Time
	categories map[catKey]core.Category
	txs        map[string]core.Transaction
	idem       map[idemKey]string
	buckets    map[bucketKey]core.Totals
	settings   map[string]core.UserSettings
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:        time.Now,
		categories: make(map[catKey]core.Category),
		txs:        make(map[string]core.Transaction),
		idem:       make(map[idemKey]string),
		buckets:    make(map[bucketKey]core.Totals),
		settings:   make(map[string]core.UserSettings),
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error                { return nil }

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := catKey{c.Owner, c.Name, c.Type}
	if _, ok := s.categories[k]; ok {
		return core.Category{}, core.Conflictf("category %q (%s) already exists", c.Name, c.Type)
	}
	c.CreatedAt = s.now().UTC()
	s.categories[k] = c
	return c, nil
}

func (s *Store) GetCategory(_ context.Context, owner, name string, typ core.TransactionType) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[catKey{owner, strings.TrimSpace(name), typ}]
	if !ok {
		return core.Category{}, core.NotFoundf("category %q (%s)", name, typ)
	}
	return c, nil
}

func (s *Store) ListCategories(_ context.Context, owner string, typ core.TransactionType) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for k, c := range s.categories {
		if k.owner == owner && (typ == "" || k.typ == typ) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

func (s *Store) DeleteCategory(_ context.Context, owner, name string, typ core.TransactionType) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := catKey{owner, strings.TrimSpace(name), typ}
	c, ok := s.categories[k]
	if !ok {
		return core.Category{}, core.NotFoundf("category %q (%s)", name, typ)
	}
	delete(s.categories, k)
	return c, nil
}

func (s *Store) RecordTransaction(_ context.Context, in core.NewTransaction) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.IdempotencyKey != "" {
		if id, ok := s.idem[idemKey{in.Owner, in.IdempotencyKey}]; ok {
			return id, nil
		}
	}
	if _, ok := s.categories[catKey{in.Owner, strings.TrimSpace(in.Category), in.Type}]; !ok {
		return "", core.NotFoundf("category %q (%s)", in.Category, in.Type)
	}

	now := s.now().UTC()
	tx := core.Transaction{
		ID:           uuid.NewString(),
		Owner:        in.Owner,
		Amount:       in.Amount,
		Description:  in.Description,
		Date:         in.Date.UTC(),
		Type:         in.Type,
		Category:     strings.TrimSpace(in.Category),
		CategoryIcon: in.CategoryIcon,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Fire(ledger.StepInsertTransaction); err != nil {
		return "", core.NewStorageError("insert transaction", err)
	}

	dk, mk := dayBucket(tx), monthBucket(tx)
	day, err := s.buckets[dk].Add(tx.Type, tx.Amount)
	if err != nil {
		return "", fmt.Errorf("day bucket: %w", err)
	}
	if err := s.Fire(ledger.StepDayHistory); err != nil {
		return "", core.NewStorageError("upsert day history", err)
	}
	month, err := s.buckets[mk].Add(tx.Type, tx.Amount)
	if err != nil {
		return "", fmt.Errorf("month bucket: %w", err)
	}
	if err := s.Fire(ledger.StepMonthHistory); err != nil {
		return "", core.NewStorageError("upsert month history", err)
	}

	s.txs[tx.ID] = tx
	s.buckets[dk] = day
	s.buckets[mk] = month
	if in.IdempotencyKey != "" {
		s.idem[idemKey{in.Owner, in.IdempotencyKey}] = tx.ID
	}
	return tx.ID, nil
}

func (s *Store) RemoveTransaction(_ context.Context, owner, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok || tx.Owner != owner {
		return core.Transaction{}, core.NotFoundf("transaction %s", id)
	}
	if err := s.Fire(ledger.StepDeleteTransaction); err != nil {
		return core.Transaction{}, core.NewStorageError("delete transaction", err)
	}

	dk, mk := dayBucket(tx), monthBucket(tx)
	day, err := s.buckets[dk].Sub(tx.Type, tx.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := s.Fire(ledger.StepDayHistory); err != nil {
		return core.Transaction{}, core.NewStorageError("update day history", err)
	}
	month, err := s.buckets[mk].Sub(tx.Type, tx.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := s.Fire(ledger.StepMonthHistory); err != nil {
		return core.Transaction{}, core.NewStorageError("update month history", err)
	}

	delete(s.txs, id)
	for k, v := range s.idem {
		if v == id {
			delete(s.idem, k)
		}
	}
	s.buckets[dk] = day
	s.buckets[mk] = month
	return tx, nil
}

func (s *Store) GetTransaction(_ context.Context, owner, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok || tx.Owner != owner {
		return core.Transaction{}, core.NotFoundf("transaction %s", id)
	}
	return tx, nil
}

func (s *Store) ListTransactions(_ context.Context, owner string, r core.DateRange) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.inRange(owner, r)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Balance(_ context.Context, owner string, r core.DateRange) (core.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		t   core.Totals
		err error
	)
	for _, tx := range s.inRange(owner, r) {
		if t, err = t.Add(tx.Type, tx.Amount); err != nil {
			return core.Balance{}, err
		}
	}
	return core.Balance{Income: t.Income, Expense: t.Expense}, nil
}

func (s *Store) CategoryTotals(_ context.Context, owner string, r core.DateRange) ([]core.CategoryTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type group struct {
		typ        core.TransactionType
		name, icon string
	}
	sums := make(map[group]core.Money)
	for _, tx := range s.inRange(owner, r) {
		g := group{tx.Type, tx.Category, tx.CategoryIcon}
		sum, err := sums[g].Add(tx.Amount)
		if err != nil {
			return nil, err
		}
		sums[g] = sum
	}
	out := make([]core.CategoryTotal, 0, len(sums))
	for g, amt := range sums {
		out = append(out, core.CategoryTotal{Type: g.typ, Category: g.name, CategoryIcon: g.icon, Amount: amt})
	}
	core.SortCategoryTotals(out)
	return out, nil
}

func (s *Store) DayHistory(_ context.Context, owner string, year, month int) ([]core.DayHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.DayHistory
	for k, t := range s.buckets {
		if k.owner == owner && k.year == year && k.month == month && k.day != 0 {
			out = append(out, core.DayHistory{Owner: owner, DayKey: core.DayKey{Year: year, Month: month, Day: k.day}, Totals: t})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (s *Store) MonthHistory(_ context.Context, owner string, year int) ([]core.MonthHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.MonthHistory
	for k, t := range s.buckets {
		if k.owner == owner && k.year == year && k.day == 0 {
			out = append(out, core.MonthHistory{Owner: owner, MonthKey: core.MonthKey{Year: year, Month: k.month}, Totals: t})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MonthKey.Month < out[j].MonthKey.Month })
	return out, nil
}

func (s *Store) HistoryYears(_ context.Context, owner string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[int]struct{})
	for k := range s.buckets {
		if k.owner == owner && k.day == 0 {
			seen[k.year] = struct{}{}
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

func (s *Store) GetSettings(_ context.Context, owner string) (core.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[owner]
	if !ok {
		return core.UserSettings{}, core.NotFoundf("settings for %s", owner)
	}
	return st, nil
}

func (s *Store) SaveSettings(_ context.Context, st core.UserSettings) (core.UserSettings, error) {
	if strings.TrimSpace(st.Owner) == "" {
		return core.UserSettings{}, core.ErrEmptyOwner
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if prev, ok := s.settings[st.Owner]; ok {
		st.CreatedAt = prev.CreatedAt
	} else {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	s.settings[st.Owner] = st
	return st, nil
}

func (s *Store) EnsureSettings(_ context.Context, owner, defaultCurrency string) (core.UserSettings, error) {
	if strings.TrimSpace(owner) == "" {
		return core.UserSettings{}, core.ErrEmptyOwner
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.settings[owner]; ok {
		return st, nil
	}
	now := s.now().UTC()
	st := core.UserSettings{Owner: owner, Currency: defaultCurrency, CreatedAt: now, UpdatedAt: now}
	s.settings[owner] = st
	return st, nil
}

func (s *Store) Owners(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for k := range s.categories {
		seen[k.owner] = struct{}{}
	}
	for _, tx := range s.txs {
		seen[tx.Owner] = struct{}{}
	}
	for k := range s.buckets {
		seen[k.owner] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for o := range seen {
		out = append(out, o)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ActiveDays(_ context.Context, owner string) ([]core.DayKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[core.DayKey]struct{})
	for _, tx := range s.txs {
		if tx.Owner == owner {
			seen[tx.Day()] = struct{}{}
		}
	}
	for k := range s.buckets {
		if k.owner == owner && k.day != 0 {
			seen[core.DayKey{Year: k.year, Month: k.month, Day: k.day}] = struct{}{}
		}
	}
	out := make([]core.DayKey, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return dayBefore(out[i], out[j]) })
	return out, nil
}

func (s *Store) ActiveMonths(_ context.Context, owner string) ([]core.MonthKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[core.MonthKey]struct{})
	for _, tx := range s.txs {
		if tx.Owner == owner {
			seen[tx.Day().MonthKey()] = struct{}{}
		}
	}
	for k := range s.buckets {
		if k.owner == owner {
			seen[core.MonthKey{Year: k.year, Month: k.month}] = struct{}{}
		}
	}
	out := make([]core.MonthKey, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}

func (s *Store) LiveTotals(_ context.Context, owner string, year, month, day int) (core.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveTotals(owner, year, month, day)
}

func (s *Store) liveTotals(owner string, year, month, day int) (core.Totals, error) {
	var (
		t   core.Totals
		err error
	)
	for _, tx := range s.txs {
		k := tx.Day()
		if tx.Owner == owner && k.Year == year && k.Month == month && (day == 0 || k.Day == day) {
			if t, err = t.Add(tx.Type, tx.Amount); err != nil {
				return core.Totals{}, err
			}
		}
	}
	return t, nil
}

func (s *Store) StoredTotals(_ context.Context, owner string, year, month, day int) (core.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buckets[bucketKey{owner, year, month, day}], nil
}

func (s *Store) AuditBucket(_ context.Context, owner string, year, month, day int) (core.Totals, core.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, err := s.liveTotals(owner, year, month, day)
	if err != nil {
		return core.Totals{}, core.Totals{}, err
	}
	return s.buckets[bucketKey{owner, year, month, day}], live, nil
}

func (s *Store) RebuildHistory(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rebuilt := make(map[bucketKey]core.Totals)
	for _, tx := range s.txs {
		if tx.Owner != owner {
			continue
		}
		for _, k := range []bucketKey{dayBucket(tx), monthBucket(tx)} {
			t, err := rebuilt[k].Add(tx.Type, tx.Amount)
			if err != nil {
				return err
			}
			rebuilt[k] = t
		}
	}
	for k := range s.buckets {
		if k.owner == owner {
			delete(s.buckets, k)
		}
	}
	for k, v := range rebuilt {
		s.buckets[k] = v
	}
	return nil
}

// SetBucket overwrites a stored bucket. It exists so tests can simulate a
// lost update.
func (s *Store) SetBucket(owner string, year, month, day int, t core.Totals) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[bucketKey{owner, year, month, day}] = t
}

func (s *Store) inRange(owner string, r core.DateRange) []core.Transaction {
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.Owner == owner && r.Contains(tx.Date) {
			out = append(out, tx)
		}
	}
	return out
}

func dayBucket(tx core.Transaction) bucketKey {
	k := tx.Day()
	return bucketKey{tx.Owner, k.Year, k.Month, k.Day}
}

func monthBucket(tx core.Transaction) bucketKey {
	k := tx.Day()
	return bucketKey{tx.Owner, k.Year, k.Month, 0}
}

func dayBefore(a, b core.DayKey) bool {
	if a.Year != b.Year {
		return a.Year < b.Year
	}
	if a.Month != b.Month {
		return a.Month < b.Month
	}
	return a.Day < b.Day
}
