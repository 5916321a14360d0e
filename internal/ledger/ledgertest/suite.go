// Package ledgertest holds the contract tests shared by every ledger.Store.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/ledger"
)

// Factory returns an empty store. The suite registers no cleanup of its own.
type Factory func(t *testing.T) ledger.Store

// RunStoreSuite runs the store contract against the stores built by newStore.
// Every subtest uses fresh owners so a shared database is fine.
func RunStoreSuite(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s ledger.Store)
	}{
		{"Categories", testCategories},
		{"Scenario", testScenario},
		{"RoundTrip", testRoundTrip},
		{"MissingCategory", testMissingCategory},
		{"Validation", testValidation},
		{"OwnershipIsolation", testOwnershipIsolation},
		{"Atomicity", testAtomicity},
		{"ConcurrentRecords", testConcurrentRecords},
		{"Idempotency", testIdempotency},
		{"Reconstruction", testReconstruction},
		{"Reads", testReads},
		{"Settings", testSettings},
		{"Rebuild", testRebuild},
		{"AmountLimit", testAmountLimit},
		{"AuditSnapshot", testAuditSnapshot},
		{"ActiveMonths", testActiveMonths},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 12, 0, 0, 0, time.UTC)
}

func cents(c int64) core.Money { return core.Money{Cents: c} }

func newOwner() string { return uuid.NewString() }

func mustCategory(t *testing.T, s ledger.Store, owner, name, icon string, typ core.TransactionType) {
	t.Helper()
	_, err := s.CreateCategory(context.Background(), core.Category{Owner: owner, Name: name, Icon: icon, Type: typ})
	if err != nil {
		t.Fatalf("create category %s: %v", name, err)
	}
}

func mustRecord(t *testing.T, s ledger.Store, owner string, amount int64, date time.Time, typ core.TransactionType, category, icon string) string {
	t.Helper()
	id, err := s.RecordTransaction(context.Background(), core.NewTransaction{
		Owner:        owner,
		Amount:       cents(amount),
		Date:         date,
		Type:         typ,
		Category:     category,
		CategoryIcon: icon,
	})
	if err != nil {
		t.Fatalf("record %d %s: %v", amount, typ, err)
	}
	if id == "" {
		t.Fatalf("record returned empty id")
	}
	return id
}

func stored(t *testing.T, s ledger.Store, owner string, y, m, d int) core.Totals {
	t.Helper()
	tot, err := s.StoredTotals(context.Background(), owner, y, m, d)
	if err != nil {
		t.Fatalf("stored totals %d-%d-%d: %v", y, m, d, err)
	}
	return tot
}

func expectTotals(t *testing.T, what string, got core.Totals, income, expense int64) {
	t.Helper()
	if got.Income.Cents != income || got.Expense.Cents != expense {
		t.Fatalf("%s: got income=%d expense=%d, want income=%d expense=%d",
			what, got.Income.Cents, got.Expense.Cents, income, expense)
	}
}

func testCategories(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	owner, other := newOwner(), newOwner()

	mustCategory(t, s, owner, "Salary", "💰", core.Income)
	mustCategory(t, s, owner, "Food", "🍔", core.Expense)
	mustCategory(t, s, owner, "Bills", "🧾", core.Expense)
	// Same name with the other type is a different category.
	mustCategory(t, s, owner, "Food", "🥕", core.Income)

	_, err := s.CreateCategory(ctx, core.Category{Owner: owner, Name: "Food", Icon: "x", Type: core.Expense})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate category: expected conflict, got %v", err)
	}

	expenses, err := s.ListCategories(ctx, owner, core.Expense)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(expenses) != 2 || expenses[0].Name != "Bills" || expenses[1].Name != "Food" {
		t.Fatalf("unexpected expense categories %+v", expenses)
	}

	all, err := s.ListCategories(ctx, owner, "")
	if err != nil || len(all) != 4 {
		t.Fatalf("list all: %d, %v", len(all), err)
	}

	got, err := s.GetCategory(ctx, owner, "Food", core.Income)
	if err != nil || got.Icon != "🥕" {
		t.Fatalf("get category: %+v, %v", got, err)
	}

	if _, err := s.GetCategory(ctx, other, "Food", core.Income); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("foreign get: expected not found, got %v", err)
	}
	if list, _ := s.ListCategories(ctx, other, ""); len(list) != 0 {
		t.Fatalf("foreign list must be empty, got %d", len(list))
	}
	if _, err := s.DeleteCategory(ctx, other, "Food", core.Expense); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("foreign delete: expected not found, got %v", err)
	}

	deleted, err := s.DeleteCategory(ctx, owner, "Food", core.Expense)
	if err != nil || deleted.Name != "Food" || deleted.Icon != "🍔" || deleted.Type != core.Expense {
		t.Fatalf("delete: %+v, %v", deleted, err)
	}
	if _, err := s.DeleteCategory(ctx, owner, "Food", core.Expense); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
}

func testScenario(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := newOwner()
	mustCategory(t, s, u, "Salary", "💰", core.Income)
	mustCategory(t, s, u, "Food", "🍔", core.Expense)

	first := mustRecord(t, s, u, 10000, day(2024, 3, 15), core.Income, "Salary", "💰")
	expectTotals(t, "day after income", stored(t, s, u, 2024, 3, 15), 10000, 0)
	expectTotals(t, "month after income", stored(t, s, u, 2024, 3, 0), 10000, 0)

	mustRecord(t, s, u, 3000, day(2024, 3, 15), core.Expense, "Food", "🍔")
	expectTotals(t, "day after expense", stored(t, s, u, 2024, 3, 15), 10000, 3000)

	removed, err := s.RemoveTransaction(ctx, u, first)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.ID != first || removed.Amount.Cents != 10000 || removed.Type != core.Income {
		t.Fatalf("unexpected removed snapshot %+v", removed)
	}
	expectTotals(t, "day after remove", stored(t, s, u, 2024, 3, 15), 0, 3000)
	expectTotals(t, "month after remove", stored(t, s, u, 2024, 3, 0), 0, 3000)

	r, err := core.NewDateRange(day(2024, 3, 1), day(2024, 3, 31), 0)
	if err != nil {
		t.Fatal(err)
	}
	bal, err := s.Balance(ctx, u, r)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Income.Cents != 0 || bal.Expense.Cents != 3000 {
		t.Fatalf("unexpected balance %+v", bal)
	}
}

func testRoundTrip(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := newOwner()
	mustCategory(t, s, u, "Food", "🍔", core.Expense)
	mustRecord(t, s, u, 500, day(2024, 5, 2), core.Expense, "Food", "🍔")

	before := stored(t, s, u, 2024, 5, 2)
	beforeMonth := stored(t, s, u, 2024, 5, 0)

	id := mustRecord(t, s, u, 1234, day(2024, 5, 2), core.Expense, "Food", "🍔")
	if _, err := s.RemoveTransaction(ctx, u, id); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if got := stored(t, s, u, 2024, 5, 2); got != before {
		t.Fatalf("day bucket not restored: %+v vs %+v", got, before)
	}
	if got := stored(t, s, u, 2024, 5, 0); got != beforeMonth {
		t.Fatalf("month bucket not restored: %+v vs %+v", got, beforeMonth)
	}
	if _, err := s.GetTransaction(ctx, u, id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("removed transaction still readable: %v", err)
	}
	if _, err := s.RemoveTransaction(ctx, u, id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second remove: expected not found, got %v", err)
	}
}

func testMissingCategory(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := newOwner()
	mustCategory(t, s, u, "Food", "🍔", core.Expense)

	_, err := s.RecordTransaction(ctx, core.NewTransaction{
		Owner: u, Amount: cents(100), Date: day(2024, 1, 1), Type: core.Income, Category: "Food",
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found for wrong type, got %v", err)
	}
	expectTotals(t, "day untouched", stored(t, s, u, 2024, 1, 1), 0, 0)
	expectTotals(t, "month untouched", stored(t, s, u, 2024, 1, 0), 0, 0)
}

func testValidation(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := newOwner()
	mustCategory(t, s, u, "Food", "🍔", core.Expense)

	bad := []core.NewTransaction{
		{Owner: u, Amount: cents(-1), Date: day(2024, 1, 1), Type: core.Expense, Category: "Food"},
		{Owner: u, Amount: cents(1), Date: day(2024, 1, 1), Type: "refund", Category: "Food"},
		{Owner: u, Amount: cents(1), Type: core.Expense, Category: "Food"},
		{Owner: "", Amount: cents(1), Date: day(2024, 1, 1), Type: core.Expense, Category: "Food"},
	}
	for i, in := range bad {
		if _, err := s.RecordTransaction(ctx, in); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if _, err := s.CreateCategory(ctx, core.Category{Owner: u, Name: "", Type: core.Expense}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("empty category name: expected validation error, got %v", err)
	}
}

func testOwnershipIsolation(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u, intruder := newOwner(), newOwner()
	mustCategory(t, s, u, "Salary", "💰", core.Income)
	id := mustRecord(t, s, u, 700, day(2024, 7, 7), core.Income, "Salary", "💰")

	_, errForeign := s.RemoveTransaction(ctx, intruder, id)
	if !errors.Is(errForeign, core.ErrNotFound) {
		t.Fatalf("foreign remove: expected not found, got %v", errForeign)
	}
	_, errMissing := s.RemoveTransaction(ctx, intruder, uuid.NewString())
	if !errors.Is(errMissing, core.ErrNotFound) {
		t.Fatalf("missing remove: expected not found, got %v", errMissing)
	}
	if _, err := s.GetTransaction(ctx, intruder, id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("foreign get: expected not found, got %v", err)
	}

	if _, err := s.GetTransaction(ctx, u, id); err != nil {
		t.Fatalf("owner lost the transaction: %v", err)
	}
	expectTotals(t, "owner day", stored(t, s, u, 2024, 7, 7), 700, 0)
	expectTotals(t, "intruder day", stored(t, s, intruder, 2024, 7, 7), 0, 0)

	r, _ := core.NewDateRange(day(2024, 7, 1), day(2024, 7, 31), 0)
	if list, err := s.ListTransactions(ctx, intruder, r); err != nil || len(list) != 0 {
		t.Fatalf("intruder list: %d, %v", len(list), err)
	}
	if bal, _ := s.Balance(ctx, intruder, r); bal.Income.Cents != 0 {
		t.Fatalf("intruder balance leaked: %+v", bal)
	}
}

func testAtomicity(t *testing.T, s ledger.Store) {
	fi, ok := s.(ledger.FaultInjector)
	if !ok {
		t.Skip("store does not support fault injection")
	}
	ctx := context.Background()
	u := newOwner()
	mustCategory(t, s, u, "Food", "🍔", core.Expense)
	keep := mustRecord(t, s, u, 1000, day(2024, 9, 10), core.Expense, "Food", "🍔")

	r, _ := core.NewDateRange(day(2024, 9, 1), day(2024, 9, 30), 0)
	assertUnchanged := func(t *testing.T) {
		t.Helper()
		expectTotals(t, "day", stored(t, s, u, 2024, 9, 10), 0, 1000)
		expectTotals(t, "month", stored(t, s, u, 2024, 9, 0), 0, 1000)
		list, err := s.ListTransactions(ctx, u, r)
		if err != nil || len(list) != 1 || list[0].ID != keep {
			t.Fatalf("transactions changed: %+v, %v", list, err)
		}
	}

	for _, step := range []ledger.Step{ledger.StepInsertTransaction, ledger.StepDayHistory, ledger.StepMonthHistory} {
		t.Run("record/"+string(step), func(t *testing.T) {
			boom := fmt.Errorf("injected at %s", step)
			fi.InjectFault(step, boom)
			_, err := s.RecordTransaction(ctx, core.NewTransaction{
				Owner: u, Amount: cents(250), Date: day(2024, 9, 10), Type: core.Expense, Category: "Food",
			})
			if !errors.Is(err, boom) || !errors.Is(err, core.ErrStorage) {
				t.Fatalf("expected injected storage error, got %v", err)
			}
			assertUnchanged(t)
		})
	}

	for _, step := range []ledger.Step{ledger.StepDeleteTransaction, ledger.StepDayHistory, ledger.StepMonthHistory} {
		t.Run("remove/"+string(step), func(t *testing.T) {
			boom := fmt.Errorf("injected at %s", step)
			fi.InjectFault(step, boom)
			_, err := s.RemoveTransaction(ctx, u, keep)
			if !errors.Is(err, boom) || !errors.Is(err, core.ErrStorage) {
				t.Fatalf("expected injected storage error, got %v", err)
			}
			assertUnchanged(t)
		})
	}

	// Faults fire once; the store keeps working afterwards.
	mustRecord(t, s, u, 1, day(2024, 9, 10), core.Expense, "Food", "🍔")
	expectTotals(t, "day after recovery", stored(t, s, u, 2024, 9, 10), 0, 1001)
}

func testConcurrentRecords(t *testing.T, s ledger.Store) {
	const writers = 16
	u := newOwner()
	mustCategory(t, s, u, "Salary", "💰", core.Income)
	mustCategory(t, s, u, "Food", "🍔", core.Expense)

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			typ, cat := core.Income, "Salary"
			if i%2 == 1 {
				typ, cat = core.Expense, "Food"
			}
			_, err := s.RecordTransaction(context.Background(), core.NewTransaction{
				Owner: u, Amount: cents(100), Date: day(2024, 2, 29), Type: typ, Category: cat,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent record: %v", err)
		}
	}

	expectTotals(t, "day", stored(t, s, u, 2024, 2, 29), writers/2*100, writers/2*100)
	expectTotals(t, "month", stored(t, s, u, 2024, 2, 0), writers/2*100, writers/2*100)
}

func testIdempotency(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u, other := newOwner(), newOwner()
	mustCategory(t, s, u, "Food", "🍔", core.Expense)
	mustCategory(t, s, other, "Food", "🍔", core.Expense)

	in := core.NewTransaction{
		Owner: u, Amount: cents(900), Date: day(2024, 4, 1), Type: core.Expense,
		Category: "Food", CategoryIcon: "🍔", IdempotencyKey: "req-1",
	}
	first, err := s.RecordTransaction(ctx, in)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := s.RecordTransaction(ctx, in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first != second {
		t.Fatalf("replay returned a new id: %s vs %s", first, second)
	}
	expectTotals(t, "day counted once", stored(t, s, u, 2024, 4, 1), 0, 900)

	in.Owner = other
	third, err := s.RecordTransaction(ctx, in)
	if err != nil {
		t.Fatalf("other owner: %v", err)
	}
	if third == first {
		t.Fatalf("keys must be scoped per owner")
	}
}

func testReconstruction(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := newOwner()
	mustCategory(t, s, u, "Salary", "💰", core.Income)
	mustCategory(t, s, u, "Food", "🍔", core.Expense)

	var ids []string
	for i := 0; i < 12; i++ {
		d := day(2024, 1+i%3, 1+i%5)
		if i%2 == 0 {
			ids = append(ids, mustRecord(t, s, u, int64(100+i), d, core.Income, "Salary", "💰"))
		} else {
			ids = append(ids, mustRecord(t, s, u, int64(50+i), d, core.Expense, "Food", "🍔"))
		}
	}
	for _, id := range ids[:4] {
		if _, err := s.RemoveTransaction(ctx, u, id); err != nil {
			t.Fatalf("remove: %v", err)
		}
	}

	days, err := s.ActiveDays(ctx, u)
	if err != nil {
		t.Fatalf("active days: %v", err)
	}
	if len(days) == 0 {
		t.Fatalf("expected active days")
	}
	for _, k := range days {
		for _, d := range []int{k.Day, 0} {
			live, err := s.LiveTotals(ctx, u, k.Year, k.Month, d)
			if err != nil {
				t.Fatalf("live: %v", err)
			}
			if got := stored(t, s, u, k.Year, k.Month, d); got != live {
				t.Fatalf("bucket %d-%d-%d: stored %+v live %+v", k.Year, k.Month, d, got, live)
			}
		}
	}
}

func testReads(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := newOwner()
	mustCategory(t, s, u, "Salary", "💰", core.Income)
	mustCategory(t, s, u, "Food", "🍔", core.Expense)
	mustCategory(t, s, u, "Rent", "🏠", core.Expense)

	mustRecord(t, s, u, 200000, day(2023, 12, 31), core.Income, "Salary", "💰")
	mustRecord(t, s, u, 1500, day(2024, 3, 1), core.Expense, "Food", "🍔")
	mustRecord(t, s, u, 2500, day(2024, 3, 20), core.Expense, "Food", "🍔")
	mustRecord(t, s, u, 90000, day(2024, 3, 5), core.Expense, "Rent", "🏠")
	mustRecord(t, s, u, 500, day(2024, 4, 1), core.Expense, "Food", "🥦")

	r, _ := core.NewDateRange(day(2024, 3, 1), day(2024, 3, 31), 0)
	list, err := s.ListTransactions(ctx, u, r)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].Date.After(list[i-1].Date) {
			t.Fatalf("transactions not ordered by date desc")
		}
	}

	totals, err := s.CategoryTotals(ctx, u, r)
	if err != nil {
		t.Fatalf("category totals: %v", err)
	}
	if len(totals) != 2 || totals[0].Category != "Rent" || totals[1].Category != "Food" || totals[1].Amount.Cents != 4000 {
		t.Fatalf("unexpected category totals %+v", totals)
	}

	// The icon is part of the grouping key.
	wide, _ := core.NewDateRange(day(2024, 3, 1), day(2024, 4, 30), 0)
	totals, _ = s.CategoryTotals(ctx, u, wide)
	if len(totals) != 3 {
		t.Fatalf("expected 3 groups with distinct icons, got %+v", totals)
	}

	days, err := s.DayHistory(ctx, u, 2024, 3)
	if err != nil || len(days) != 3 {
		t.Fatalf("day history: %+v, %v", days, err)
	}
	months, err := s.MonthHistory(ctx, u, 2024)
	if err != nil || len(months) != 2 {
		t.Fatalf("month history: %+v, %v", months, err)
	}
	years, err := s.HistoryYears(ctx, u)
	if err != nil || len(years) != 2 || years[0] != 2023 || years[1] != 2024 {
		t.Fatalf("years: %v, %v", years, err)
	}

	if years, _ := s.HistoryYears(ctx, newOwner()); len(years) != 0 {
		t.Fatalf("fresh owner has years %v", years)
	}

	owners, err := s.Owners(ctx)
	if err != nil {
		t.Fatalf("owners: %v", err)
	}
	found := false
	for _, o := range owners {
		found = found || o == u
	}
	if !found {
		t.Fatalf("owner %s missing from %v", u, owners)
	}
}

func testSettings(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := newOwner()

	if _, err := s.GetSettings(ctx, u); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	got, err := s.EnsureSettings(ctx, u, "INR")
	if err != nil || got.Currency != "INR" {
		t.Fatalf("ensure: %+v, %v", got, err)
	}
	got.Currency = "EUR"
	if _, err := s.SaveSettings(ctx, got); err != nil {
		t.Fatalf("save: %v", err)
	}
	again, err := s.EnsureSettings(ctx, u, "INR")
	if err != nil || again.Currency != "EUR" {
		t.Fatalf("ensure must keep stored settings: %+v, %v", again, err)
	}
}

func testRebuild(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := newOwner()
	mustCategory(t, s, u, "Salary", "💰", core.Income)
	mustRecord(t, s, u, 4200, day(2024, 6, 1), core.Income, "Salary", "💰")
	mustRecord(t, s, u, 800, day(2024, 6, 2), core.Income, "Salary", "💰")

	if err := s.RebuildHistory(ctx, u); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	expectTotals(t, "day 1", stored(t, s, u, 2024, 6, 1), 4200, 0)
	expectTotals(t, "day 2", stored(t, s, u, 2024, 6, 2), 800, 0)
	expectTotals(t, "month", stored(t, s, u, 2024, 6, 0), 5000, 0)
}

func testAmountLimit(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := newOwner()
	mustCategory(t, s, u, "Salary", "💰", core.Income)

	mustRecord(t, s, u, core.MaxAmount.Cents, day(2024, 6, 1), core.Income, "Salary", "💰")
	_, err := s.RecordTransaction(ctx, core.NewTransaction{
		Owner: u, Amount: cents(core.MaxAmount.Cents + 1), Date: day(2024, 6, 1), Type: core.Income, Category: "Salary",
	})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("amount above the cap: expected validation error, got %v", err)
	}
	expectTotals(t, "day", stored(t, s, u, 2024, 6, 1), core.MaxAmount.Cents, 0)
	expectTotals(t, "month", stored(t, s, u, 2024, 6, 0), core.MaxAmount.Cents, 0)
}

func testAuditSnapshot(t *testing.T, s ledger.Store) {
	const writers = 8
	ctx := context.Background()
	u := newOwner()
	mustCategory(t, s, u, "Food", "🍔", core.Expense)

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordTransaction(ctx, core.NewTransaction{
				Owner: u, Amount: cents(25), Date: day(2024, 9, 9), Type: core.Expense, Category: "Food",
			})
			errs <- err
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		for _, d := range []int{9, 0} {
			st, live, err := s.AuditBucket(ctx, u, 2024, 9, d)
			if err != nil {
				t.Fatalf("audit bucket: %v", err)
			}
			if st != live {
				t.Fatalf("bucket 2024-09-%02d: stored %+v live %+v", d, st, live)
			}
		}
	}
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent record: %v", err)
		}
	}

	st, live, err := s.AuditBucket(ctx, u, 2024, 9, 9)
	if err != nil || st != live {
		t.Fatalf("final audit: stored %+v live %+v, %v", st, live, err)
	}
	expectTotals(t, "day", st, 0, writers*25)
}

func testActiveMonths(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	u := newOwner()
	mustCategory(t, s, u, "Food", "🍔", core.Expense)
	mustRecord(t, s, u, 100, day(2024, 2, 3), core.Expense, "Food", "🍔")
	mustRecord(t, s, u, 100, day(2023, 11, 30), core.Expense, "Food", "🍔")
	mustRecord(t, s, u, 100, day(2024, 2, 20), core.Expense, "Food", "🍔")

	months, err := s.ActiveMonths(ctx, u)
	if err != nil {
		t.Fatalf("active months: %v", err)
	}
	want := []core.MonthKey{{Year: 2023, Month: 11}, {Year: 2024, Month: 2}}
	if fmt.Sprint(months) != fmt.Sprint(want) {
		t.Fatalf("active months = %v, want %v", months, want)
	}
}
