package core

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestDaysIn(t *testing.T) {
	cases := []struct {
		year, month, want int
	}{
		{2024, 2, 29},
		{2023, 2, 28},
		{1900, 2, 28},
		{2000, 2, 29},
		{2024, 1, 31},
		{2024, 4, 30},
		{2024, 12, 31},
	}
	for _, tc := range cases {
		if got := DaysIn(tc.year, tc.month); got != tc.want {
			t.Fatalf("DaysIn(%d, %d) = %d, want %d", tc.year, tc.month, got, tc.want)
		}
	}
}

func TestDensifyYear(t *testing.T) {
	rows := []MonthHistory{
		{Owner: "u1", MonthKey: MonthKey{Year: 2024, Month: 3}, Totals: Totals{Income: Money{Cents: 5000}}},
		{Owner: "u1", MonthKey: MonthKey{Year: 2023, Month: 4}, Totals: Totals{Income: Money{Cents: 1}}},
	}
	got := DensifyYear(2024, rows)
	if len(got) != 12 {
		t.Fatalf("expected 12 points, got %d", len(got))
	}
	for i, p := range got {
		if p.Month != i+1 || p.Year != 2024 || p.Day != 0 {
			t.Fatalf("unexpected point %d: %+v", i, p)
		}
	}
	if got[2].Income.Cents != 5000 {
		t.Fatalf("march income = %d", got[2].Income.Cents)
	}
	if got[3].Income.Cents != 0 {
		t.Fatalf("rows from other years must be ignored")
	}

	if empty := DensifyYear(2025, nil); len(empty) != 12 {
		t.Fatalf("empty year must still have 12 points, got %d", len(empty))
	}
}

func TestDensifyMonth(t *testing.T) {
	rows := []DayHistory{
		{Owner: "u1", DayKey: DayKey{Year: 2024, Month: 2, Day: 29}, Totals: Totals{Expense: Money{Cents: 700}}},
	}
	got := DensifyMonth(2024, 2, rows)
	if len(got) != 29 {
		t.Fatalf("expected 29 points, got %d", len(got))
	}
	if got[28].Day != 29 || got[28].Expense.Cents != 700 {
		t.Fatalf("unexpected last point %+v", got[28])
	}
	if got[0].Expense.Cents != 0 || got[0].Day != 1 {
		t.Fatalf("unexpected first point %+v", got[0])
	}

	if n := len(DensifyMonth(2023, 2, nil)); n != 28 {
		t.Fatalf("expected 28 points, got %d", n)
	}
}

func TestTotals(t *testing.T) {
	var tot Totals
	tot, err := tot.Add(Income, Money{Cents: 500})
	if err != nil {
		t.Fatal(err)
	}
	tot, err = tot.Add(Expense, Money{Cents: 200})
	if err != nil || tot.Income.Cents != 500 || tot.Expense.Cents != 200 {
		t.Fatalf("unexpected totals %+v, %v", tot, err)
	}

	full := Totals{Income: Money{Cents: math.MaxInt64 - 10}}
	got, err := full.Add(Income, Money{Cents: 11})
	if !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if got != full {
		t.Fatalf("overflowing add changed totals: %+v", got)
	}
	if got, err := full.Add(Expense, Money{Cents: 11}); err != nil || got.Expense.Cents != 11 {
		t.Fatalf("other side must still accept: %+v, %v", got, err)
	}

	tot, err = tot.Sub(Expense, Money{Cents: 200})
	if err != nil || tot.Expense.Cents != 0 {
		t.Fatalf("sub: %+v, %v", tot, err)
	}

	if _, err := tot.Sub(Expense, Money{Cents: 1}); !errors.Is(err, ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	if tot.IsZero() {
		t.Fatalf("income still booked")
	}
}

func TestDayKeyOfUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	ts := time.Date(2024, 3, 1, 2, 0, 0, 0, loc) // 2024-02-29 21:00 UTC
	k := DayKeyOf(ts)
	if k != (DayKey{Year: 2024, Month: 2, Day: 29}) {
		t.Fatalf("unexpected key %+v", k)
	}
	if k.MonthKey() != (MonthKey{Year: 2024, Month: 2}) {
		t.Fatalf("unexpected month key %+v", k.MonthKey())
	}
}

func TestNewDateRange(t *testing.T) {
	from := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 1, 0, 0, 0, time.UTC)
	r, err := NewDateRange(from, to, 90)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if !r.Contains(time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)) {
		t.Fatalf("upper day must be inclusive")
	}
	if r.Contains(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("day after range must be excluded")
	}

	if _, err := NewDateRange(to, from, 90); !errors.Is(err, ErrValidation) {
		t.Fatalf("reversed range: %v", err)
	}
	if _, err := NewDateRange(from, from.AddDate(0, 0, 91), 90); !errors.Is(err, ErrValidation) {
		t.Fatalf("long range: %v", err)
	}
	if _, err := NewDateRange(from, from.AddDate(1, 0, 0), 0); err != nil {
		t.Fatalf("unbounded range: %v", err)
	}
}

func TestNewDateRangeCountsBothEnds(t *testing.T) {
	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		to      time.Time
		maxDays int
		ok      bool
	}{
		{"single day", jan1, 1, true},
		{"two days over a limit of one", jan1.AddDate(0, 0, 1), 1, false},
		{"ninety days", jan1.AddDate(0, 0, 89), 90, true},
		{"ninety-one days", jan1.AddDate(0, 0, 90), 90, false},
		{"whole leap year", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), 366, true},
		{"leap year plus a day", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 366, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDateRange(jan1, tc.to, tc.maxDays)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSortCategoryTotals(t *testing.T) {
	totals := []CategoryTotal{
		{Type: Expense, Category: "Food", Amount: Money{Cents: 100}},
		{Type: Income, Category: "Salary", Amount: Money{Cents: 900}},
		{Type: Expense, Category: "Bills", Amount: Money{Cents: 100}},
		{Type: Income, Category: "Gift", Amount: Money{Cents: 100}},
	}
	SortCategoryTotals(totals)
	want := []string{"Salary", "Bills", "Food", "Gift"}
	for i, w := range want {
		if totals[i].Category != w {
			t.Fatalf("position %d: got %s want %s", i, totals[i].Category, w)
		}
	}
}
