package core

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

// DefaultCurrency is used for settings created on first access.
const DefaultCurrency = "INR"

// DateRange is an inclusive range of whole UTC days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewDateRange truncates both ends to whole UTC days and checks that the span
// is ordered and covers at most maxDays days, both ends included. A maxDays of
// 0 disables the span check.
func NewDateRange(from, to time.Time, maxDays int) (DateRange, error) {
	if from.IsZero() || to.IsZero() {
		return DateRange{}, ErrInvalidDateRange
	}
	from = startOfDay(from)
	to = startOfDay(to)
	if to.Before(from) {
		return DateRange{}, Validationf("date range: from %s is after to %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	if maxDays > 0 && to.Sub(from) >= time.Duration(maxDays)*24*time.Hour {
		return DateRange{}, Validationf("date range longer than %d days", maxDays)
	}
	return DateRange{From: from, To: to}, nil
}

// End returns the exclusive upper bound of the range.
func (r DateRange) End() time.Time { return r.To.AddDate(0, 0, 1) }

// Contains reports whether t falls on one of the range's days.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.End())
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Balance is the live income/expense sum over a date range.
type Balance struct {
	Income  Money `json:"income"`
	Expense Money `json:"expense"`
}

// CategoryTotal is the sum of one (type, category, icon) group.
type CategoryTotal struct {
	Type         TransactionType `json:"type"`
	Category     string          `json:"category"`
	CategoryIcon string          `json:"categoryIcon"`
	Amount       Money           `json:"amount"`
}

// SortCategoryTotals orders by amount descending, then by type, category and icon.
func SortCategoryTotals(totals []CategoryTotal) {
	sort.SliceStable(totals, func(i, j int) bool {
		a, b := totals[i], totals[j]
		if a.Amount.Cents != b.Amount.Cents {
			return a.Amount.Cents > b.Amount.Cents
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.CategoryIcon < b.CategoryIcon
	})
}

// UserSettings holds per-owner preferences.
type UserSettings struct {
	Owner     string    `json:"-"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NormalizeCurrency returns the canonical ISO 4217 code for s.
func NormalizeCurrency(s string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(s))
	if err != nil {
		return "", ErrInvalidCurrency
	}
	return unit.String(), nil
}
