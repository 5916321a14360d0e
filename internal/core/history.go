package core

import (
	"time"
)

// DayKey identifies a day bucket. Month is 1-based.
type DayKey struct {
	Year  int
	Month int
	Day   int
}

// MonthKey identifies a month bucket. Month is 1-based.
type MonthKey struct {
	Year  int
	Month int
}

// DayKeyOf returns the bucket of t using its UTC calendar date.
func DayKeyOf(t time.Time) DayKey {
	y, m, d := t.UTC().Date()
	return DayKey{Year: y, Month: int(m), Day: d}
}

// MonthKey returns the month bucket containing the day.
func (k DayKey) MonthKey() MonthKey { return MonthKey{Year: k.Year, Month: k.Month} }

// Totals is the income/expense pair held by a bucket.
type Totals struct {
	Income  Money `json:"income"`
	Expense Money `json:"expense"`
}

// Add books amount on the side selected by typ. A side that would overflow
// is reported as ErrAmountOverflow and t is returned unchanged.
func (t Totals) Add(typ TransactionType, amount Money) (Totals, error) {
	side := &t.Expense
	if typ == Income {
		side = &t.Income
	}
	sum, err := side.Add(amount)
	if err != nil {
		return t, err
	}
	*side = sum
	return t, nil
}

// Sub removes amount from the side selected by typ. A result below zero means
// the bucket lost an update and is reported as a consistency error.
func (t Totals) Sub(typ TransactionType, amount Money) (Totals, error) {
	side := &t.Expense
	if typ == Income {
		side = &t.Income
	}
	if side.Cents < amount.Cents {
		return t, Consistencyf("%s bucket would go negative (%s - %s)", typ, side, amount)
	}
	side.Cents -= amount.Cents
	return t, nil
}

func (t Totals) IsZero() bool { return t.Income.Cents == 0 && t.Expense.Cents == 0 }

type (
	DayHistory struct {
		Owner string
		DayKey
		Totals
	}

	MonthHistory struct {
		Owner string
		MonthKey
		Totals
	}

	// HistoryPoint is one entry of a dense calendar series.
	HistoryPoint struct {
		Year    int   `json:"year"`
		Month   int   `json:"month"`
		Day     int   `json:"day,omitempty"`
		Income  Money `json:"income"`
		Expense Money `json:"expense"`
	}
)

// DaysIn returns the number of days of month in year.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DensifyYear expands sparse month rows into exactly 12 points ordered by month.
func DensifyYear(year int, rows []MonthHistory) []HistoryPoint {
	var byMonth [12]Totals
	for _, r := range rows {
		if r.Year != year || r.MonthKey.Month < 1 || r.MonthKey.Month > 12 {
			continue
		}
		byMonth[r.MonthKey.Month-1] = r.Totals
	}
	out := make([]HistoryPoint, 12)
	for i := range out {
		out[i] = HistoryPoint{Year: year, Month: i + 1, Income: byMonth[i].Income, Expense: byMonth[i].Expense}
	}
	return out
}

// DensifyMonth expands sparse day rows into one point per calendar day.
func DensifyMonth(year, month int, rows []DayHistory) []HistoryPoint {
	n := DaysIn(year, month)
	byDay := make([]Totals, n)
	for _, r := range rows {
		if r.Year != year || r.DayKey.Month != month || r.Day < 1 || r.Day > n {
			continue
		}
		byDay[r.Day-1] = r.Totals
	}
	out := make([]HistoryPoint, n)
	for i := range out {
		out[i] = HistoryPoint{Year: year, Month: month, Day: i + 1, Income: byDay[i].Income, Expense: byDay[i].Expense}
	}
	return out
}
