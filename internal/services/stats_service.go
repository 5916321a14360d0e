package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tally/internal/core"
	"tally/internal/ledger"
)

// Timeframe selects the resolution of a history series.
type Timeframe string

const (
	TimeframeYear  Timeframe = "year"
	TimeframeMonth Timeframe = "month"
)

func ParseTimeframe(s string) (Timeframe, error) {
	switch tf := Timeframe(strings.ToLower(strings.TrimSpace(s))); tf {
	case TimeframeYear, TimeframeMonth:
		return tf, nil
	default:
		return "", core.Validationf("timeframe must be year or month, got %q", s)
	}
}

// StatsService serves the read side. Balance and category totals are live
// sums; history series are dense expansions of the stored buckets.
type StatsService struct {
	reader       ledger.StatsReader
	maxRangeDays int
	now          func() time.Time
}

func NewStatsService(reader ledger.StatsReader, maxRangeDays int) *StatsService {
	return &StatsService{reader: reader, maxRangeDays: maxRangeDays, now: time.Now}
}

// Range validates [from, to] against the configured maximum span.
func (s *StatsService) Range(from, to time.Time) (core.DateRange, error) {
	return core.NewDateRange(from, to, s.maxRangeDays)
}

func (s *StatsService) Balance(ctx context.Context, owner string, from, to time.Time) (core.Balance, error) {
	r, err := s.Range(from, to)
	if err != nil {
		return core.Balance{}, err
	}
	b, err := s.reader.Balance(ctx, owner, r)
	if err != nil {
		return core.Balance{}, fmt.Errorf("balance: %w", err)
	}
	return b, nil
}

func (s *StatsService) CategoryTotals(ctx context.Context, owner string, from, to time.Time) ([]core.CategoryTotal, error) {
	r, err := s.Range(from, to)
	if err != nil {
		return nil, err
	}
	totals, err := s.reader.CategoryTotals(ctx, owner, r)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	// Stores already order; sorting again keeps ties deterministic across backends.
	core.SortCategoryTotals(totals)
	if totals == nil {
		totals = []core.CategoryTotal{}
	}
	return totals, nil
}

// History returns 12 points in year mode and one point per calendar day in
// month mode. month is ignored in year mode.
func (s *StatsService) History(ctx context.Context, owner string, tf Timeframe, year, month int) ([]core.HistoryPoint, error) {
	if year < 1 || year > 9999 {
		return nil, core.Validationf("year out of range: %d", year)
	}
	switch tf {
	case TimeframeYear:
		rows, err := s.reader.MonthHistory(ctx, owner, year)
		if err != nil {
			return nil, fmt.Errorf("month history: %w", err)
		}
		return core.DensifyYear(year, rows), nil
	case TimeframeMonth:
		if month < 1 || month > 12 {
			return nil, core.Validationf("month out of range: %d", month)
		}
		rows, err := s.reader.DayHistory(ctx, owner, year, month)
		if err != nil {
			return nil, fmt.Errorf("day history: %w", err)
		}
		return core.DensifyMonth(year, month, rows), nil
	default:
		return nil, core.Validationf("timeframe must be year or month, got %q", tf)
	}
}

// HistoryPeriods returns the years with history, or the current year when
// there is none.
func (s *StatsService) HistoryPeriods(ctx context.Context, owner string) ([]int, error) {
	years, err := s.reader.HistoryYears(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("history years: %w", err)
	}
	if len(years) == 0 {
		return []int{s.now().UTC().Year()}, nil
	}
	return years, nil
}
