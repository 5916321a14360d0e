package http

import (
	"net/http"

	"tally/internal/services"
)

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	from, to, err := parseRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	bal, err := s.svc.Stats.Balance(r.Context(), owner, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (s *Server) handleCategoryTotals(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	from, to, err := parseRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	totals, err := s.svc.Stats.CategoryTotals(r.Context(), owner, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"totals": totals})
}

func (s *Server) handleHistoryPeriods(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	years, err := s.svc.Stats.HistoryPeriods(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"years": years})
}

// handleHistoryData defaults to the current year, and to the current month
// in month mode.
func (s *Server) handleHistoryData(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	now := s.now().UTC()

	tfParam := q.Get("timeframe")
	if tfParam == "" {
		tfParam = string(services.TimeframeYear)
	}
	tf, err := services.ParseTimeframe(tfParam)
	if err != nil {
		writeError(w, r, err)
		return
	}
	year, err := parseIntParam(q, "year", now.Year())
	if err != nil {
		writeError(w, r, err)
		return
	}
	month := 0
	if tf == services.TimeframeMonth {
		if month, err = parseIntParam(q, "month", int(now.Month())); err != nil {
			writeError(w, r, err)
			return
		}
	}

	points, err := s.svc.Stats.History(r.Context(), owner, tf, year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"timeframe": tf,
		"year":      year,
		"month":     month,
		"points":    points,
	})
}
