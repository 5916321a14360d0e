package http

import (
	"net/http"

	"tally/internal/core"
)

// IdempotencyKeyHeader makes a record request safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

type recordTransactionRequest struct {
	Amount      *core.Money `json:"amount"`
	Description string      `json:"description"`
	Date        string      `json:"date"`
	Type        string      `json:"type"`
	Category    string      `json:"category"`
}

type transactionView struct {
	core.Transaction
	FormattedAmount string `json:"formattedAmount"`
}

func (s *Server) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}

	var req recordTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Amount == nil {
		writeError(w, r, core.Validationf("amount is required"))
		return
	}
	date, err := parseDay("date", req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	typ, err := core.ParseTransactionType(req.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.svc.Ledger.RecordTransaction(r.Context(), core.NewTransaction{
		Owner:          owner,
		Amount:         *req.Amount,
		Description:    sanitizeInput(req.Description),
		Date:           date,
		Type:           typ,
		Category:       sanitizeInput(req.Category),
		IdempotencyKey: sanitizeInput(r.Header.Get(IdempotencyKeyHeader)),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleRemoveTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}

	if _, err := s.svc.Ledger.RemoveTransaction(r.Context(), owner, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func (s *Server) handleTransactionHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	from, to, err := parseRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := s.svc.Stats.Range(from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	settings, err := s.svc.Settings.Get(ctx, owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.svc.Ledger.TransactionHistory(ctx, owner, rng)
	if err != nil {
		writeError(w, r, err)
		return
	}

	views := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, transactionView{Transaction: tx, FormattedAmount: formatAmount(tx.Amount, settings.Currency)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"currency":     settings.Currency,
		"transactions": views,
	})
}
