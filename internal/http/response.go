package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/middleware/trace"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", log.FieldError, err)
	}
}

// writeError maps an error class to its status code. Internal failures get a
// generic body; the detail only goes to the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := log.NewStructuredLogger(log.FromContext(ctx))

	status, code, msg := http.StatusInternalServerError, log.ErrorTypeInternal, "internal error"
	switch {
	case errors.Is(err, errBadRequest):
		status, code, msg = http.StatusBadRequest, log.ErrorTypeValidation, err.Error()
	case errors.Is(err, core.ErrValidation):
		status, code, msg = http.StatusUnprocessableEntity, log.ErrorTypeValidation, err.Error()
	case errors.Is(err, core.ErrUnauthorized):
		status, code, msg = http.StatusUnauthorized, log.ErrorTypeAuth, "unauthorized"
	case errors.Is(err, core.ErrNotFound):
		status, code, msg = http.StatusNotFound, log.ErrorTypeNotFound, err.Error()
	case errors.Is(err, core.ErrConflict):
		status, code, msg = http.StatusConflict, log.ErrorTypeConflict, err.Error()
	case errors.Is(err, core.ErrConsistency):
		logger.LogError(ctx, "Ledger invariant violated", err, log.ErrorTypeInternal, r.Method+" "+r.URL.Path, nil)
	case errors.Is(err, core.ErrStorage):
		status, code, msg = http.StatusServiceUnavailable, log.ErrorTypeDatabase, "storage unavailable"
		logger.LogError(ctx, "Storage failure", err, log.ErrorTypeDatabase, r.Method+" "+r.URL.Path, nil)
	default:
		logger.LogError(ctx, "Unhandled error", err, log.ErrorTypeInternal, r.Method+" "+r.URL.Path, nil)
	}

	if status < http.StatusInternalServerError {
		log.FromContext(ctx).DebugContext(ctx, "Request rejected",
			log.FieldStatusCode, status,
			log.FieldErrorType, code,
			log.FieldError, err)
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code, RequestID: trace.GetRequestID(ctx)})
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, err)
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log.FromContext(ctx).WithComponent(log.ComponentRateLimit).WarnContext(ctx, "Rate limit exceeded",
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Error:     "rate limit exceeded, retry later",
		Code:      log.ErrorTypeRateLimit,
		RequestID: trace.GetRequestID(ctx),
	})
}

var displayPrinter = message.NewPrinter(language.English)

// formatAmount renders m with the currency's symbol, e.g. "$ 12.50". Unknown
// codes fall back to the bare amount.
func formatAmount(m core.Money, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return m.String()
	}
	return displayPrinter.Sprint(currency.Symbol(unit.Amount(m.Decimal().InexactFloat64())))
}
