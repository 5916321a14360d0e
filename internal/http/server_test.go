package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"tally/internal/auth"
	"tally/internal/core"
	"tally/internal/services"
	"tally/internal/storage/memory"
)

const testSecret = "http-test-secret-http-test-secret"

type fixture struct {
	srv   *Server
	store *memory.Store
	owner string
	token string
}

type fixtureOption func(*Options, *services.LedgerService)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	return newFixtureWithLedger(t, nil, opts...)
}

func newFixtureWithLedger(t *testing.T, ledgerStore services.LedgerStore, opts ...fixtureOption) *fixture {
	t.Helper()
	store := memory.New()
	if ledgerStore == nil {
		ledgerStore = store
	}
	verifier, err := auth.NewVerifier(testSecret, "authenticated")
	if err != nil {
		t.Fatal(err)
	}
	settings, err := services.NewSettingsService(store, "INR")
	if err != nil {
		t.Fatal(err)
	}
	ledgerSvc := services.NewLedgerService(ledgerStore, nil, 0)

	o := Options{Addr: ":0", Auth: verifier, Ready: store.Ping, RateLimitPerMinute: 100}
	for _, opt := range opts {
		opt(&o, ledgerSvc)
	}
	srv := NewServer(o, Services{
		Ledger:   ledgerSvc,
		Stats:    services.NewStatsService(store, 366),
		Settings: settings,
	})
	srv.now = func() time.Time { return time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	owner := uuid.NewString()
	token, err := auth.IssueToken(testSecret, owner, "authenticated", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{srv: srv, store: store, owner: owner, token: token}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+f.token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	f.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func (f *fixture) seedCategories(t *testing.T) {
	t.Helper()
	for _, body := range []string{
		`{"name":"Salary","icon":"💰","type":"income"}`,
		`{"name":"Food","icon":"🍔","type":"expense"}`,
	} {
		if rr := f.do(t, http.MethodPost, "/api/categories", body); rr.Code != http.StatusCreated {
			t.Fatalf("seed category: %d %s", rr.Code, rr.Body.String())
		}
	}
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		f.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s: missing request id header", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("%s: missing security headers", path)
		}
	}

	down := newFixture(t, func(o *Options, _ *services.LedgerService) {
		o.Ready = func(context.Context) error { return errors.New("db down") }
	})
	rr := httptest.NewRecorder()
	down.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing store: %d", rr.Code)
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	f := newFixture(t)
	for _, header := range []string{"", "Bearer nope", "Token " + f.token} {
		req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		f.srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status=%d", header, rr.Code)
		}
		if got := decode[errorResponse](t, rr); got.Code != "auth_error" || got.RequestID == "" {
			t.Fatalf("unexpected body %+v", got)
		}
	}
}

func TestCategoriesEndpoints(t *testing.T) {
	f := newFixture(t)
	f.seedCategories(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"duplicate", http.MethodPost, "/api/categories", `{"name":"Food","icon":"🍕","type":"expense"}`, http.StatusConflict},
		{"same name other type", http.MethodPost, "/api/categories", `{"name":"Food","icon":"🍕","type":"income"}`, http.StatusCreated},
		{"bad type", http.MethodPost, "/api/categories", `{"name":"Gift","type":"gift"}`, http.StatusUnprocessableEntity},
		{"empty name", http.MethodPost, "/api/categories", `{"name":"  ","type":"expense"}`, http.StatusUnprocessableEntity},
		{"malformed", http.MethodPost, "/api/categories", `{"name":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/categories", `{"name":"X","type":"expense","color":"red"}`, http.StatusBadRequest},
		{"list bad type", http.MethodGet, "/api/categories?type=gift", "", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := f.do(t, tt.method, tt.path, tt.body); rr.Code != tt.want {
				t.Fatalf("status=%d want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}

	rr := f.do(t, http.MethodGet, "/api/categories?type=expense", "")
	list := decode[struct{ Categories []core.Category }](t, rr)
	if len(list.Categories) != 1 || list.Categories[0].Name != "Food" || list.Categories[0].Icon != "🍔" {
		t.Fatalf("expense categories = %+v", list.Categories)
	}

	rr = f.do(t, http.MethodDelete, "/api/categories/expense/Food", "")
	if rr.Code != http.StatusOK || decode[core.Category](t, rr).Name != "Food" {
		t.Fatalf("delete: %d %s", rr.Code, rr.Body.String())
	}
	if rr := f.do(t, http.MethodDelete, "/api/categories/expense/Food", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", rr.Code)
	}
}

func TestRecordTransactionValidation(t *testing.T) {
	f := newFixture(t)
	f.seedCategories(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing amount", `{"date":"2024-03-15","type":"expense","category":"Food"}`, http.StatusUnprocessableEntity},
		{"negative amount", `{"amount":-1,"date":"2024-03-15","type":"expense","category":"Food"}`, http.StatusUnprocessableEntity},
		{"bad date", `{"amount":1,"date":"15/03/2024","type":"expense","category":"Food"}`, http.StatusBadRequest},
		{"missing date", `{"amount":1,"type":"expense","category":"Food"}`, http.StatusBadRequest},
		{"bad type", `{"amount":1,"date":"2024-03-15","type":"loan","category":"Food"}`, http.StatusUnprocessableEntity},
		{"unknown category", `{"amount":1,"date":"2024-03-15","type":"expense","category":"Travel"}`, http.StatusNotFound},
		{"category of other type", `{"amount":1,"date":"2024-03-15","type":"income","category":"Food"}`, http.StatusNotFound},
		{"empty body", ``, http.StatusBadRequest},
		{"zero amount", `{"amount":0,"date":"2024-03-15","type":"expense","category":"Food"}`, http.StatusCreated},
		{"string amount", `{"amount":"12,34","date":"2024-03-15T09:30:00Z","type":"expense","category":"Food"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := f.do(t, http.MethodPost, "/api/transactions", tt.body); rr.Code != tt.want {
				t.Fatalf("status=%d want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestTransactionLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seedCategories(t)

	body := `{"amount":12.5,"description":"lunch","date":"2024-03-15","type":"expense","category":"Food"}`
	rr := f.do(t, http.MethodPost, "/api/transactions", body, IdempotencyKeyHeader, "lunch-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("record: %d %s", rr.Code, rr.Body.String())
	}
	id := decode[map[string]string](t, rr)["id"]

	rr = f.do(t, http.MethodPost, "/api/transactions", body, IdempotencyKeyHeader, "lunch-1")
	if again := decode[map[string]string](t, rr)["id"]; again != id {
		t.Fatalf("idempotent retry returned %q, want %q", again, id)
	}
	if rr := f.do(t, http.MethodPost, "/api/transactions", `{"amount":"1000","date":"2024-03-01","type":"income","category":"Salary"}`); rr.Code != http.StatusCreated {
		t.Fatalf("record income: %d", rr.Code)
	}

	rr = f.do(t, http.MethodGet, "/api/transactions-history?from=2024-03-01&to=2024-03-31", "")
	hist := decode[struct {
		Currency     string
		Transactions []struct {
			ID              string
			Amount          json.Number
			CategoryIcon    string
			FormattedAmount string
		}
	}](t, rr)
	if hist.Currency != "INR" || len(hist.Transactions) != 2 {
		t.Fatalf("history = %+v", hist)
	}
	first := hist.Transactions[0]
	if first.ID != id || first.Amount.String() != "12.50" || first.CategoryIcon != "🍔" {
		t.Fatalf("newest transaction = %+v", first)
	}
	if !strings.Contains(first.FormattedAmount, "12.5") {
		t.Fatalf("formatted amount = %q", first.FormattedAmount)
	}

	rr = f.do(t, http.MethodGet, "/api/stats/balance?from=2024-03-01&to=2024-03-31", "")
	if got := rr.Body.String(); !strings.Contains(got, `"income":1000.00`) || !strings.Contains(got, `"expense":12.50`) {
		t.Fatalf("balance = %s", got)
	}

	rr = f.do(t, http.MethodGet, "/api/stats/categories?from=2024-03-01&to=2024-03-31", "")
	totals := decode[struct{ Totals []core.CategoryTotal }](t, rr)
	if len(totals.Totals) != 2 || totals.Totals[0].Category != "Salary" {
		t.Fatalf("category totals = %+v", totals.Totals)
	}

	rr = f.do(t, http.MethodGet, "/api/history-periods", "")
	if years := decode[struct{ Years []int }](t, rr).Years; len(years) != 1 || years[0] != 2024 {
		t.Fatalf("years = %v", years)
	}

	rr = f.do(t, http.MethodGet, "/api/history-data?timeframe=year&year=2024", "")
	year := decode[struct{ Points []core.HistoryPoint }](t, rr)
	if len(year.Points) != 12 || year.Points[2].Expense.Cents != 1250 || year.Points[2].Income.Cents != 100000 {
		t.Fatalf("year points = %+v", year.Points)
	}

	// Month defaults to the current one.
	rr = f.do(t, http.MethodGet, "/api/history-data?timeframe=month", "")
	month := decode[struct{ Points []core.HistoryPoint }](t, rr)
	if len(month.Points) != 31 || month.Points[14].Expense.Cents != 1250 {
		t.Fatalf("month points = %d", len(month.Points))
	}

	if rr := f.do(t, http.MethodDelete, "/api/transactions/"+id, ""); rr.Code != http.StatusOK {
		t.Fatalf("remove: %d %s", rr.Code, rr.Body.String())
	}
	if rr := f.do(t, http.MethodDelete, "/api/transactions/"+id, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("second remove: %d", rr.Code)
	}
	day, _ := f.store.StoredTotals(context.Background(), f.owner, 2024, 3, 15)
	if !day.IsZero() {
		t.Fatalf("day bucket after remove = %+v", day)
	}
}

func TestQueryValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		path string
		want int
	}{
		{"/api/stats/balance?from=2024-03-01", http.StatusBadRequest},
		{"/api/stats/balance?from=2024-03-31&to=2024-03-01", http.StatusUnprocessableEntity},
		{"/api/stats/categories?from=2020-01-01&to=2024-01-01", http.StatusUnprocessableEntity},
		{"/api/history-data?timeframe=week", http.StatusUnprocessableEntity},
		{"/api/history-data?timeframe=month&month=13", http.StatusUnprocessableEntity},
		{"/api/history-data?year=twenty", http.StatusBadRequest},
		{"/api/transactions-history?from=2024-03-01&to=2024-03-01", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rr := f.do(t, http.MethodGet, tt.path, ""); rr.Code != tt.want {
				t.Fatalf("status=%d want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestForeignTransactionIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.seedCategories(t)
	rr := f.do(t, http.MethodPost, "/api/transactions", `{"amount":5,"date":"2024-03-15","type":"expense","category":"Food"}`)
	id := decode[map[string]string](t, rr)["id"]

	other, err := auth.IssueToken(testSecret, uuid.NewString(), "authenticated", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	mine := f.token
	f.token = other
	if rr := f.do(t, http.MethodDelete, "/api/transactions/"+id, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("foreign remove: %d", rr.Code)
	}
	f.token = mine
	if rr := f.do(t, http.MethodDelete, "/api/transactions/"+id, ""); rr.Code != http.StatusOK {
		t.Fatalf("own remove: %d", rr.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/api/user-settings", "")
	if got := decode[core.UserSettings](t, rr); rr.Code != http.StatusOK || got.Currency != "INR" {
		t.Fatalf("default settings: %d %+v", rr.Code, got)
	}
	if rr := f.do(t, http.MethodPut, "/api/user-settings", `{"currency":"doubloons"}`); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid currency: %d", rr.Code)
	}
	rr = f.do(t, http.MethodPut, "/api/user-settings", `{"currency":"eur"}`)
	if got := decode[core.UserSettings](t, rr); got.Currency != "EUR" {
		t.Fatalf("update: %+v", got)
	}
	rr = f.do(t, http.MethodGet, "/api/user-settings", "")
	if got := decode[core.UserSettings](t, rr); got.Currency != "EUR" {
		t.Fatalf("after update: %+v", got)
	}
}

func TestMutationsAreRateLimited(t *testing.T) {
	f := newFixture(t, func(o *Options, _ *services.LedgerService) { o.RateLimitPerMinute = 2 })

	for i, want := range []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests} {
		body := `{"name":"C` + string(rune('a'+i)) + `","type":"expense"}`
		rr := f.do(t, http.MethodPost, "/api/categories", body)
		if rr.Code != want {
			t.Fatalf("request %d: status=%d want %d", i, rr.Code, want)
		}
		if want == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
			t.Fatal("missing Retry-After")
		}
	}
	if rr := f.do(t, http.MethodGet, "/api/categories", ""); rr.Code != http.StatusOK {
		t.Fatalf("reads must not be limited: %d", rr.Code)
	}
}

func TestConsistencyErrorIsInternal(t *testing.T) {
	f := newFixture(t)
	f.seedCategories(t)
	rr := f.do(t, http.MethodPost, "/api/transactions", `{"amount":7,"date":"2024-03-15","type":"expense","category":"Food"}`)
	id := decode[map[string]string](t, rr)["id"]

	f.store.SetBucket(f.owner, 2024, 3, 15, core.Totals{})

	rr = f.do(t, http.MethodDelete, "/api/transactions/"+id, "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := decode[errorResponse](t, rr); got.Error != "internal error" || got.Code != "internal_error" {
		t.Fatalf("internal details leaked: %+v", got)
	}
}

type brokenStore struct{ *memory.Store }

func (brokenStore) ListCategories(context.Context, string, core.TransactionType) ([]core.Category, error) {
	return nil, core.NewStorageError("list categories", errors.New("disk I/O error"))
}

func TestStorageErrorIsUnavailable(t *testing.T) {
	f := newFixtureWithLedger(t, brokenStore{memory.New()})
	rr := f.do(t, http.MethodGet, "/api/categories", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "disk") {
		t.Fatalf("storage detail leaked: %s", rr.Body.String())
	}
}
