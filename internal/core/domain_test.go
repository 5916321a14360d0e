package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseTransactionType(t *testing.T) {
	for _, in := range []string{"income", "Expense", " INCOME "} {
		if _, err := ParseTransactionType(in); err != nil {
			t.Fatalf("%q expected ok, got %v", in, err)
		}
	}
	for _, in := range []string{"", "transfer", "in come"} {
		_, err := ParseTransactionType(in)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%q expected validation error, got %v", in, err)
		}
	}
}

func TestCategoryValidate(t *testing.T) {
	good := Category{Owner: "u1", Name: "Salary", Icon: "💰", Type: Income}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Category{
		{Owner: "", Name: "Salary", Icon: "💰", Type: Income},
		{Owner: "u1", Name: "  ", Icon: "💰", Type: Income},
		{Owner: "u1", Name: strings.Repeat("x", MaxCategoryNameLength+1), Type: Income},
		{Owner: "u1", Name: "Salary", Icon: strings.Repeat("💰", MaxCategoryIconLength+1), Type: Income},
		{Owner: "u1", Name: "Salary", Type: "gift"},
	}
	for i, c := range bads {
		if err := c.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestNewTransactionValidate(t *testing.T) {
	good := NewTransaction{
		Owner:    "u1",
		Amount:   Money{Cents: 0},
		Date:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Type:     Expense,
		Category: "Food",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	mutate := []func(*NewTransaction){
		func(n *NewTransaction) { n.Owner = "" },
		func(n *NewTransaction) { n.Amount = Money{Cents: -1} },
		func(n *NewTransaction) { n.Description = strings.Repeat("a", MaxDescriptionLength+1) },
		func(n *NewTransaction) { n.Date = time.Time{} },
		func(n *NewTransaction) { n.Type = "" },
		func(n *NewTransaction) { n.Category = " " },
		func(n *NewTransaction) { n.IdempotencyKey = strings.Repeat("k", MaxIdempotencyKeyLength+1) },
	}
	for i, m := range mutate {
		n := good
		m(&n)
		if err := n.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestStorageErrorClassification(t *testing.T) {
	base := errors.New("disk I/O error")
	err := NewStorageError("insert transaction", base)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage class")
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected to unwrap to engine error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("storage error must not match not found")
	}

	nf := NotFoundf("transaction %s", "abc")
	if got := NewStorageError("remove", nf); got != nf {
		t.Fatalf("domain errors must pass through unchanged, got %v", got)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	got, err := NormalizeCurrency(" eur ")
	if err != nil || got != "EUR" {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := NormalizeCurrency("EURO"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
