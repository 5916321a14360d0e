package memory

import (
	"context"
	"testing"
	"time"

	"tally/internal/core"
)

func tx(id string) core.Transaction {
	return core.Transaction{
		ID:           id,
		Owner:        "u1",
		Amount:       core.Money{Cents: 1250},
		Description:  "lunch",
		Date:         time.Date(2024, 3, 15, 23, 30, 0, 0, time.UTC),
		Type:         core.Expense,
		Category:     "Food",
		CategoryIcon: "🍔",
	}
}

func TestMirrorAppendAndRemove(t *testing.T) {
	m := New()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "a"} {
		if err := m.AppendTransaction(ctx, tx(id)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	rows := m.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected duplicate id to be ignored, got %d rows", len(rows))
	}
	want := []any{"a", "u1", "2024-03-15", "expense", "Food", "🍔", "lunch", "12.50"}
	for i, v := range want {
		if rows[0][i] != v {
			t.Errorf("column %d = %v, want %v", i, rows[0][i], v)
		}
	}

	if err := m.RemoveTransaction(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := m.RemoveTransaction(ctx, "missing"); err != nil {
		t.Fatalf("removing an unknown id must be a no-op: %v", err)
	}
	rows = m.Rows()
	if len(rows) != 1 || rows[0][0] != "b" {
		t.Fatalf("unexpected rows after remove: %v", rows)
	}
}

func TestMirrorRejectsMissingID(t *testing.T) {
	if err := New().AppendTransaction(context.Background(), tx("")); err == nil {
		t.Fatal("expected error for empty id")
	}
}
