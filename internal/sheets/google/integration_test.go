//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
)

// Integration tests require a real spreadsheet and a service account with
// edit access. Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_MirrorRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	if os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON") == "" && os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE") == "" &&
		os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		t.Skip("service account credentials not configured, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	client, err := NewFromEnv(ctx)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	tx := core.Transaction{
		ID:          uuid.NewString(),
		Owner:       "integration",
		Amount:      core.Money{Cents: 4200},
		Description: "integration test row",
		Date:        time.Now().UTC(),
		Type:        core.Expense,
		Category:    "Test",
	}
	if err := client.AppendTransaction(ctx, tx); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := client.AppendTransaction(ctx, tx); err != nil {
		t.Fatalf("second append: %v", err)
	}

	ids, err := client.readIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if findRow(ids, tx.ID) < 0 {
		t.Fatal("appended row not found")
	}

	if err := client.RemoveTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	ids, err = client.readIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if findRow(ids, tx.ID) >= 0 {
		t.Fatal("row still present after remove")
	}
}
