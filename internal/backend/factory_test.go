package backend

import (
	"context"
	"path/filepath"
	"testing"

	"tally/internal/config"
	"tally/internal/core"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without url", Config{Type: PostgresBackend}, true},
		{"unknown type", Config{Type: "sheets"}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://localhost", AMQPExchange: "tally"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "mysql"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	got, err := FromAppConfig(&config.Config{DataBackend: "postgres", PostgresURL: "postgres://db/tally", GoogleSheetName: "Tx"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != PostgresBackend || got.PostgresURL != "postgres://db/tally" || got.GoogleSheetName != "Tx" {
		t.Fatalf("unexpected config %+v", got)
	}
	if len(GetBackendTypeStrings()) != 3 {
		t.Fatalf("backend types = %v", GetBackendTypeStrings())
	}
}

func TestCreateStore(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	for _, cfg := range []Config{
		{Type: MemoryBackend},
		{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "nested", "tally.db")},
	} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			res, err := f.CreateStore(ctx, cfg)
			if err != nil {
				t.Fatalf("CreateStore: %v", err)
			}
			defer res.Cleanup()

			if err := res.Store.Ping(ctx); err != nil {
				t.Fatalf("ping: %v", err)
			}
			if _, err := res.Store.CreateCategory(ctx, core.Category{Owner: "u1", Name: "Food", Type: core.Expense}); err != nil {
				t.Fatalf("create category: %v", err)
			}
		})
	}

	if _, err := f.CreateStore(ctx, Config{Type: "sheets"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestOptionalComponentsDisabled(t *testing.T) {
	f := NewFactory(nil)
	pub, err := f.CreatePublisher(Config{Type: MemoryBackend})
	if err != nil || pub != nil {
		t.Fatalf("publisher = %v, %v", pub, err)
	}
	mirror, err := f.CreateMirror(context.Background(), Config{Type: MemoryBackend})
	if err != nil || mirror != nil {
		t.Fatalf("mirror = %v, %v", mirror, err)
	}
}
