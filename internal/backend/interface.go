package backend

import (
	"context"

	"tally/internal/amqp"
	"tally/internal/ledger"
	"tally/internal/sheets"
)

// CleanupFunc releases the resources behind a created component.
type CleanupFunc func() error

// StoreResult contains the store and its cleanup function.
type StoreResult struct {
	Store   ledger.Store
	Cleanup CleanupFunc
}

// Factory creates the pluggable infrastructure from configuration.
type Factory interface {
	// CreateStore opens the ledger store selected by config.Type.
	CreateStore(ctx context.Context, config Config) (*StoreResult, error)
	// CreatePublisher connects to the broker. It returns a nil client when no
	// broker is configured.
	CreatePublisher(config Config) (*amqp.Client, error)
	// CreateMirror returns a nil mirror when no spreadsheet is configured.
	CreateMirror(ctx context.Context, config Config) (sheets.TransactionMirror, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string
	PostgresURL  string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
