// Package memory is an in-process transaction mirror used by tests and local
// runs without spreadsheet credentials.
package memory

import (
	"context"
	"strings"
	"sync"

	"tally/internal/core"
	ports "tally/internal/sheets"
)

type Mirror struct {
	mu   sync.Mutex
	rows [][]any
	ids  map[string]struct{}
}

var _ ports.TransactionMirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{ids: make(map[string]struct{})}
}

func (m *Mirror) AppendTransaction(_ context.Context, tx core.Transaction) error {
	if strings.TrimSpace(tx.ID) == "" {
		return core.Validationf("transaction id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[tx.ID]; ok {
		return nil
	}
	m.ids[tx.ID] = struct{}{}
	m.rows = append(m.rows, ports.Row(tx))
	return nil
}

func (m *Mirror) RemoveTransaction(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[id]; !ok {
		return nil
	}
	delete(m.ids, id)
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r[0] != id {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return nil
}

// Rows returns a copy of the mirrored rows in append order.
func (m *Mirror) Rows() [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]any, len(m.rows))
	for i, r := range m.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}
