package source

import (
	"context"
	"fmt"
	"os"
	"sync"

	studioerrors "github.com/arkilian/studio/internal/errors"
	"github.com/arkilian/studio/internal/fetch"
	"github.com/arkilian/studio/pkg/types"
)

// Memory serves tables held in process memory.
type Memory struct {
	mu     sync.RWMutex
	tables map[string][]types.Row
}

// NewMemory creates a memory source holding the given tables.
func NewMemory(tables map[string][]types.Row) *Memory {
	m := &Memory{tables: make(map[string][]types.Row, len(tables))}
	for name, rows := range tables {
		m.tables[name] = rows
	}
	return m
}

// LoadMemoryFile seeds a memory source from a JSON file shaped as
// {"table": [{...}, ...], ...}.
func LoadMemoryFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, studioerrors.NewSourceError(studioerrors.CodeSourceUnavailable,
			fmt.Sprintf("read seed file %s", path), err)
	}
	tables, err := decodeTables(data)
	if err != nil {
		return nil, studioerrors.NewSourceError(studioerrors.CodeDecodeFailed,
			fmt.Sprintf("decode seed file %s", path), err)
	}
	return NewMemory(tables), nil
}

// Put replaces a table.
func (m *Memory) Put(table string, rows []types.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = rows
}

// Tables returns the table names.
func (m *Memory) Tables() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	return names
}

// Read returns a projected copy of the table's rows.
func (m *Memory) Read(ctx context.Context, d fetch.ReadDescriptor) ([]types.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	rows, ok := m.tables[d.Table]
	m.mu.RUnlock()
	if !ok {
		return nil, tableNotFound(d.Table)
	}
	return Project(rows, d), nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
