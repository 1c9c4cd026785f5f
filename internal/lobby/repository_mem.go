package lobby

import (
	"context"
	"sort"
	"sync"
)

type memRepo struct {
	mu      sync.Mutex
	tables  map[string]TableSummary
	players map[string]string // address -> tableID
}

func NewMemoryRepo() Repo {
	return &memRepo{
		tables:  make(map[string]TableSummary),
		players: make(map[string]string),
	}
}

func (m *memRepo) SaveTable(ctx context.Context, t TableSummary, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// 内存版忽略 TTL
	m.tables[t.ID] = t
	return nil
}

func (m *memRepo) ListTables(ctx context.Context) ([]TableSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TableSummary, 0, len(m.tables))
	for _, t := range m.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GetTable(ctx context.Context, id string) (TableSummary, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[id]
	return t, ok, nil
}

func (m *memRepo) SetPlayerTable(ctx context.Context, address, tableID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[address] = tableID
	return nil
}

func (m *memRepo) GetPlayerTable(ctx context.Context, address string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.players[address], nil
}

func (m *memRepo) ClearPlayerTable(ctx context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.players, address)
	return nil
}
