package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 进程内实现，本地调试和测试使用
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]int64
	applied  map[string]bool
	txs      []Transaction
	hands    []HandRecord
	rake     []RakeEntry
	stats    map[string]*PlayerStats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]int64),
		applied:  make(map[string]bool),
		stats:    make(map[string]*PlayerStats),
	}
}

func (m *MemoryStore) EnsureAccount(ctx context.Context, accountID string, initial int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[accountID]; !ok {
		m.balances[accountID] = initial
		if initial > 0 {
			m.txs = append(m.txs, Transaction{AccountID: accountID, Amount: initial, Kind: KindDeposit, CreatedAt: time.Now()})
		}
	}
	return nil
}

func (m *MemoryStore) Balance(ctx context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return b, nil
}

func (m *MemoryStore) DebitBalance(ctx context.Context, accountID string, amount int64, opKey string) error {
	return m.apply(accountID, -amount, KindBuyIn, opKey)
}

func (m *MemoryStore) CreditBalance(ctx context.Context, accountID string, amount int64, opKey string) error {
	return m.apply(accountID, amount, KindCashOut, opKey)
}

func (m *MemoryStore) CreditRakeback(ctx context.Context, accountID string, amount int64, opKey string) error {
	return m.apply(accountID, amount, KindRakeback, opKey)
}

func (m *MemoryStore) apply(accountID string, delta int64, kind, opKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if opKey != "" && m.applied[opKey] {
		return nil
	}
	b, ok := m.balances[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if b+delta < 0 {
		return ErrInsufficientFunds
	}
	m.balances[accountID] = b + delta
	if opKey != "" {
		m.applied[opKey] = true
	}
	m.txs = append(m.txs, Transaction{AccountID: accountID, Amount: delta, Kind: kind, OpKey: opKey, CreatedAt: time.Now()})
	return nil
}

func (m *MemoryStore) RecordTransaction(ctx context.Context, tx Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.OpKey != "" {
		if m.applied[tx.OpKey] {
			return nil
		}
		m.applied[tx.OpKey] = true
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	m.txs = append(m.txs, tx)
	return nil
}

func (m *MemoryStore) RecordHandHistory(ctx context.Context, rec HandRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = append(m.hands, rec)
	return nil
}

func (m *MemoryStore) RecordRakeLedger(ctx context.Context, entry RakeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rake = append(m.rake, entry)
	return nil
}

func (m *MemoryStore) UpdatePlayerStats(ctx context.Context, accountID string, won bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[accountID]
	if !ok {
		st = &PlayerStats{AccountID: accountID}
		m.stats[accountID] = st
	}
	st.HandsPlayed++
	if won {
		st.HandsWon++
	}
	return nil
}

func (m *MemoryStore) Stats(ctx context.Context, accountID string) (PlayerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.stats[accountID]; ok {
		return *st, nil
	}
	return PlayerStats{AccountID: accountID}, nil
}

// Transactions 流水快照
func (m *MemoryStore) Transactions() []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transaction(nil), m.txs...)
}

func (m *MemoryStore) Hands() []HandRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HandRecord(nil), m.hands...)
}

func (m *MemoryStore) RakeEntries() []RakeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RakeEntry(nil), m.rake...)
}

func (m *MemoryStore) Close() error { return nil }
