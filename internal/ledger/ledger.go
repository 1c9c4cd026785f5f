package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
)

// 流水类型
const (
	KindBuyIn    = "buyin"
	KindCashOut  = "cashout"
	KindRakeback = "rakeback"
	KindDeposit  = "deposit"
)

// Transaction 余额流水。OpKey 非空时同一个键只会生效一次
type Transaction struct {
	AccountID   string    `json:"accountId"`
	Amount      int64     `json:"amount"` // 正数入账，负数出账
	Kind        string    `json:"kind"`
	OpKey       string    `json:"opKey,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type HandRecord struct {
	HandID     string `json:"handId"`
	TableID    string `json:"tableId"`
	HandNumber int64  `json:"handNumber"`
	Payload    []byte `json:"payload"`
}

type RakeEntry struct {
	HandID     string `json:"handId"`
	TableID    string `json:"tableId"`
	HandNumber int64  `json:"handNumber"`
	PotAmount  int64  `json:"potAmount"`
	RakeAmount int64  `json:"rakeAmount"`
}

type PlayerStats struct {
	AccountID   string `json:"accountId"`
	HandsPlayed int64  `json:"handsPlayed"`
	HandsWon    int64  `json:"handsWon"`
}

// Store 持久化协作方：余额、流水、牌谱、抽水、统计。
// 所有资金操作都是原子的，带 opKey 的重复调用不会重复记账
type Store interface {
	EnsureAccount(ctx context.Context, accountID string, initial int64) error
	Balance(ctx context.Context, accountID string) (int64, error)
	DebitBalance(ctx context.Context, accountID string, amount int64, opKey string) error
	CreditBalance(ctx context.Context, accountID string, amount int64, opKey string) error
	RecordTransaction(ctx context.Context, tx Transaction) error
	RecordHandHistory(ctx context.Context, rec HandRecord) error
	RecordRakeLedger(ctx context.Context, entry RakeEntry) error
	UpdatePlayerStats(ctx context.Context, accountID string, won bool) error
	Stats(ctx context.Context, accountID string) (PlayerStats, error)
	CreditRakeback(ctx context.Context, accountID string, amount int64, opKey string) error
	Close() error
}
