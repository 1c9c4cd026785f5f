package lobby

import "context"

// Repo 大厅目录的存储抽象
type Repo interface {
	// SaveTable 写入或覆盖桌子摘要
	SaveTable(ctx context.Context, t TableSummary, ttlSeconds int) error
	// ListTables 按 ID 排序返回全部桌子
	ListTables(ctx context.Context) ([]TableSummary, error)
	GetTable(ctx context.Context, id string) (TableSummary, bool, error)
	// SetPlayerTable 记录账号所在桌子，用于按账号而非连接定位座位
	SetPlayerTable(ctx context.Context, address, tableID string) error
	// GetPlayerTable 不在任何桌子时返回空串
	GetPlayerTable(ctx context.Context, address string) (string, error)
	ClearPlayerTable(ctx context.Context, address string) error
}
