package lobby

import "time"

// TableSummary 大厅列表里的一张桌子，由牌桌协调器原子发布
type TableSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Phase      string    `json:"phase"`
	MaxSeats   int       `json:"maxSeats"`
	Humans     int       `json:"humans"`
	Bots       int       `json:"bots"`
	Spectators int       `json:"spectators"`
	SmallBlind int64     `json:"smallBlind"`
	BigBlind   int64     `json:"bigBlind"`
	MinBuyIn   int64     `json:"minBuyIn"`
	MaxBuyIn   int64     `json:"maxBuyIn"`
	HandNumber int64     `json:"handNumber"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Open 还有空位（机器人座位对真人也算空位）
func (t TableSummary) Open() bool {
	return t.Humans < t.MaxSeats
}

// PlayerTable 账号当前所在的桌子
type PlayerTable struct {
	Address string `json:"address"`
	TableID string `json:"tableId,omitempty"`
}
