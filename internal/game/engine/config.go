package engine

import (
	"errors"
	"fmt"
	"time"

	"CardRoom/internal/game/bot"
	"CardRoom/internal/game/table"
)

var (
	ErrBuyInRange        = errors.New("buy-in out of range")
	ErrTableFull         = errors.New("table is full")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotSeated         = errors.New("not seated at this table")
	ErrAlreadyJoining    = errors.New("join already in progress")
	ErrReservation       = errors.New("seat reservation expired")
	ErrTableClosed       = errors.New("table closed")
)

// Config 建桌参数
type Config struct {
	ID         string
	Name       string
	MaxSeats   int
	SmallBlind int64
	BigBlind   int64
	MinBuyIn   int64
	MaxBuyIn   int64
	Rake       table.RakeConfig

	BotsEnabled   bool
	BotTarget     int
	BotDifficulty bot.Difficulty // 固定难度或 mixed
	BotBuyIn      int64          // 0 表示按最大买入
}

func (c Config) Validate() error {
	switch {
	case c.ID == "":
		return errors.New("table id is required")
	case c.MaxSeats < 2 || c.MaxSeats > 10:
		return fmt.Errorf("table %s: max seats %d not in [2,10]", c.ID, c.MaxSeats)
	case c.SmallBlind <= 0 || c.BigBlind < c.SmallBlind:
		return fmt.Errorf("table %s: bad blinds %d/%d", c.ID, c.SmallBlind, c.BigBlind)
	case c.MinBuyIn < c.BigBlind || c.MaxBuyIn < c.MinBuyIn:
		return fmt.Errorf("table %s: bad buy-in range %d-%d", c.ID, c.MinBuyIn, c.MaxBuyIn)
	case c.Rake.Percent < 0 || c.Rake.Percent >= 1:
		return fmt.Errorf("table %s: rake percent %v not in [0,1)", c.ID, c.Rake.Percent)
	case c.BotTarget < 0 || c.BotTarget >= c.MaxSeats:
		return fmt.Errorf("table %s: bot target %d must leave a seat free", c.ID, c.BotTarget)
	}
	return nil
}

func (c Config) botBuyIn() int64 {
	if c.BotBuyIn > 0 {
		return c.BotBuyIn
	}
	return c.MaxBuyIn
}

// Timing 计时参数，所有桌子共用
type Timing struct {
	ActionTimeout   time.Duration
	BotThinkMin     time.Duration
	BotThinkMax     time.Duration
	DisconnectGrace time.Duration
	NextHandDelay   time.Duration
	// RakebackPercent 按真人投入比例返还的抽水比例，0 表示关闭
	RakebackPercent float64
}

func DefaultTiming() Timing {
	return Timing{
		ActionTimeout:   20 * time.Second,
		BotThinkMin:     800 * time.Millisecond,
		BotThinkMax:     2500 * time.Millisecond,
		DisconnectGrace: 30 * time.Second,
		NextHandDelay:   4 * time.Second,
	}
}

// 下发事件名
const (
	EventTableState = "table_state"
	EventHandResult = "hand_result"
	EventSeated     = "seated"
	EventUnseated   = "unseated"
	EventChat       = "chat"
)
