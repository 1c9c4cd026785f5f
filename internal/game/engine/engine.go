package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"CardRoom/internal/game/bot"
	"CardRoom/internal/game/cards"
	"CardRoom/internal/game/rules"
	"CardRoom/internal/game/table"
	"CardRoom/internal/ledger"
	"CardRoom/internal/lobby"
	"CardRoom/internal/utils"
	"CardRoom/internal/websocket"

	"github.com/charmbracelet/log"
)

// ---------------------
//       ENGINE
// ---------------------

// Engine 一张桌子的协调器。桌面状态只在 loop 协程内读写，
// 所有外部调用、计时器回调都包装成闭包投递到 events 队列顺序执行
type Engine struct {
	cfg    Config
	timing Timing
	Hub    websocket.HubInterface
	Dealer *cards.Dealer
	rec    *ledger.Recorder
	bots   *bot.Registry
	log    *log.Logger

	// OnSeatReleased 座位移除时回调（离桌、断线超时、输光），在 loop 协程内调用，不得阻塞
	OnSeatReleased func(tableID, account string)

	events   chan func()
	quit     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once

	summary atomic.Pointer[lobby.TableSummary]

	// 以下字段只在 loop 协程内访问
	state      table.State
	rnd        *rand.Rand
	epoch      uint64
	timer      *time.Timer
	nextQueued bool
	faulted    bool
	reserved   map[int]*reservation
	watchers   map[string]bool
	hand       *handLog
	dirty      bool
	outbox     []websocket.OutgoingMessage
	now        func() time.Time
}

func NewEngine(cfg Config, timing Timing, hub websocket.HubInterface, rec *ledger.Recorder, bots *bot.Registry) *Engine {
	seed := time.Now().UnixNano()
	e := &Engine{
		cfg:      cfg,
		timing:   timing,
		Hub:      hub,
		Dealer:   cards.NewDealer(seed),
		rec:      rec,
		bots:     bots,
		log:      utils.Log.With("table", cfg.ID),
		events:   make(chan func(), 64), // 防止死锁
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		state:    table.New(cfg.ID, cfg.MaxSeats, cfg.SmallBlind, cfg.BigBlind, cfg.Rake),
		rnd:      rand.New(rand.NewSource(seed ^ 0x5eed)),
		reserved: make(map[int]*reservation),
		watchers: make(map[string]bool),
		now:      time.Now,
	}
	e.publish()
	return e
}

func (e *Engine) ID() string { return e.cfg.ID }

func (e *Engine) Config() Config { return e.cfg }

// Start 启动事件循环
func (e *Engine) Start() {
	if e.started.Swap(true) {
		return
	}
	go e.loop()
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		select {
		case fn := <-e.events:
			fn()
			e.flush()
		case <-e.quit:
			e.stopTimer()
			return
		}
	}
}

// Stop 停止事件循环，不做结算
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.quit) })
	if e.started.Load() {
		<-e.done
	}
}

// Shutdown 退还进行中手牌的投入，给所有真人兑出筹码后停止
func (e *Engine) Shutdown(ctx context.Context) error {
	err := e.call(ctx, func() {
		if e.state.Phase.Betting() {
			e.refundHand()
		}
		for i, seat := range e.state.Seats {
			if seat != nil && !seat.IsBot {
				e.cashOut(i)
			}
		}
		for i, r := range e.reserved {
			if r.committed {
				e.refundReservation(i, r)
			}
		}
		e.faulted = true
	})
	e.Stop()
	return err
}

// post 投递到事件队列；桌子已停止时返回 false
func (e *Engine) post(fn func()) bool {
	select {
	case e.events <- fn:
		return true
	case <-e.quit:
		return false
	}
}

// call 投递并等待执行完成
func (e *Engine) call(ctx context.Context, fn func()) error {
	executed := make(chan struct{})
	if !e.post(func() { fn(); close(executed) }) {
		return ErrTableClosed
	}
	select {
	case <-executed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		select {
		case <-executed:
			return nil
		default:
			return ErrTableClosed
		}
	}
}

// ---------------------
//      PUBLIC API
// ---------------------

type JoinRequest struct {
	Account string
	Name    string
	Avatar  string
	BuyIn   int64
	Seat    int // -1 表示任意
}

type JoinResult struct {
	Seat        int   `json:"seat"`
	Chips       int64 `json:"chips"`
	Reconnected bool  `json:"reconnected,omitempty"`
	// Pending 座位上的机器人还在本手牌中，下一手开始前入座
	Pending bool `json:"pending,omitempty"`
}

// Join 两段式入座：在桌内预留座位 → 桌外扣买入 → 回到桌内确认或释放。
// 已入座的账号直接重连原座位，不再扣款
func (e *Engine) Join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	var (
		res   JoinResult
		token string
		err   error
	)
	if cerr := e.call(ctx, func() { res, token, err = e.reserve(req) }); cerr != nil {
		e.post(func() { e.releaseAccount(req.Account) })
		return res, cerr
	}
	if err != nil || res.Reconnected {
		return res, err
	}

	if derr := e.rec.Store().DebitBalance(ctx, req.Account, req.BuyIn, "buyin:"+token); derr != nil {
		e.post(func() { e.release(res.Seat, token) })
		if errors.Is(derr, ledger.ErrInsufficientFunds) || errors.Is(derr, ledger.ErrAccountNotFound) {
			return res, fmt.Errorf("%w: %v", ErrInsufficientFunds, derr)
		}
		return res, fmt.Errorf("buy-in: %w", derr)
	}

	// 扣款成功后的确认不受调用方 ctx 影响，否则可能既入座又退款
	var commitErr error
	if cerr := e.call(context.Background(), func() { res, commitErr = e.commit(res.Seat, token) }); cerr != nil || commitErr != nil {
		e.refund(req.Account, req.BuyIn, token)
		if commitErr != nil {
			return res, commitErr
		}
		return res, cerr
	}
	return res, nil
}

// Leave 离桌：轮到自己时立即弃牌，剩余筹码兑回余额
func (e *Engine) Leave(ctx context.Context, account string) error {
	var err error
	if cerr := e.call(ctx, func() { err = e.leave(account) }); cerr != nil {
		return cerr
	}
	return err
}

// Act 按账号定位座位并执行动作，非法动作不改变桌面
func (e *Engine) Act(ctx context.Context, account string, kind rules.Kind, amount int64) error {
	var err error
	cerr := e.call(ctx, func() {
		seat := e.state.SeatOf(account)
		if seat == nil {
			err = ErrNotSeated
			return
		}
		err = e.apply(rules.Action{Seat: seat.Index, Kind: kind, Amount: amount})
	})
	if cerr != nil {
		return cerr
	}
	return err
}

// State 个人视角快照；未入座的账号拿到旁观视角
func (e *Engine) State(ctx context.Context, account string) (table.View, error) {
	var v table.View
	err := e.call(ctx, func() { v = e.viewFor(account) })
	return v, err
}

// Holds 账号在本桌有座位，或有已扣款、等待入座的预留
func (e *Engine) Holds(ctx context.Context, account string) (bool, error) {
	var held bool
	err := e.call(ctx, func() { held = e.state.SeatOf(account) != nil || e.pending(account) != nil })
	return held, err
}

// Watch 旁观，之后每次状态变化都会收到旁观快照
func (e *Engine) Watch(account string) {
	e.post(func() {
		if e.state.SeatOf(account) == nil {
			e.watchers[account] = true
			e.sendState(account)
			e.publish()
		}
	})
}

func (e *Engine) Unwatch(account string) {
	e.post(func() {
		delete(e.watchers, account)
		e.publish()
	})
}

// Disconnect 连接断开：标记座位，轮到自己时立即自动弃牌，并开始宽限计时
func (e *Engine) Disconnect(account string) {
	e.post(func() { e.disconnect(account) })
}

// Reconnect 宽限期内同一账号重连，原座位与筹码不变
func (e *Engine) Reconnect(account string) {
	e.post(func() {
		if seat := e.state.SeatOf(account); seat != nil {
			e.reconnect(seat)
			return
		}
		e.reconnectPending(account)
	})
}

func (e *Engine) Chat(account, text string) {
	e.post(func() {
		name := account
		if seat := e.state.SeatOf(account); seat != nil {
			name = seat.Name
		}
		e.Hub.BroadcastToPlayers(e.recipients(), websocket.OutgoingMessage{
			Event: EventChat,
			Data: map[string]any{
				"table": e.cfg.ID,
				"from":  account,
				"name":  name,
				"text":  text,
			},
		})
	})
}

// Summary 无锁读取最近发布的大厅摘要，跨桌统计不会阻塞在任何一张桌子上
func (e *Engine) Summary() lobby.TableSummary {
	return *e.summary.Load()
}
