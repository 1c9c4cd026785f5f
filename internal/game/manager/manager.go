package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"CardRoom/internal/game/bot"
	"CardRoom/internal/game/engine"
	"CardRoom/internal/game/rules"
	"CardRoom/internal/ledger"
	"CardRoom/internal/lobby"
	"CardRoom/internal/utils"
	"CardRoom/internal/websocket"
)

var (
	ErrTableExists     = errors.New("table already exists")
	ErrUnknownTable    = errors.New("unknown table")
	ErrSeatedElsewhere = errors.New("already seated at another table")
)

// 入站事件名
const (
	EventJoin         = "join"
	EventLeave        = "leave"
	EventAction       = "action"
	EventPlayerAction = "player_action"
	EventState        = "state"
	EventRequestState = "request_state"
	EventWatch        = "watch"
	EventUnwatch      = "unwatch"
	EventChat         = "chat"

	EventJoined = "joined"
	EventLeft   = "left"
)

const (
	requestTimeout = 5 * time.Second
	maxChatLength  = 200
)

type joinPayload struct {
	TableID string `json:"tableId"`
	Seat    *int   `json:"seat,omitempty"`
	BuyIn   int64  `json:"buyIn"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
}

type tablePayload struct {
	TableID string `json:"tableId"`
}

type actionPayload struct {
	TableID string `json:"tableId"`
	Kind    string `json:"kind"`
	Amount  int64  `json:"amount"`
}

type chatPayload struct {
	TableID string `json:"tableId"`
	Text    string `json:"text"`
}

// GameManager 管理所有牌桌，把会话消息路由到账号所在的桌子
type GameManager struct {
	mu            sync.RWMutex
	engines       map[string]*engine.Engine // tableID → engine
	order         []string
	playerToTable map[string]string // account → tableID

	hub    websocket.HubInterface
	rec    *ledger.Recorder
	bots   *bot.Registry
	timing engine.Timing
	lobby  *lobby.Service
}

func NewGameManager(hub websocket.HubInterface, rec *ledger.Recorder, bots *bot.Registry, timing engine.Timing) *GameManager {
	return &GameManager{
		engines:       make(map[string]*engine.Engine),
		playerToTable: make(map[string]string),
		hub:           hub,
		rec:           rec,
		bots:          bots,
		timing:        timing,
	}
}

// SetLobby 可选：把账号所在桌子同步到大厅目录
func (m *GameManager) SetLobby(svc *lobby.Service) {
	m.lobby = svc
}

// AddTable 建桌并启动事件循环
func (m *GameManager) AddTable(cfg engine.Config) (*engine.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.engines[cfg.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, cfg.ID)
	}
	eng := engine.NewEngine(cfg, m.timing, m.hub, m.rec, m.bots)
	eng.OnSeatReleased = m.seatReleased
	m.engines[cfg.ID] = eng
	m.order = append(m.order, cfg.ID)
	eng.Start()

	utils.Log.Info("table opened", "table", cfg.ID, "name", cfg.Name, "seats", cfg.MaxSeats, "blinds", fmt.Sprintf("%d/%d", cfg.SmallBlind, cfg.BigBlind))
	return eng, nil
}

func (m *GameManager) Table(id string) (*engine.Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	eng, ok := m.engines[id]
	return eng, ok
}

// Summaries 读取各桌原子发布的摘要，不进入任何一张桌子的事件循环
func (m *GameManager) Summaries() []lobby.TableSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]lobby.TableSummary, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.engines[id].Summary())
	}
	return out
}

// TableOf 账号当前所在的桌子
func (m *GameManager) TableOf(account string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.playerToTable[account]
}

// Shutdown 所有桌子退款兑出后停止
func (m *GameManager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	engines := make([]*engine.Engine, 0, len(m.engines))
	for _, id := range m.order {
		engines = append(engines, m.engines[id])
	}
	m.mu.RUnlock()

	var errs []error
	for _, eng := range engines {
		if err := eng.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("table %s: %w", eng.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// seatReleased 在桌子的事件循环里回调，不能阻塞
func (m *GameManager) seatReleased(tableID, account string) {
	m.mu.Lock()
	if m.playerToTable[account] == tableID {
		delete(m.playerToTable, account)
	}
	m.mu.Unlock()

	if m.lobby != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			if err := m.lobby.Unseat(ctx, account); err != nil {
				utils.Log.Warn("lobby unseat failed", "account", account, "err", err)
			}
		}()
	}
}

// ---------------------
//       ROUTING
// ---------------------

// HandlePlayerMessage 统一入口（来自 Hub.OnIncoming）
func (m *GameManager) HandlePlayerMessage(msg websocket.IncomingMessage) {
	if msg.From == "" {
		return
	}
	var err error
	switch msg.Event {
	case websocket.EventConnect:
		m.onConnect(msg.From)
	case websocket.EventDisconnect:
		m.onDisconnect(msg.From)
	case EventJoin:
		var p joinPayload
		if err = msg.Decode(&p); err == nil {
			// 入座要扣余额，不占用分发协程
			go m.join(msg.From, p)
		}
	case EventLeave:
		err = m.leave(msg)
	case EventAction, EventPlayerAction:
		err = m.action(msg)
	case EventState, EventRequestState:
		err = m.requestState(msg)
	case EventWatch:
		var eng *engine.Engine
		if eng, err = m.explicitTable(msg); err == nil {
			eng.Watch(msg.From)
		}
	case EventUnwatch:
		var eng *engine.Engine
		if eng, err = m.explicitTable(msg); err == nil {
			eng.Unwatch(msg.From)
		}
	case EventChat:
		err = m.chat(msg)
	default:
		err = fmt.Errorf("%w: %q", rules.ErrUnknownAction, msg.Event)
	}
	if err != nil {
		m.reject(msg.From, msg.Event, err)
	}
}

func (m *GameManager) reject(account, event string, err error) {
	utils.Log.Debug("request rejected", "account", account, "event", event, "err", err)
	m.hub.SendToPlayer(account, websocket.ErrorMessage(event, err))
}

// resolve 优先按账号定位已入座的桌子，其次用消息里的 tableId
func (m *GameManager) resolve(account, tableID string) (*engine.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.playerToTable[account]; ok {
		return m.engines[id], nil
	}
	if eng, ok := m.engines[tableID]; ok {
		return eng, nil
	}
	if tableID == "" {
		return nil, engine.ErrNotSeated
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTable, tableID)
}

func (m *GameManager) explicitTable(msg websocket.IncomingMessage) (*engine.Engine, error) {
	var p tablePayload
	if err := msg.Decode(&p); err != nil {
		return nil, err
	}
	eng, ok := m.Table(p.TableID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, p.TableID)
	}
	return eng, nil
}

func (m *GameManager) onConnect(account string) {
	if eng, err := m.resolve(account, ""); err == nil {
		eng.Reconnect(account)
	}
}

func (m *GameManager) onDisconnect(account string) {
	m.mu.RLock()
	seatedAt := m.playerToTable[account]
	engines := make([]*engine.Engine, 0, len(m.engines))
	for _, eng := range m.engines {
		engines = append(engines, eng)
	}
	m.mu.RUnlock()

	for _, eng := range engines {
		if eng.ID() == seatedAt {
			eng.Disconnect(account)
		} else {
			eng.Unwatch(account)
		}
	}
}

func (m *GameManager) join(account string, p joinPayload) {
	m.mu.RLock()
	eng, ok := m.engines[p.TableID]
	current := m.playerToTable[account]
	m.mu.RUnlock()

	if !ok {
		m.reject(account, EventJoin, fmt.Errorf("%w: %s", ErrUnknownTable, p.TableID))
		return
	}
	if current != "" && current != p.TableID {
		m.reject(account, EventJoin, fmt.Errorf("%w: %s", ErrSeatedElsewhere, current))
		return
	}

	req := engine.JoinRequest{
		Account: account,
		Name:    strings.TrimSpace(p.Name),
		Avatar:  p.Avatar,
		BuyIn:   p.BuyIn,
		Seat:    -1,
	}
	if req.BuyIn == 0 {
		req.BuyIn = eng.Config().MinBuyIn
	}
	if p.Seat != nil {
		req.Seat = *p.Seat
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	res, err := eng.Join(ctx, req)
	if err != nil {
		m.reject(account, EventJoin, err)
		return
	}

	if !m.bind(ctx, eng, account) {
		m.reject(account, EventJoin, engine.ErrNotSeated)
		return
	}
	if m.lobby != nil {
		if err := m.lobby.Seat(ctx, account, eng.ID()); err != nil {
			utils.Log.Warn("lobby seat failed", "account", account, "table", eng.ID(), "err", err)
		}
	}

	m.hub.SendToPlayer(account, websocket.OutgoingMessage{
		Event: EventJoined,
		Data: map[string]any{
			"table":       eng.ID(),
			"seat":        res.Seat,
			"chips":       res.Chips,
			"reconnected": res.Reconnected,
			"pending":     res.Pending,
		},
	})
}

// bind 先写映射再向桌子确认座位仍在。seatReleased 可能在 Join 返回后随时触发，
// 无论落在确认之前还是之后，映射都不会残留
func (m *GameManager) bind(ctx context.Context, eng *engine.Engine, account string) bool {
	m.mu.Lock()
	m.playerToTable[account] = eng.ID()
	m.mu.Unlock()

	held, err := eng.Holds(ctx, account)
	if err == nil && held {
		return true
	}
	m.mu.Lock()
	if m.playerToTable[account] == eng.ID() {
		delete(m.playerToTable, account)
	}
	m.mu.Unlock()
	return false
}

func (m *GameManager) leave(msg websocket.IncomingMessage) error {
	var p tablePayload
	if err := msg.Decode(&p); err != nil {
		return err
	}
	eng, err := m.resolve(msg.From, p.TableID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := eng.Leave(ctx, msg.From); err != nil {
		return err
	}

	// 排队中的预留被退款时不会触发 OnSeatReleased
	m.mu.Lock()
	if m.playerToTable[msg.From] == eng.ID() {
		delete(m.playerToTable, msg.From)
	}
	m.mu.Unlock()

	m.hub.SendToPlayer(msg.From, websocket.OutgoingMessage{
		Event: EventLeft,
		Data:  map[string]any{"table": eng.ID()},
	})
	return nil
}

func (m *GameManager) action(msg websocket.IncomingMessage) error {
	var p actionPayload
	if err := msg.Decode(&p); err != nil {
		return err
	}
	kind, err := rules.ParseKind(p.Kind)
	if err != nil {
		return err
	}
	eng, err := m.resolve(msg.From, p.TableID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return eng.Act(ctx, msg.From, kind, p.Amount)
}

func (m *GameManager) requestState(msg websocket.IncomingMessage) error {
	var p tablePayload
	if err := msg.Decode(&p); err != nil {
		return err
	}
	eng, err := m.resolve(msg.From, p.TableID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	view, err := eng.State(ctx, msg.From)
	if err != nil {
		return err
	}
	m.hub.SendToPlayer(msg.From, websocket.OutgoingMessage{Event: engine.EventTableState, Data: view})
	return nil
}

func (m *GameManager) chat(msg websocket.IncomingMessage) error {
	var p chatPayload
	if err := msg.Decode(&p); err != nil {
		return err
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return nil
	}
	if r := []rune(text); len(r) > maxChatLength {
		text = string(r[:maxChatLength])
	}
	eng, err := m.resolve(msg.From, p.TableID)
	if err != nil {
		return err
	}
	eng.Chat(msg.From, text)
	return nil
}
