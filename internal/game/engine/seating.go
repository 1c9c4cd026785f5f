package engine

import (
	"context"
	"fmt"
	"time"

	"CardRoom/internal/game/rules"
	"CardRoom/internal/game/table"
	"CardRoom/internal/ledger"
	"CardRoom/internal/websocket"

	"github.com/google/uuid"
)

// 未确认的预留超过这个时间视为作废
const reservationTTL = time.Minute

// reservation 两段式入座的预留。committed 之后才算真正占座
type reservation struct {
	account      string
	name         string
	avatar       string
	buyIn        int64
	token        string
	committed    bool
	disconnected bool // 排队期间断线，入座时按断线处理
	at           time.Time
}

func (e *Engine) reserve(req JoinRequest) (JoinResult, string, error) {
	if seat := e.state.SeatOf(req.Account); seat != nil {
		e.reconnect(seat)
		return JoinResult{Seat: seat.Index, Chips: seat.Chips, Reconnected: true}, "", nil
	}
	for i, r := range e.reserved {
		if r.account == req.Account {
			return JoinResult{Seat: i, Chips: r.buyIn, Pending: r.committed}, "", ErrAlreadyJoining
		}
	}
	if e.faulted {
		return JoinResult{}, "", ErrTableClosed
	}
	if req.BuyIn < e.cfg.MinBuyIn || req.BuyIn > e.cfg.MaxBuyIn {
		return JoinResult{}, "", fmt.Errorf("%w: %d not in [%d, %d]", ErrBuyInRange, req.BuyIn, e.cfg.MinBuyIn, e.cfg.MaxBuyIn)
	}

	idx := e.pickHumanSeat(req.Seat)
	if idx < 0 {
		return JoinResult{}, "", ErrTableFull
	}
	name := req.Name
	if name == "" {
		name = shortAddress(req.Account)
	}
	token := uuid.NewString()
	e.reserved[idx] = &reservation{
		account: req.Account,
		name:    name,
		avatar:  req.Avatar,
		buyIn:   req.BuyIn,
		token:   token,
		at:      e.now(),
	}
	e.log.Debug("seat reserved", "seat", idx, "account", req.Account)
	return JoinResult{Seat: idx, Chips: req.BuyIn}, token, nil
}

func (e *Engine) commit(idx int, token string) (JoinResult, error) {
	r := e.reserved[idx]
	if r == nil || r.token != token || r.committed {
		return JoinResult{}, ErrReservation
	}
	r.committed = true
	res := JoinResult{Seat: idx, Chips: r.buyIn}
	if e.state.Seats[idx] == nil {
		e.install(idx)
	} else {
		// 被请走的机器人还在本手牌里
		res.Pending = true
		e.watchers[r.account] = true
	}
	e.maybeStartSoon()
	return res, nil
}

// install 把已确认的预留变成座位
func (e *Engine) install(idx int) {
	r := e.reserved[idx]
	delete(e.reserved, idx)
	delete(e.watchers, r.account)
	seat := &table.Seat{
		Index:        idx,
		AccountID:    r.account,
		Name:         r.name,
		Avatar:       r.avatar,
		Chips:        r.buyIn,
		Token:        r.token,
		Disconnected: r.disconnected,
	}
	e.state.Seats[idx] = seat
	e.dirty = true
	e.log.Info("player seated", "seat", idx, "account", r.account, "chips", r.buyIn, "disconnected", r.disconnected)
	if seat.Disconnected {
		e.startGrace(seat)
	}
	e.Hub.SendToPlayer(r.account, websocket.OutgoingMessage{
		Event: EventSeated,
		Data:  map[string]any{"table": e.cfg.ID, "seat": idx, "chips": r.buyIn},
	})
}

func (e *Engine) release(idx int, token string) {
	if r := e.reserved[idx]; r != nil && r.token == token && !r.committed {
		delete(e.reserved, idx)
		e.dirty = true
	}
}

func (e *Engine) releaseAccount(account string) {
	for i, r := range e.reserved {
		if r.account == account && !r.committed {
			delete(e.reserved, i)
		}
	}
}

func (e *Engine) refundReservation(idx int, r *reservation) {
	delete(e.reserved, idx)
	e.refund(r.account, r.buyIn, r.token)
}

func (e *Engine) refund(account string, amount int64, token string) {
	e.rec.Retry("refund", func(ctx context.Context, s ledger.Store) error {
		return s.CreditBalance(ctx, account, amount, "refund:"+token)
	})
}

// pickHumanSeat 优先指定座位，其次任意空位，最后请走一个机器人
func (e *Engine) pickHumanSeat(preferred int) int {
	free := e.freeSeats()
	for _, i := range free {
		if i == preferred {
			return i
		}
	}
	if len(free) > 0 {
		return free[0]
	}

	victim := -1
	for i, seat := range e.state.Seats {
		if seat == nil || !seat.IsBot || seat.Leaving || e.reserved[i] != nil {
			continue
		}
		// 优先不在本手牌中的机器人
		if victim < 0 || (e.state.Seats[victim].InHand && !seat.InHand) {
			victim = i
		}
	}
	if victim >= 0 {
		e.evictBot(victim)
	}
	return victim
}

// freeSeats 既无人也未被预留的座位
func (e *Engine) freeSeats() []int {
	var out []int
	for _, i := range e.state.EmptySeats() {
		if e.reserved[i] == nil {
			out = append(out, i)
		}
	}
	return out
}

// evictBot 为真人让座。手牌进行中时先弃牌，座位记录保留到结算后
func (e *Engine) evictBot(idx int) {
	seat := e.state.Seats[idx]
	e.log.Info("bot evicted for human", "seat", idx, "bot", seat.Name)
	if e.state.Phase.Betting() && seat.InHand {
		seat.Leaving = true
		if seat.Live() && !seat.AllIn {
			e.forceFold(idx)
		}
		e.dirty = true
		return
	}
	e.removeSeat(idx)
}

func (e *Engine) leave(account string) error {
	seat := e.state.SeatOf(account)
	if seat == nil {
		for i, r := range e.reserved {
			if r.account == account && r.committed {
				e.refundReservation(i, r)
				e.dirty = true
				return nil
			}
		}
		return ErrNotSeated
	}
	e.log.Info("player leaving", "seat", seat.Index, "account", account)
	e.unseat(seat.Index)
	return nil
}

// unseat 真人离座。手牌中先弃牌并兑出剩余筹码，座位记录保留到结算，
// 以便其投入仍计入边池分层
func (e *Engine) unseat(idx int) {
	seat := e.state.Seats[idx]
	e.dirty = true
	if e.state.Phase.Betting() && seat.InHand {
		seat.Leaving = true
		if seat.Live() && !seat.AllIn {
			e.forceFold(idx)
		}
		// 全下的座位等结算后再兑出
		if seat = e.state.Seats[idx]; seat.Folded || !e.state.Phase.Betting() {
			e.cashOut(idx)
		}
		return
	}
	e.cashOut(idx)
	e.removeSeat(idx)
	if humans, _ := e.state.Occupied(); humans == 0 && !e.state.Phase.Betting() {
		e.goIdle()
	}
}

// cashOut 座位上的筹码兑回余额，幂等键绑定占座令牌与手数
func (e *Engine) cashOut(idx int) {
	seat := e.state.Seat(idx)
	if seat == nil {
		return
	}
	next, amount := rules.CashOut(e.state, idx)
	e.state = next
	if amount == 0 || seat.IsBot {
		return
	}
	// 同一手里可能兑出两次：离座时一次，结算退回未跟注部分后再一次
	seat = e.state.Seats[idx]
	seat.CashOuts++
	account := seat.AccountID
	key := fmt.Sprintf("cashout:%s:%d:%d", seat.Token, e.state.HandNumber, seat.CashOuts)
	e.log.Info("cash out", "seat", idx, "account", account, "amount", amount)
	e.rec.Retry("cashout", func(ctx context.Context, s ledger.Store) error {
		return s.CreditBalance(ctx, account, amount, key)
	})
	e.dirty = true
}

// removeSeat 清空座位记录；筹码必须已兑出
func (e *Engine) removeSeat(idx int) {
	seat := e.state.Seats[idx]
	if seat == nil {
		return
	}
	e.state.Seats[idx] = nil
	e.dirty = true
	if seat.IsBot {
		if e.bots != nil {
			e.bots.Release(seat.Name)
		}
		return
	}
	e.Hub.SendToPlayer(seat.AccountID, websocket.OutgoingMessage{
		Event: EventUnseated,
		Data:  map[string]any{"table": e.cfg.ID, "seat": idx},
	})
	if e.OnSeatReleased != nil {
		e.OnSeatReleased(e.cfg.ID, seat.AccountID)
	}
}

func (e *Engine) disconnect(account string) {
	delete(e.watchers, account)
	seat := e.state.SeatOf(account)
	if seat == nil {
		e.releaseAccount(account)
		if r := e.pending(account); r != nil {
			r.disconnected = true
			e.log.Info("pending player disconnected", "account", account)
		}
		return
	}
	if seat.Disconnected {
		return
	}
	seat.Disconnected = true
	e.dirty = true
	e.log.Info("player disconnected", "seat", seat.Index, "account", account)

	// 已知离线的玩家不拖住牌桌
	if e.state.Phase.Betting() && e.state.ActionSeat == seat.Index {
		e.forceFold(seat.Index)
	}

	e.startGrace(seat)
}

func (e *Engine) startGrace(seat *table.Seat) {
	idx, token := seat.Index, seat.Token
	time.AfterFunc(e.timing.DisconnectGrace, func() {
		e.post(func() { e.graceExpired(idx, token) })
	})
}

// pending 已扣款、等待入座的预留
func (e *Engine) pending(account string) *reservation {
	for _, r := range e.reserved {
		if r.account == account && r.committed {
			return r
		}
	}
	return nil
}

// reconnectPending 排队中的玩家重连：恢复旁观快照，入座时按在线处理
func (e *Engine) reconnectPending(account string) {
	if r := e.pending(account); r != nil && r.disconnected {
		r.disconnected = false
		e.watchers[account] = true
		e.sendState(account)
		e.log.Info("pending player reconnected", "account", account)
	}
}

// graceExpired 宽限期到。以占座令牌判断座位是否仍属于同一次占座，
// 重连会换新令牌，所以过期的计时器不会移除已被重连或重新占用的座位
func (e *Engine) graceExpired(idx int, token string) {
	seat := e.state.Seat(idx)
	if seat == nil || seat.Token != token || !seat.Disconnected {
		e.log.Debug("stale grace timer discarded", "seat", idx)
		return
	}
	e.log.Info("disconnect grace expired", "seat", idx, "account", seat.AccountID)
	e.unseat(idx)
}

func (e *Engine) reconnect(seat *table.Seat) {
	if !seat.Disconnected {
		return
	}
	seat.Disconnected = false
	seat.Token = uuid.NewString()
	e.dirty = true
	e.log.Info("player reconnected", "seat", seat.Index, "account", seat.AccountID)
	e.maybeStartSoon()
}

// activeHumans 在线且有筹码的真人
func (e *Engine) activeHumans() int {
	n := 0
	for _, seat := range e.state.Seats {
		if seat != nil && !seat.IsBot && !seat.Disconnected && !seat.Leaving && seat.Chips > 0 {
			n++
		}
	}
	return n
}

func (e *Engine) hasCommitted() bool {
	for _, r := range e.reserved {
		if r.committed {
			return true
		}
	}
	return false
}

// backfill 补机器人到目标数量，座位尽量远离真人
func (e *Engine) backfill() {
	if !e.cfg.BotsEnabled || e.bots == nil || e.faulted {
		return
	}
	if e.activeHumans() == 0 && !e.hasCommitted() {
		return
	}
	_, bots := e.state.Occupied()
	for bots < e.cfg.BotTarget {
		idx := e.botSeat()
		if idx < 0 {
			return
		}
		p, ok := e.bots.Acquire(e.rnd, e.cfg.BotDifficulty)
		if !ok {
			e.log.Warn("bot roster exhausted")
			return
		}
		e.state.Seats[idx] = &table.Seat{
			Index:      idx,
			Name:       p.Name,
			Avatar:     p.Avatar,
			IsBot:      true,
			Difficulty: string(p.Difficulty),
			Chips:      e.cfg.botBuyIn(),
			Token:      uuid.NewString(),
		}
		bots++
		e.dirty = true
		e.log.Debug("bot seated", "seat", idx, "bot", p.Name, "difficulty", p.Difficulty)
	}
}

// botSeat 选离最近的真人（含预留）环形距离最大的空位，距离相同取小号
func (e *Engine) botSeat() int {
	n := len(e.state.Seats)
	var humans []int
	for i, seat := range e.state.Seats {
		if (seat != nil && !seat.IsBot) || e.reserved[i] != nil {
			humans = append(humans, i)
		}
	}
	best, bestDist := -1, -1
	for _, i := range e.freeSeats() {
		dist := n
		for _, h := range humans {
			d := i - h
			if d < 0 {
				d = -d
			}
			if n-d < d {
				d = n - d
			}
			if d < dist {
				dist = d
			}
		}
		if dist > bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

// goIdle 没有真人时放走所有机器人，回到等待
func (e *Engine) goIdle() {
	if e.hasCommitted() {
		return
	}
	for i, seat := range e.state.Seats {
		if seat != nil && seat.IsBot {
			e.removeSeat(i)
		}
	}
	e.state.Phase = table.PhaseWaiting
	e.nextQueued = false
	e.dirty = true
	e.log.Debug("table idle")
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
