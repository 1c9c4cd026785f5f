package engine

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CardRoom/internal/game/bot"
	"CardRoom/internal/game/cards"
	"CardRoom/internal/game/pot"
	"CardRoom/internal/game/rules"
	"CardRoom/internal/game/table"
	"CardRoom/internal/ledger"
	"CardRoom/internal/websocket"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
)

// handLog 一手牌的牌谱素材，摊牌后整体写库
type handLog struct {
	id      string
	deck    cards.Deck
	salt    []byte
	start   map[int]int64
	actions []rules.Outcome
	started time.Time
}

// HandHistory 写入 hand_history.payload 的结构
type HandHistory struct {
	HandID     string          `json:"handId"`
	TableID    string          `json:"tableId"`
	HandNumber int64           `json:"handNumber"`
	Dealer     int             `json:"dealer"`
	SmallBlind int64           `json:"smallBlind"`
	BigBlind   int64           `json:"bigBlind"`
	Seats      []HistorySeat   `json:"seats"`
	Community  []cards.Card    `json:"community"`
	Deck       string          `json:"deck"`
	Salt       string          `json:"salt"`
	Commitment string          `json:"commitment"`
	Actions    []rules.Outcome `json:"actions"`
	Result     *pot.Result     `json:"result"`
	StartedAt  time.Time       `json:"startedAt"`
	EndedAt    time.Time       `json:"endedAt"`
}

type HistorySeat struct {
	Seat       int          `json:"seat"`
	Name       string       `json:"name"`
	AccountID  string       `json:"accountId,omitempty"`
	IsBot      bool         `json:"isBot"`
	Hole       []cards.Card `json:"hole"`
	StartChips int64        `json:"startChips"`
	EndChips   int64        `json:"endChips"`
}

// ---------------------
//     TRANSITIONS
// ---------------------

// apply 执行动作并推进；非法动作原样返回错误，状态不变
func (e *Engine) apply(a rules.Action) error {
	next, out, err := rules.Apply(e.state, a)
	if err != nil {
		if errors.Is(err, rules.ErrInvariant) {
			e.fault(err)
		}
		return err
	}
	e.state = next
	e.afterTransition(out)
	return nil
}

// forceFold 离座、断线、让座时的弃牌，不要求轮到该座位
func (e *Engine) forceFold(idx int) {
	prevAction := e.state.ActionSeat
	next, out, err := rules.ForceFold(e.state, idx)
	if err != nil {
		e.fault(err)
		return
	}
	if out.Kind == "" {
		return
	}
	e.state = next
	if out.HandOver || e.state.ActionSeat != prevAction {
		e.afterTransition(out)
		return
	}
	// 行动权没变，不重置当前玩家的倒计时
	e.hand.record(out)
	e.dirty = true
}

func (e *Engine) afterTransition(out rules.Outcome) {
	e.dirty = true
	e.hand.record(out)
	if out.Kind != "" {
		e.log.Debug("action", "hand", e.state.HandNumber, "seat", out.Seat, "kind", out.Kind, "paid", out.Paid, "label", out.Label)
	}
	if out.ImplicitFold {
		e.log.Warn("check facing a bet treated as fold", "hand", e.state.HandNumber, "seat", out.Seat)
	}
	if out.HandOver {
		e.finishHand(out.Result)
		return
	}
	e.schedule()
}

func (h *handLog) record(out rules.Outcome) {
	if h == nil {
		return
	}
	out.Result = nil
	h.actions = append(h.actions, out)
}

// ---------------------
//        TIMERS
// ---------------------

func (e *Engine) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// schedule 为当前行动座位安排计时器。每次调度 epoch 自增，
// 回调触发时必须同时匹配 epoch、手数和行动座位，否则丢弃
func (e *Engine) schedule() {
	e.stopTimer()
	e.epoch++
	s := &e.state
	if !s.Phase.Betting() {
		s.Deadline = 0
		return
	}
	seat := s.Seat(s.ActionSeat)
	if seat == nil {
		return
	}
	epoch, hand, idx := e.epoch, s.HandNumber, s.ActionSeat

	var d time.Duration
	switch {
	case seat.IsBot:
		d = e.timing.BotThinkMin
		if span := e.timing.BotThinkMax - e.timing.BotThinkMin; span > 0 {
			d += time.Duration(e.rnd.Int63n(int64(span)))
		}
		s.Deadline = 0
	case seat.Disconnected || seat.Leaving:
		// 已知离线，立即自动弃牌
		d = 0
		s.Deadline = 0
	default:
		d = e.timing.ActionTimeout
		s.Deadline = e.now().Add(d).UnixMilli()
	}
	e.timer = time.AfterFunc(d, func() {
		e.post(func() { e.onTurnTimer(epoch, hand, idx) })
	})
}

func (e *Engine) onTurnTimer(epoch uint64, hand int64, idx int) {
	s := &e.state
	if epoch != e.epoch || hand != s.HandNumber || idx != s.ActionSeat || !s.Phase.Betting() {
		e.log.Debug("stale timer discarded", "hand", hand, "seat", idx)
		return
	}
	seat := s.Seats[idx]
	if !seat.IsBot {
		e.log.Info("action timeout, auto fold", "hand", hand, "seat", idx)
		_ = e.apply(rules.Action{Seat: idx, Kind: rules.Fold, Auto: true})
		return
	}
	a := bot.Decide(s, idx, bot.ParseDifficulty(seat.Difficulty), e.rnd)
	if err := e.apply(a); err != nil && !errors.Is(err, rules.ErrInvariant) {
		e.log.Warn("bot action rejected, folding", "seat", idx, "action", a, "err", err)
		_ = e.apply(rules.Action{Seat: idx, Kind: rules.Fold, Auto: true})
	}
}

// ---------------------
//     HAND LIFECYCLE
// ---------------------

// maybeStartSoon 等待状态下人数够了就排下一手
func (e *Engine) maybeStartSoon() {
	if e.faulted || e.state.Phase != table.PhaseWaiting {
		return
	}
	e.backfill()
	if e.activeHumans() > 0 && rules.CountDealable(&e.state) >= 2 {
		e.queueNextHand()
	}
}

func (e *Engine) queueNextHand() {
	if e.nextQueued {
		return
	}
	e.nextQueued = true
	hand := e.state.HandNumber
	time.AfterFunc(e.timing.NextHandDelay, func() {
		e.post(func() { e.onNextHand(hand) })
	})
}

func (e *Engine) onNextHand(hand int64) {
	if !e.nextQueued || hand != e.state.HandNumber {
		return
	}
	e.nextQueued = false
	e.cleanup()
	e.backfill()
	e.startHand()
}

// cleanup 两手牌之间：移除离座和输光的座位，安置排队的真人，没有真人时放走机器人
func (e *Engine) cleanup() {
	s := &e.state
	for i, seat := range s.Seats {
		if seat == nil {
			continue
		}
		switch {
		case seat.Leaving:
			e.cashOut(i)
			e.removeSeat(i)
			continue
		case seat.Chips == 0:
			e.log.Info("seat busted", "seat", i, "name", seat.Name)
			e.removeSeat(i)
			continue
		}
		seat.InHand, seat.Hole = false, nil
		seat.Bet, seat.TotalBet = 0, 0
		seat.Folded, seat.AllIn, seat.HasActed = false, false, false
		seat.Shown, seat.HandDesc = false, ""
		seat.LastAction, seat.AutoFolded = "", false
	}
	s.Phase = table.PhaseWaiting
	s.Community = nil
	s.Pots, s.Winners = nil, nil
	s.ActionSeat = -1
	s.CurrentBet, s.MinRaise = 0, 0
	s.Deadline = 0

	now := e.now()
	for i, r := range e.reserved {
		switch {
		case r.committed && s.Seats[i] == nil:
			e.install(i)
		case !r.committed && now.Sub(r.at) > reservationTTL:
			delete(e.reserved, i)
		}
	}
	if humans, _ := s.Occupied(); humans == 0 {
		e.goIdle()
	}
	e.dirty = true
}

func (e *Engine) startHand() {
	if e.faulted || e.state.Phase.Betting() {
		return
	}
	if e.activeHumans() == 0 {
		e.state.Phase = table.PhaseWaiting
		return
	}
	prev := e.state
	deck := e.Dealer.NewDeck()
	salt := e.Dealer.Salt()
	next, out, err := rules.StartHand(prev, deck.Clone())
	if errors.Is(err, rules.ErrNotEnough) {
		e.state.Phase = table.PhaseWaiting
		return
	}
	if err != nil {
		e.fault(err)
		return
	}
	next.DeckCommitment = cards.Commit(deck, salt)
	e.state = next

	e.hand = &handLog{
		id:      uuid.NewString(),
		deck:    deck,
		salt:    salt,
		start:   make(map[int]int64),
		started: e.now(),
	}
	for _, seat := range prev.Seats {
		if seat != nil && next.Seats[seat.Index].InHand {
			e.hand.start[seat.Index] = seat.Chips
		}
	}
	e.log.Info("hand started", "hand", next.HandNumber, "dealer", next.Dealer, "players", len(e.hand.start), "commitment", next.DeckCommitment)
	e.afterTransition(out)
}

// finishHand 摊牌后：写牌谱、抽水流水、统计、返水，然后排下一手
func (e *Engine) finishHand(res *pot.Result) {
	e.stopTimer()
	e.epoch++
	e.state.Deadline = 0
	e.dirty = true
	if res != nil {
		e.persistHand(res)
		e.outbox = append(e.outbox, websocket.OutgoingMessage{
			Event: EventHandResult,
			Data: map[string]any{
				"table":       e.cfg.ID,
				"hand":        e.state.HandNumber,
				"awards":      res.Awards,
				"pots":        res.Pots,
				"rake":        res.Rake,
				"uncontested": res.Uncontested,
				"shown":       res.Shown,
			},
		})
		e.log.Info("hand finished", "hand", e.state.HandNumber, "gross", res.Gross, "rake", res.Rake, "uncontested", res.Uncontested)
	}
	e.queueNextHand()
}

func (e *Engine) persistHand(res *pot.Result) {
	h := e.hand
	if h == nil || e.rec == nil {
		return
	}
	s := &e.state
	hist := HandHistory{
		HandID:     h.id,
		TableID:    s.TableID,
		HandNumber: s.HandNumber,
		Dealer:     s.Dealer,
		SmallBlind: s.SmallBlind,
		BigBlind:   s.BigBlind,
		Community:  s.Community,
		Deck:       h.deck.String(),
		Salt:       hex.EncodeToString(h.salt),
		Commitment: s.DeckCommitment,
		Actions:    h.actions,
		Result:     res,
		StartedAt:  h.started,
		EndedAt:    e.now(),
	}
	for _, seat := range s.Seats {
		if seat == nil || !seat.InHand {
			continue
		}
		hist.Seats = append(hist.Seats, HistorySeat{
			Seat:       seat.Index,
			Name:       seat.Name,
			AccountID:  seat.AccountID,
			IsBot:      seat.IsBot,
			Hole:       seat.Hole,
			StartChips: h.start[seat.Index],
			EndChips:   seat.Chips,
		})
	}

	payload, err := json.Marshal(hist)
	if err != nil {
		e.log.Warn("marshal hand history", "hand", s.HandNumber, "err", err)
	} else {
		rec := ledger.HandRecord{HandID: h.id, TableID: s.TableID, HandNumber: s.HandNumber, Payload: payload}
		e.rec.Retry("hand_history", func(ctx context.Context, st ledger.Store) error {
			return st.RecordHandHistory(ctx, rec)
		})
	}

	if res.Rake > 0 {
		entry := ledger.RakeEntry{HandID: h.id, TableID: s.TableID, HandNumber: s.HandNumber, PotAmount: res.Gross, RakeAmount: res.Rake}
		e.rec.Retry("rake_ledger", func(ctx context.Context, st ledger.Store) error {
			return st.RecordRakeLedger(ctx, entry)
		})
	}

	for _, seat := range s.Seats {
		if seat == nil || !seat.InHand || seat.IsBot {
			continue
		}
		account, won := seat.AccountID, res.Payouts[seat.Index] > 0
		e.rec.Go("player_stats", func(ctx context.Context, st ledger.Store) error {
			return st.UpdatePlayerStats(ctx, account, won)
		})
	}

	for account, amount := range e.rakeback(res) {
		key := fmt.Sprintf("rakeback:%s:%s", h.id, account)
		account, amount := account, amount
		e.rec.Retry("rakeback", func(ctx context.Context, st ledger.Store) error {
			return st.CreditRakeback(ctx, account, amount, key)
		})
	}
}

// rakeback 按真人在本手的投入占比返还抽水的一部分，向下取整
func (e *Engine) rakeback(res *pot.Result) map[string]int64 {
	bps := int64(e.timing.RakebackPercent*10000 + 0.5)
	if res.Rake == 0 || bps <= 0 {
		return nil
	}
	var total int64
	for _, c := range res.Contributions {
		total += c
	}
	if total == 0 {
		return nil
	}
	out := make(map[string]int64)
	for idx, c := range res.Contributions {
		seat := e.state.Seat(idx)
		if seat == nil || seat.IsBot || seat.AccountID == "" {
			continue
		}
		if amount := res.Rake * bps * c / (10000 * total); amount > 0 {
			out[seat.AccountID] += amount
		}
	}
	return out
}

// ---------------------
//        FAULTS
// ---------------------

// fault 筹码不守恒等不变量被破坏：记录完整状态，退还本手投入，牌桌停在等待
func (e *Engine) fault(err error) {
	e.log.Error("table invariant violated, forcing waiting", "hand", e.state.HandNumber, "err", err)
	e.log.Error("table state dump", "state", spew.Sdump(e.state))
	e.refundHand()
	e.faulted = true
}

// refundHand 把本手投入退回各座位，结束当前手牌
func (e *Engine) refundHand() {
	e.stopTimer()
	e.epoch++
	for _, seat := range e.state.Seats {
		if seat == nil || !seat.InHand {
			continue
		}
		seat.Chips += seat.TotalBet
		seat.Bet, seat.TotalBet = 0, 0
		seat.AllIn = false
	}
	e.state.Phase = table.PhaseWaiting
	e.state.ActionSeat = -1
	e.state.Deadline = 0
	e.nextQueued = false
	e.dirty = true
}
