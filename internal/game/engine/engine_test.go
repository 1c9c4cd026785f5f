package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"CardRoom/internal/game/bot"
	"CardRoom/internal/game/cards"
	"CardRoom/internal/game/pot"
	"CardRoom/internal/game/rules"
	"CardRoom/internal/game/table"
	"CardRoom/internal/ledger"
	"CardRoom/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHub 实现 HubInterface，记录消息
type mockHub struct {
	mu           sync.Mutex
	sentToPlayer map[string][]websocket.OutgoingMessage
	broadcasts   []websocket.OutgoingMessage
}

func newMockHub() *mockHub {
	return &mockHub{sentToPlayer: make(map[string][]websocket.OutgoingMessage)}
}

func (h *mockHub) BroadcastToPlayers(addrs []string, msg websocket.OutgoingMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcasts = append(h.broadcasts, msg)
}

func (h *mockHub) SendToPlayer(addr string, msg websocket.OutgoingMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sentToPlayer[addr] = append(h.sentToPlayer[addr], msg)
}

func (h *mockHub) ClientByAddress(addr string) (*websocket.Client, bool) {
	return nil, false
}

func (h *mockHub) Close() {}

func (h *mockHub) events(name string) []websocket.OutgoingMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []websocket.OutgoingMessage
	for _, m := range h.broadcasts {
		if m.Event == name {
			out = append(out, m)
		}
	}
	return out
}

func (h *mockHub) sent(addr, name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range h.sentToPlayer[addr] {
		if m.Event == name {
			n++
		}
	}
	return n
}

// ---------------------
//       FIXTURE
// ---------------------

type fixture struct {
	eng   *Engine
	hub   *mockHub
	store *ledger.MemoryStore
	rec   *ledger.Recorder
}

func testConfig() Config {
	return Config{
		ID:         "t1",
		Name:       "Test Table",
		MaxSeats:   6,
		SmallBlind: 5,
		BigBlind:   10,
		MinBuyIn:   100,
		MaxBuyIn:   1000,
	}
}

func testTiming() Timing {
	return Timing{
		ActionTimeout:   5 * time.Second,
		BotThinkMin:     time.Millisecond,
		BotThinkMax:     3 * time.Millisecond,
		DisconnectGrace: 5 * time.Second,
		NextHandDelay:   20 * time.Millisecond,
	}
}

var testBots = []bot.Profile{
	{Name: "Alice", Difficulty: bot.Beginner},
	{Name: "Bob", Difficulty: bot.Medium},
	{Name: "Carol", Difficulty: bot.Pro},
}

func newFixture(t *testing.T, cfg Config, timing Timing, accounts ...string) *fixture {
	t.Helper()
	store := ledger.NewMemoryStore()
	for _, a := range accounts {
		require.NoError(t, store.EnsureAccount(context.Background(), a, 1000))
	}
	rec := ledger.NewRecorder(store, 64)
	hub := newMockHub()
	eng := NewEngine(cfg, timing, hub, rec, bot.NewRegistry(testBots))
	eng.Dealer = cards.NewDealer(42) // 固定种子
	eng.Start()
	t.Cleanup(func() {
		eng.Stop()
		rec.Close()
	})
	return &fixture{eng: eng, hub: hub, store: store, rec: rec}
}

// snapshot 在事件循环里拷贝一份桌面状态
func snapshot(e *Engine) table.State {
	var s table.State
	_ = e.call(context.Background(), func() { s = e.state.Clone() })
	return s
}

func (f *fixture) join(t *testing.T, account string, buyIn int64) JoinResult {
	t.Helper()
	res, err := f.eng.Join(context.Background(), JoinRequest{Account: account, BuyIn: buyIn, Seat: -1})
	require.NoError(t, err)
	return res
}

func (f *fixture) balance(account string) int64 {
	b, _ := f.store.Balance(context.Background(), account)
	return b
}

func waitPhase(t *testing.T, e *Engine, phase table.Phase) table.State {
	t.Helper()
	var s table.State
	require.Eventually(t, func() bool {
		s = snapshot(e)
		return s.Phase == phase
	}, 2*time.Second, 5*time.Millisecond, "phase never reached %s", phase)
	return s
}

func chipTotal(s table.State) int64 {
	var total int64
	for _, seat := range s.Seats {
		if seat != nil {
			total += seat.Chips + seat.TotalBet
		}
	}
	return total
}

// ---------------------
//        JOIN
// ---------------------

func TestJoin_DebitsBuyIn(t *testing.T) {
	f := newFixture(t, testConfig(), testTiming(), "0xA")

	res := f.join(t, "0xA", 400)
	assert.Equal(t, int64(400), res.Chips)
	assert.False(t, res.Pending)
	assert.Equal(t, int64(600), f.balance("0xA"))

	s := snapshot(f.eng)
	seat := s.SeatOf("0xA")
	require.NotNil(t, seat)
	assert.Equal(t, res.Seat, seat.Index)
	assert.Equal(t, int64(400), seat.Chips)
	assert.Equal(t, table.PhaseWaiting, s.Phase, "一个人不开局")
	assert.Equal(t, 1, f.hub.sent("0xA", EventSeated))
	assert.Equal(t, 1, f.eng.Summary().Humans)
}

func TestJoin_RejectsBadBuyIn(t *testing.T) {
	f := newFixture(t, testConfig(), testTiming(), "0xA")

	_, err := f.eng.Join(context.Background(), JoinRequest{Account: "0xA", BuyIn: 50, Seat: -1})
	assert.ErrorIs(t, err, ErrBuyInRange)
	_, err = f.eng.Join(context.Background(), JoinRequest{Account: "0xA", BuyIn: 5000, Seat: -1})
	assert.ErrorIs(t, err, ErrBuyInRange)
	assert.Equal(t, int64(1000), f.balance("0xA"))
}

func TestJoin_InsufficientFundsReleasesSeat(t *testing.T) {
	f := newFixture(t, testConfig(), testTiming(), "0xA")
	require.NoError(t, f.store.DebitBalance(context.Background(), "0xA", 950, "setup"))

	_, err := f.eng.Join(context.Background(), JoinRequest{Account: "0xA", BuyIn: 200, Seat: 2})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(50), f.balance("0xA"))

	var reserved int
	_ = f.eng.call(context.Background(), func() { reserved = len(f.eng.reserved) })
	assert.Zero(t, reserved, "扣款失败后预留被释放")
	assert.Nil(t, snapshot(f.eng).Seats[2])
}

func TestJoin_TwiceReconnectsWithoutDebit(t *testing.T) {
	f := newFixture(t, testConfig(), testTiming(), "0xA")
	first := f.join(t, "0xA", 300)
	second := f.join(t, "0xA", 300)

	assert.True(t, second.Reconnected)
	assert.Equal(t, first.Seat, second.Seat)
	assert.Equal(t, int64(700), f.balance("0xA"), "只扣一次")
}

func TestJoin_PreferredSeat(t *testing.T) {
	f := newFixture(t, testConfig(), testTiming(), "0xA", "0xB")
	res, err := f.eng.Join(context.Background(), JoinRequest{Account: "0xA", BuyIn: 200, Seat: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Seat)

	// 指定的座位已占用时退回第一个空位
	res, err = f.eng.Join(context.Background(), JoinRequest{Account: "0xB", BuyIn: 200, Seat: 4})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Seat)
}

// ---------------------
//        HANDS
// ---------------------

func TestHeadsUp_FoldEndsHand(t *testing.T) {
	f := newFixture(t, testConfig(), testTiming(), "0xA", "0xB")
	f.join(t, "0xA", 400)
	f.join(t, "0xB", 400)

	s := waitPhase(t, f.eng, table.PhasePreflop)
	assert.Equal(t, int64(800), chipTotal(s))
	assert.NotEmpty(t, s.DeckCommitment, "开局公布牌序承诺")
	for _, seat := range s.Seats {
		if seat != nil {
			assert.Len(t, seat.Hole, 2)
		}
	}

	actor := s.Seats[s.ActionSeat].AccountID
	other := "0xA"
	if actor == "0xA" {
		other = "0xB"
	}
	// 不是自己的回合
	assert.ErrorIs(t, f.eng.Act(context.Background(), other, rules.Call, 0), rules.ErrNotYourTurn)
	require.NoError(t, f.eng.Act(context.Background(), actor, rules.Fold, 0))

	require.Eventually(t, func() bool { return len(f.hub.events(EventHandResult)) > 0 }, time.Second, 5*time.Millisecond)
	data := f.hub.events(EventHandResult)[0].Data.(map[string]any)
	assert.Equal(t, true, data["uncontested"])

	require.Eventually(t, func() bool { return len(f.store.Hands()) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		st, _ := f.store.Stats(context.Background(), other)
		return st.HandsWon == 1
	}, time.Second, 5*time.Millisecond)
	st, _ := f.store.Stats(context.Background(), actor)
	assert.Equal(t, int64(1), st.HandsPlayed)
	assert.Zero(t, st.HandsWon)

	assert.Equal(t, int64(800), chipTotal(snapshot(f.eng)), "筹码守恒")
}

func TestNotSeated_ActRejected(t *testing.T) {
	f := newFixture(t, testConfig(), testTiming())
	assert.ErrorIs(t, f.eng.Act(context.Background(), "0xZ", rules.Check, 0), ErrNotSeated)
	assert.ErrorIs(t, f.eng.Leave(context.Background(), "0xZ"), ErrNotSeated)
}

func TestActionTimeout_AutoFolds(t *testing.T) {
	timing := testTiming()
	timing.ActionTimeout = 30 * time.Millisecond
	timing.NextHandDelay = time.Second
	f := newFixture(t, testConfig(), timing, "0xA", "0xB")
	f.join(t, "0xA", 400)
	f.join(t, "0xB", 400)

	s := waitPhase(t, f.eng, table.PhaseShowdown)
	assert.Equal(t, int64(1), s.HandNumber)
	folded := 0
	for _, seat := range s.Seats {
		if seat != nil && seat.AutoFolded {
			folded++
		}
	}
	assert.Equal(t, 1, folded, "超时的座位被自动弃牌")
	assert.Equal(t, int64(800), chipTotal(s))
}

func TestStaleTimerDiscarded(t *testing.T) {
	f := newFixture(t, testConfig(), testTiming(), "0xA", "0xB")
	f.join(t, "0xA", 400)
	f.join(t, "0xB", 400)
	before := waitPhase(t, f.eng, table.PhasePreflop)

	_ = f.eng.call(context.Background(), func() {
		// 旧 epoch 的回调必须被丢弃
		f.eng.onTurnTimer(f.eng.epoch-1, before.HandNumber, before.ActionSeat)
		f.eng.onTurnTimer(f.eng.epoch, before.HandNumber-1, before.ActionSeat)
	})

	after := snapshot(f.eng)
	assert.Equal(t, table.PhasePreflop, after.Phase)
	assert.Equal(t, before.ActionSeat, after.ActionSeat)
	assert.False(t, after.Seats[before.ActionSeat].Folded)
}

func TestSpectatorView_HidesHoleCards(t *testing.T) {
	f := newFixture(t, testConfig(), testTiming(), "0xA", "0xB")
	f.join(t, "0xA", 400)
	f.join(t, "0xB", 400)
	waitPhase(t, f.eng, table.PhasePreflop)

	f.eng.Watch("0xW")
	v, err := f.eng.State(context.Background(), "0xW")
	require.NoError(t, err)
	assert.Equal(t, -1, v.YourSeat)
	for _, sv := range v.Seats {
		if sv != nil {
			assert.Empty(t, sv.Hole)
			assert.Equal(t, 2, sv.HoleCount)
		}
	}
	assert.Equal(t, 1, f.eng.Summary().Spectators)

	mine, err := f.eng.State(context.Background(), "0xA")
	require.NoError(t, err)
	for _, sv := range mine.Seats {
		if sv == nil {
			continue
		}
		if sv.Index == mine.YourSeat {
			assert.Len(t, sv.Hole, 2)
		} else {
			assert.Empty(t, sv.Hole)
		}
	}
}

// ---------------------
//   DISCONNECT / LEAVE
// ---------------------

func TestDisconnect_ReconnectKeepsSeat(t *testing.T) {
	timing := testTiming()
	timing.DisconnectGrace = 60 * time.Millisecond
	f := newFixture(t, testConfig(), timing, "0xA")
	res := f.join(t, "0xA", 400)

	f.eng.Disconnect("0xA")
	s := snapshot(f.eng)
	require.NotNil(t, s.Seats[res.Seat])
	assert.True(t, s.Seats[res.Seat].Disconnected)

	f.eng.Reconnect("0xA")
	time.Sleep(120 * time.Millisecond)

	s = snapshot(f.eng)
	seat := s.Seats[res.Seat]
	require.NotNil(t, seat, "重连后旧的宽限计时器不再移除座位")
	assert.False(t, seat.Disconnected)
	assert.Equal(t, int64(400), seat.Chips)
	assert.Equal(t, int64(600), f.balance("0xA"))
}

func TestGraceExpiry_CashesOutOnce(t *testing.T) {
	timing := testTiming()
	timing.DisconnectGrace = 20 * time.Millisecond
	f := newFixture(t, testConfig(), timing, "0xA")

	var released []string
	var mu sync.Mutex
	f.eng.OnSeatReleased = func(tableID, account string) {
		mu.Lock()
		defer mu.Unlock()
		released = append(released, tableID+"/"+account)
	}
	f.join(t, "0xA", 400)

	f.eng.Disconnect("0xA")
	f.eng.Disconnect("0xA")
	require.Eventually(t, func() bool { return f.balance("0xA") == 1000 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	s := snapshot(f.eng)
	assert.Nil(t, s.SeatOf("0xA"))

	cashouts := 0
	for _, tx := range f.store.Transactions() {
		if tx.Kind == ledger.KindCashOut {
			cashouts++
		}
	}
	assert.Equal(t, 1, cashouts)
	mu.Lock()
	assert.Equal(t, []string{"t1/0xA"}, released)
	mu.Unlock()
	assert.Equal(t, 1, f.hub.sent("0xA", EventUnseated))
}

func TestLeave_MidHandKeepsChipsConserved(t *testing.T) {
	timing := testTiming()
	timing.NextHandDelay = time.Second
	f := newFixture(t, testConfig(), timing, "0xA", "0xB")
	f.join(t, "0xA", 400)
	f.join(t, "0xB", 400)
	waitPhase(t, f.eng, table.PhasePreflop)

	require.NoError(t, f.eng.Leave(context.Background(), "0xA"))
	s := waitPhase(t, f.eng, table.PhaseShowdown)
	require.NotNil(t, s.SeatOf("0xA"), "结算前座位记录保留")
	assert.True(t, s.SeatOf("0xA").Leaving)

	require.Eventually(t, func() bool {
		return f.balance("0xA")+f.balance("0xB")+chipTotal(snapshot(f.eng)) == 2000
	}, time.Second, 5*time.Millisecond)
}

func cashOuts(store *ledger.MemoryStore, account string) []ledger.Transaction {
	var out []ledger.Transaction
	for _, tx := range store.Transactions() {
		if tx.AccountID == account && tx.Kind == ledger.KindCashOut {
			out = append(out, tx)
		}
	}
	return out
}

// 加注后离桌，结算时未跟注部分退回同一座位，需要第二次兑出 💰
func TestLeave_TopContributorGetsUncalledRefund(t *testing.T) {
	timing := testTiming()
	timing.NextHandDelay = 30 * time.Millisecond
	accounts := []string{"0xA", "0xB", "0xC"}
	f := newFixture(t, testConfig(), timing, accounts...)
	for _, a := range accounts {
		f.join(t, a, 400)
	}
	s := waitPhase(t, f.eng, table.PhasePreflop)

	raiser := s.Seats[s.ActionSeat].AccountID
	require.NoError(t, f.eng.Act(context.Background(), raiser, rules.Raise, 300))
	require.NoError(t, f.eng.Leave(context.Background(), raiser))

	s = snapshot(f.eng)
	require.True(t, s.Phase.Betting())
	next := s.Seats[s.ActionSeat].AccountID
	require.NotEqual(t, raiser, next)
	require.NoError(t, f.eng.Act(context.Background(), next, rules.Fold, 0))

	// 离桌时兑出 100，结算后退回的 290 再兑出一次
	require.Eventually(t, func() bool { return f.balance(raiser) == 990 }, 2*time.Second, 5*time.Millisecond)
	txs := cashOuts(f.store, raiser)
	require.Len(t, txs, 2)
	assert.NotEqual(t, txs[0].OpKey, txs[1].OpKey)
	assert.Equal(t, int64(390), txs[0].Amount+txs[1].Amount)

	require.Eventually(t, func() bool {
		var total int64
		for _, a := range accounts {
			total += f.balance(a)
		}
		return total+chipTotal(snapshot(f.eng)) == 3000
	}, time.Second, 5*time.Millisecond, "余额加桌面筹码守恒")
}

// pendingJoin 模拟已扣款、正等待空位的入座
func (f *fixture) pendingJoin(t *testing.T, account string, idx int, buyIn int64) {
	t.Helper()
	token := "tok-" + account
	require.NoError(t, f.store.DebitBalance(context.Background(), account, buyIn, "buyin:"+token))
	require.NoError(t, f.eng.call(context.Background(), func() {
		f.eng.reserved[idx] = &reservation{
			account:   account,
			name:      account,
			buyIn:     buyIn,
			token:     token,
			committed: true,
			at:        f.eng.now(),
		}
		f.eng.watchers[account] = true
	}))
}

func TestDisconnect_WhilePendingSeatsAsDisconnected(t *testing.T) {
	timing := testTiming()
	timing.DisconnectGrace = 30 * time.Millisecond
	f := newFixture(t, testConfig(), timing, "0xB")
	f.pendingJoin(t, "0xB", 1, 300)
	assert.Equal(t, int64(700), f.balance("0xB"))

	f.eng.Disconnect("0xB")
	require.NoError(t, f.eng.call(context.Background(), func() { f.eng.cleanup() }))

	s := snapshot(f.eng)
	seat := s.SeatOf("0xB")
	require.NotNil(t, seat, "排队的预留照常入座")
	assert.True(t, seat.Disconnected, "断线状态带到座位上")
	assert.False(t, rules.Dealable(seat), "断线的座位不发牌")

	// 宽限期到后离座，买入原数退回
	require.Eventually(t, func() bool { return f.balance("0xB") == 1000 }, time.Second, 5*time.Millisecond)
	s = snapshot(f.eng)
	assert.Nil(t, s.SeatOf("0xB"))
	assert.Len(t, cashOuts(f.store, "0xB"), 1)
}

func TestReconnect_WhilePendingSeatsAsConnected(t *testing.T) {
	timing := testTiming()
	timing.DisconnectGrace = 30 * time.Millisecond
	f := newFixture(t, testConfig(), timing, "0xB")
	f.pendingJoin(t, "0xB", 1, 300)

	f.eng.Disconnect("0xB")
	f.eng.Reconnect("0xB")
	require.NoError(t, f.eng.call(context.Background(), func() { f.eng.cleanup() }))
	time.Sleep(60 * time.Millisecond)

	s := snapshot(f.eng)
	seat := s.SeatOf("0xB")
	require.NotNil(t, seat, "重连后不会被宽限计时器移除")
	assert.False(t, seat.Disconnected)
	assert.Equal(t, int64(300), seat.Chips)
	assert.Equal(t, int64(700), f.balance("0xB"))
}

// ---------------------
//        BOTS
// ---------------------

func TestBotBackfill_SeatsAwayFromHumans(t *testing.T) {
	cfg := testConfig()
	cfg.BotsEnabled = true
	cfg.BotTarget = 2
	cfg.BotDifficulty = bot.Mixed
	f := newFixture(t, cfg, testTiming(), "0xA")

	res, err := f.eng.Join(context.Background(), JoinRequest{Account: "0xA", BuyIn: 500, Seat: 0})
	require.NoError(t, err)
	require.Equal(t, 0, res.Seat)

	s := snapshot(f.eng)
	require.NotNil(t, s.Seats[3], "离真人最远的座位")
	assert.True(t, s.Seats[3].IsBot)
	require.NotNil(t, s.Seats[2])
	assert.True(t, s.Seats[2].IsBot)
	assert.Equal(t, cfg.MaxBuyIn, s.Seats[3].Chips)

	humans, bots := s.Occupied()
	assert.Equal(t, 1, humans)
	assert.Equal(t, 2, bots)
	waitPhase(t, f.eng, table.PhasePreflop)
}

func TestBotBackfill_HumanTakesBotSeatWhenFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSeats = 2
	cfg.BotsEnabled = true
	cfg.BotTarget = 1
	timing := testTiming()
	timing.NextHandDelay = time.Second
	f := newFixture(t, cfg, timing, "0xA", "0xB")

	f.join(t, "0xA", 500)
	s := snapshot(f.eng)
	_, bots := s.Occupied()
	require.Equal(t, 1, bots)

	// 桌子已满：请走机器人给真人让座
	res := f.join(t, "0xB", 500)
	assert.False(t, res.Pending)
	s = snapshot(f.eng)
	humans, bots := s.Occupied()
	assert.Equal(t, 2, humans)
	assert.Zero(t, bots)
}

func TestLastHumanLeaves_BotsRemoved(t *testing.T) {
	cfg := testConfig()
	cfg.BotsEnabled = true
	cfg.BotTarget = 1
	timing := testTiming()
	timing.NextHandDelay = time.Second
	f := newFixture(t, cfg, timing, "0xA")

	f.join(t, "0xA", 500)
	require.NoError(t, f.eng.Leave(context.Background(), "0xA"))

	s := snapshot(f.eng)
	humans, bots := s.Occupied()
	assert.Zero(t, humans+bots)
	assert.Equal(t, table.PhaseWaiting, s.Phase)
	require.Eventually(t, func() bool { return f.balance("0xA") == 1000 }, time.Second, 5*time.Millisecond)
}

// ---------------------
//     SHUTDOWN / MISC
// ---------------------

func TestShutdown_RefundsEverything(t *testing.T) {
	f := newFixture(t, testConfig(), testTiming(), "0xA", "0xB")
	f.join(t, "0xA", 400)
	f.join(t, "0xB", 300)
	waitPhase(t, f.eng, table.PhasePreflop)

	require.NoError(t, f.eng.Shutdown(context.Background()))
	f.rec.Close()

	assert.Equal(t, int64(1000), f.balance("0xA"))
	assert.Equal(t, int64(1000), f.balance("0xB"))
	assert.ErrorIs(t, f.eng.Act(context.Background(), "0xA", rules.Fold, 0), ErrTableClosed)
}

func TestRakeback_ProportionalToHumans(t *testing.T) {
	timing := testTiming()
	timing.RakebackPercent = 0.5
	eng := NewEngine(testConfig(), timing, newMockHub(), nil, nil)
	eng.state.Seats[0] = &table.Seat{Index: 0, AccountID: "0xA"}
	eng.state.Seats[1] = &table.Seat{Index: 1, Name: "Bob", IsBot: true}
	eng.state.Seats[2] = &table.Seat{Index: 2, AccountID: "0xC"}

	got := eng.rakeback(&pot.Result{
		Rake:          12,
		Contributions: map[int]int64{0: 100, 1: 100, 2: 200},
	})
	// 12 * 0.5 = 6，按投入 1:1:2 分，机器人那份不返
	assert.Equal(t, map[string]int64{"0xA": 1, "0xC": 3}, got)

	assert.Nil(t, eng.rakeback(&pot.Result{Rake: 0}))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())

	bad := testConfig()
	bad.MaxSeats = 11
	assert.Error(t, bad.Validate())

	bad = testConfig()
	bad.MinBuyIn = 5
	assert.Error(t, bad.Validate())

	bad = testConfig()
	bad.BotTarget = 6
	assert.Error(t, bad.Validate(), "至少留一个座位给真人")
}
