package table

import (
	"math"

	"CardRoom/internal/game/cards"
)

// Phase 牌局阶段：waiting → preflop → flop → turn → river → showdown → waiting/preflop
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePreflop  Phase = "preflop"
	PhaseFlop     Phase = "flop"
	PhaseTurn     Phase = "turn"
	PhaseRiver    Phase = "river"
	PhaseShowdown Phase = "showdown"
)

// Betting 是否处于下注街
func (p Phase) Betting() bool {
	switch p {
	case PhasePreflop, PhaseFlop, PhaseTurn, PhaseRiver:
		return true
	}
	return false
}

// RakeConfig 抽水配置，每个边池独立计算
type RakeConfig struct {
	Percent float64 `json:"percent" mapstructure:"percent"`
	Cap     int64   `json:"cap" mapstructure:"cap"`
	MinPot  int64   `json:"minPot" mapstructure:"min_pot"`
}

// BasisPoints 百分比转成万分比整数，之后只做整数运算
func (r RakeConfig) BasisPoints() int64 {
	if r.Percent <= 0 {
		return 0
	}
	return int64(math.Round(r.Percent * 10000))
}

type Pot struct {
	Amount   int64 `json:"amount"`
	Eligible []int `json:"eligible"`
}

// Seat 座位状态，Index 在一张桌子的生命周期内稳定
type Seat struct {
	Index      int    `json:"index"`
	AccountID  string `json:"accountId,omitempty"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar,omitempty"`
	IsBot      bool   `json:"isBot"`
	Difficulty string `json:"difficulty,omitempty"`
	// 占座令牌，每次入座重新生成；断线移除计时器靠它判断座位是否已易主
	Token string `json:"-"`

	// 本次占座已兑出的次数，兑出流水的幂等键带上它
	CashOuts int `json:"-"`

	Chips    int64        `json:"chips"`
	Bet      int64        `json:"bet"`
	TotalBet int64        `json:"totalBet"`
	Hole     []cards.Card `json:"-"`

	Folded       bool `json:"folded"`
	AllIn        bool `json:"allIn"`
	Disconnected bool `json:"disconnected"`
	SittingOut   bool `json:"sittingOut"`
	InHand       bool `json:"inHand"`
	Leaving      bool `json:"leaving"`
	HasActed     bool `json:"hasActed"`

	LastAction string `json:"lastAction,omitempty"`
	AutoFolded bool   `json:"autoFolded,omitempty"`

	// 摊牌亮牌
	Shown    bool   `json:"shown"`
	HandDesc string `json:"handDesc,omitempty"`
}

// CanAct 本手牌还能行动：在局、未弃牌、未全下
func (s *Seat) CanAct() bool {
	return s != nil && s.InHand && !s.Folded && !s.AllIn
}

// Live 本手牌仍有资格争夺底池
func (s *Seat) Live() bool {
	return s != nil && s.InHand && !s.Folded
}

// Award 一个底池的派奖记录
type Award struct {
	Pot    int    `json:"pot"`
	Seat   int    `json:"seat"`
	Amount int64  `json:"amount"`
	Label  string `json:"label"` // WIN / SPLIT
	Hand   string `json:"hand,omitempty"`
}

// State 单张桌子的完整状态，只由该桌的协调器持有和修改
type State struct {
	TableID string  `json:"tableId"`
	Phase   Phase   `json:"phase"`
	Seats   []*Seat `json:"seats"` // 固定长度，nil 为空位

	Community []cards.Card `json:"community"`
	Deck      cards.Deck   `json:"-"`

	CurrentBet int64 `json:"currentBet"`
	MinRaise   int64 `json:"minRaise"`

	Dealer         int `json:"dealer"`
	SmallBlindSeat int `json:"smallBlindSeat"`
	BigBlindSeat   int `json:"bigBlindSeat"`
	ActionSeat     int `json:"actionSeat"`

	SmallBlind int64 `json:"smallBlind"`
	BigBlind   int64 `json:"bigBlind"`
	HandNumber int64 `json:"handNumber"`
	Deadline   int64 `json:"deadline"` // unix ms，0 表示无倒计时

	Rake      RakeConfig `json:"rake"`
	HandRake  int64      `json:"handRake"`
	HandGross int64      `json:"handGross"`
	Pots      []Pot      `json:"pots"`
	Winners   []Award    `json:"winners,omitempty"`

	// 守恒校验：开局时在局座位筹码之和，以及中途离桌已兑出的筹码
	HandStartTotal int64 `json:"-"`
	HandCashedOut  int64 `json:"-"`

	DeckCommitment string `json:"deckCommitment,omitempty"`
}

func New(id string, maxSeats int, smallBlind, bigBlind int64, rake RakeConfig) State {
	return State{
		TableID:        id,
		Phase:          PhaseWaiting,
		Seats:          make([]*Seat, maxSeats),
		Dealer:         -1,
		SmallBlindSeat: -1,
		BigBlindSeat:   -1,
		ActionSeat:     -1,
		SmallBlind:     smallBlind,
		BigBlind:       bigBlind,
		Rake:           rake,
	}
}

// Clone 深拷贝，状态机每次转移都在副本上进行
func (s State) Clone() State {
	out := s
	out.Seats = make([]*Seat, len(s.Seats))
	for i, seat := range s.Seats {
		if seat == nil {
			continue
		}
		cp := *seat
		cp.Hole = append([]cards.Card(nil), seat.Hole...)
		out.Seats[i] = &cp
	}
	out.Community = append([]cards.Card(nil), s.Community...)
	out.Deck = s.Deck.Clone()
	if s.Pots != nil {
		out.Pots = make([]Pot, len(s.Pots))
		for i, p := range s.Pots {
			out.Pots[i] = Pot{Amount: p.Amount, Eligible: append([]int(nil), p.Eligible...)}
		}
	}
	out.Winners = append([]Award(nil), s.Winners...)
	return out
}

func (s *State) Seat(i int) *Seat {
	if i < 0 || i >= len(s.Seats) {
		return nil
	}
	return s.Seats[i]
}

// SeatOf 按账号找座位，重连时以账号而非连接定位
func (s *State) SeatOf(accountID string) *Seat {
	if accountID == "" {
		return nil
	}
	for _, seat := range s.Seats {
		if seat != nil && seat.AccountID == accountID {
			return seat
		}
	}
	return nil
}

func (s *State) EmptySeats() []int {
	var out []int
	for i, seat := range s.Seats {
		if seat == nil {
			out = append(out, i)
		}
	}
	return out
}

// Occupied 已入座人数（含机器人）
func (s *State) Occupied() (humans, bots int) {
	for _, seat := range s.Seats {
		switch {
		case seat == nil:
		case seat.IsBot:
			bots++
		default:
			humans++
		}
	}
	return
}

// PotTotal 当前手牌已投入的全部筹码
func (s *State) PotTotal() int64 {
	var total int64
	for _, seat := range s.Seats {
		if seat != nil && seat.InHand {
			total += seat.TotalBet
		}
	}
	return total
}
