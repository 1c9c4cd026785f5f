package rules

import (
	"errors"
	"fmt"
	"strings"

	"CardRoom/internal/game/cards"
	"CardRoom/internal/game/pot"
	"CardRoom/internal/game/table"
)

var (
	ErrNotYourTurn   = errors.New("not your turn")
	ErrUnknownAction = errors.New("unknown action")
	ErrBadAmount     = errors.New("bad amount")
	ErrNoHand        = errors.New("no hand in progress")
	ErrNotEnough     = errors.New("not enough players")
	// ErrInvariant 筹码不守恒或牌堆异常，协调器必须中止本桌
	ErrInvariant = errors.New("table invariant violated")
)

type Kind string

const (
	Fold  Kind = "fold"
	Check Kind = "check"
	Call  Kind = "call"
	Raise Kind = "raise"
	AllIn Kind = "allin"
)

// 额外的动作标签
const (
	LabelCheckAsFold = "check_as_fold"
	LabelSmallBlind  = "small_blind"
	LabelBigBlind    = "big_blind"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Fold, Check, Call, Raise, AllIn:
		return k, nil
	case "all-in", "all_in":
		return AllIn, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Action Amount 对 raise 来说是本街总下注额（raise-to），不是增量
type Action struct {
	Seat   int   `json:"seat"`
	Kind   Kind  `json:"kind"`
	Amount int64 `json:"amount,omitempty"`
	// Auto 超时或断线触发的自动弃牌
	Auto bool `json:"auto,omitempty"`
}

// Outcome 一次转移的结果
type Outcome struct {
	Seat  int    `json:"seat"`
	Kind  Kind   `json:"kind"` // 实际生效的动作
	Label string `json:"label"`
	Paid  int64  `json:"paid"`

	ImplicitFold bool `json:"implicitFold,omitempty"`
	Auto         bool `json:"auto,omitempty"`
	FullRaise    bool `json:"fullRaise,omitempty"`

	Streets  []table.Phase `json:"streets,omitempty"` // 本次推进经过的新街
	HandOver bool          `json:"handOver"`
	Result   *pot.Result   `json:"result,omitempty"`
}

// Dealable 下一手能发牌的座位
func Dealable(s *table.Seat) bool {
	return s != nil && s.Chips > 0 && !s.SittingOut && !s.Disconnected && !s.Leaving
}

// CountDealable 可开局人数
func CountDealable(st *table.State) int {
	n := 0
	for _, s := range st.Seats {
		if Dealable(s) {
			n++
		}
	}
	return n
}

// StartHand 移动庄位、下盲注、发底牌，返回新状态；deck 由调用方洗好传入
func StartHand(prev table.State, deck cards.Deck) (table.State, Outcome, error) {
	s := prev.Clone()
	if CountDealable(&s) < 2 {
		return prev, Outcome{}, ErrNotEnough
	}

	s.HandNumber++
	s.Phase = table.PhasePreflop
	s.Community = nil
	s.Deck = deck
	s.Pots = nil
	s.Winners = nil
	s.HandRake, s.HandGross = 0, 0
	s.HandStartTotal, s.HandCashedOut = 0, 0
	s.DeckCommitment = ""
	s.Deadline = 0

	var players []int
	for i, seat := range s.Seats {
		if seat == nil {
			continue
		}
		seat.Bet, seat.TotalBet = 0, 0
		seat.Hole = nil
		seat.Folded, seat.AllIn, seat.HasActed = false, false, false
		seat.LastAction, seat.AutoFolded = "", false
		seat.Shown, seat.HandDesc = false, ""
		seat.InHand = Dealable(seat)
		if seat.InHand {
			players = append(players, i)
			s.HandStartTotal += seat.Chips
		}
	}

	s.Dealer = nextInHand(&s, s.Dealer)
	if len(players) == 2 {
		// 单挑：庄家下小盲，翻前先行动
		s.SmallBlindSeat = s.Dealer
	} else {
		s.SmallBlindSeat = nextInHand(&s, s.Dealer)
	}
	s.BigBlindSeat = nextInHand(&s, s.SmallBlindSeat)

	post(s.Seats[s.SmallBlindSeat], s.SmallBlind, LabelSmallBlind)
	post(s.Seats[s.BigBlindSeat], s.BigBlind, LabelBigBlind)
	s.CurrentBet = s.BigBlind
	s.MinRaise = s.BigBlind

	// 从小盲开始每人一张，发两轮
	for round := 0; round < 2; round++ {
		seat := s.SmallBlindSeat
		for range players {
			c, err := s.Deck.Pop()
			if err != nil {
				return prev, Outcome{}, fmt.Errorf("%w: deal hole: %v", ErrInvariant, err)
			}
			s.Seats[seat].Hole = append(s.Seats[seat].Hole, c)
			seat = nextInHand(&s, seat)
		}
	}

	s.ActionSeat = s.BigBlindSeat
	out := Outcome{Seat: -1}
	if err := progress(&s, &out); err != nil {
		return prev, Outcome{}, err
	}
	if err := CheckConservation(&s); err != nil {
		return prev, Outcome{}, err
	}
	return s, out, nil
}

func post(seat *table.Seat, amount int64, label string) {
	if amount > seat.Chips {
		amount = seat.Chips
	}
	seat.Chips -= amount
	seat.Bet += amount
	seat.TotalBet += amount
	seat.LastAction = label
	if seat.Chips == 0 {
		seat.AllIn = true
	}
}

// Apply 校验并执行一个动作。非法动作返回错误且状态不变
func Apply(prev table.State, a Action) (table.State, Outcome, error) {
	if !prev.Phase.Betting() {
		return prev, Outcome{}, ErrNoHand
	}
	if a.Seat != prev.ActionSeat {
		return prev, Outcome{}, ErrNotYourTurn
	}
	if a.Amount < 0 {
		return prev, Outcome{}, fmt.Errorf("%w: %d", ErrBadAmount, a.Amount)
	}
	s := prev.Clone()
	seat := s.Seat(a.Seat)
	if !seat.CanAct() {
		return prev, Outcome{}, ErrNotYourTurn
	}

	out := Outcome{Seat: a.Seat, Auto: a.Auto}
	toCall := s.CurrentBet - seat.Bet

	switch a.Kind {
	case Fold:
		fold(seat, &out)
	case Check:
		if toCall > 0 {
			// 非法过牌按弃牌处理，但单独标记
			fold(seat, &out)
			out.ImplicitFold = true
			out.Label = LabelCheckAsFold
			seat.LastAction = LabelCheckAsFold
		} else {
			check(seat, &out)
		}
	case Call:
		call(&s, seat, &out)
	case Raise:
		if a.Amount == 0 {
			return prev, Outcome{}, fmt.Errorf("%w: raise needs a target", ErrBadAmount)
		}
		target := a.Amount
		if floor := MinRaiseTo(&s); target < floor {
			target = floor
		}
		raiseTo(&s, seat, target, &out)
	case AllIn:
		raiseTo(&s, seat, seat.Bet+seat.Chips, &out)
	default:
		return prev, Outcome{}, fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
	}
	seat.HasActed = true
	if a.Auto && out.Kind == Fold {
		seat.AutoFolded = true
	}

	if err := progress(&s, &out); err != nil {
		return prev, Outcome{}, err
	}
	if err := CheckConservation(&s); err != nil {
		return prev, Outcome{}, err
	}
	return s, out, nil
}

func fold(seat *table.Seat, out *Outcome) {
	seat.Folded = true
	seat.LastAction = string(Fold)
	out.Kind, out.Label = Fold, string(Fold)
}

func check(seat *table.Seat, out *Outcome) {
	seat.LastAction = string(Check)
	out.Kind, out.Label = Check, string(Check)
}

func call(s *table.State, seat *table.Seat, out *Outcome) {
	toCall := s.CurrentBet - seat.Bet
	if toCall <= 0 {
		check(seat, out)
		return
	}
	paid := pay(seat, toCall)
	out.Kind, out.Paid = Call, paid
	out.Label = string(Call)
	if seat.AllIn {
		out.Label = string(AllIn)
	}
	seat.LastAction = out.Label
}

// raiseTo target 为本街总额，按筹码截断。
// 满额加注重新开放行动；不足额的全下只算跟注级别，已行动过的人只能跟或弃。
func raiseTo(s *table.State, seat *table.Seat, target int64, out *Outcome) {
	if stack := seat.Bet + seat.Chips; target > stack {
		target = stack
	}
	if target <= s.CurrentBet {
		call(s, seat, out)
		return
	}
	// 面对不足额加注且已行动过：不能再加注，降级为跟注
	if seat.HasActed && seat.Bet < s.CurrentBet {
		call(s, seat, out)
		return
	}

	increment := target - s.CurrentBet
	paid := pay(seat, target-seat.Bet)
	out.Kind, out.Paid = Raise, paid
	out.Label = string(Raise)
	if seat.AllIn {
		out.Kind, out.Label = AllIn, string(AllIn)
	}
	seat.LastAction = out.Label

	if increment >= s.MinRaise {
		s.MinRaise = increment
		out.FullRaise = true
		for _, other := range s.Seats {
			if other != nil && other != seat && other.CanAct() {
				other.HasActed = false
			}
		}
	}
	s.CurrentBet = target
}

func pay(seat *table.Seat, amount int64) int64 {
	if amount > seat.Chips {
		amount = seat.Chips
	}
	seat.Chips -= amount
	seat.Bet += amount
	seat.TotalBet += amount
	if seat.Chips == 0 {
		seat.AllIn = true
	}
	return amount
}

// ForceFold 离桌或断线超时：不论是否轮到，直接弃牌
func ForceFold(prev table.State, seatIdx int) (table.State, Outcome, error) {
	seat := prev.Seat(seatIdx)
	if !prev.Phase.Betting() || !seat.Live() {
		return prev, Outcome{Seat: seatIdx}, nil
	}
	if seatIdx == prev.ActionSeat {
		return Apply(prev, Action{Seat: seatIdx, Kind: Fold, Auto: true})
	}
	s := prev.Clone()
	seat = s.Seats[seatIdx]
	out := Outcome{Seat: seatIdx, Auto: true}
	fold(seat, &out)
	seat.AutoFolded = true
	if LiveCount(&s) <= 1 {
		if err := settle(&s, &out); err != nil {
			return prev, Outcome{}, err
		}
	}
	if err := CheckConservation(&s); err != nil {
		return prev, Outcome{}, err
	}
	return s, out, nil
}

// CashOut 从座位取走全部筹码；手牌进行中计入 HandCashedOut 以保持守恒
func CashOut(prev table.State, seatIdx int) (table.State, int64) {
	seat := prev.Seat(seatIdx)
	if seat == nil || seat.Chips == 0 {
		return prev, 0
	}
	s := prev.Clone()
	seat = s.Seats[seatIdx]
	amount := seat.Chips
	seat.Chips = 0
	if seat.InHand && s.Phase.Betting() {
		s.HandCashedOut += amount
	}
	return s, amount
}
