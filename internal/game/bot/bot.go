package bot

import (
	"math/rand"

	"CardRoom/internal/game/cards"
	"CardRoom/internal/game/evaluator"
	"CardRoom/internal/game/rules"
	"CardRoom/internal/game/table"
)

type Difficulty string

const (
	Beginner Difficulty = "beginner"
	Medium   Difficulty = "medium"
	Pro      Difficulty = "pro"
	// Mixed 每个机器人随机一个难度
	Mixed Difficulty = "mixed"
)

var tiers = []Difficulty{Beginner, Medium, Pro}

func ParseDifficulty(s string) Difficulty {
	switch d := Difficulty(s); d {
	case Beginner, Medium, Pro, Mixed:
		return d
	}
	return Medium
}

// View 机器人可见的信息：公共信息 + 自己的底牌
type View struct {
	Phase      table.Phase
	Hole       []cards.Card
	Community  []cards.Card
	Pot        int64
	ToCall     int64
	Stack      int64
	Bet        int64
	CurrentBet int64
	MinRaiseTo int64
	CanRaise   bool
	Live       int
}

func NewView(s *table.State, seatIdx int) View {
	seat := s.Seat(seatIdx)
	return View{
		Phase:      s.Phase,
		Hole:       seat.Hole,
		Community:  s.Community,
		Pot:        s.PotTotal(),
		ToCall:     rules.ToCall(s, seatIdx),
		Stack:      seat.Chips,
		Bet:        seat.Bet,
		CurrentBet: s.CurrentBet,
		MinRaiseTo: rules.MinRaiseTo(s),
		CanRaise:   rules.CanRaise(s, seatIdx),
		Live:       rules.LiveCount(s),
	}
}

// 新手的基础权重：弃牌 / 跟注 / 加注 / 全下，分翻前和翻后
var beginnerWeights = [2][4]float64{
	{0.15, 0.55, 0.25, 0.05},
	{0.2, 0.5, 0.25, 0.05},
}

// Decide 纯函数：给定桌面状态与座位，产出一个动作
func Decide(s *table.State, seatIdx int, d Difficulty, rnd *rand.Rand) rules.Action {
	v := NewView(s, seatIdx)
	var kind rules.Kind
	var amount int64
	switch d {
	case Beginner:
		kind, amount = beginner(v, rnd)
	case Pro:
		kind, amount = heuristic(v, rnd, proPolicy)
	default:
		kind, amount = heuristic(v, rnd, mediumPolicy)
	}
	return finalize(v, seatIdx, kind, amount)
}

// finalize 把意图修正成合法动作：免费时不弃牌，不能加注时改为跟注
func finalize(v View, seatIdx int, kind rules.Kind, amount int64) rules.Action {
	a := rules.Action{Seat: seatIdx, Kind: kind, Amount: amount}
	switch kind {
	case rules.Fold:
		if v.ToCall == 0 {
			a.Kind = rules.Check
		}
	case rules.Raise, rules.AllIn:
		if !v.CanRaise {
			a.Kind, a.Amount = rules.Call, 0
			break
		}
		if kind == rules.Raise {
			if a.Amount < v.MinRaiseTo {
				a.Amount = v.MinRaiseTo
			}
			if a.Amount >= v.Bet+v.Stack {
				a.Kind, a.Amount = rules.AllIn, 0
			}
		}
	}
	if a.Kind == rules.Call && v.ToCall == 0 {
		a.Kind = rules.Check
	}
	return a
}

// beginner 近似随机，面对相对筹码较大的下注时更容易弃牌
func beginner(v View, rnd *rand.Rand) (rules.Kind, int64) {
	street := 1
	if v.Phase == table.PhasePreflop {
		street = 0
	}
	w := beginnerWeights[street]
	if v.Stack > 0 && float64(v.ToCall) > 0.3*float64(v.Stack) {
		w[0] += 0.35
		w[3] = 0.01
	}
	switch pick(w, rnd) {
	case 0:
		return rules.Fold, 0
	case 1:
		return rules.Call, 0
	case 2:
		return rules.Raise, raiseSize(v, 0.5+rnd.Float64())
	default:
		return rules.AllIn, 0
	}
}

func pick(w [4]float64, rnd *rand.Rand) int {
	var total float64
	for _, x := range w {
		total += x
	}
	r := rnd.Float64() * total
	for i, x := range w {
		if r < x {
			return i
		}
		r -= x
	}
	return len(w) - 1
}

type policy struct {
	callMargin float64 // 牌力需超过赔率的幅度
	raiseAt    float64
	shoveAt    float64
	bluff      float64 // 无牌力时的诈唬加注概率
}

var (
	mediumPolicy = policy{callMargin: 0.1, raiseAt: 0.75, shoveAt: 2}
	proPolicy    = policy{callMargin: 0.15, raiseAt: 0.7, shoveAt: 0.93, bluff: 0.08}
)

func heuristic(v View, rnd *rand.Rand, p policy) (rules.Kind, int64) {
	strength := Strength(v.Hole, v.Community)
	odds := potOdds(v)

	switch {
	case strength >= p.shoveAt:
		return rules.AllIn, 0
	case strength >= p.raiseAt:
		return rules.Raise, raiseSize(v, 0.5+strength)
	case p.bluff > 0 && v.ToCall <= v.Pot/3 && rnd.Float64() < p.bluff:
		return rules.Raise, raiseSize(v, 0.75)
	case v.ToCall == 0:
		return rules.Check, 0
	case strength >= odds+p.callMargin:
		return rules.Call, 0
	}
	return rules.Fold, 0
}

func potOdds(v View) float64 {
	if v.ToCall <= 0 {
		return 0
	}
	return float64(v.ToCall) / float64(v.Pot+v.ToCall)
}

// raiseSize 按底池比例计算加注到的总额
func raiseSize(v View, potFraction float64) int64 {
	target := v.CurrentBet + int64(float64(v.Pot)*potFraction)
	if target < v.MinRaiseTo {
		target = v.MinRaiseTo
	}
	return target
}

// Strength 0-1 的牌力估计：翻前按起手牌分类，翻后按评估出的牌型
func Strength(hole, community []cards.Card) float64 {
	if len(hole) < 2 {
		return 0
	}
	if len(community) == 0 {
		return preflopStrength(hole[0], hole[1])
	}
	r, err := evaluator.Evaluate(hole, community)
	if err != nil {
		return 0
	}
	base := categoryStrength[r.Category]
	if len(r.Tiebreak) > 0 && r.Category < evaluator.StraightFlush {
		// 同牌型内按最高关键牌微调
		base += float64(r.Tiebreak[0]-2) / 12 * 0.08
	}
	if base > 1 {
		base = 1
	}
	return base
}

var categoryStrength = map[evaluator.Category]float64{
	evaluator.HighCard:      0.1,
	evaluator.Pair:          0.4,
	evaluator.TwoPair:       0.62,
	evaluator.ThreeOfAKind:  0.72,
	evaluator.Straight:      0.8,
	evaluator.Flush:         0.84,
	evaluator.FullHouse:     0.9,
	evaluator.FourOfAKind:   0.97,
	evaluator.StraightFlush: 0.99,
	evaluator.RoyalFlush:    1,
}

// preflopStrength 起手牌粗分：对子、高张、同花、连张
func preflopStrength(a, b cards.Card) float64 {
	hi, lo := a.Rank, b.Rank
	if lo > hi {
		hi, lo = lo, hi
	}
	if hi == lo {
		return 0.5 + float64(hi-2)/12*0.5
	}
	s := float64(hi+lo-4) / 24 * 0.55
	if a.Suit == b.Suit {
		s += 0.06
	}
	if gap := hi - lo; gap == 1 {
		s += 0.04
	} else if gap > 4 {
		s -= 0.05
	}
	if s < 0 {
		s = 0
	}
	return s
}
