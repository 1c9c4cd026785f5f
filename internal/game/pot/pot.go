package pot

import (
	"fmt"
	"sort"

	"CardRoom/internal/game/cards"
	"CardRoom/internal/game/evaluator"
	"CardRoom/internal/game/table"
)

const (
	LabelWin   = "WIN"
	LabelSplit = "SPLIT"
)

// Refund 未被跟注的超额下注，结算前退回
type Refund struct {
	Seat   int   `json:"seat"`
	Amount int64 `json:"amount"`
}

type ShownHand struct {
	Seat     int                `json:"seat"`
	Hole     []cards.Card       `json:"hole"`
	Category evaluator.Category `json:"category"`
	Tiebreak []int              `json:"tiebreak"`
	Desc     string             `json:"desc"`
}

// Result 一手牌的结算结果，用于牌谱、抽水流水和返水
type Result struct {
	Pots          []table.Pot   `json:"pots"`
	PotRakes      []int64       `json:"potRakes"`
	Awards        []table.Award `json:"awards"`
	Rake          int64         `json:"rake"`
	Gross         int64         `json:"gross"`
	Uncontested   bool          `json:"uncontested"`
	Refund        *Refund       `json:"refund,omitempty"`
	Shown         []ShownHand   `json:"shown,omitempty"`
	Contributions map[int]int64 `json:"contributions"`
	Payouts       map[int]int64 `json:"payouts"`
}

// Rake = min(floor(amount * pct), cap)；低于 MinPot 不抽。Cap <= 0 表示不封顶
func Rake(amount int64, cfg table.RakeConfig) int64 {
	bps := cfg.BasisPoints()
	if amount <= 0 || bps == 0 || amount < cfg.MinPot {
		return 0
	}
	r := amount * bps / 10000
	if cfg.Cap > 0 && r > cfg.Cap {
		r = cfg.Cap
	}
	return r
}

// Build 按整手累计下注分层构造主池/边池。
// 每一层 = 本层增量 × 达到该层的投入人数；只有未弃牌且投入达到该层的座位有资格。
// 相邻两层资格集合相同则合并；没有任何资格者的层并入相邻的池。
func Build(seats []*table.Seat) []table.Pot {
	type contrib struct {
		seat   int
		amount int64
		live   bool
	}
	var remaining []contrib
	for _, s := range seats {
		if s == nil || !s.InHand || s.TotalBet <= 0 {
			continue
		}
		remaining = append(remaining, contrib{seat: s.Index, amount: s.TotalBet, live: !s.Folded})
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].seat < remaining[j].seat })

	var pots []table.Pot
	for len(remaining) > 0 {
		level := remaining[0].amount
		for _, r := range remaining[1:] {
			if r.amount < level {
				level = r.amount
			}
		}

		layer := table.Pot{Amount: level * int64(len(remaining))}
		for _, r := range remaining {
			if r.live {
				layer.Eligible = append(layer.Eligible, r.seat)
			}
		}

		switch {
		case len(pots) > 0 && (len(layer.Eligible) == 0 || sameSeats(pots[len(pots)-1].Eligible, layer.Eligible)):
			pots[len(pots)-1].Amount += layer.Amount
		default:
			pots = append(pots, layer)
		}

		next := remaining[:0]
		for _, r := range remaining {
			r.amount -= level
			if r.amount > 0 {
				next = append(next, r)
			}
		}
		remaining = next
	}
	if len(pots) > 1 && len(pots[0].Eligible) == 0 {
		pots[1].Amount += pots[0].Amount
		pots = pots[1:]
	}
	return pots
}

func sameSeats(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ReturnUncalled 最高投入者超出第二名的部分没人跟，退回筹码
func ReturnUncalled(seats []*table.Seat) *Refund {
	top, second := -1, int64(0)
	for _, s := range seats {
		if s == nil || !s.InHand {
			continue
		}
		switch {
		case top < 0 || s.TotalBet > seats[top].TotalBet:
			if top >= 0 {
				second = seats[top].TotalBet
			}
			top = s.Index
		case s.TotalBet > second:
			second = s.TotalBet
		}
	}
	if top < 0 {
		return nil
	}
	seat := seats[top]
	excess := seat.TotalBet - second
	if excess <= 0 {
		return nil
	}
	seat.TotalBet -= excess
	if seat.Bet >= excess {
		seat.Bet -= excess
	} else {
		seat.Bet = 0
	}
	seat.Chips += excess
	if seat.Chips > 0 {
		seat.AllIn = false
	}
	return &Refund{Seat: top, Amount: excess}
}

// Resolve 摊牌结算：退回未跟注部分、建池、逐池比牌、抽水、派奖。
// 直接修改传入的状态，调用方应传入副本。
func Resolve(s *table.State) (*Result, error) {
	res := &Result{
		Contributions: make(map[int]int64),
		Payouts:       make(map[int]int64),
	}
	res.Refund = ReturnUncalled(s.Seats)

	var live []int
	for _, seat := range s.Seats {
		if seat == nil || !seat.InHand {
			continue
		}
		if seat.TotalBet > 0 {
			res.Contributions[seat.Index] = seat.TotalBet
		}
		if !seat.Folded {
			live = append(live, seat.Index)
		}
	}
	if len(live) == 0 {
		return nil, fmt.Errorf("resolve hand %d: no live seat", s.HandNumber)
	}

	res.Pots = Build(s.Seats)
	res.Uncontested = len(live) == 1

	ranks := make(map[int]evaluator.Rank, len(live))
	if !res.Uncontested {
		for _, i := range live {
			seat := s.Seats[i]
			r, err := evaluator.Evaluate(seat.Hole, s.Community)
			if err != nil {
				return nil, fmt.Errorf("evaluate seat %d: %w", i, err)
			}
			ranks[i] = r
			desc := evaluator.Describe(seat.Hole, s.Community, r)
			seat.Shown = true
			seat.HandDesc = desc
			res.Shown = append(res.Shown, ShownHand{
				Seat:     i,
				Hole:     append([]cards.Card(nil), seat.Hole...),
				Category: r.Category,
				Tiebreak: r.Tiebreak,
				Desc:     desc,
			})
		}
	}

	for pi, p := range res.Pots {
		res.Gross += p.Amount
		rake := Rake(p.Amount, s.Rake)
		res.PotRakes = append(res.PotRakes, rake)
		res.Rake += rake
		net := p.Amount - rake

		winners := live
		if !res.Uncontested {
			winners = bestOf(p.Eligible, ranks)
		}
		if len(winners) == 0 {
			return nil, fmt.Errorf("pot %d has no eligible winner", pi)
		}
		label := LabelWin
		if len(winners) > 1 {
			label = LabelSplit
		}

		share := net / int64(len(winners))
		odd := net % int64(len(winners))
		for wi, w := range winners {
			amount := share
			if wi == 0 {
				amount += odd
			}
			s.Seats[w].Chips += amount
			res.Payouts[w] += amount
			res.Awards = append(res.Awards, table.Award{
				Pot:    pi,
				Seat:   w,
				Amount: amount,
				Label:  label,
				Hand:   s.Seats[w].HandDesc,
			})
		}
	}

	for _, seat := range s.Seats {
		if seat == nil || !seat.InHand {
			continue
		}
		seat.Bet = 0
		seat.TotalBet = 0
		if seat.Chips > 0 {
			seat.AllIn = false
		}
	}
	s.Pots = res.Pots
	s.Winners = res.Awards
	s.HandRake += res.Rake
	s.HandGross += res.Gross
	return res, nil
}

// bestOf 资格座位里牌力最大者，平局全部返回，按座位顺序
func bestOf(eligible []int, ranks map[int]evaluator.Rank) []int {
	var winners []int
	var best evaluator.Rank
	for _, seat := range eligible {
		r, ok := ranks[seat]
		if !ok {
			continue
		}
		switch {
		case len(winners) == 0:
			winners, best = []int{seat}, r
		default:
			switch evaluator.Compare(r, best) {
			case 1:
				winners, best = []int{seat}, r
			case 0:
				winners = append(winners, seat)
			}
		}
	}
	return winners
}
