package rules

import (
	"fmt"

	"CardRoom/internal/game/pot"
	"CardRoom/internal/game/table"
)

// progress 动作之后推进：只剩一人直接结算；本街未完成轮到下一人；
// 本街完成则发下一街，可行动人数不足两人时一路发到河牌后摊牌
func progress(s *table.State, out *Outcome) error {
	if LiveCount(s) <= 1 {
		return settle(s, out)
	}
	if !roundComplete(s) {
		s.ActionSeat = nextActor(s, s.ActionSeat)
		return nil
	}
	for {
		if s.Phase == table.PhaseRiver {
			return settle(s, out)
		}
		if err := advanceStreet(s); err != nil {
			return err
		}
		out.Streets = append(out.Streets, s.Phase)
		if ActorCount(s) >= 2 {
			// 翻后从庄家下一位开始
			s.ActionSeat = nextActor(s, s.Dealer)
			return nil
		}
	}
}

// roundComplete 所有还能行动的人都已行动并跟平当前注额
func roundComplete(s *table.State) bool {
	actors, pending := 0, false
	for _, seat := range s.Seats {
		if !seat.CanAct() {
			continue
		}
		actors++
		if seat.Bet < s.CurrentBet {
			return false
		}
		if !seat.HasActed {
			pending = true
		}
	}
	if actors <= 1 {
		return true
	}
	return !pending
}

func advanceStreet(s *table.State) error {
	var n int
	var next table.Phase
	switch s.Phase {
	case table.PhasePreflop:
		n, next = 3, table.PhaseFlop
	case table.PhaseFlop:
		n, next = 1, table.PhaseTurn
	case table.PhaseTurn:
		n, next = 1, table.PhaseRiver
	default:
		return fmt.Errorf("%w: cannot advance from %s", ErrInvariant, s.Phase)
	}
	dealt, err := s.Deck.DealStreet(n)
	if err != nil {
		return fmt.Errorf("%w: deal %s: %v", ErrInvariant, next, err)
	}
	s.Community = append(s.Community, dealt...)
	s.Phase = next
	s.CurrentBet = 0
	s.MinRaise = s.BigBlind
	for _, seat := range s.Seats {
		if seat == nil || !seat.InHand {
			continue
		}
		seat.Bet = 0
		if seat.CanAct() {
			seat.HasActed = false
			seat.LastAction = ""
		}
	}
	return nil
}

func settle(s *table.State, out *Outcome) error {
	s.Phase = table.PhaseShowdown
	s.ActionSeat = -1
	s.Deadline = 0
	res, err := pot.Resolve(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	out.HandOver = true
	out.Result = res
	return nil
}

// CheckConservation 在局座位筹码 + 已投入 + 抽水 + 中途兑出 必须等于开局总额
func CheckConservation(s *table.State) error {
	if s.Phase == table.PhaseWaiting {
		return nil
	}
	var sum int64
	for _, seat := range s.Seats {
		if seat == nil || !seat.InHand {
			continue
		}
		if seat.Chips < 0 || seat.Bet < 0 || seat.TotalBet < 0 {
			return fmt.Errorf("%w: seat %d has negative chips", ErrInvariant, seat.Index)
		}
		sum += seat.Chips + seat.TotalBet
	}
	sum += s.HandRake + s.HandCashedOut
	if sum != s.HandStartTotal {
		return fmt.Errorf("%w: hand %d holds %d chips, started with %d", ErrInvariant, s.HandNumber, sum, s.HandStartTotal)
	}
	return nil
}

// LiveCount 未弃牌的在局人数
func LiveCount(s *table.State) int {
	n := 0
	for _, seat := range s.Seats {
		if seat.Live() {
			n++
		}
	}
	return n
}

// ActorCount 还能下注的人数
func ActorCount(s *table.State) int {
	n := 0
	for _, seat := range s.Seats {
		if seat.CanAct() {
			n++
		}
	}
	return n
}

func ToCall(s *table.State, seatIdx int) int64 {
	seat := s.Seat(seatIdx)
	if seat == nil || seat.Bet >= s.CurrentBet {
		return 0
	}
	return s.CurrentBet - seat.Bet
}

// MinRaiseTo 最小合法加注到的总额
func MinRaiseTo(s *table.State) int64 {
	return s.CurrentBet + s.MinRaise
}

// CanRaise 面对不足额全下且已行动过的座位不能再加注
func CanRaise(s *table.State, seatIdx int) bool {
	seat := s.Seat(seatIdx)
	if !seat.CanAct() || seat.Chips <= s.CurrentBet-seat.Bet {
		return false
	}
	return !(seat.HasActed && seat.Bet < s.CurrentBet)
}

func nextInHand(s *table.State, from int) int {
	return nextWhere(s, from, func(seat *table.Seat) bool { return seat != nil && seat.InHand })
}

func nextActor(s *table.State, from int) int {
	return nextWhere(s, from, func(seat *table.Seat) bool { return seat.CanAct() })
}

func nextWhere(s *table.State, from int, ok func(*table.Seat) bool) int {
	n := len(s.Seats)
	for k := 1; k <= n; k++ {
		i := ((from+k)%n + n) % n
		if ok(s.Seats[i]) {
			return i
		}
	}
	return -1
}
