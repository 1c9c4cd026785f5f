package pot

import (
	"testing"

	"CardRoom/internal/game/cards"
	"CardRoom/internal/game/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seat(i int, chips, total int64, folded bool, hole string) *table.Seat {
	s := &table.Seat{Index: i, Chips: chips, TotalBet: total, Folded: folded, InHand: true}
	if hole != "" {
		s.Hole = cards.MustParseList(hole)
	}
	if chips == 0 && !folded {
		s.AllIn = true
	}
	return s
}

func TestBuild_SidePots(t *testing.T) {
	seats := []*table.Seat{
		seat(0, 0, 100, false, ""),
		seat(1, 0, 300, false, ""),
		seat(2, 0, 300, false, ""),
		seat(3, 950, 50, true, ""),
	}
	pots := Build(seats)
	require.Len(t, pots, 2)
	assert.Equal(t, table.Pot{Amount: 350, Eligible: []int{0, 1, 2}}, pots[0])
	assert.Equal(t, table.Pot{Amount: 400, Eligible: []int{1, 2}}, pots[1])
	assert.Equal(t, int64(750), pots[0].Amount+pots[1].Amount)
}

func TestBuild_SinglePotWithoutAllIn(t *testing.T) {
	seats := []*table.Seat{
		seat(0, 900, 100, false, ""),
		nil,
		seat(2, 900, 100, false, ""),
		seat(3, 990, 10, true, ""),
	}
	pots := Build(seats)
	require.Len(t, pots, 1)
	assert.Equal(t, int64(210), pots[0].Amount)
	assert.Equal(t, []int{0, 2}, pots[0].Eligible)
}

func TestBuild_IgnoresSeatsOutOfHand(t *testing.T) {
	out := seat(1, 500, 0, false, "")
	out.InHand = false
	pots := Build([]*table.Seat{seat(0, 0, 40, false, ""), out, seat(2, 0, 40, false, "")})
	require.Len(t, pots, 1)
	assert.Equal(t, []int{0, 2}, pots[0].Eligible)
}

func TestRake_Boundaries(t *testing.T) {
	cfg := table.RakeConfig{Percent: 0.05, Cap: 30, MinPot: 20}

	assert.Equal(t, int64(1), Rake(20, cfg), "恰好达到门槛要抽水")
	assert.Equal(t, int64(0), Rake(19, cfg), "低于门槛一个单位不抽")
	assert.Equal(t, int64(29), Rake(599, cfg))
	assert.Equal(t, int64(30), Rake(600, cfg))
	assert.Equal(t, int64(30), Rake(10_000, cfg), "封顶")
	assert.Equal(t, int64(0), Rake(0, cfg))
	assert.Equal(t, int64(500), Rake(10_000, table.RakeConfig{Percent: 0.05}), "cap 为 0 不封顶")
}

func TestReturnUncalled(t *testing.T) {
	s0 := seat(0, 970, 30, false, "")
	s0.Bet = 30
	s1 := seat(1, 990, 10, true, "")
	s1.Bet = 10

	r := ReturnUncalled([]*table.Seat{s0, s1})
	require.NotNil(t, r)
	assert.Equal(t, Refund{Seat: 0, Amount: 20}, *r)
	assert.Equal(t, int64(10), s0.TotalBet)
	assert.Equal(t, int64(10), s0.Bet)
	assert.Equal(t, int64(990), s0.Chips)

	assert.Nil(t, ReturnUncalled([]*table.Seat{seat(0, 0, 50, false, ""), seat(1, 0, 50, false, "")}))
}

func TestResolve_Uncontested(t *testing.T) {
	s := table.New("t", 2, 5, 10, table.RakeConfig{Percent: 0.05, Cap: 30, MinPot: 20})
	s.Seats[0] = seat(0, 970, 30, false, "Ah Kh")
	s.Seats[0].Bet = 30
	s.Seats[1] = seat(1, 990, 10, true, "7c 2d")

	res, err := Resolve(&s)
	require.NoError(t, err)
	assert.True(t, res.Uncontested)
	require.NotNil(t, res.Refund)
	assert.Equal(t, int64(20), res.Refund.Amount)
	assert.Equal(t, int64(20), res.Gross)
	assert.Equal(t, int64(1), res.Rake)
	require.Len(t, res.Awards, 1)
	assert.Equal(t, LabelWin, res.Awards[0].Label)
	assert.Empty(t, res.Shown)

	assert.Equal(t, int64(1009), s.Seats[0].Chips)
	assert.Equal(t, int64(990), s.Seats[1].Chips)
	assert.Equal(t, int64(2000), s.Seats[0].Chips+s.Seats[1].Chips+s.HandRake)
	assert.False(t, s.Seats[1].Shown)
}

func TestResolve_SidePotShowdown(t *testing.T) {
	s := table.New("t", 3, 5, 10, table.RakeConfig{})
	s.Seats[0] = seat(0, 0, 100, false, "Ah Ad")
	s.Seats[1] = seat(1, 0, 300, false, "Kh Kd")
	s.Seats[2] = seat(2, 0, 300, false, "Qh Qd")
	s.Community = cards.MustParseList("2c 7d 9h Js 3c")

	res, err := Resolve(&s)
	require.NoError(t, err)
	require.Len(t, res.Pots, 2)
	assert.Equal(t, int64(300), res.Payouts[0])
	assert.Equal(t, int64(400), res.Payouts[1])
	assert.Zero(t, res.Payouts[2])
	assert.Len(t, res.Shown, 3)

	assert.Equal(t, int64(300), s.Seats[0].Chips)
	assert.Equal(t, int64(400), s.Seats[1].Chips)
	for _, st := range s.Seats {
		assert.Zero(t, st.TotalBet)
		assert.True(t, st.Shown)
	}
	assert.Equal(t, int64(700), s.HandGross)
}

func TestResolve_SplitGivesOddChipToFirstWinner(t *testing.T) {
	s := table.New("t", 3, 5, 10, table.RakeConfig{})
	s.Seats[0] = seat(0, 0, 10, false, "2h 3d")
	s.Seats[1] = seat(1, 0, 10, false, "4h 5d")
	s.Seats[2] = seat(2, 0, 1, true, "Ac Ad")
	s.Community = cards.MustParseList("9c Ts Jd Qc Kh")

	res, err := Resolve(&s)
	require.NoError(t, err)
	require.Len(t, res.Pots, 1)
	assert.Equal(t, int64(21), res.Pots[0].Amount)
	require.Len(t, res.Awards, 2)
	assert.Equal(t, LabelSplit, res.Awards[0].Label)
	assert.Equal(t, int64(11), s.Seats[0].Chips)
	assert.Equal(t, int64(10), s.Seats[1].Chips)
	assert.False(t, s.Seats[2].Shown, "弃牌座位不亮牌")
}

func TestResolve_RakePerPot(t *testing.T) {
	s := table.New("t", 3, 5, 10, table.RakeConfig{Percent: 0.1, Cap: 25, MinPot: 100})
	s.Seats[0] = seat(0, 0, 100, false, "Ah Ad")
	s.Seats[1] = seat(1, 0, 300, false, "Kh Kd")
	s.Seats[2] = seat(2, 0, 300, false, "Qh Qd")
	s.Community = cards.MustParseList("2c 7d 9h Js 3c")

	res, err := Resolve(&s)
	require.NoError(t, err)
	// 主池 300 抽 25（封顶），边池 400 抽 25（封顶）
	assert.Equal(t, []int64{25, 25}, res.PotRakes)
	assert.Equal(t, int64(50), s.HandRake)
	assert.Equal(t, int64(275), s.Seats[0].Chips)
	assert.Equal(t, int64(375), s.Seats[1].Chips)
}
