package evaluator

import (
	"errors"
	"fmt"
	"sort"

	"CardRoom/internal/game/cards"
)

// Category 0 = 高牌 ... 9 = 皇家同花顺
type Category int

const (
	HighCard Category = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

var categoryNames = [...]string{
	"High Card", "Pair", "Two Pair", "Three of a Kind", "Straight",
	"Flush", "Full House", "Four of a Kind", "Straight Flush", "Royal Flush",
}

func (c Category) String() string {
	if c < HighCard || c > RoyalFlush {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

var (
	ErrHoleCards      = errors.New("hole cards must be 2 to 4")
	ErrCommunityCards = errors.New("community cards must be 0 to 5")
	ErrDuplicateCard  = errors.New("duplicate card")
	ErrInvalidCard    = errors.New("invalid card")
)

// Rank 评估结果：先比 Category，再逐位比较 Tiebreak（高位在前）
type Rank struct {
	Category Category     `json:"category"`
	Tiebreak []int        `json:"tiebreak"`
	Best     []cards.Card `json:"best,omitempty"`
}

func (r Rank) String() string {
	return fmt.Sprintf("%s %v", r.Category, r.Tiebreak)
}

// Compare 返回 1 / 0 / -1；0 表示完全平局（平分底池）
func Compare(a, b Rank) int {
	if a.Category != b.Category {
		if a.Category < b.Category {
			return -1
		}
		return 1
	}
	n := len(a.Tiebreak)
	if len(b.Tiebreak) > n {
		n = len(b.Tiebreak)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(a.Tiebreak) {
			av = a.Tiebreak[i]
		}
		if i < len(b.Tiebreak) {
			bv = b.Tiebreak[i]
		}
		if av == bv {
			continue
		}
		if av < bv {
			return -1
		}
		return 1
	}
	return 0
}

// Evaluate 在底牌 + 公共牌的所有 5 张组合中取最大；不足 5 张时只按对子/三条/四条计算
func Evaluate(hole, community []cards.Card) (Rank, error) {
	if len(hole) < 2 || len(hole) > 4 {
		return Rank{}, ErrHoleCards
	}
	if len(community) > 5 {
		return Rank{}, ErrCommunityCards
	}
	all := make([]cards.Card, 0, len(hole)+len(community))
	all = append(all, hole...)
	all = append(all, community...)
	if err := assertDistinct(all); err != nil {
		return Rank{}, err
	}
	if len(all) < 5 {
		return evaluatePartial(all), nil
	}

	var best Rank
	found := false
	forEachCombo(len(all), 5, func(idx []int) {
		five := [5]cards.Card{all[idx[0]], all[idx[1]], all[idx[2]], all[idx[3]], all[idx[4]]}
		r := evaluate5(five)
		if !found || Compare(r, best) > 0 {
			best = r
			found = true
		}
	})
	return best, nil
}

func assertDistinct(cs []cards.Card) error {
	seen := make(map[cards.Card]bool, len(cs))
	for _, c := range cs {
		if !c.Valid() {
			return fmt.Errorf("%w: %+v", ErrInvalidCard, c)
		}
		if seen[c] {
			return fmt.Errorf("%w: %s", ErrDuplicateCard, c)
		}
		seen[c] = true
	}
	return nil
}

// forEachCombo 按字典序枚举 C(n, k)
func forEachCombo(n, k int, fn func(idx []int)) {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		fn(idx)
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

type group struct {
	rank  int
	count int
}

// groupRanks 按 (张数 desc, 点数 desc) 排序
func groupRanks(cs []cards.Card) []group {
	counts := make(map[int]int, len(cs))
	for _, c := range cs {
		counts[c.Rank]++
	}
	groups := make([]group, 0, len(counts))
	for r, n := range counts {
		groups = append(groups, group{rank: r, count: n})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].rank > groups[j].rank
	})
	return groups
}

func ranksDesc(cs []cards.Card) []int {
	out := make([]int, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Rank)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// straightHigh 需要 5 个不同点数；A-2-3-4-5 返回 5
func straightHigh(ranks []int) (int, bool) {
	if len(ranks) != 5 {
		return 0, false
	}
	for i := 1; i < 5; i++ {
		if ranks[i] == ranks[i-1] {
			return 0, false
		}
	}
	if ranks[0] == cards.Ace && ranks[1] == 5 && ranks[2] == 4 && ranks[3] == 3 && ranks[4] == 2 {
		return 5, true
	}
	if ranks[0]-ranks[4] == 4 {
		return ranks[0], true
	}
	return 0, false
}

func evaluate5(five [5]cards.Card) Rank {
	cs := five[:]
	best := append([]cards.Card(nil), cs...)

	isFlush := true
	for i := 1; i < 5; i++ {
		if cs[i].Suit != cs[0].Suit {
			isFlush = false
			break
		}
	}
	ranks := ranksDesc(cs)
	high, isStraight := straightHigh(ranks)
	groups := groupRanks(cs)

	switch {
	case isStraight && isFlush:
		if high == cards.Ace {
			return Rank{Category: RoyalFlush, Tiebreak: []int{high}, Best: best}
		}
		return Rank{Category: StraightFlush, Tiebreak: []int{high}, Best: best}
	case groups[0].count == 4:
		return Rank{Category: FourOfAKind, Tiebreak: []int{groups[0].rank, groups[1].rank}, Best: best}
	case groups[0].count == 3 && groups[1].count == 2:
		return Rank{Category: FullHouse, Tiebreak: []int{groups[0].rank, groups[1].rank}, Best: best}
	case isFlush:
		return Rank{Category: Flush, Tiebreak: ranks, Best: best}
	case isStraight:
		return Rank{Category: Straight, Tiebreak: []int{high}, Best: best}
	}
	return Rank{Category: categoryFromGroups(groups), Tiebreak: groupTiebreak(groups), Best: best}
}

func categoryFromGroups(groups []group) Category {
	switch {
	case groups[0].count == 4:
		return FourOfAKind
	case groups[0].count == 3:
		return ThreeOfAKind
	case groups[0].count == 2 && len(groups) > 1 && groups[1].count == 2:
		return TwoPair
	case groups[0].count == 2:
		return Pair
	}
	return HighCard
}

// groupTiebreak 组内点数依次展开，例如两对 [K, 7, 2]
func groupTiebreak(groups []group) []int {
	out := make([]int, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.rank)
	}
	return out
}

// evaluatePartial 翻牌前 (<5 张) 只看成组，机器人手牌估计用
func evaluatePartial(cs []cards.Card) Rank {
	groups := groupRanks(cs)
	return Rank{
		Category: categoryFromGroups(groups),
		Tiebreak: groupTiebreak(groups),
		Best:     append([]cards.Card(nil), cs...),
	}
}
