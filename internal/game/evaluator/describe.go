package evaluator

import (
	"CardRoom/internal/game/cards"

	"github.com/paulhankin/poker"
)

// Describe 生成摊牌展示文字；7 张时交给 paulhankin/poker，其余情况退回类别名
func Describe(hole, community []cards.Card, r Rank) string {
	if len(hole)+len(community) != 7 {
		return r.Category.String()
	}
	var seven [7]poker.Card
	i := 0
	for _, set := range [][]cards.Card{community, hole} {
		for _, c := range set {
			pc, err := poker.MakeCard(poker.Suit(c.Suit), poker.Rank(toAceLow(c.Rank)))
			if err != nil {
				return r.Category.String()
			}
			seven[i] = pc
			i++
		}
	}
	desc, err := poker.Describe(seven[:])
	if err != nil || desc == "" {
		return r.Category.String()
	}
	return desc
}

// paulhankin/poker 里 A 记为 1
func toAceLow(rank int) int {
	if rank == cards.Ace {
		return 1
	}
	return rank
}
