package cards

import (
	"fmt"
	"strings"
)

// 花色 0-3，顺序 ♣ ♦ ♥ ♠
const (
	Clubs = iota
	Diamonds
	Hearts
	Spades
)

// 点数 2-14，A 为 14（顺子 A-2-3-4-5 时按 5 高计算）
const (
	Jack  = 11
	Queen = 12
	King  = 13
	Ace   = 14
)

// Card 为不可变值，没有除 (Suit, Rank) 以外的身份
type Card struct {
	Suit int `json:"suit"`
	Rank int `json:"rank"`
}

var (
	suitSymbols = []string{"♣", "♦", "♥", "♠"}
	suitLetters = "cdhs"
	rankLetters = map[int]string{10: "T", 11: "J", 12: "Q", 13: "K", 14: "A"}
)

func (c Card) String() string {
	rankStr, ok := rankLetters[c.Rank]
	if !ok || c.Rank == 10 {
		rankStr = fmt.Sprintf("%d", c.Rank)
	}
	suitStr := "?"
	if c.Suit >= 0 && c.Suit < len(suitSymbols) {
		suitStr = suitSymbols[c.Suit]
	}
	return rankStr + suitStr
}

// Code 返回两字符编码，例如 "As"、"Td"
func (c Card) Code() string {
	r, ok := rankLetters[c.Rank]
	if !ok {
		r = fmt.Sprintf("%d", c.Rank)
	}
	s := "?"
	if c.Suit >= 0 && c.Suit < len(suitLetters) {
		s = string(suitLetters[c.Suit])
	}
	return r + s
}

func (c Card) Valid() bool {
	return c.Suit >= Clubs && c.Suit <= Spades && c.Rank >= 2 && c.Rank <= Ace
}

// Parse 解析 "As" / "Td" / "10h" 形式
func Parse(s string) (Card, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return Card{}, fmt.Errorf("invalid card %q", s)
	}
	rankPart, suitPart := s[:len(s)-1], s[len(s)-1:]

	suit := strings.Index(suitLetters, strings.ToLower(suitPart))
	if suit < 0 {
		return Card{}, fmt.Errorf("invalid suit in %q", s)
	}

	rank := 0
	switch strings.ToUpper(rankPart) {
	case "A":
		rank = Ace
	case "K":
		rank = King
	case "Q":
		rank = Queen
	case "J":
		rank = Jack
	case "T", "10":
		rank = 10
	default:
		if len(rankPart) == 1 && rankPart[0] >= '2' && rankPart[0] <= '9' {
			rank = int(rankPart[0] - '0')
		}
	}
	if rank == 0 {
		return Card{}, fmt.Errorf("invalid rank in %q", s)
	}
	return Card{Suit: suit, Rank: rank}, nil
}

// MustParseList 以空格分隔解析多张牌，测试和固定牌局使用
func MustParseList(s string) []Card {
	fields := strings.Fields(s)
	out := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := Parse(f)
		if err != nil {
			panic(err)
		}
		out = append(out, c)
	}
	return out
}
