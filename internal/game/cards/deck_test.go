package cards

import (
	"math/rand"
	"testing"
)

// 工具：检查是否有重复牌
func hasDuplicates(cs []Card) bool {
	seen := make(map[Card]bool)
	for _, c := range cs {
		if seen[c] {
			return true
		}
		seen[c] = true
	}
	return false
}

// ✅ 测试牌组初始化
func TestNewShuffledDeck(t *testing.T) {
	d := NewShuffledDeck(rand.New(rand.NewSource(7)))

	if len(d) != 52 {
		t.Fatalf("expected 52 cards, got %d", len(d))
	}
	if hasDuplicates(d) {
		t.Fatalf("deck should not contain duplicates")
	}

	suits := make(map[int]bool)
	ranks := make(map[int]bool)
	for _, c := range d {
		if !c.Valid() {
			t.Fatalf("invalid card %v", c)
		}
		suits[c.Suit] = true
		ranks[c.Rank] = true
	}
	if len(suits) != 4 {
		t.Fatalf("expected 4 suits, got %d", len(suits))
	}
	if len(ranks) != 13 {
		t.Fatalf("expected 13 ranks, got %d", len(ranks))
	}
}

// ✅ 相同种子洗出相同牌序，不同种子不同
func TestShuffleSeeded(t *testing.T) {
	d1 := NewShuffledDeck(rand.New(rand.NewSource(42)))
	d2 := NewShuffledDeck(rand.New(rand.NewSource(42)))
	for i := range d1 {
		if d1[i] != d2[i] {
			t.Fatalf("expected identical decks for same seed")
		}
	}

	d3 := NewShuffledDeck(rand.New(rand.NewSource(99)))
	diff := false
	for i := range d1 {
		if d1[i] != d3[i] {
			diff = true
			break
		}
	}
	if !diff {
		t.Fatalf("expected deck with different seed to differ")
	}
}

// ✅ 末位牌分布不应固定（粗略均匀性检查）
func TestShuffleLastCardNotFixed(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	counts := make(map[Card]int)
	const rounds = 5200
	for i := 0; i < rounds; i++ {
		d := NewShuffledDeck(rnd)
		counts[d[51]]++
	}
	if len(counts) < 50 {
		t.Fatalf("last card only took %d distinct values", len(counts))
	}
	for c, n := range counts {
		// 期望 100 次，给足余量
		if n > 200 {
			t.Fatalf("card %v landed last %d times out of %d", c, n, rounds)
		}
	}
}

// ✅ 烧牌 + 发公共牌
func TestDealStreet(t *testing.T) {
	d := NewShuffledDeck(rand.New(rand.NewSource(2)))
	top := d[1]

	flop, err := d.DealStreet(3)
	if err != nil {
		t.Fatalf("flop: %v", err)
	}
	turn, _ := d.DealStreet(1)
	river, _ := d.DealStreet(1)

	if len(flop) != 3 || len(turn) != 1 || len(river) != 1 {
		t.Fatalf("expected 3+1+1 cards, got %d %d %d", len(flop), len(turn), len(river))
	}
	if flop[0] != top {
		t.Fatalf("first flop card should follow the burn card")
	}
	all := append(append(flop, turn...), river...)
	if hasDuplicates(all) {
		t.Fatalf("community cards contain duplicates")
	}
	if len(d) != 52-8 {
		t.Fatalf("expected 44 remaining, got %d", len(d))
	}
}

func TestPopEmptyDeck(t *testing.T) {
	var d Deck
	if _, err := d.Pop(); err != ErrDeckEmpty {
		t.Fatalf("expected ErrDeckEmpty, got %v", err)
	}
}

func TestParseAndCode(t *testing.T) {
	for _, s := range []string{"As", "Td", "2c", "Kh", "9s"} {
		c, err := Parse(s)
		if err != nil {
			t.Fatalf("parse %s: %v", s, err)
		}
		if c.Code() != s {
			t.Fatalf("round trip %s -> %s", s, c.Code())
		}
	}
	if c, _ := Parse("10h"); c.Rank != 10 || c.Suit != Hearts {
		t.Fatalf("10h parsed as %v", c)
	}
	if _, err := Parse("1x"); err == nil {
		t.Fatalf("expected error for bad card")
	}
}

func TestCommitDeterministic(t *testing.T) {
	d := NewShuffledDeck(rand.New(rand.NewSource(3)))
	salt := []byte("salt")
	a := Commit(d, salt)
	b := Commit(d.Clone(), salt)
	if a != b {
		t.Fatalf("commitment should be deterministic")
	}
	if Commit(d, []byte("other")) == a {
		t.Fatalf("different salt should change commitment")
	}
	if len(a) != 66 {
		t.Fatalf("expected 0x-prefixed 32 byte hex, got %q", a)
	}
}
