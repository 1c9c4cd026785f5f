package cards

import (
	crand "crypto/rand"
	"errors"
	"math/rand"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

var ErrDeckEmpty = errors.New("deck is empty")

// Deck 从头部弹牌，只在服务端保存，不下发客户端
type Deck []Card

// NewOrderedDeck 52 张未洗的牌
func NewOrderedDeck() Deck {
	deck := make(Deck, 0, 52)
	for s := Clubs; s <= Spades; s++ {
		for r := 2; r <= Ace; r++ {
			deck = append(deck, Card{Suit: s, Rank: r})
		}
	}
	return deck
}

// NewShuffledDeck Fisher–Yates 均匀洗牌
func NewShuffledDeck(rnd *rand.Rand) Deck {
	deck := NewOrderedDeck()
	for i := len(deck) - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}

func (d *Deck) Pop() (Card, error) {
	if len(*d) == 0 {
		return Card{}, ErrDeckEmpty
	}
	c := (*d)[0]
	*d = (*d)[1:]
	return c, nil
}

// Burn 弃掉顶牌
func (d *Deck) Burn() error {
	_, err := d.Pop()
	return err
}

// DealStreet 先烧一张，再发 n 张公共牌
func (d *Deck) DealStreet(n int) ([]Card, error) {
	if err := d.Burn(); err != nil {
		return nil, err
	}
	out := make([]Card, 0, n)
	for i := 0; i < n; i++ {
		c, err := d.Pop()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (d Deck) Clone() Deck {
	if d == nil {
		return nil
	}
	out := make(Deck, len(d))
	copy(out, d)
	return out
}

func (d Deck) String() string {
	parts := make([]string, len(d))
	for i, c := range d {
		parts[i] = c.Code()
	}
	return strings.Join(parts, " ")
}

// Commit 计算 keccak256(salt || deck)，开局公布、摊牌后在牌谱里公开 salt 与牌序以供核验
func Commit(deck Deck, salt []byte) string {
	buf := make([]byte, 0, len(salt)+len(deck)*2)
	buf = append(buf, salt...)
	for _, c := range deck {
		buf = append(buf, byte(c.Suit), byte(c.Rank))
	}
	return crypto.Keccak256Hash(buf).Hex()
}

// Dealer 持有随机源，每手牌产出新的洗好的牌堆
type Dealer struct {
	rnd *rand.Rand
}

func NewDealer(seed int64) *Dealer {
	return &Dealer{rnd: rand.New(rand.NewSource(seed))}
}

func (d *Dealer) NewDeck() Deck {
	return NewShuffledDeck(d.rnd)
}

// Salt 牌序承诺用的随机盐，取自 crypto/rand，不随洗牌种子可预测
func (d *Dealer) Salt() []byte {
	b := make([]byte, 16)
	if _, err := crand.Read(b); err != nil {
		d.rnd.Read(b)
	}
	return b
}
