package table

import (
	"time"

	"CardRoom/internal/game/cards"
)

type SeatView struct {
	Index        int          `json:"index"`
	Name         string       `json:"name"`
	Avatar       string       `json:"avatar,omitempty"`
	IsBot        bool         `json:"isBot"`
	Chips        int64        `json:"chips"`
	Bet          int64        `json:"bet"`
	TotalBet     int64        `json:"totalBet"`
	Folded       bool         `json:"folded"`
	AllIn        bool         `json:"allIn"`
	Disconnected bool         `json:"disconnected"`
	SittingOut   bool         `json:"sittingOut"`
	InHand       bool         `json:"inHand"`
	LastAction   string       `json:"lastAction,omitempty"`
	AutoFolded   bool         `json:"autoFolded,omitempty"`
	HoleCount    int          `json:"holeCount"`
	Hole         []cards.Card `json:"hole,omitempty"`
	HandDesc     string       `json:"handDesc,omitempty"`
}

// View 下发给客户端的快照，永远不含牌堆
type View struct {
	TableID        string       `json:"tableId"`
	Phase          Phase        `json:"phase"`
	Seats          []*SeatView  `json:"seats"`
	Community      []cards.Card `json:"community"`
	Pot            int64        `json:"pot"`
	Pots           []Pot        `json:"pots,omitempty"`
	CurrentBet     int64        `json:"currentBet"`
	MinRaise       int64        `json:"minRaise"`
	Dealer         int          `json:"dealer"`
	SmallBlindSeat int          `json:"smallBlindSeat"`
	BigBlindSeat   int          `json:"bigBlindSeat"`
	ActionSeat     int          `json:"actionSeat"`
	SmallBlind     int64        `json:"smallBlind"`
	BigBlind       int64        `json:"bigBlind"`
	HandNumber     int64        `json:"handNumber"`
	Deadline       int64        `json:"deadline"`
	ServerTime     int64        `json:"serverTime"`
	DeckCommitment string       `json:"deckCommitment,omitempty"`
	Winners        []Award      `json:"winners,omitempty"`
	YourSeat       int          `json:"yourSeat"`
}

// ViewFor 个人视角：自己的底牌可见，他人底牌只在摊牌亮出时可见
func (s *State) ViewFor(seat int, now time.Time) View {
	v := View{
		TableID:        s.TableID,
		Phase:          s.Phase,
		Seats:          make([]*SeatView, len(s.Seats)),
		Community:      append([]cards.Card{}, s.Community...),
		Pot:            s.PotTotal(),
		CurrentBet:     s.CurrentBet,
		MinRaise:       s.MinRaise,
		Dealer:         s.Dealer,
		SmallBlindSeat: s.SmallBlindSeat,
		BigBlindSeat:   s.BigBlindSeat,
		ActionSeat:     s.ActionSeat,
		SmallBlind:     s.SmallBlind,
		BigBlind:       s.BigBlind,
		HandNumber:     s.HandNumber,
		Deadline:       s.Deadline,
		ServerTime:     now.UnixMilli(),
		DeckCommitment: s.DeckCommitment,
		Winners:        append([]Award(nil), s.Winners...),
		YourSeat:       seat,
	}
	if s.Phase == PhaseShowdown {
		v.Pots = s.Pots
	}
	for i, st := range s.Seats {
		if st == nil {
			continue
		}
		sv := &SeatView{
			Index:        st.Index,
			Name:         st.Name,
			Avatar:       st.Avatar,
			IsBot:        st.IsBot,
			Chips:        st.Chips,
			Bet:          st.Bet,
			TotalBet:     st.TotalBet,
			Folded:       st.Folded,
			AllIn:        st.AllIn,
			Disconnected: st.Disconnected,
			SittingOut:   st.SittingOut,
			InHand:       st.InHand,
			LastAction:   st.LastAction,
			AutoFolded:   st.AutoFolded,
			HoleCount:    len(st.Hole),
		}
		showdown := s.Phase == PhaseShowdown && st.Shown
		if i == seat || showdown {
			sv.Hole = append([]cards.Card(nil), st.Hole...)
		}
		if showdown {
			sv.HandDesc = st.HandDesc
		}
		v.Seats[i] = sv
	}
	return v
}

// SpectatorView 旁观者视角，YourSeat = -1
func (s *State) SpectatorView(now time.Time) View {
	return s.ViewFor(-1, now)
}
