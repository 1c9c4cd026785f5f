package engine

import (
	"time"

	"CardRoom/internal/game/table"
	"CardRoom/internal/lobby"
	"CardRoom/internal/websocket"
)

// flush 每个事件处理完后调用：状态有变化则逐人下发快照，再发出排队的事件
func (e *Engine) flush() {
	if e.dirty {
		e.dirty = false
		e.broadcast()
		e.publish()
	}
	if len(e.outbox) == 0 {
		return
	}
	to := e.recipients()
	for _, msg := range e.outbox {
		e.Hub.BroadcastToPlayers(to, msg)
	}
	e.outbox = e.outbox[:0]
}

// broadcast 每位入座真人拿自己的视角，旁观者共用一份旁观视角
func (e *Engine) broadcast() {
	now := e.now()
	for _, seat := range e.state.Seats {
		if seat == nil || seat.IsBot || seat.Disconnected {
			continue
		}
		e.Hub.SendToPlayer(seat.AccountID, stateMessage(e.state.ViewFor(seat.Index, now)))
	}
	if len(e.watchers) == 0 {
		return
	}
	spectators := make([]string, 0, len(e.watchers))
	for account := range e.watchers {
		spectators = append(spectators, account)
	}
	e.Hub.BroadcastToPlayers(spectators, stateMessage(e.state.SpectatorView(now)))
}

func (e *Engine) sendState(account string) {
	e.Hub.SendToPlayer(account, stateMessage(e.viewFor(account)))
}

func (e *Engine) viewFor(account string) table.View {
	if seat := e.state.SeatOf(account); seat != nil {
		return e.state.ViewFor(seat.Index, e.now())
	}
	return e.state.SpectatorView(e.now())
}

func stateMessage(v table.View) websocket.OutgoingMessage {
	return websocket.OutgoingMessage{Event: EventTableState, Data: v}
}

// recipients 入座真人加旁观者
func (e *Engine) recipients() []string {
	out := make([]string, 0, len(e.state.Seats)+len(e.watchers))
	for _, seat := range e.state.Seats {
		if seat != nil && !seat.IsBot {
			out = append(out, seat.AccountID)
		}
	}
	for account := range e.watchers {
		out = append(out, account)
	}
	return out
}

// publish 生成大厅摘要并原子替换
func (e *Engine) publish() {
	humans, bots := e.state.Occupied()
	phase := string(e.state.Phase)
	if e.faulted {
		phase = "closed"
	}
	e.summary.Store(&lobby.TableSummary{
		ID:         e.cfg.ID,
		Name:       e.cfg.Name,
		Phase:      phase,
		MaxSeats:   e.cfg.MaxSeats,
		Humans:     humans,
		Bots:       bots,
		Spectators: len(e.watchers),
		SmallBlind: e.cfg.SmallBlind,
		BigBlind:   e.cfg.BigBlind,
		MinBuyIn:   e.cfg.MinBuyIn,
		MaxBuyIn:   e.cfg.MaxBuyIn,
		HandNumber: e.state.HandNumber,
		UpdatedAt:  time.Now(),
	})
}
