package websocket

import (
	"sync"

	"CardRoom/internal/utils"
)

type HubInterface interface {
	BroadcastToPlayers(addrs []string, msg OutgoingMessage)
	ClientByAddress(addr string) (*Client, bool)
	SendToPlayer(addr string, msg OutgoingMessage)
	Close()
}

// 连接生命周期事件，和玩家消息走同一个入口
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

const queueSize = 256

type Hub struct {
	clients    map[string]*Client // address -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastReq
	sendOne    chan sendReq
	incoming   chan IncomingMessage
	// OnIncoming 在独立的分发协程里调用，可以安全地回调 Hub 的发送方法
	OnIncoming func(IncomingMessage)
	quit       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
}

type broadcastReq struct {
	Addresses []string
	Message   OutgoingMessage
}

type sendReq struct {
	Address string
	Message OutgoingMessage
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client, queueSize),
		broadcast:  make(chan broadcastReq, queueSize),
		sendOne:    make(chan sendReq, queueSize),
		incoming:   make(chan IncomingMessage, queueSize),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	utils.Log.Info("Hub started")
	go h.dispatch()

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			old := h.clients[c.Address]
			h.clients[c.Address] = c
			n := len(h.clients)
			h.mu.Unlock()
			if old != nil {
				// 同一账号的新连接顶掉旧连接
				old.kick("connected elsewhere")
				utils.Log.Info("Hub.replace", "address", c.Address)
			}
			utils.Log.Debug("Hub.register", "address", c.Address, "clients", n)
			h.notify(IncomingMessage{From: c.Address, Event: EventConnect})

		case c := <-h.unregister:
			h.mu.Lock()
			cur, ok := h.clients[c.Address]
			if ok && cur == c {
				delete(h.clients, c.Address)
			}
			n := len(h.clients)
			h.mu.Unlock()
			if ok && cur == c {
				c.kick("")
				utils.Log.Debug("Hub.unregister", "address", c.Address, "clients", n)
				h.notify(IncomingMessage{From: c.Address, Event: EventDisconnect})
			}

		case req := <-h.broadcast:
			h.mu.RLock()
			for _, addr := range req.Addresses {
				if client, ok := h.clients[addr]; ok {
					client.enqueue(req.Message)
				}
			}
			h.mu.RUnlock()

		case req := <-h.sendOne:
			h.mu.RLock()
			if client, ok := h.clients[req.Address]; ok {
				client.enqueue(req.Message)
			}
			h.mu.RUnlock()

		case <-h.quit:
			h.mu.Lock()
			for addr, c := range h.clients {
				c.kick("")
				delete(h.clients, addr)
			}
			h.mu.Unlock()
			utils.Log.Info("Hub stopped")
			return
		}
	}
}

// dispatch 把玩家消息转发给游戏层，与 Run 分开，游戏层回调 Hub 时不会互相等待
func (h *Hub) dispatch() {
	for {
		select {
		case msg := <-h.incoming:
			if h.OnIncoming != nil {
				h.OnIncoming(msg)
			}
		case <-h.quit:
			return
		}
	}
}

func (h *Hub) notify(msg IncomingMessage) {
	select {
	case h.incoming <- msg:
	default:
		go func() {
			select {
			case h.incoming <- msg:
			case <-h.quit:
			}
		}()
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Broadcast to multiple players
func (h *Hub) BroadcastToPlayers(addrs []string, msg OutgoingMessage) {
	if len(addrs) == 0 {
		return
	}
	select {
	case h.broadcast <- broadcastReq{Addresses: addrs, Message: msg}:
	case <-h.quit:
	}
}

// Send to a single player (safe concurrent)
func (h *Hub) SendToPlayer(addr string, msg OutgoingMessage) {
	select {
	case h.sendOne <- sendReq{Address: addr, Message: msg}:
	case <-h.quit:
	}
}

// Lookup for a player client by address
func (h *Hub) ClientByAddress(addr string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[addr]
	return c, ok
}

// Count 当前在线连接数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}
