package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"CardRoom/internal/utils"

	"github.com/gorilla/websocket"
)

// EventReplaced 同一账号在别处连上，旧连接收到这条后被关闭
const EventReplaced = "replaced"

var errNoEvent = errors.New("missing event")

type Client struct {
	Address string
	Conn    *websocket.Conn
	Send    chan OutgoingMessage
	Hub     *Hub
}

const (
	writeWait      = 10 * time.Second    // 单次写超时
	pongWait       = 60 * time.Second    // 读超时
	pingPeriod     = (pongWait * 9) / 10 // 心跳发送周期
	maxMessageSize = 1024 * 4            // 最大4KB
	sendBuffer     = 32                  // 每个连接的待发队列
)

func NewClient(hub *Hub, addr string, conn *websocket.Conn) *Client {
	return &Client{
		Address: addr,
		Conn:    conn,
		Send:    make(chan OutgoingMessage, sendBuffer),
		Hub:     hub,
	}
}

// enqueue 不阻塞：待发队列满了就丢弃这条，下一次全量快照会补上。
// 只在 Hub.Run 协程里调用，Send 也只在那里关闭
func (c *Client) enqueue(msg OutgoingMessage) bool {
	select {
	case c.Send <- msg:
		return true
	default:
		utils.Log.Warn("client send buffer full, dropping", "address", c.Address, "event", msg.Event)
		return false
	}
}

// kick 关闭待发队列，写协程随之发出 close 帧退出。
// reason 非空时先补一条 replaced 通知
func (c *Client) kick(reason string) {
	if reason != "" {
		c.enqueue(OutgoingMessage{Event: EventReplaced, Data: map[string]any{"reason": reason}})
	}
	close(c.Send)
}

// parseIncoming 解析一帧玩家消息，发送方以连接上的地址为准
func parseIncoming(from string, raw []byte) (IncomingMessage, error) {
	var msg IncomingMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return IncomingMessage{}, err
	}
	if msg.Event == "" {
		return IncomingMessage{}, errNoEvent
	}
	msg.From = from
	return msg, nil
}

// 写协程
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Hub.leave(c)
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 下线或被新连接顶掉
				_ = c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteJSON(msg); err != nil {
				utils.Log.Debug("websocket write failed", "address", c.Address, "err", err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// 读协程：玩家消息交给 Hub 的分发协程；格式错误只回一条 error，不断开
func (c *Client) readPump() {
	defer func() {
		c.Hub.leave(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				utils.Log.Debug("websocket closed", "address", c.Address, "err", err)
			}
			return
		}

		msg, err := parseIncoming(c.Address, raw)
		if err != nil {
			c.Hub.SendToPlayer(c.Address, ErrorMessage("", err))
			continue
		}

		select {
		case c.Hub.incoming <- msg:
		case <-c.Hub.quit:
			return
		}
	}
}
