package websocket

import "encoding/json"

type OutgoingMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// IncomingMessage Data 保留原始 JSON，由游戏层按事件解码
type IncomingMessage struct {
	From  string          `json:"from"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode 把 Data 解到 v；没有 Data 时保持 v 不变
func (m IncomingMessage) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// ErrorMessage 发给单个连接的错误事件
func ErrorMessage(event string, err error) OutgoingMessage {
	return OutgoingMessage{
		Event: "error",
		Data:  map[string]any{"event": event, "error": err.Error()},
	}
}
