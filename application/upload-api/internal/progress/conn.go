package progress

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message 推送给客户端的消息
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	TypeSnapshot = "snapshot"
	TypeEvent    = "event"
)

// Conn 订阅单个会话的 WebSocket 连接
type Conn struct {
	ws            *websocket.Conn
	cooperativeId uint64
	uploadId      string

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn, cooperativeId uint64, uploadId string) *Conn {
	return &Conn{
		ws:            ws,
		cooperativeId: cooperativeId,
		uploadId:      uploadId,
		done:          make(chan struct{}),
	}
}

func (c *Conn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

// writeSnapshot 持有写锁读取并发送快照，期间分发的事件等待快照发出
func (c *Conn) writeSnapshot(fn SnapshotFunc) (bool, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	snapshot, final, err := fn()
	if err != nil {
		return false, err
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return final, err
	}
	return final, c.ws.WriteJSON(Message{Type: TypeSnapshot, Data: snapshot})
}

func (c *Conn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close 发送关闭帧后断开，可重复调用
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// readLoop 丢弃客户端消息，只处理控制帧，连接断开时返回
func (c *Conn) readLoop() {
	c.ws.SetReadLimit(512)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.NextReader(); err != nil {
			return
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
