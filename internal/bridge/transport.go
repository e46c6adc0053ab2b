package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// CarrierConn 运营商侧连接
type CarrierConn interface {
	// ReadMessage 读取下一条文本消息，连接关闭时返回错误
	ReadMessage() ([]byte, error)
	// WriteJSON 发送一条消息，可并发调用
	WriteJSON(v any) error
	Close() error
}

// ModelConn 模型侧连接
type ModelConn interface {
	Send(v any) error
	Read() ([]byte, error)
	Close() error
}

// ModelDialer 建立模型连接，实现自行负责有限次数的重试
type ModelDialer interface {
	Dial(ctx context.Context) (ModelConn, error)
}

// DialFunc 函数形式的ModelDialer
type DialFunc func(ctx context.Context) (ModelConn, error)

// Dial 实现ModelDialer
func (f DialFunc) Dial(ctx context.Context) (ModelConn, error) {
	return f(ctx)
}

// wsCarrier 基于gorilla连接的CarrierConn
type wsCarrier struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewCarrierConn 包装运营商WebSocket连接，每次写入都带超时
func NewCarrierConn(conn *websocket.Conn, writeTimeout time.Duration) CarrierConn {
	return &wsCarrier{conn: conn, writeTimeout: writeTimeout}
}

func (c *wsCarrier) ReadMessage() ([]byte, error) {
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *wsCarrier) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *wsCarrier) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
