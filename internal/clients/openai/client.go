// Package openai 提供语音模型实时接口的WebSocket客户端
package openai

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

// 默认参数
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultMaxMessageSize   = 8 * 1024 * 1024
)

// ErrClosed 连接已关闭
var ErrClosed = errors.New("模型连接已关闭")

// Config 模型客户端配置
type Config struct {
	URL              string        // WebSocket地址，含model查询参数
	APIKey           string        // Bearer令牌，为空时不发送Authorization
	Attempts         int           // 建连最大尝试次数
	BackoffBase      time.Duration // 首次重试间隔
	BackoffMax       time.Duration // 最大重试间隔
	HandshakeTimeout time.Duration // 握手超时
	WriteTimeout     time.Duration // 单次写超时
	MaxMessageSize   int64         // 单条消息大小上限
}

func (c *Config) defaults() {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 250 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 2 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
}

// Dialer 带重试的模型连接器，可被多个会话共享
type Dialer struct {
	cfg    Config
	logger *slog.Logger
	dialer websocket.Dialer
}

// NewDialer 创建连接器
func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{
		cfg:    cfg,
		logger: logger,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
}

// Dial 建立模型连接，失败时按指数退避重试，最多尝试Attempts次。
// 鉴权失败等4xx握手错误不重试。
func (d *Dialer) Dial(ctx context.Context) (*Conn, error) {
	headers := http.Header{}
	if d.cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+d.cfg.APIKey)
	}
	headers.Set("OpenAI-Beta", "realtime=v1")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.BackoffBase
	b.MaxInterval = d.cfg.BackoffMax

	attempt := 0
	ws, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
		attempt++
		conn, resp, err := d.dialer.DialContext(ctx, d.cfg.URL, headers)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, backoff.Permanent(fmt.Errorf("模型握手被拒绝(HTTP %d): %w", resp.StatusCode, err))
			}
			return nil, fmt.Errorf("连接模型失败: %w", err)
		}
		return conn, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(d.cfg.Attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			d.logger.Warn("模型连接失败，准备重试", "attempt", attempt, "next", next, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	ws.SetReadLimit(d.cfg.MaxMessageSize)
	d.logger.Debug("已连接模型", "url", d.cfg.URL, "attempts", attempt)
	return &Conn{conn: ws, writeTimeout: d.cfg.WriteTimeout}, nil
}

// Conn 单个模型连接。Send可并发调用，Read只能由一个goroutine调用。
type Conn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
}

// Send 将消息序列化为JSON后发送
func (c *Conn) Send(message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("消息序列化失败: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("设置写超时失败: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("消息发送失败: %w", err)
	}
	return nil
}

// Read 读取下一条文本消息
func (c *Conn) Read() ([]byte, error) {
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

// Close 发送关闭帧并关闭连接，可重复调用
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
