package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ai_phone_bridge/internal/config"
	"ai_phone_bridge/internal/metrics"
	"ai_phone_bridge/internal/protocol/twilio"
)

const (
	testStreamSid = "MZ0001"
	testCallSid   = "CA0001"
)

var errFakeClosed = errors.New("fake connection closed")

// fakeCarrier 模拟运营商连接，记录全部出站消息
type fakeCarrier struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu  sync.Mutex
	out []twilio.OutboundMessage
}

func newFakeCarrier() *fakeCarrier {
	return &fakeCarrier{in: make(chan []byte, 256), closed: make(chan struct{})}
}

func (c *fakeCarrier) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errFakeClosed
	}
}

func (c *fakeCarrier) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return errFakeClosed
	default:
	}
	msg, ok := v.(twilio.OutboundMessage)
	if !ok {
		return fmt.Errorf("unexpected message %T", v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, msg)
	return nil
}

func (c *fakeCarrier) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeCarrier) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeCarrier) sent(event string) []twilio.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []twilio.OutboundMessage
	for _, m := range c.out {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

// events 按发送顺序返回出站事件名
func (c *fakeCarrier) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.out))
	for _, m := range c.out {
		names = append(names, m.Event)
	}
	return names
}

func (c *fakeCarrier) push(t *testing.T, data []byte, err error) {
	t.Helper()
	require.NoError(t, err)
	c.in <- data
}

func (c *fakeCarrier) start(t *testing.T, params map[string]string) {
	data, err := twilio.EncodeStart(testStreamSid, testCallSid, params)
	c.push(t, data, err)
}

func (c *fakeCarrier) media(t *testing.T, frames int, sample byte) {
	for i := 0; i < frames; i++ {
		payload := make([]byte, 160)
		for j := range payload {
			payload[j] = sample
		}
		data, err := twilio.EncodeMedia(testStreamSid, i+1, int64(i*20), payload)
		c.push(t, data, err)
	}
}

// paced 按20ms节奏发送媒体帧，模拟真实通话
func (c *fakeCarrier) paced(t *testing.T, frames int, sample byte) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; i < frames; i++ {
		<-ticker.C
		c.media(t, 1, sample)
	}
}

func (c *fakeCarrier) mark(t *testing.T, name string) {
	data, err := twilio.EncodeMark(testStreamSid, name)
	c.push(t, data, err)
}

func (c *fakeCarrier) stop(t *testing.T) {
	data, err := twilio.EncodeStop(testStreamSid, testCallSid)
	c.push(t, data, err)
}

// fakeModel 模拟模型连接，记录全部上行消息
type fakeModel struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent []any
}

// newFakeModel 创建模型连接，ack为true时预先放入session.updated
func newFakeModel(ack bool) *fakeModel {
	m := &fakeModel{in: make(chan []byte, 256), closed: make(chan struct{})}
	if ack {
		m.push(`{"type":"session.updated","session":{"voice":"alloy","input_audio_format":"g711_ulaw","output_audio_format":"g711_ulaw"}}`)
	}
	return m
}

func (m *fakeModel) Send(v any) error {
	select {
	case <-m.closed:
		return errFakeClosed
	default:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, v)
	return nil
}

func (m *fakeModel) Read() ([]byte, error) {
	select {
	case data := <-m.in:
		return data, nil
	case <-m.closed:
		return nil, errFakeClosed
	}
}

func (m *fakeModel) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *fakeModel) push(msg string) {
	m.in <- []byte(msg)
}

func (m *fakeModel) audio(responseID, itemID string, mulaw []byte) {
	m.push(fmt.Sprintf(`{"type":"response.audio.delta","response_id":%q,"item_id":%q,"delta":%q}`,
		responseID, itemID, base64.StdEncoding.EncodeToString(mulaw)))
}

// count 统计指定type的上行消息数
func (m *fakeModel) count(typ string) int {
	return len(m.ofType(typ))
}

func (m *fakeModel) ofType(typ string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, v := range m.sent {
		data, err := json.Marshal(v)
		if err != nil {
			continue
		}
		var head struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &head) == nil && head.Type == typ {
			out = append(out, v)
		}
	}
	return out
}

// fakeDialer 依次返回预置的连接，用完后返回错误
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeModel
	dials int
}

func newFakeDialer(conns ...*fakeModel) *fakeDialer {
	return &fakeDialer{conns: conns}
}

func (d *fakeDialer) Dial(ctx context.Context) (ModelConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errors.New("model unavailable")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Turn.SilenceThreshold = 100 * time.Millisecond
	cfg.Turn.MaxBuffered = 2 * time.Second
	cfg.Turn.PollInterval = 10 * time.Millisecond
	cfg.Call.PostGreetingMute = 0
	cfg.Call.StartTimeout = 2 * time.Second
	cfg.Call.DrainGrace = 20 * time.Millisecond
	cfg.Model.ConfigTimeout = 300 * time.Millisecond
	return cfg
}

func testDeps(dialer ModelDialer) Deps {
	return Deps{
		Dialer:  dialer,
		Metrics: metrics.New(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// runSession 后台运行会话，返回会话与结果通道
func runSession(t *testing.T, cfg *config.Config, carrier CarrierConn, deps Deps) (*Session, <-chan error) {
	t.Helper()
	s, err := NewSession("test", "127.0.0.1", cfg, carrier, deps)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background())
		close(done)
	}()
	t.Cleanup(func() {
		s.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
	return s, done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("会话未在预期时间内结束")
		return nil
	}
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, 2*time.Second, 5*time.Millisecond,
		"期望状态 %s，实际 %s", want, s.State())
}
