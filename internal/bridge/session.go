// Package bridge 在运营商媒体流与语音模型之间双向转发实时音频。
//
// 每通电话对应一个Session，它同时持有两条WebSocket连接，负责格式转换、
// 轮次检测、打断处理以及模型断线重连。
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ai_phone_bridge/internal/audio"
	"ai_phone_bridge/internal/config"
	"ai_phone_bridge/internal/customers"
	"ai_phone_bridge/internal/metrics"
	"ai_phone_bridge/internal/playback"
	"ai_phone_bridge/internal/protocol/realtime"
	"ai_phone_bridge/internal/protocol/twilio"
	"ai_phone_bridge/internal/turn"
)

// ApologyMark 模型永久不可用时发给运营商的标记名
const ApologyMark = "apology"

// 丢帧原因
const (
	dropNotStarted    = "not_started"
	dropModelNotReady = "model_not_ready"
	dropMuted         = "muted"
	dropInvalidAudio  = "invalid_audio"
	dropSendFailed    = "send_failed"
	dropBargeIn       = "barge_in"
	dropNoStream      = "no_stream"
	dropUnexpected    = "unexpected_state"
)

// Deps 会话依赖的外部组件
type Deps struct {
	Dialer    ModelDialer
	Customers *customers.Directory
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Info 会话快照
type Info struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	StreamSid string    `json:"stream_sid,omitempty"`
	CallSid   string    `json:"call_sid,omitempty"`
	Remote    string    `json:"remote"`
	StartedAt time.Time `json:"started_at"`
}

// Session 一通电话的桥接会话
type Session struct {
	id        string
	remote    string
	cfg       *config.Config
	deps      Deps
	carrier   CarrierConn
	conv      *audio.Converter
	detector  *turn.Detector
	tracker   *playback.Tracker
	createdAt time.Time

	mu     sync.Mutex
	call   callState
	model  ModelConn
	logger *slog.Logger
	cancel context.CancelFunc
	closed bool

	// turnMu 串行化提交与stop处理，stop之后不会再有提交
	turnMu sync.Mutex

	// playMu 串行化向运营商的播放写入与打断，锁存打断标志与播放状态在同一临界区内变化。
	// 加锁顺序: playMu, mu
	playMu sync.Mutex

	startedCh chan struct{}
	startOnce sync.Once
	readers   sync.WaitGroup
}

// NewSession 创建会话，carrier由调用方在升级HTTP连接后传入
func NewSession(id, remote string, cfg *config.Config, carrier CarrierConn, deps Deps) (*Session, error) {
	if deps.Dialer == nil {
		return nil, errors.New("缺少模型连接器")
	}
	conv, err := audio.NewConverter(audio.Format(cfg.Model.AudioFormat), cfg.Model.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("创建音频转换器失败: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Session{
		id:      id,
		remote:  remote,
		cfg:     cfg,
		deps:    deps,
		carrier: carrier,
		conv:    conv,
		detector: turn.NewDetector(turn.Config{
			SilenceThreshold: cfg.Turn.SilenceThreshold,
			MaxBuffered:      cfg.Turn.MaxBuffered,
			Duration:         conv.CarrierDuration,
		}),
		tracker:   playback.NewTracker(),
		createdAt: time.Now(),
		logger:    deps.Logger.With("session_id", id, "remote", remote),
		startedCh: make(chan struct{}),
	}
	s.call.state = StateConnecting
	return s, nil
}

// ID 返回会话ID
func (s *Session) ID() string {
	return s.id
}

// State 返回当前状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.call.state
}

// Info 返回会话快照
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.id,
		State:     s.call.state.String(),
		StreamSid: s.call.streamSid,
		CallSid:   s.call.callSid,
		Remote:    s.remote,
		StartedAt: s.createdAt,
	}
}

// Close 请求结束会话，Run随后返回
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run 运行会话直到任一侧结束。运营商正常stop时返回nil。
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	if s.closed {
		cancel()
	}
	s.mu.Unlock()

	s.deps.Metrics.RecordSessionStart()
	s.log().Info("通话会话开始")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(s.guard("carrier", func() error { return s.carrierLoop(gctx) }))
	g.Go(s.guard("model", func() error { return s.modelLoop(gctx) }))
	g.Go(s.guard("turn", func() error { return s.pollTurns(gctx) }))
	g.Go(s.guard("watchdog", func() error { return s.watchStart(gctx) }))
	g.Go(func() error {
		<-gctx.Done()
		s.closeTransports()
		return nil
	})

	err := g.Wait()
	s.finish(err)
	if errors.Is(err, errStreamStopped) {
		return nil
	}
	return err
}

// guard 将goroutine中的panic转为错误，避免影响其他会话
func (s *Session) guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log().Error("会话goroutine异常", "goroutine", name, "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("%s goroutine panic: %v", name, r)
			}
		}()
		return fn()
	}
}

func (s *Session) log() *slog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// transition 执行状态转换，非法转换记录日志后忽略
func (s *Session) transition(to State) bool {
	s.mu.Lock()
	from := s.call.state
	ok := s.call.transition(to)
	logger := s.logger
	s.mu.Unlock()

	if !ok {
		if from != to {
			logger.Debug("忽略非法状态转换", "from", from.String(), "to", to.String())
		}
		return false
	}
	logger.Debug("状态转换", "from", from.String(), "to", to.String())
	return true
}

func (s *Session) activeAndReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.call.state == StateActive && s.call.modelReady
}

func (s *Session) ending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.call.state == StateDraining || s.call.state == StateClosed
}

func (s *Session) closeTransports() {
	s.mu.Lock()
	model := s.model
	s.model = nil
	s.mu.Unlock()

	if model != nil {
		_ = model.Close()
	}
	_ = s.carrier.Close()
}

func (s *Session) finish(err error) {
	s.mu.Lock()
	if s.call.state != StateClosed {
		s.call.transition(StateClosed)
	}
	s.mu.Unlock()

	s.closeTransports()
	s.readers.Wait()

	reason := endReason(err)
	s.deps.Metrics.RecordSessionEnd(reason, time.Since(s.createdAt))

	logger := s.log().With("reason", reason, "duration", time.Since(s.createdAt).Round(time.Millisecond))
	if reason == "stop" || reason == "shutdown" {
		logger.Info("通话会话结束")
	} else {
		logger.Warn("通话会话异常结束", "error", err)
	}
}

// watchStart 超时未收到start事件时结束会话
func (s *Session) watchStart(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.Call.StartTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-s.startedCh:
		return nil
	case <-timer.C:
		s.log().Warn("未收到start事件，结束会话", "timeout", s.cfg.Call.StartTimeout)
		return ErrStartTimeout
	}
}

// pollTurns 定时检查是否到达轮次边界。服务端VAD模式下不运行。
func (s *Session) pollTurns(ctx context.Context) error {
	if s.cfg.Model.ServerVAD() {
		return nil
	}
	ticker := time.NewTicker(turn.ClampPollInterval(s.cfg.Turn.PollInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.turnMu.Lock()
			if s.activeAndReady() && s.detector.Check(now) {
				s.commit("silence")
			}
			s.turnMu.Unlock()
		}
	}
}

// commit 提交输入缓冲区并请求回复，调用方持有turnMu
func (s *Session) commit(reason string) {
	if err := s.sendModel(realtime.NewInputAudioCommit()); err != nil {
		s.log().Warn("提交输入缓冲区失败", "reason", reason, "error", err)
		return
	}
	s.deps.Metrics.RecordCommit()
	if !s.cfg.Model.ServerVAD() {
		if err := s.sendModel(realtime.NewResponseCreate()); err != nil {
			s.log().Warn("请求回复失败", "error", err)
			return
		}
	}
	s.log().Debug("已提交输入缓冲区", "reason", reason)
}

// bargeIn 来电方在助手播放时开口，每轮回复最多触发一次。
// clear与播放帧在playMu下串行，clear之后不会再有本轮的音频帧。
func (s *Session) bargeIn(source string) {
	s.playMu.Lock()
	if !s.tracker.IsSpeaking() {
		s.playMu.Unlock()
		return
	}
	s.mu.Lock()
	if s.call.state != StateActive || !s.call.latchBargeIn() {
		s.mu.Unlock()
		s.playMu.Unlock()
		return
	}
	sid := s.call.streamSid
	logger := s.logger
	s.mu.Unlock()

	item := s.tracker.Item()
	played := s.tracker.DeliveredMs()
	s.tracker.OnResponseEnded()
	if sid != "" {
		if err := s.carrier.WriteJSON(twilio.NewClear(sid)); err != nil {
			logger.Warn("发送clear失败", "error", err)
		}
	}
	s.playMu.Unlock()

	s.deps.Metrics.RecordBargeIn()
	logger.Info("来电方打断助手", "source", source, "item_id", item, "played_ms", played)

	if err := s.sendModel(realtime.NewResponseCancel()); err != nil {
		logger.Warn("取消回复失败", "error", err)
	}
	if s.cfg.Call.TruncateOnBargeIn && item != "" {
		if err := s.sendModel(realtime.NewItemTruncate(item, played)); err != nil {
			logger.Warn("截断助手消息失败", "error", err)
		}
	}
}

func (s *Session) sendModel(v any) error {
	s.mu.Lock()
	conn := s.model
	s.mu.Unlock()
	if conn == nil {
		return ErrModelUnavailable
	}
	return conn.Send(v)
}

// protocolError 记录一条无法解析的消息，连续次数超过容忍度时返回true
func (s *Session) protocolError(peer string, err error) bool {
	s.deps.Metrics.RecordProtocolError(peer)
	s.mu.Lock()
	var n int
	if peer == "carrier" {
		s.call.carrierErrors++
		n = s.call.carrierErrors
	} else {
		s.call.modelErrors++
		n = s.call.modelErrors
	}
	logger := s.logger
	s.mu.Unlock()

	logger.Warn("忽略无法解析的消息", "peer", peer, "consecutive", n, "error", err)
	return n > s.cfg.Call.ProtocolErrorTolerance
}

func (s *Session) resetProtocolErrors(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if peer == "carrier" {
		s.call.carrierErrors = 0
	} else {
		s.call.modelErrors = 0
	}
}

func (s *Session) drop(reason string, args ...any) {
	s.deps.Metrics.RecordDroppedFrame(reason)
	s.log().Debug("丢弃音频帧", append([]any{"reason", reason}, args...)...)
}

// sessionConfig 根据配置和当前提示词生成session.update内容
func (s *Session) sessionConfig() realtime.SessionConfig {
	s.mu.Lock()
	instructions := s.call.instructions
	s.mu.Unlock()
	if instructions == "" {
		instructions = s.cfg.Model.Instructions
	}

	m := s.cfg.Model
	cfg := realtime.SessionConfig{
		Modalities:        []string{"audio", "text"},
		Instructions:      instructions,
		Voice:             m.Voice,
		InputAudioFormat:  m.AudioFormat,
		OutputAudioFormat: m.AudioFormat,
		Temperature:       m.Temperature,
	}
	if m.ServerVAD() {
		cfg.TurnDetection = &realtime.TurnDetection{
			Type:              config.TurnModeServerVAD,
			Threshold:         m.VADThreshold,
			PrefixPaddingMs:   m.PrefixPaddingMs,
			SilenceDurationMs: m.SilenceDurationMs,
		}
	}
	return cfg
}

func newMarkName() string {
	return "response-" + uuid.NewString()
}
