package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai_phone_bridge/internal/audio"
	"ai_phone_bridge/internal/metrics"
	"ai_phone_bridge/internal/protocol/realtime"
	"ai_phone_bridge/internal/protocol/twilio"
)

// modelLink 一条模型连接及其读取goroutine的输出
type modelLink struct {
	msgs chan []byte
	err  error // msgs关闭前写入
}

// modelLoop 建立模型连接并处理下行事件，意外断线时重连一次
func (s *Session) modelLoop(ctx context.Context) error {
	link, err := s.establish(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.apologize()
		return err
	}

	for link != nil {
		if err := s.pump(ctx, link); err != nil {
			return err
		}
		if ctx.Err() != nil || s.ending() {
			return nil
		}

		s.log().Warn("模型连接意外断开，尝试重连", "error", link.err)
		link, err = s.reconnect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log().Error("模型重连失败", "error", err)
			s.apologize()
			return err
		}
		if link != nil {
			s.log().Info("模型重连成功")
		}
	}
	return nil
}

// establish 连接模型并等待配置确认。会话已在结束时返回nil, nil。
func (s *Session) establish(ctx context.Context) (*modelLink, error) {
	conn, err := s.deps.Dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	s.mu.Lock()
	ok := s.call.transition(StateConfiguring)
	if ok {
		s.model = conn
	}
	s.mu.Unlock()
	if !ok {
		_ = conn.Close()
		return nil, nil
	}

	link := s.startReader(ctx, conn)
	if err := conn.Send(realtime.NewSessionUpdate(s.sessionConfig())); err != nil {
		return nil, fmt.Errorf("%w: 发送会话配置失败: %w", ErrModelUnavailable, err)
	}
	s.log().Debug("已发送会话配置，等待确认")

	ready, err := s.awaitConfigured(ctx, link)
	if err != nil || !ready {
		return nil, err
	}
	return link, nil
}

// awaitConfigured 等待session.updated，期间的其他事件照常处理
func (s *Session) awaitConfigured(ctx context.Context, link *modelLink) (bool, error) {
	timer := time.NewTimer(s.cfg.Model.ConfigTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-timer.C:
			s.mu.Lock()
			s.call.transition(StateClosed)
			s.mu.Unlock()
			return false, ErrConfigurationTimeout
		case data, ok := <-link.msgs:
			if !ok {
				return false, fmt.Errorf("%w: 等待配置确认时连接断开: %v", ErrModelUnavailable, link.err)
			}
			event, err := s.decodeModel(data)
			if err != nil {
				return false, err
			}
			if event == nil {
				continue
			}
			if updated, ok := event.(realtime.SessionUpdated); ok {
				s.mu.Lock()
				ok = s.call.transition(StateActive)
				if ok {
					s.call.markReady()
				}
				s.mu.Unlock()
				if !ok {
					return false, nil
				}
				s.log().Info("模型会话已就绪",
					"input_format", updated.InputAudioFormat,
					"output_format", updated.OutputAudioFormat,
					"voice", updated.Voice)
				return true, nil
			}
			if err := s.handleEvent(event); err != nil {
				return false, err
			}
		}
	}
}

// reconnect 关闭旧连接后重新建立并配置
func (s *Session) reconnect(ctx context.Context) (*modelLink, error) {
	s.mu.Lock()
	ok := s.call.transition(StateConnecting)
	old := s.model
	if ok {
		s.model = nil
	}
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	if old != nil {
		_ = old.Close()
	}

	s.turnMu.Lock()
	s.detector.Reset()
	s.turnMu.Unlock()
	s.playMu.Lock()
	s.tracker.OnResponseEnded()
	s.tracker.SetItem("")
	s.playMu.Unlock()

	link, err := s.establish(ctx)
	s.deps.Metrics.RecordReconnect(err == nil && link != nil)
	return link, err
}

// apologize 模型永久不可用时进入Draining，通话曾建立过则通知运营商
func (s *Session) apologize() {
	s.mu.Lock()
	everActive := s.call.everActive
	sid := s.call.streamSid
	s.call.transition(StateDraining)
	logger := s.logger
	s.mu.Unlock()

	if !everActive || sid == "" {
		return
	}
	if err := s.writeCarrier(twilio.NewMark(sid, ApologyMark)); err != nil {
		logger.Warn("发送致歉标记失败", "error", err)
	}
}

func (s *Session) startReader(ctx context.Context, conn ModelConn) *modelLink {
	link := &modelLink{msgs: make(chan []byte, 64)}
	s.readers.Add(1)
	go func() {
		defer s.readers.Done()
		defer close(link.msgs)
		for {
			data, err := conn.Read()
			if err != nil {
				link.err = err
				return
			}
			select {
			case link.msgs <- data:
			case <-ctx.Done():
				link.err = ctx.Err()
				return
			}
		}
	}()
	return link
}

// pump 处理一条连接的消息直到其关闭。连接关闭返回nil，会话级错误原样返回。
func (s *Session) pump(ctx context.Context, link *modelLink) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-link.msgs:
			if !ok {
				return nil
			}
			event, err := s.decodeModel(data)
			if err != nil {
				return err
			}
			if event == nil {
				continue
			}
			if err := s.handleEvent(event); err != nil {
				return err
			}
		}
	}
}

// decodeModel 解码模型消息。可忽略的消息返回nil, nil。
func (s *Session) decodeModel(data []byte) (realtime.ServerEvent, error) {
	event, err := realtime.DecodeServerEvent(data)
	if unknown, ok := event.(realtime.Unknown); ok {
		err = fmt.Errorf("%w: %q", errUnexpectedEvent, unknown.Type)
	}
	if err == nil {
		s.resetProtocolErrors("model")
		return event, nil
	}
	if errors.Is(err, realtime.ErrInvalidAudio) {
		s.drop(dropInvalidAudio, "error", err)
		return nil, nil
	}
	if s.protocolError("model", err) {
		return nil, ErrProtocolTolerance
	}
	return nil, nil
}

func (s *Session) handleEvent(event realtime.ServerEvent) error {
	switch e := event.(type) {
	case realtime.SessionCreated:
		s.log().Debug("模型会话已创建", "model_session", e.SessionID, "model", e.Model)
	case realtime.SessionUpdated:
		s.log().Debug("模型会话配置已更新")
	case realtime.ResponseCreated:
		s.playMu.Lock()
		s.mu.Lock()
		s.call.newResponse()
		s.mu.Unlock()
		s.playMu.Unlock()
	case realtime.ItemCreated:
		if e.Role == "assistant" {
			s.tracker.SetItem(e.ItemID)
		}
	case realtime.AudioDelta:
		s.onAudioDelta(e)
	case realtime.ResponseDone:
		s.onResponseDone(e)
	case realtime.SpeechStarted:
		if s.cfg.Model.ServerVAD() {
			s.bargeIn("server_vad")
		}
	case realtime.SpeechStopped, realtime.BufferCommitted:
		s.log().Debug("输入缓冲区事件", "type", e.EventType())
	case realtime.Error:
		s.deps.Metrics.RecordModelError(e.Code)
		s.log().Warn("模型返回错误", "type", e.Kind, "code", e.Code, "message", e.Message, "param", e.Param)
		if e.SessionInvalid() {
			return fmt.Errorf("%w: %w", ErrSessionInvalid, e)
		}
	default:
		s.log().Debug("忽略模型事件", "type", e.EventType())
	}
	return nil
}

// onAudioDelta 将一段合成音频按20ms分帧发给运营商
func (s *Session) onAudioDelta(e realtime.AudioDelta) {
	mulaw, err := s.conv.ToCarrier(e.Audio)
	if err != nil {
		s.drop(dropInvalidAudio, "error", err)
		return
	}

	s.playMu.Lock()
	defer s.playMu.Unlock()

	s.mu.Lock()
	state := s.call.state
	latched := s.call.bargeIn
	sid := s.call.streamSid
	s.mu.Unlock()

	switch {
	case state != StateActive && state != StateDraining:
		s.drop(dropUnexpected, "state", state.String())
		return
	case latched:
		s.drop(dropBargeIn)
		return
	case sid == "":
		s.drop(dropNoStream)
		return
	}

	if s.tracker.OnResponseStarted() {
		s.log().Debug("助手开始播放", "response_id", e.ResponseID)
	}
	if e.ItemID != "" {
		s.tracker.SetItem(e.ItemID)
	}

	// 打断只能在playMu下锁存，整段增量的发送期间锁存状态不变
	for _, frame := range audio.Frames(mulaw, audio.CarrierFrameSize) {
		if err := s.writeCarrier(twilio.NewMedia(sid, frame)); err != nil {
			s.log().Warn("发送音频到运营商失败", "error", err)
			return
		}
		s.deps.Metrics.RecordFrame(metrics.DirectionOutbound)
		s.tracker.AddDelivered(s.conv.CarrierDuration(len(frame)))
	}
}

// onResponseDone 回复结束，按配置发送回复结束标记
func (s *Session) onResponseDone(e realtime.ResponseDone) {
	s.playMu.Lock()
	s.tracker.OnResponseEnded()
	s.playMu.Unlock()
	if e.Cancelled() || !s.cfg.Call.ResponseMarks {
		return
	}

	s.mu.Lock()
	sid := s.call.streamSid
	s.mu.Unlock()
	if sid == "" {
		return
	}

	name := newMarkName()
	if e.ResponseID != "" {
		name = "response-" + e.ResponseID
	}
	if err := s.writeCarrier(twilio.NewMark(sid, name)); err != nil {
		s.log().Warn("发送回复结束标记失败", "error", err)
	}
}
