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

// callerParam 语音入口通过Stream参数传入的来电号码
const callerParam = "callerNumber"

// carrierLoop 读取运营商消息直到连接关闭或收到stop
func (s *Session) carrierLoop(ctx context.Context) error {
	for {
		data, err := s.carrier.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", ErrCarrierClosed, err)
		}

		event, err := twilio.Decode(data)
		if err != nil {
			// 未知事件与格式错误同样计入容忍度，无效载荷只丢弃该帧
			if errors.Is(err, twilio.ErrInvalidPayload) {
				s.drop(dropInvalidAudio, "error", err)
			} else if s.protocolError("carrier", err) {
				return ErrProtocolTolerance
			}
			continue
		}
		s.resetProtocolErrors("carrier")

		switch e := event.(type) {
		case twilio.Connected:
			s.log().Debug("运营商已连接", "protocol", e.Protocol)
		case twilio.Start:
			s.onStart(e)
		case twilio.Media:
			s.onMedia(e)
		case twilio.Mark:
			s.onMark(e)
		case twilio.DTMF:
			s.log().Info("收到按键", "digit", e.Digit)
		case twilio.Stop:
			s.onStop()
			return s.drain(ctx)
		}
	}
}

func (s *Session) onStart(e twilio.Start) {
	caller := e.CustomParameters[callerParam]

	var instructions string
	if rec, ok := s.deps.Customers.Lookup(caller); ok {
		instructions = rec.Instructions(s.cfg.Model.Instructions)
	}

	s.mu.Lock()
	if s.call.started {
		s.mu.Unlock()
		s.log().Warn("重复的start事件", "stream_sid", e.StreamSid)
		return
	}
	s.call.startStream(e.StreamSid, e.CallSid, time.Now(), s.cfg.Call.PostGreetingMute)
	s.call.callerNumber = caller
	s.call.instructions = instructions
	s.logger = s.logger.With("stream_sid", e.StreamSid, "call_sid", e.CallSid)
	state := s.call.state
	logger := s.logger
	s.mu.Unlock()

	s.startOnce.Do(func() { close(s.startedCh) })
	logger.Info("媒体流开始", "caller", caller, "customer_found", instructions != "", "encoding", e.Encoding)

	// 模型已在配置中或已就绪时，用客户资料重新配置
	if instructions != "" && (state == StateConfiguring || state == StateActive) {
		if err := s.sendModel(realtime.NewSessionUpdate(s.sessionConfig())); err != nil {
			logger.Warn("更新会话提示词失败", "error", err)
		}
	}
}

func (s *Session) onMedia(e twilio.Media) {
	now := time.Now()

	s.mu.Lock()
	started := s.call.started
	ready := s.call.state == StateActive && s.call.modelReady
	muted := s.call.muted(now)
	s.mu.Unlock()

	switch {
	case !started:
		s.drop(dropNotStarted)
		return
	case !ready:
		s.drop(dropModelNotReady)
		return
	case muted:
		s.drop(dropMuted)
		return
	}
	s.deps.Metrics.RecordFrame(metrics.DirectionInbound)

	local := !s.cfg.Model.ServerVAD()
	voiced := audio.Energy(e.Payload) >= s.cfg.Turn.EnergyThreshold
	if local && voiced {
		s.bargeIn("energy")
	}

	payload, err := s.conv.ToModel(e.Payload)
	if err != nil {
		s.drop(dropInvalidAudio, "error", err)
		return
	}
	if err := s.sendModel(realtime.NewInputAudioAppend(payload)); err != nil {
		s.drop(dropSendFailed, "error", err)
		return
	}
	if local && voiced {
		s.detector.Observe(len(e.Payload), now)
	}
}

// onMark 运营商回传的mark表示此前的音频已播完，本地模式下立即提交已缓冲的输入
func (s *Session) onMark(e twilio.Mark) {
	s.log().Debug("收到mark", "name", e.Name)
	if s.cfg.Model.ServerVAD() {
		return
	}

	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	if !s.activeAndReady() {
		return
	}
	if s.detector.Flush() > 0 {
		s.commit("mark")
	}
}

// onStop 进入Draining并丢弃尚未提交的输入，不做最后一次提交
func (s *Session) onStop() {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	s.transition(StateDraining)
	if n := s.detector.Buffered(); n > 0 {
		s.log().Debug("丢弃未提交的输入", "bytes", n)
	}
	s.detector.Reset()
	s.log().Info("媒体流结束")
}

// drain 给在途的模型音频留出发送时间
func (s *Session) drain(ctx context.Context) error {
	if s.cfg.Call.DrainGrace > 0 {
		timer := time.NewTimer(s.cfg.Call.DrainGrace)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
	return errStreamStopped
}

func (s *Session) writeCarrier(msg twilio.OutboundMessage) error {
	return s.carrier.WriteJSON(msg)
}
