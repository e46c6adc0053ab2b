package bridge

import (
	"context"
	"errors"
)

// 会话终止原因。单条消息的错误只记录日志，只有以下错误会结束会话。
var (
	ErrModelUnavailable     = errors.New("模型连接不可用")
	ErrConfigurationTimeout = errors.New("等待模型确认配置超时")
	ErrSessionInvalid       = errors.New("模型会话失效")
	ErrStartTimeout         = errors.New("等待start事件超时")
	ErrCarrierClosed        = errors.New("运营商连接已关闭")
	ErrProtocolTolerance    = errors.New("连续收到过多无法解析的消息")
	ErrTooManySessions      = errors.New("并发通话数已达上限")

	// errStreamStopped 运营商发送stop后正常结束
	errStreamStopped = errors.New("媒体流已结束")

	// errUnexpectedEvent 模型协议之外的事件类型，按协议错误计数
	errUnexpectedEvent = errors.New("未预期的模型事件")
)

// endReason 将终止错误映射为指标标签
func endReason(err error) string {
	switch {
	case err == nil, errors.Is(err, errStreamStopped):
		return "stop"
	case errors.Is(err, ErrCarrierClosed):
		return "carrier_closed"
	case errors.Is(err, ErrStartTimeout):
		return "start_timeout"
	case errors.Is(err, ErrConfigurationTimeout):
		return "config_timeout"
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, ErrSessionInvalid):
		return "session_invalid"
	case errors.Is(err, ErrProtocolTolerance):
		return "protocol_errors"
	case errors.Is(err, context.Canceled):
		return "shutdown"
	default:
		return "error"
	}
}
