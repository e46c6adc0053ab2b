package realtime

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// 消息解码错误
var (
	ErrMalformed    = errors.New("模型消息格式错误")
	ErrInvalidAudio = errors.New("模型音频增量无效")
)

// ServerEvent 模型下行事件
type ServerEvent interface {
	EventType() string
}

// SessionCreated 会话已创建
type SessionCreated struct {
	SessionID string
	Model     string
}

// SessionUpdated 会话配置已生效
type SessionUpdated struct {
	InputAudioFormat  string
	OutputAudioFormat string
	Voice             string
}

// ResponseCreated 新一轮助手回复开始
type ResponseCreated struct {
	ResponseID string
}

// ItemCreated 会话中新增一条消息
type ItemCreated struct {
	ItemID string
	Role   string
	Kind   string
}

// AudioDelta 一段合成音频，Audio为已解码字节
type AudioDelta struct {
	ResponseID string
	ItemID     string
	Audio      []byte
}

// ResponseDone 回复结束，Status为completed、cancelled、failed或incomplete
type ResponseDone struct {
	ResponseID string
	Status     string
}

// SpeechStarted 服务端VAD检测到来电方开始说话
type SpeechStarted struct {
	ItemID       string
	AudioStartMs int
}

// SpeechStopped 服务端VAD检测到来电方停止说话
type SpeechStopped struct {
	ItemID     string
	AudioEndMs int
}

// BufferCommitted 输入缓冲区已提交
type BufferCommitted struct {
	ItemID string
}

// Error 应用层错误
type Error struct {
	Kind    string
	Code    string
	Message string
	Param   string
}

// Ignored 协议中存在但桥接不处理的事件，如转写增量与限流通知
type Ignored struct {
	Type string
}

// Unknown 协议之外的事件类型，计入协议错误
type Unknown struct {
	Type string
}

// ignoredPrefixes 模型协议中桥接不关心的事件命名空间
var ignoredPrefixes = []string{
	"response.",
	"conversation.",
	"input_audio_buffer.",
	"output_audio_buffer.",
	"transcription_session.",
	"rate_limits.",
}

func isIgnored(typ string) bool {
	for _, prefix := range ignoredPrefixes {
		if strings.HasPrefix(typ, prefix) {
			return true
		}
	}
	return false
}

func (SessionCreated) EventType() string  { return "session.created" }
func (SessionUpdated) EventType() string  { return "session.updated" }
func (ResponseCreated) EventType() string { return "response.created" }
func (ItemCreated) EventType() string     { return "conversation.item.created" }
func (AudioDelta) EventType() string      { return "response.audio.delta" }
func (ResponseDone) EventType() string    { return "response.done" }
func (SpeechStarted) EventType() string   { return "input_audio_buffer.speech_started" }
func (SpeechStopped) EventType() string   { return "input_audio_buffer.speech_stopped" }
func (BufferCommitted) EventType() string { return "input_audio_buffer.committed" }
func (Error) EventType() string           { return "error" }
func (i Ignored) EventType() string       { return i.Type }
func (u Unknown) EventType() string       { return u.Type }

// Cancelled 回复是否因取消而结束
func (r ResponseDone) Cancelled() bool {
	return r.Status == "cancelled"
}

// SessionInvalid 错误是否意味着会话本身不可用
func (e Error) SessionInvalid() bool {
	switch e.Code {
	case "invalid_session", "session_expired", "invalid_api_key":
		return true
	}
	return strings.HasPrefix(e.Param, "session.")
}

func (e Error) Error() string {
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

type serverEnvelope struct {
	Type       string          `json:"type"`
	ResponseID string          `json:"response_id"`
	ItemID     string          `json:"item_id"`
	Delta      string          `json:"delta"`
	AudioStart int             `json:"audio_start_ms"`
	AudioEnd   int             `json:"audio_end_ms"`
	Session    json.RawMessage `json:"session"`
	Response   *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"response"`
	Item *struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Role string `json:"role"`
	} `json:"item"`
	Error *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Param   string `json:"param"`
	} `json:"error"`
}

type sessionInfo struct {
	ID                string `json:"id"`
	Model             string `json:"model"`
	Voice             string `json:"voice"`
	InputAudioFormat  string `json:"input_audio_format"`
	OutputAudioFormat string `json:"output_audio_format"`
}

// DecodeServerEvent 将一条下行消息解码为事件
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var env serverEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: 缺少type字段", ErrMalformed)
	}

	switch env.Type {
	case "session.created", "session.updated":
		var info sessionInfo
		if len(env.Session) > 0 {
			if err := json.Unmarshal(env.Session, &info); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}
		if env.Type == "session.created" {
			return SessionCreated{SessionID: info.ID, Model: info.Model}, nil
		}
		return SessionUpdated{
			InputAudioFormat:  info.InputAudioFormat,
			OutputAudioFormat: info.OutputAudioFormat,
			Voice:             info.Voice,
		}, nil
	case "response.created":
		ev := ResponseCreated{}
		if env.Response != nil {
			ev.ResponseID = env.Response.ID
		}
		return ev, nil
	case "conversation.item.created":
		ev := ItemCreated{}
		if env.Item != nil {
			ev.ItemID = env.Item.ID
			ev.Role = env.Item.Role
			ev.Kind = env.Item.Type
		}
		return ev, nil
	case "response.audio.delta", "response.output_audio.delta":
		audio, err := base64.StdEncoding.DecodeString(env.Delta)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
		}
		return AudioDelta{ResponseID: env.ResponseID, ItemID: env.ItemID, Audio: audio}, nil
	case "response.done", "response.cancelled":
		ev := ResponseDone{ResponseID: env.ResponseID}
		if env.Response != nil {
			ev.ResponseID = env.Response.ID
			ev.Status = env.Response.Status
		}
		if env.Type == "response.cancelled" {
			ev.Status = "cancelled"
		}
		return ev, nil
	case "input_audio_buffer.speech_started":
		return SpeechStarted{ItemID: env.ItemID, AudioStartMs: env.AudioStart}, nil
	case "input_audio_buffer.speech_stopped":
		return SpeechStopped{ItemID: env.ItemID, AudioEndMs: env.AudioEnd}, nil
	case "input_audio_buffer.committed":
		return BufferCommitted{ItemID: env.ItemID}, nil
	case "error":
		ev := Error{}
		if env.Error != nil {
			ev = Error{Kind: env.Error.Type, Code: env.Error.Code, Message: env.Error.Message, Param: env.Error.Param}
		}
		return ev, nil
	default:
		if isIgnored(env.Type) {
			return Ignored{Type: env.Type}, nil
		}
		return Unknown{Type: env.Type}, nil
	}
}
