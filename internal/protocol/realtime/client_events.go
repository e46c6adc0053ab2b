// Package realtime 定义语音模型实时WebSocket接口的消息格式
package realtime

import "encoding/base64"

// SessionUpdate 配置会话
type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// SessionConfig 会话参数
type SessionConfig struct {
	Modalities        []string       `json:"modalities,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	Voice             string         `json:"voice,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat string         `json:"output_audio_format,omitempty"`
	TurnDetection     *TurnDetection `json:"turn_detection"` // nil表示关闭服务端VAD
	Temperature       float64        `json:"temperature,omitempty"`
}

// TurnDetection 服务端语音活动检测参数
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    *bool   `json:"create_response,omitempty"`
}

// InputAudioAppend 追加输入音频
type InputAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// InputAudioCommit 提交输入缓冲区
type InputAudioCommit struct {
	Type string `json:"type"`
}

// ResponseCreate 请求模型生成回复
type ResponseCreate struct {
	Type string `json:"type"`
}

// ResponseCancel 取消进行中的回复
type ResponseCancel struct {
	Type string `json:"type"`
}

// ItemTruncate 截断助手消息，使模型上下文与来电方实际听到的内容一致
type ItemTruncate struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int    `json:"audio_end_ms"`
}

// NewSessionUpdate 构造session.update
func NewSessionUpdate(cfg SessionConfig) SessionUpdate {
	return SessionUpdate{Type: "session.update", Session: cfg}
}

// NewInputAudioAppend 构造input_audio_buffer.append，音频按base64编码
func NewInputAudioAppend(audio []byte) InputAudioAppend {
	return InputAudioAppend{Type: "input_audio_buffer.append", Audio: base64.StdEncoding.EncodeToString(audio)}
}

// NewInputAudioCommit 构造input_audio_buffer.commit
func NewInputAudioCommit() InputAudioCommit {
	return InputAudioCommit{Type: "input_audio_buffer.commit"}
}

// NewResponseCreate 构造response.create
func NewResponseCreate() ResponseCreate {
	return ResponseCreate{Type: "response.create"}
}

// NewResponseCancel 构造response.cancel
func NewResponseCancel() ResponseCancel {
	return ResponseCancel{Type: "response.cancel"}
}

// NewItemTruncate 构造conversation.item.truncate
func NewItemTruncate(itemID string, audioEndMs int) ItemTruncate {
	return ItemTruncate{Type: "conversation.item.truncate", ItemID: itemID, AudioEndMs: audioEndMs}
}
