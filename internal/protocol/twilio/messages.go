package twilio

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
)

// OutboundMessage 发往运营商的消息
type OutboundMessage struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid"`
	Media     *MediaPayload `json:"media,omitempty"`
	Mark      *MarkPayload  `json:"mark,omitempty"`
}

// MediaPayload base64编码的μ-law音频
type MediaPayload struct {
	Payload string `json:"payload"`
}

// MarkPayload 标记名称
type MarkPayload struct {
	Name string `json:"name"`
}

// NewMedia 构造一帧出站音频
func NewMedia(streamSid string, mulaw []byte) OutboundMessage {
	return OutboundMessage{
		Event:     "media",
		StreamSid: streamSid,
		Media:     &MediaPayload{Payload: base64.StdEncoding.EncodeToString(mulaw)},
	}
}

// NewClear 构造清空播放缓冲的消息
func NewClear(streamSid string) OutboundMessage {
	return OutboundMessage{Event: "clear", StreamSid: streamSid}
}

// NewMark 构造标记消息，运营商播放到此处时回传同名mark
func NewMark(streamSid, name string) OutboundMessage {
	return OutboundMessage{Event: "mark", StreamSid: streamSid, Mark: &MarkPayload{Name: name}}
}

// 以下为运营商侧的消息构造，供回放工具与测试模拟来电

// EncodeConnected 构造connected事件
func EncodeConnected() ([]byte, error) {
	return json.Marshal(map[string]string{"event": "connected", "protocol": "Call", "version": "1.0.0"})
}

// EncodeStart 构造start事件
func EncodeStart(streamSid, callSid string, params map[string]string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"event":     "start",
		"streamSid": streamSid,
		"start": map[string]any{
			"streamSid":        streamSid,
			"callSid":          callSid,
			"tracks":           []string{"inbound"},
			"customParameters": params,
			"mediaFormat": map[string]any{
				"encoding":   "audio/x-mulaw",
				"sampleRate": 8000,
				"channels":   1,
			},
		},
	})
}

// EncodeMedia 构造media事件
func EncodeMedia(streamSid string, chunk int, timestampMs int64, mulaw []byte) ([]byte, error) {
	return json.Marshal(map[string]any{
		"event":     "media",
		"streamSid": streamSid,
		"media": map[string]string{
			"track":     "inbound",
			"chunk":     strconv.Itoa(chunk),
			"timestamp": strconv.FormatInt(timestampMs, 10),
			"payload":   base64.StdEncoding.EncodeToString(mulaw),
		},
	})
}

// EncodeMark 构造运营商回传的mark事件
func EncodeMark(streamSid, name string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"event":     "mark",
		"streamSid": streamSid,
		"mark":      map[string]string{"name": name},
	})
}

// EncodeStop 构造stop事件
func EncodeStop(streamSid, callSid string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"event":     "stop",
		"streamSid": streamSid,
		"stop":      map[string]string{"callSid": callSid},
	})
}

