// Package twilio 定义运营商媒体流WebSocket的消息格式。
//
// 入站消息在边界处被解码为封闭的事件类型集合，调用方通过类型分支处理。
package twilio

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// 消息解码错误
var (
	ErrUnknownEvent   = errors.New("未知的运营商事件")
	ErrMalformed      = errors.New("运营商消息格式错误")
	ErrInvalidPayload = errors.New("媒体载荷无效")
)

// Event 运营商入站事件
type Event interface {
	EventName() string
}

// Connected 连接建立
type Connected struct {
	Protocol string
}

// Start 媒体流开始
type Start struct {
	StreamSid        string
	CallSid          string
	AccountSid       string
	Tracks           []string
	CustomParameters map[string]string
	Encoding         string
	SampleRate       int
	Channels         int
}

// Media 一帧来电方音频，Payload为已解码的μ-law字节
type Media struct {
	StreamSid string
	Track     string
	Chunk     string
	Timestamp string
	Payload   []byte
}

// Mark 运营商回传的标记，表示此前发送的音频已播放完毕
type Mark struct {
	StreamSid string
	Name      string
}

// Stop 媒体流结束
type Stop struct {
	StreamSid string
	CallSid   string
}

// DTMF 按键
type DTMF struct {
	StreamSid string
	Digit     string
}

func (Connected) EventName() string { return "connected" }
func (Start) EventName() string     { return "start" }
func (Media) EventName() string     { return "media" }
func (Mark) EventName() string      { return "mark" }
func (Stop) EventName() string      { return "stop" }
func (DTMF) EventName() string      { return "dtmf" }

// envelope 入站消息的原始结构
type envelope struct {
	Event          string `json:"event"`
	SequenceNumber string `json:"sequenceNumber,omitempty"`
	StreamSid      string `json:"streamSid,omitempty"`
	Protocol       string `json:"protocol,omitempty"`
	Start          *struct {
		StreamSid        string            `json:"streamSid"`
		CallSid          string            `json:"callSid"`
		AccountSid       string            `json:"accountSid"`
		Tracks           []string          `json:"tracks"`
		CustomParameters map[string]string `json:"customParameters"`
		MediaFormat      struct {
			Encoding   string `json:"encoding"`
			SampleRate int    `json:"sampleRate"`
			Channels   int    `json:"channels"`
		} `json:"mediaFormat"`
	} `json:"start,omitempty"`
	Media *struct {
		Track     string `json:"track"`
		Chunk     string `json:"chunk"`
		Timestamp string `json:"timestamp"`
		Payload   string `json:"payload"`
	} `json:"media,omitempty"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark,omitempty"`
	Stop *struct {
		AccountSid string `json:"accountSid"`
		CallSid    string `json:"callSid"`
	} `json:"stop,omitempty"`
	DTMF *struct {
		Track string `json:"track"`
		Digit string `json:"digit"`
	} `json:"dtmf,omitempty"`
}

// Decode 将一条入站消息解码为事件
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Event {
	case "connected":
		return Connected{Protocol: env.Protocol}, nil
	case "start":
		if env.Start == nil {
			return nil, fmt.Errorf("%w: start事件缺少start字段", ErrMalformed)
		}
		sid := env.Start.StreamSid
		if sid == "" {
			sid = env.StreamSid
		}
		return Start{
			StreamSid:        sid,
			CallSid:          env.Start.CallSid,
			AccountSid:       env.Start.AccountSid,
			Tracks:           env.Start.Tracks,
			CustomParameters: env.Start.CustomParameters,
			Encoding:         env.Start.MediaFormat.Encoding,
			SampleRate:       env.Start.MediaFormat.SampleRate,
			Channels:         env.Start.MediaFormat.Channels,
		}, nil
	case "media":
		if env.Media == nil {
			return nil, fmt.Errorf("%w: media事件缺少media字段", ErrMalformed)
		}
		payload, err := base64.StdEncoding.DecodeString(env.Media.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return Media{
			StreamSid: env.StreamSid,
			Track:     env.Media.Track,
			Chunk:     env.Media.Chunk,
			Timestamp: env.Media.Timestamp,
			Payload:   payload,
		}, nil
	case "mark":
		m := Mark{StreamSid: env.StreamSid}
		if env.Mark != nil {
			m.Name = env.Mark.Name
		}
		return m, nil
	case "stop":
		s := Stop{StreamSid: env.StreamSid}
		if env.Stop != nil {
			s.CallSid = env.Stop.CallSid
		}
		return s, nil
	case "dtmf":
		d := DTMF{StreamSid: env.StreamSid}
		if env.DTMF != nil {
			d.Digit = env.DTMF.Digit
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}
