package bridge

import "time"

// State 会话状态
type State int

const (
	StateConnecting  State = iota // 正在连接模型
	StateConfiguring              // 已发送session.update，等待确认
	StateActive                   // 双向转发
	StateDraining                 // 通话结束，等待在途音频
	StateClosed                   // 终态
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConfiguring:
		return "configuring"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// transitions 合法的状态转换。Active到Connecting用于模型断线重连。
var transitions = map[State][]State{
	StateConnecting:  {StateConfiguring, StateDraining, StateClosed},
	StateConfiguring: {StateActive, StateDraining, StateClosed},
	StateActive:      {StateConnecting, StateDraining, StateClosed},
	StateDraining:    {StateClosed},
	StateClosed:      nil,
}

// CanTransition 判断状态转换是否合法
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// callState 单通电话的全部可变状态，由Session.mu保护
type callState struct {
	state        State
	streamSid    string
	callSid      string
	callerNumber string
	instructions string

	modelReady bool      // 收到session.updated之前不转发来电音频
	bargeIn    bool      // 本轮回复已被打断
	started    bool      // 已收到start事件
	muteUntil  time.Time // 开场白后的静音窗口
	everActive bool      // 曾进入Active，用于判断是否需要致歉

	carrierErrors int // 连续的运营商消息格式错误
	modelErrors   int // 连续的模型消息格式错误
}

// transition 执行状态转换，非法转换返回false且状态不变
func (c *callState) transition(to State) bool {
	if !CanTransition(c.state, to) {
		return false
	}
	c.state = to
	switch to {
	case StateActive:
		c.everActive = true
	case StateConnecting, StateDraining, StateClosed:
		c.modelReady = false
	}
	return true
}

// markReady 模型确认配置
func (c *callState) markReady() {
	c.modelReady = true
}

// startStream 记录start事件
func (c *callState) startStream(streamSid, callSid string, now time.Time, mute time.Duration) {
	c.streamSid = streamSid
	c.callSid = callSid
	c.started = true
	c.muteUntil = now.Add(mute)
}

// muted 是否处于开场白静音窗口
func (c *callState) muted(now time.Time) bool {
	return now.Before(c.muteUntil)
}

// latchBargeIn 锁存打断标志，已锁存时返回false
func (c *callState) latchBargeIn() bool {
	if c.bargeIn {
		return false
	}
	c.bargeIn = true
	return true
}

// newResponse 新一轮回复开始，解除打断锁存
func (c *callState) newResponse() {
	c.bargeIn = false
}
