package config

import (
	"fmt"
	"time"
)

// TurnConfig 本地轮次检测配置
type TurnConfig struct {
	SilenceThreshold time.Duration `yaml:"silence_threshold" env:"BRIDGE_TURN_SILENCE"`    // 静音判定阈值
	MaxBuffered      time.Duration `yaml:"max_buffered" env:"BRIDGE_TURN_MAX_BUFFERED"`    // 单句最大缓冲时长
	PollInterval     time.Duration `yaml:"poll_interval" env:"BRIDGE_TURN_POLL_INTERVAL"` // 检测轮询间隔
	EnergyThreshold  int           `yaml:"energy_threshold" env:"BRIDGE_TURN_ENERGY"`     // 平均幅度低于该值的帧视为静音，0表示每帧都计入
}

// DefaultEnergyThreshold 默认语音能量阈值。运营商在静音时持续发送0xFF帧，其能量为0。
const DefaultEnergyThreshold = 500

// NewTurnConfig 创建带默认值的轮次检测配置
func NewTurnConfig() *TurnConfig {
	return &TurnConfig{
		SilenceThreshold: 700 * time.Millisecond,
		MaxBuffered:      time.Second,
		PollInterval:     50 * time.Millisecond,
		EnergyThreshold:  DefaultEnergyThreshold,
	}
}

func (c *TurnConfig) applyDefaults() {
	def := NewTurnConfig()
	if c.SilenceThreshold == 0 {
		c.SilenceThreshold = def.SilenceThreshold
	}
	if c.MaxBuffered == 0 {
		c.MaxBuffered = def.MaxBuffered
	}
	if c.PollInterval == 0 {
		c.PollInterval = def.PollInterval
	}
}

// Validate 验证轮次检测配置
func (c *TurnConfig) Validate() error {
	if c.SilenceThreshold <= 0 {
		return ErrInvalidSilence
	}
	if c.MaxBuffered < c.SilenceThreshold {
		return ErrInvalidCeiling
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval: %w", ErrInvalidTimeout)
	}
	if c.EnergyThreshold < 0 {
		return ErrInvalidEnergy
	}
	return nil
}

// CallConfig 单通电话的会话参数
type CallConfig struct {
	PostGreetingMute       time.Duration `yaml:"post_greeting_mute" env:"BRIDGE_CALL_MUTE"`                // 开场白后丢弃来电音频的时长
	StartTimeout           time.Duration `yaml:"start_timeout" env:"BRIDGE_CALL_START_TIMEOUT"`            // 等待start事件的超时
	DrainGrace             time.Duration `yaml:"drain_grace" env:"BRIDGE_CALL_DRAIN_GRACE"`                // 结束前等待在途音频的时长
	WriteTimeout           time.Duration `yaml:"write_timeout" env:"BRIDGE_CALL_WRITE_TIMEOUT"`            // 单次写超时
	ProtocolErrorTolerance int           `yaml:"protocol_error_tolerance" env:"BRIDGE_CALL_ERROR_TOLERANCE"` // 连续格式错误的容忍次数
	ResponseMarks          bool          `yaml:"response_marks" env:"BRIDGE_CALL_RESPONSE_MARKS"`          // 回复结束时向运营商发送mark
	TruncateOnBargeIn      bool          `yaml:"truncate_on_barge_in" env:"BRIDGE_CALL_TRUNCATE"`          // 打断时截断助手消息
	Greeting               string        `yaml:"greeting" env:"BRIDGE_CALL_GREETING"`                      // 开场白
	GreetingLanguage       string        `yaml:"greeting_language" env:"BRIDGE_CALL_GREETING_LANGUAGE"`    // 开场白语言
	GreetingVoice          string        `yaml:"greeting_voice" env:"BRIDGE_CALL_GREETING_VOICE"`          // 开场白音色
	Apology                string        `yaml:"apology" env:"BRIDGE_CALL_APOLOGY"`                        // 模型不可用时的致歉语
	StatusCallback         string        `yaml:"status_callback" env:"BRIDGE_CALL_STATUS_CALLBACK"`        // 媒体流状态回调地址
}

// NewCallConfig 创建带默认值的通话配置
func NewCallConfig() *CallConfig {
	return &CallConfig{
		PostGreetingMute:       1500 * time.Millisecond,
		StartTimeout:           10 * time.Second,
		DrainGrace:             500 * time.Millisecond,
		WriteTimeout:           2 * time.Second,
		ProtocolErrorTolerance: 10,
		ResponseMarks:          true,
		TruncateOnBargeIn:      true,
		Greeting:               "Willkommen beim KI-Telefonassistenten. Wie kann ich Ihnen helfen?",
		GreetingLanguage:       "de-DE",
		GreetingVoice:          "Polly.Vicki",
		Apology:                "Entschuldigung, der Assistent ist gerade nicht erreichbar. Bitte versuchen Sie es spaeter erneut.",
	}
}

func (c *CallConfig) applyDefaults() {
	def := NewCallConfig()
	if c.StartTimeout == 0 {
		c.StartTimeout = def.StartTimeout
	}
	if c.DrainGrace == 0 {
		c.DrainGrace = def.DrainGrace
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ProtocolErrorTolerance == 0 {
		c.ProtocolErrorTolerance = def.ProtocolErrorTolerance
	}
	if c.GreetingLanguage == "" {
		c.GreetingLanguage = def.GreetingLanguage
	}
	if c.GreetingVoice == "" {
		c.GreetingVoice = def.GreetingVoice
	}
	if c.Apology == "" {
		c.Apology = def.Apology
	}
}

// Validate 验证通话配置
func (c *CallConfig) Validate() error {
	if c.PostGreetingMute < 0 {
		return fmt.Errorf("post_greeting_mute: %w", ErrInvalidTimeout)
	}
	if c.StartTimeout <= 0 {
		return fmt.Errorf("start_timeout: %w", ErrInvalidTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout: %w", ErrInvalidTimeout)
	}
	return nil
}
