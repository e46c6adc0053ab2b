package config

import (
	"fmt"
	"net/url"
	"slices"
	"time"
)

// 轮次检测方式
const (
	TurnModeLocal     = "none"       // 本地检测器提交输入缓冲区
	TurnModeServerVAD = "server_vad" // 由模型服务端VAD提交
)

// DefaultVoice 配置的音色不可用时的回退值
const DefaultVoice = "alloy"

// allowedVoices 模型支持的音色
var allowedVoices = []string{
	"alloy", "ash", "ballad", "coral", "echo", "fable",
	"nova", "onyx", "sage", "shimmer", "verse",
}

// ModelConfig 语音模型连接配置
type ModelConfig struct {
	URL               string        `yaml:"url" env:"BRIDGE_MODEL_URL"`                         // 模型WebSocket地址
	Model             string        `yaml:"model" env:"BRIDGE_MODEL_NAME"`                      // 模型名称，追加为model查询参数
	APIKey            string        `yaml:"api_key" env:"OPENAI_API_KEY"`                       // API密钥
	Voice             string        `yaml:"voice" env:"BRIDGE_MODEL_VOICE"`                     // 合成音色
	Instructions      string        `yaml:"instructions" env:"BRIDGE_MODEL_INSTRUCTIONS"`       // 系统提示词
	Temperature       float64       `yaml:"temperature" env:"BRIDGE_MODEL_TEMPERATURE"`         // 采样温度
	AudioFormat       string        `yaml:"audio_format" env:"BRIDGE_MODEL_AUDIO_FORMAT"`       // 输入输出音频格式
	SampleRate        int           `yaml:"sample_rate" env:"BRIDGE_MODEL_SAMPLE_RATE"`         // pcm16格式的采样率
	TurnDetection     string        `yaml:"turn_detection" env:"BRIDGE_MODEL_TURN_DETECTION"`   // none或server_vad
	VADThreshold      float64       `yaml:"vad_threshold" env:"BRIDGE_MODEL_VAD_THRESHOLD"`     // 服务端VAD灵敏度
	PrefixPaddingMs   int           `yaml:"prefix_padding_ms" env:"BRIDGE_MODEL_PREFIX_PADDING"` // 服务端VAD前置填充
	SilenceDurationMs int           `yaml:"silence_duration_ms" env:"BRIDGE_MODEL_VAD_SILENCE"` // 服务端VAD静音时长
	ConfigTimeout     time.Duration `yaml:"config_timeout" env:"BRIDGE_MODEL_CONFIG_TIMEOUT"`   // 等待session.updated的超时
	ReconnectAttempts int           `yaml:"reconnect_attempts" env:"BRIDGE_MODEL_RECONNECT"`    // 建连最大尝试次数
	BackoffBase       time.Duration `yaml:"backoff_base" env:"BRIDGE_MODEL_BACKOFF_BASE"`       // 首次重试间隔
	BackoffMax        time.Duration `yaml:"backoff_max" env:"BRIDGE_MODEL_BACKOFF_MAX"`         // 最大重试间隔
}

// NewModelConfig 创建带默认值的模型配置
func NewModelConfig() *ModelConfig {
	return &ModelConfig{
		URL:               "wss://api.openai.com/v1/realtime",
		Model:             "gpt-4o-realtime-preview",
		Voice:             DefaultVoice,
		Instructions:      DefaultInstructions,
		Temperature:       0.8,
		AudioFormat:       "g711_ulaw",
		TurnDetection:     TurnModeLocal,
		VADThreshold:      0.5,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 500,
		ConfigTimeout:     5 * time.Second,
		ReconnectAttempts: 3,
		BackoffBase:       250 * time.Millisecond,
		BackoffMax:        2 * time.Second,
	}
}

// DefaultInstructions 默认系统提示词
const DefaultInstructions = "Du bist ein freundlicher Kundenservice-Assistent eines Online-Shops. " +
	"Antworte kurz, hoeflich und auf Deutsch. Hilf bei Fragen zu Bestellungen, Lieferstatus und Sendungsverfolgung."

// applyDefaults 为空字段填充默认值，返回需要提示的信息
func (c *ModelConfig) applyDefaults() []string {
	def := NewModelConfig()
	var notes []string

	if c.URL == "" {
		c.URL = def.URL
	}
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.Voice == "" {
		c.Voice = def.Voice
	} else if !slices.Contains(allowedVoices, c.Voice) {
		notes = append(notes, fmt.Sprintf("音色 %q 不受支持，回退为 %s", c.Voice, DefaultVoice))
		c.Voice = DefaultVoice
	}
	if c.Instructions == "" {
		c.Instructions = def.Instructions
	}
	if c.Temperature == 0 {
		c.Temperature = def.Temperature
	}
	if c.AudioFormat == "" {
		c.AudioFormat = def.AudioFormat
	}
	if c.AudioFormat == "pcm16" && c.SampleRate == 0 {
		c.SampleRate = 24000
	}
	if c.TurnDetection == "" {
		c.TurnDetection = def.TurnDetection
	}
	if c.VADThreshold == 0 {
		c.VADThreshold = def.VADThreshold
	}
	if c.PrefixPaddingMs == 0 {
		c.PrefixPaddingMs = def.PrefixPaddingMs
	}
	if c.SilenceDurationMs == 0 {
		c.SilenceDurationMs = def.SilenceDurationMs
	}
	if c.ConfigTimeout == 0 {
		c.ConfigTimeout = def.ConfigTimeout
	}
	if c.ReconnectAttempts == 0 {
		c.ReconnectAttempts = def.ReconnectAttempts
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = def.BackoffMax
	}
	return notes
}

// Validate 验证模型配置
func (c *ModelConfig) Validate() error {
	if c.URL == "" {
		return ErrEmptyModelURL
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return ErrInvalidModelURL
	}
	if c.APIKey == "" && u.Scheme == "wss" {
		return ErrEmptyAPIKey
	}
	switch c.AudioFormat {
	case "g711_ulaw":
	case "pcm16":
		if c.SampleRate <= 0 {
			return ErrInvalidSampleRate
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidAudioFormat, c.AudioFormat)
	}
	if c.TurnDetection != TurnModeLocal && c.TurnDetection != TurnModeServerVAD {
		return ErrInvalidTurnMode
	}
	if c.ReconnectAttempts <= 0 {
		return ErrInvalidAttempts
	}
	if c.ConfigTimeout <= 0 {
		return fmt.Errorf("config_timeout: %w", ErrInvalidTimeout)
	}
	return nil
}

// ServerVAD 是否由服务端检测轮次
func (c *ModelConfig) ServerVAD() bool {
	return c.TurnDetection == TurnModeServerVAD
}

// Endpoint 返回带model查询参数的完整地址
func (c *ModelConfig) Endpoint() string {
	u, err := url.Parse(c.URL)
	if err != nil || c.Model == "" {
		return c.URL
	}
	q := u.Query()
	if q.Get("model") == "" {
		q.Set("model", c.Model)
		u.RawQuery = q.Encode()
	}
	return u.String()
}
