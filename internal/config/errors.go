package config

import "errors"

// 配置相关错误
var (
	ErrEmptyHost          = errors.New("服务器地址不能为空")
	ErrInvalidPort        = errors.New("服务器端口必须大于0")
	ErrInvalidPublicURL   = errors.New("公网地址必须是http或https地址")
	ErrEmptyModelURL      = errors.New("模型WebSocket地址不能为空")
	ErrInvalidModelURL    = errors.New("模型地址必须是ws或wss地址")
	ErrEmptyAPIKey        = errors.New("模型APIKey不能为空")
	ErrInvalidAudioFormat = errors.New("不支持的音频格式")
	ErrInvalidSampleRate  = errors.New("pcm16格式需要有效采样率")
	ErrInvalidTurnMode    = errors.New("轮次检测方式只能是none或server_vad")
	ErrInvalidAttempts    = errors.New("重连次数必须大于0")
	ErrInvalidTimeout     = errors.New("超时时间必须大于0")
	ErrInvalidSilence     = errors.New("静音阈值必须大于0")
	ErrInvalidCeiling     = errors.New("缓冲上限必须不小于静音阈值")
	ErrInvalidEnergy      = errors.New("能量阈值不能为负数")
	ErrInvalidLogLevel    = errors.New("日志级别无效")
	ErrInvalidLogFormat   = errors.New("日志格式无效")
)
