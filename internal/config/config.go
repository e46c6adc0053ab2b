// Package config 提供配置加载和管理功能
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config 应用程序配置结构。加载完成后只读，按指针传给各组件。
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Turn      TurnConfig      `yaml:"turn"`
	Call      CallConfig      `yaml:"call"`
	Customers CustomersConfig `yaml:"customers"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Notes 加载过程中产生的提示，由调用方记录日志
	Notes []string `yaml:"-"`
}

// ServerConfig HTTP服务器配置
type ServerConfig struct {
	Host            string        `yaml:"host" env:"BRIDGE_HOST"`                           // 服务器监听地址
	Port            int           `yaml:"port" env:"PORT"`                                  // 服务器监听端口
	PublicURL       string        `yaml:"public_url" env:"BRIDGE_PUBLIC_URL"`               // 运营商访问本服务的公网地址
	ReadBufferSize  int           `yaml:"read_buffer_size" env:"BRIDGE_READ_BUFFER_SIZE"`   // 读缓冲区大小
	WriteBufferSize int           `yaml:"write_buffer_size" env:"BRIDGE_WRITE_BUFFER_SIZE"` // 写缓冲区大小
	MaxSessions     int64         `yaml:"max_sessions" env:"BRIDGE_MAX_SESSIONS"`           // 最大并发通话数
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"BRIDGE_SHUTDOWN_TIMEOUT"`   // 优雅退出超时
}

// CustomersConfig 客户资料配置
type CustomersConfig struct {
	CSVPath string `yaml:"csv_path" env:"BRIDGE_CUSTOMERS_CSV"` // 分号分隔的客户订单表，为空则不查询
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" env:"BRIDGE_LOG_LEVEL"`   // debug、info、warn、error
	Format string `yaml:"format" env:"BRIDGE_LOG_FORMAT"` // text或json
	Output string `yaml:"output" env:"BRIDGE_LOG_OUTPUT"` // stdout、stderr或文件路径
}

// Default 返回全部使用默认值的配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5050,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			MaxSessions:     100,
			ShutdownTimeout: 10 * time.Second,
		},
		Model: *NewModelConfig(),
		Turn:  *NewTurnConfig(),
		Call:  *NewCallConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load 从文件加载配置，环境变量覆盖文件中的值。
// filename为空或文件不存在时只使用默认值与环境变量。
func Load(filename string) (*Config, error) {
	config := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case errors.Is(err, os.ErrNotExist):
			config.Notes = append(config.Notes, fmt.Sprintf("配置文件 %s 不存在，使用默认配置", filename))
		case err != nil:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("解析配置文件失败: %w", err)
			}
		}
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Server.Host == "" {
		c.Server.Host = def.Server.Host
	}
	if c.Server.ReadBufferSize == 0 {
		c.Server.ReadBufferSize = def.Server.ReadBufferSize
	}
	if c.Server.WriteBufferSize == 0 {
		c.Server.WriteBufferSize = def.Server.WriteBufferSize
	}
	if c.Server.MaxSessions == 0 {
		c.Server.MaxSessions = def.Server.MaxSessions
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.Logging.Output == "" {
		c.Logging.Output = def.Logging.Output
	}

	c.Notes = append(c.Notes, c.Model.applyDefaults()...)
	c.Turn.applyDefaults()
	c.Call.applyDefaults()
}

// Validate 逐项验证配置
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if err := c.Turn.Validate(); err != nil {
		return fmt.Errorf("turn: %w", err)
	}
	if err := c.Call.Validate(); err != nil {
		return fmt.Errorf("call: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// Validate 验证服务器配置
func (c *ServerConfig) Validate() error {
	if c.Host == "" {
		return ErrEmptyHost
	}
	if c.Port <= 0 {
		return ErrInvalidPort
	}
	if c.PublicURL != "" {
		u, err := url.Parse(c.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidPublicURL
		}
	}
	return nil
}

// Addr 返回监听地址
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate 验证日志配置
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %s", ErrInvalidLogLevel, c.Level)
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %s", ErrInvalidLogFormat, c.Format)
	}
	return nil
}
