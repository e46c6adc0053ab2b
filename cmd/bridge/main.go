package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"ai_phone_bridge/internal/bridge"
	"ai_phone_bridge/internal/clients/openai"
	"ai_phone_bridge/internal/config"
	"ai_phone_bridge/internal/customers"
	"ai_phone_bridge/internal/metrics"
	"ai_phone_bridge/internal/middleware"
	"ai_phone_bridge/internal/routes"
	"ai_phone_bridge/internal/servers"
)

const (
	defaultConfigPath = "config.yaml"
	serviceName       = "ai_phone_bridge"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	slog.SetDefault(logger)
	for _, note := range cfg.Notes {
		logger.Warn(note)
	}
	logger.Info("电话桥接服务启动中",
		"service", serviceName,
		"config_path", *configPath,
		"address", cfg.Server.Addr(),
		"model", cfg.Model.Model,
		"voice", cfg.Model.Voice,
		"audio_format", cfg.Model.AudioFormat,
		"turn_detection", cfg.Model.TurnDetection,
		"max_sessions", cfg.Server.MaxSessions,
	)

	directory := loadCustomers(cfg.Customers, logger)
	appMetrics := metrics.New()

	dialer := openai.NewDialer(openai.Config{
		URL:          cfg.Model.Endpoint(),
		APIKey:       cfg.Model.APIKey,
		Attempts:     cfg.Model.ReconnectAttempts,
		BackoffBase:  cfg.Model.BackoffBase,
		BackoffMax:   cfg.Model.BackoffMax,
		WriteTimeout: cfg.Call.WriteTimeout,
	}, logger.With("component", "model"))

	manager := bridge.NewManager(cfg, bridge.Deps{
		Dialer: bridge.DialFunc(func(ctx context.Context) (bridge.ModelConn, error) {
			conn, err := dialer.Dial(ctx)
			if err != nil {
				return nil, err
			}
			return conn, nil
		}),
		Customers: directory,
		Metrics:   appMetrics,
		Logger:    logger,
	})

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	middleware.Setup(engine, logger.With("component", "http"))
	routes.RegisterRoutes(engine, routes.Deps{
		Config:  cfg,
		Manager: manager,
		Metrics: appMetrics,
		Logger:  logger,
	})

	httpServer := servers.NewHTTPServer(cfg.Server.Addr(), engine, logger)
	if err := httpServer.Start(); err != nil {
		logger.Error("启动HTTP服务器失败", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("收到退出信号，开始优雅退出", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先停止接受新请求，再结束进行中的通话
	if err := httpServer.Stop(ctx); err != nil {
		logger.Error("停止HTTP服务器失败", "error", err)
	}
	if err := manager.Shutdown(ctx); err != nil {
		logger.Error("结束通话超时", "error", err, "remaining", manager.Count())
	}
	logger.Info("服务已停止")
}

func loadCustomers(cfg config.CustomersConfig, logger *slog.Logger) *customers.Directory {
	if cfg.CSVPath == "" {
		logger.Info("未配置客户表，跳过客户资料查询")
		return nil
	}
	directory, err := customers.Load(cfg.CSVPath)
	if err != nil {
		logger.Warn("加载客户表失败，跳过客户资料查询", "path", cfg.CSVPath, "error", err)
		return nil
	}
	logger.Info("客户表已加载", "path", cfg.CSVPath, "records", directory.Len())
	return directory
}

// initLogger 根据配置创建结构化日志
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "打开日志文件%s失败: %v，改用标准输出\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler)
}
