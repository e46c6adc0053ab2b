package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"ai_phone_bridge/internal/bridge"
	"ai_phone_bridge/internal/config"
	"ai_phone_bridge/internal/handlers"
	"ai_phone_bridge/internal/metrics"
)

// Deps 路由依赖
type Deps struct {
	Config  *config.Config
	Manager *bridge.Manager
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, deps Deps) {
	status := handlers.NewStatusHandler(deps.Manager)
	r.GET("/health", status.Health)
	r.GET("/sessions", status.Sessions)
	r.GET("/sessions/:id", status.Session)

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// 注册来电回调路由
	RegisterVoiceRoutes(r, deps.Config)

	// 注册媒体流路由
	RegisterStreamRoutes(r, deps.Manager, deps.Config, deps.Logger)
}
