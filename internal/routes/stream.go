package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"ai_phone_bridge/internal/bridge"
	"ai_phone_bridge/internal/config"
	"ai_phone_bridge/internal/handlers"
)

// RegisterStreamRoutes 注册媒体流WebSocket路由
func RegisterStreamRoutes(r *gin.Engine, manager *bridge.Manager, cfg *config.Config, logger *slog.Logger) {
	stream := handlers.NewMediaStreamHandler(manager, cfg, logger)
	r.GET(handlers.MediaStreamPath, stream.HandleWebSocket)
}
