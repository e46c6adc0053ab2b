package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ai_phone_bridge/internal/bridge"
	"ai_phone_bridge/internal/config"
)

// MediaStreamHandler 运营商媒体流WebSocket处理器
type MediaStreamHandler struct {
	manager      *bridge.Manager
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewMediaStreamHandler 创建媒体流处理器
func NewMediaStreamHandler(manager *bridge.Manager, cfg *config.Config, logger *slog.Logger) *MediaStreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaStreamHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.Server.ReadBufferSize,
			WriteBufferSize: cfg.Server.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		writeTimeout: cfg.Call.WriteTimeout,
		logger:       logger,
	}
}

// HandleWebSocket 升级连接并运行通话会话，直到通话结束才返回
func (h *MediaStreamHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("升级WebSocket连接失败", "remote", c.ClientIP(), "error", err)
		return
	}

	carrier := bridge.NewCarrierConn(conn, h.writeTimeout)
	err = h.manager.Serve(c.Request.Context(), carrier, c.ClientIP())
	if errors.Is(err, bridge.ErrTooManySessions) {
		h.logger.Warn("并发通话已满，拒绝媒体流", "remote", c.ClientIP())
	}
}
