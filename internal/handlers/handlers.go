package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ai_phone_bridge/internal/bridge"
)

// StatusHandler 健康检查与会话列表
type StatusHandler struct {
	manager   *bridge.Manager
	startedAt time.Time
}

// NewStatusHandler 创建状态处理器
func NewStatusHandler(manager *bridge.Manager) *StatusHandler {
	return &StatusHandler{manager: manager, startedAt: time.Now()}
}

// Health 健康检查
func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  "ai_phone_bridge",
		"sessions": h.manager.Count(),
		"uptime":   time.Since(h.startedAt).Round(time.Second).String(),
		"time":     time.Now().Format(time.RFC3339),
	})
}

// Sessions 列出进行中的通话
func (h *StatusHandler) Sessions(c *gin.Context) {
	sessions := h.manager.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// Session 查询单通电话
func (h *StatusHandler) Session(c *gin.Context) {
	session, ok := h.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	c.JSON(http.StatusOK, session.Info())
}
