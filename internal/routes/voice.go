package routes

import (
	"github.com/gin-gonic/gin"

	"ai_phone_bridge/internal/config"
	"ai_phone_bridge/internal/handlers"
)

// RegisterVoiceRoutes 注册来电回调相关路由
func RegisterVoiceRoutes(r *gin.Engine, cfg *config.Config) {
	voice := handlers.NewVoiceHandler(cfg)

	r.GET("/", voice.Home)
	r.GET("/voice", voice.Voice)
	r.POST("/voice", voice.Voice)
	r.POST("/telefon", voice.Telefon)
	r.POST("/antwort", voice.Antwort)
}
