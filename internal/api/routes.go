package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"debate_arena/internal/api/handlers"
	"debate_arena/internal/middleware"
	"debate_arena/internal/service"
	"debate_arena/internal/utils"
)

func SetupRoutes(r *gin.Engine, services *service.Services, tokens *utils.TokenManager, allowedOrigins []string) {
	// 配置跨域中間件，未設定來源時允許所有來源但不帶 cookie
	corsConfig := cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	r.Use(cors.New(corsConfig))

	// 初始化 handlers
	roomHandler := handlers.NewRoomHandler(services.RoomService)
	wsHandler := handlers.NewWebSocketHandler(services.WebSocketManager, services.RoomService, allowedOrigins)

	// API 路由群組
	api := r.Group("/api")

	// 處理 404 錯誤
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "找不到該路徑",
			"code":  "not_found",
		})
	})

	// 基本的健康檢查
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// 需要驗證的路由
	authorized := api.Group("/")
	authorized.Use(middleware.AuthMiddleware(tokens))
	{
		// 辯論室相關
		rooms := authorized.Group("/rooms")
		{
			rooms.POST("", roomHandler.CreateRoom)
			rooms.GET("/:id", roomHandler.GetRoom)
			rooms.GET("/:id/messages", roomHandler.GetMessages)
			rooms.POST("/:id/messages", roomHandler.SendMessage)

			// 階段與生命週期
			rooms.POST("/:id/votes", roomHandler.CastVote)
			rooms.POST("/:id/voting", roomHandler.StartVoting)
			rooms.POST("/:id/end", roomHandler.EndRoom)

			// 參與者個人狀態
			rooms.PUT("/:id/privacy", roomHandler.SetPrivacy)
			rooms.POST("/:id/read", roomHandler.MarkRead)

			// WebSocket 連接點，連線後自動加入房間
			rooms.GET("/:id/ws", wsHandler.HandleWebSocket)
		}

		messages := authorized.Group("/messages")
		{
			messages.POST("/:id/flags", roomHandler.FlagMessage)
			messages.PUT("/:id/moderation", roomHandler.ModerateMessage)
		}

		authorized.GET("/users/:userId/rooms", roomHandler.ListUserRooms)
		authorized.GET("/ws", wsHandler.HandleWebSocket)
	}
}
