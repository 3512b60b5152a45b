package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"code_arena/internal/api/handlers"
	"code_arena/internal/middleware"
	"code_arena/internal/service"
)

func SetupRoutes(r *gin.Engine, services *service.Services, allowOrigins []string) {
	// 初始化 handlers
	authHandler := handlers.NewAuthHandler(services.User)
	roomHandler := handlers.NewRoomHandler(services.Room)
	wsHandler := handlers.NewWebSocketHandler(services.Hub, services.Room)

	// 前端以 SPA 方式訪問，需要允許跨域
	r.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	// API 路由群組
	api := r.Group("/api")

	// 處理 404 錯誤
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "找不到該路徑",
		})
	})

	// 公開路由
	{
		// 用戶認證相關
		api.POST("/register", authHandler.Register)
		api.POST("/login", authHandler.Login)

		// 基本的健康檢查
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	// 需要驗證的路由
	authorized := api.Group("/")
	authorized.Use(middleware.AuthMiddleware())
	{
		// 對戰房間相關
		rooms := authorized.Group("/rooms")
		{
			// 基本操作
			rooms.GET("", roomHandler.ListRooms)
			rooms.POST("", roomHandler.CreateRoom)
			rooms.POST("/random-join", roomHandler.RandomJoin)
			rooms.GET("/mine", roomHandler.ListMyRooms)
			// 完整房間狀態，輪詢的重新拉取目標
			rooms.GET("/:id", roomHandler.GetRoom)
			rooms.DELETE("/:id", roomHandler.DeleteRoom)

			// 房間參與
			rooms.POST("/:id/join", roomHandler.JoinRoom)
			rooms.POST("/:id/leave", roomHandler.LeaveRoom)
			rooms.POST("/:id/ready", roomHandler.SetReady)
			rooms.POST("/:id/start", roomHandler.StartRoom)
			rooms.POST("/:id/complete", roomHandler.CompleteRoom)

			// WebSocket 連接：狀態變更提示 + 房間聊天共用一條頻道
			rooms.GET("/:id/ws", wsHandler.HandleWebSocket)
		}

		// 題目顯示信息
		authorized.GET("/problems/:id", roomHandler.GetProblem)
	}
}
