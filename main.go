package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"code_arena/internal/api"
	"code_arena/internal/models"
	"code_arena/internal/repository"
	"code_arena/internal/service"
	"code_arena/internal/storage"
	"code_arena/internal/utils"
	"code_arena/pkg/config"
)

func main() {
	// 載入應用程式配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化結構化日誌
	logger, err := utils.InitLogger()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	utils.SetJWTSecret(cfg.JWT.Secret)

	// 初始化資料庫連接
	db, err := storage.NewPostgresDB(cfg.DB.Host, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.Port)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// 自動遷移資料庫結構
	if err := db.AutoMigrate(&models.User{}, &models.Room{}, &models.RoomParticipant{}, &models.Problem{}); err != nil {
		log.Fatalf("Failed to auto migrate database: %v", err)
	}

	// 初始化 repositories 與 services
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, logger)

	// 啟動定時清理任務
	cleaner := service.StartCleanupJobs(db.DB, logger, cfg.Cleanup.MaxRoomAge)
	defer cleaner.Stop()

	// 設置 Gin 路由
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(utils.RequestLogger(logger))
	api.SetupRoutes(r, services, cfg.Server.AllowOrigins)

	// 啟動伺服器
	if err := r.Run(cfg.Server.Address); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
