package service

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"code_arena/internal/models"
)

// StartCleanupJobs 啟動定時清理任務
// 清理長時間停留在 waiting 且已無在房成員的房間；
// 進行中的房間不論多久都不會被清理
func StartCleanupJobs(db *gorm.DB, logger *zap.Logger, maxAge time.Duration) *cron.Cron {
	c := cron.New()

	c.AddFunc("@hourly", func() {
		cutoff := time.Now().Add(-maxAge)

		staleIDs := []string{}
		db.Model(&models.Room{}).
			Where("status = ? AND created_at <= ?", models.RoomStatusWaiting, cutoff).
			Where("NOT EXISTS (SELECT 1 FROM room_participants WHERE room_participants.room_id = rooms.id AND room_participants.left_at IS NULL)").
			Pluck("id", &staleIDs)

		if len(staleIDs) == 0 {
			return
		}

		db.Where("room_id IN ?", staleIDs).Delete(&models.RoomParticipant{})
		result := db.Where("id IN ?", staleIDs).Delete(&models.Room{})
		if result.Error != nil {
			logger.Error("清理過期房間失敗", zap.Error(result.Error))
		} else {
			logger.Info("清理過期房間完成", zap.Int64("rooms_deleted", result.RowsAffected))
		}
	})

	c.Start()
	return c
}
