package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"code_arena/internal/models"
	"code_arena/internal/storage"
)

// RoomRepository 提供房間與成員的存取操作
// 容量檢查與狀態轉換的原子性由存儲層保證：
// AddParticipant 在房間行鎖內完成容量檢查與寫入，
// TryStart / TryComplete 以條件更新實現 compare-and-set
type RoomRepository interface {
	Create(room *models.Room, creator *models.RoomParticipant) error
	FindByID(id string) (*models.Room, error)
	ListPublicWaiting() ([]models.Room, error)
	ListActiveForUser(userID uint) ([]models.Room, error)
	FindJoinable() (*models.Room, error)
	Delete(id string) error
	AddParticipant(roomID string, userID uint, username string) error
	MarkLeft(roomID string, userID uint, at time.Time) error
	SetReady(roomID string, userID uint, isReady bool) error
	TryStart(roomID string, problemID uint, at time.Time) (bool, error)
	TryComplete(roomID string, winnerID uint, at time.Time) (bool, error)
}

type roomRepository struct {
	db *storage.PostgresDB
}

func NewRoomRepository(db *storage.PostgresDB) RoomRepository {
	return &roomRepository{db: db}
}

// Create 在同一個事務中建立房間並將創建者寫入為第一位成員
func (r *roomRepository) Create(room *models.Room, creator *models.RoomParticipant) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		creator.RoomID = room.ID
		return tx.Create(creator).Error
	})
}

func (r *roomRepository) FindByID(id string) (*models.Room, error) {
	var room models.Room
	err := r.db.Preload("Participants").First(&room, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

// ListPublicWaiting 查詢公開且等待中的房間，供大廳列表使用
// 私人房間不出現在列表中，但仍可通過房間代碼加入
func (r *roomRepository) ListPublicWaiting() ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.Preload("Participants").
		Where("status = ? AND is_private = ?", models.RoomStatusWaiting, false).
		Order("created_at DESC").
		Find(&rooms).Error
	return rooms, err
}

// ListActiveForUser 查詢用戶當前在房（尚未離開）的所有房間
func (r *roomRepository) ListActiveForUser(userID uint) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.Preload("Participants").
		Joins("JOIN room_participants ON room_participants.room_id = rooms.id").
		Where("room_participants.user_id = ? AND room_participants.left_at IS NULL", userID).
		Order("rooms.created_at DESC").
		Find(&rooms).Error
	return rooms, err
}

// FindJoinable 隨機加入用：找一個還有空位的公開等待房間
func (r *roomRepository) FindJoinable() (*models.Room, error) {
	var rooms []models.Room
	err := r.db.Preload("Participants").
		Where("status = ? AND is_private = ?", models.RoomStatusWaiting, false).
		Order("created_at ASC").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	for i := range rooms {
		if len(rooms[i].ActiveParticipants()) < rooms[i].MaxParticipants {
			return &rooms[i], nil
		}
	}
	return nil, models.ErrRoomNotFound
}

func (r *roomRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&models.RoomParticipant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Room{}, "id = ?", id).Error
	})
}

// AddParticipant 將用戶加入房間
// 在房間行的 FOR UPDATE 鎖內完成狀態檢查、容量檢查與寫入，
// 兩個客戶端搶最後一個空位時只有一個能成功
func (r *roomRepository) AddParticipant(roomID string, userID uint, username string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var room models.Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&room, "id = ?", roomID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrRoomNotFound
			}
			return err
		}
		if room.Status != models.RoomStatusWaiting {
			return models.ErrRoomNotJoinable
		}

		// 重複加入是冪等操作：已在房內直接返回成功
		var existing models.RoomParticipant
		err = tx.Where("room_id = ? AND user_id = ?", roomID, userID).
			Order("joined_at DESC").
			First(&existing).Error
		if err == nil && !existing.HasLeft() {
			return nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var count int64
		if err := tx.Model(&models.RoomParticipant{}).
			Where("room_id = ? AND left_at IS NULL", roomID).
			Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(room.MaxParticipants) {
			return models.ErrRoomFull
		}

		// 曾經離開過則重新啟用原記錄，避免同一用戶出現兩條在房記錄
		if existing.ID != 0 {
			return tx.Model(&existing).Updates(map[string]interface{}{
				"left_at":   nil,
				"is_ready":  false,
				"username":  username,
				"joined_at": time.Now(),
			}).Error
		}
		return tx.Create(&models.RoomParticipant{
			RoomID:   roomID,
			UserID:   userID,
			Username: username,
			IsReady:  false,
			JoinedAt: time.Now(),
		}).Error
	})
}

// MarkLeft 軟刪除成員記錄，用戶不在房內時視為無操作
func (r *roomRepository) MarkLeft(roomID string, userID uint, at time.Time) error {
	return r.db.Model(&models.RoomParticipant{}).
		Where("room_id = ? AND user_id = ? AND left_at IS NULL", roomID, userID).
		Update("left_at", at).Error
}

// SetReady 更新用戶自己的準備狀態
func (r *roomRepository) SetReady(roomID string, userID uint, isReady bool) error {
	result := r.db.Model(&models.RoomParticipant{}).
		Where("room_id = ? AND user_id = ? AND left_at IS NULL", roomID, userID).
		Update("is_ready", isReady)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrNotAParticipant
	}
	return nil
}

// TryStart 以單條條件更新完成 waiting → active 的轉換
// 並發的開始請求中只有一個會更新到行，其餘返回 false
func (r *roomRepository) TryStart(roomID string, problemID uint, at time.Time) (bool, error) {
	result := r.db.Model(&models.Room{}).
		Where("id = ? AND status = ?", roomID, models.RoomStatusWaiting).
		Updates(map[string]interface{}{
			"status":     models.RoomStatusActive,
			"started_at": at,
			"problem_id": problemID,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// TryComplete 以單條條件更新完成 active → completed 的轉換
func (r *roomRepository) TryComplete(roomID string, winnerID uint, at time.Time) (bool, error) {
	result := r.db.Model(&models.Room{}).
		Where("id = ? AND status = ?", roomID, models.RoomStatusActive).
		Updates(map[string]interface{}{
			"status":    models.RoomStatusCompleted,
			"ended_at":  at,
			"winner_id": winnerID,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
