package models

import (
	"time"
)

// Room 表示一個對戰房間
// ID 是 6 位大寫英數字的房間代碼，建立後不可變更
type Room struct {
	ID                   string               `gorm:"primaryKey;size:6" json:"id"`
	CreatedBy            uint                 `gorm:"not null;index" json:"created_by"`
	ProblemID            *uint                `json:"problem_id"`
	ProblemSelectionMode ProblemSelectionMode `gorm:"size:20;not null" json:"problem_selection_mode"`
	MaxParticipants      int                  `gorm:"not null;default:4" json:"max_participants"`
	Status               RoomStatus           `gorm:"size:20;not null;index" json:"status"`
	StartedAt            *time.Time           `json:"started_at"`
	EndedAt              *time.Time           `json:"ended_at"`
	WinnerID             *uint                `json:"winner_id"`
	IsPrivate            bool                 `gorm:"not null;default:false" json:"is_private"`
	CreatedAt            time.Time            `json:"created_at"`
	Participants         []RoomParticipant    `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
}

// RoomStatus 定義房間狀態的類型
// 狀態只允許單向轉換：waiting → active → completed
type RoomStatus string

const (
	RoomStatusWaiting   RoomStatus = "waiting"
	RoomStatusActive    RoomStatus = "active"
	RoomStatusCompleted RoomStatus = "completed"
)

// ProblemSelectionMode 定義題目選擇模式
// single 在建房時指定題目，random 在開始時隨機抽題
type ProblemSelectionMode string

const (
	SelectionModeSingle ProblemSelectionMode = "single"
	SelectionModeRandom ProblemSelectionMode = "random"
)

// RoomParticipant 表示用戶在房間內的成員記錄
// 離開採用軟刪除（設置 LeftAt），保留歷史記錄
type RoomParticipant struct {
	ID       uint       `gorm:"primaryKey" json:"id"`
	RoomID   string     `gorm:"size:6;not null;index" json:"room_id"`
	UserID   uint       `gorm:"not null;index" json:"user_id"`
	Username string     `gorm:"size:50;not null" json:"username"`
	IsReady  bool       `gorm:"not null;default:false" json:"is_ready"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at"`
}

// HasLeft 判斷成員是否已離開房間
func (p *RoomParticipant) HasLeft() bool {
	return p.LeftAt != nil
}

// ActiveParticipants 返回尚未離開的成員列表
func (r *Room) ActiveParticipants() []RoomParticipant {
	active := make([]RoomParticipant, 0, len(r.Participants))
	for _, p := range r.Participants {
		if !p.HasLeft() {
			active = append(active, p)
		}
	}
	return active
}

// FindActiveParticipant 查找指定用戶尚未離開的成員記錄
func (r *Room) FindActiveParticipant(userID uint) *RoomParticipant {
	for i := range r.Participants {
		if r.Participants[i].UserID == userID && !r.Participants[i].HasLeft() {
			return &r.Participants[i]
		}
	}
	return nil
}

// AllReady 判斷是否所有在房成員都已準備完成
func (r *Room) AllReady() bool {
	active := r.ActiveParticipants()
	if len(active) == 0 {
		return false
	}
	for _, p := range active {
		if !p.IsReady {
			return false
		}
	}
	return true
}
