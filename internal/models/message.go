package models

import (
	"time"
)

// 房間 WebSocket 頻道上的事件類型
// 狀態變更事件只作為重新拉取的提示，客戶端不應信任事件內容本身
const (
	EventTypeChat               = "chat"
	EventTypeRoomChanged        = "room_changed"
	EventTypeParticipantChanged = "participant_changed"
	EventTypeStatusChanged      = "status_changed"
)

// RoomEvent 代表房間頻道上的一條消息
// 聊天消息與狀態變更提示共用同一個 WebSocket 頻道
type RoomEvent struct {
	Type    string       `json:"type"`
	RoomID  string       `json:"room_id"`
	Status  RoomStatus   `json:"status,omitempty"`
	Message *ChatMessage `json:"message,omitempty"`
}

// ChatMessage 代表一條房間聊天消息
// 僅在房間存續期間存在，不寫入資料庫
type ChatMessage struct {
	RoomID     string    `json:"room_id"`
	SenderID   uint      `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// 判定兩條消息為同一條消息的時間窗口
// 客戶端樂觀顯示的消息與服務端回送的 echo 以此規則去重
const chatDedupWindow = time.Second

// SameAs 判斷兩條消息是否應視為同一條消息
// 規則：發送者名稱與內容相同，且時間戳相差在 1 秒以內
func (m *ChatMessage) SameAs(other *ChatMessage) bool {
	if m.SenderName != other.SenderName || m.Content != other.Content {
		return false
	}
	diff := m.Timestamp.Sub(other.Timestamp)
	if diff < 0 {
		diff = -diff
	}
	return diff < chatDedupWindow
}
