package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"code_arena/internal/models"
)

// Client 代表一個 WebSocket 客戶端連接
type Client struct {
	ID       string                // 連接的會話 ID
	Conn     *websocket.Conn       // WebSocket 連接
	UserID   uint                  // 用戶 ID
	Username string                // 顯示名稱
	RoomID   string                // 房間代碼
	SendChan chan models.RoomEvent // 事件發送通道，用於異步傳送
}

// RoomHub 管理每個房間的 WebSocket 連接
// 同一條頻道承載兩類消息：聊天消息與狀態變更提示。
// 狀態變更提示只告訴客戶端「該重新拉取了」，不攜帶權威狀態
type RoomHub struct {
	clients    map[string]map[*Client]bool // 兩層 map: roomID -> client -> bool
	clientsMux sync.RWMutex                // 用於保護 clients map 的讀寫鎖
	logger     *zap.Logger
}

// NewRoomHub 創建並初始化房間連接管理器
func NewRoomHub(logger *zap.Logger) *RoomHub {
	return &RoomHub{
		clients: make(map[string]map[*Client]bool),
		logger:  logger,
	}
}

// HandleConnection 處理新的 WebSocket 連接，阻塞直到連接關閉
func (h *RoomHub) HandleConnection(conn *websocket.Conn, roomID string, userID uint, username string) {
	client := &Client{
		ID:       uuid.NewString(),
		Conn:     conn,
		UserID:   userID,
		Username: username,
		RoomID:   roomID,
		SendChan: make(chan models.RoomEvent, 256),
	}

	h.addClient(client)

	// 確保連接關閉時清理資源
	defer func() {
		h.removeClient(client)
		conn.Close()
		close(client.SendChan)
	}()

	go h.writePump(client)
	h.readPump(client)
}

// readPump 持續讀取客戶端發來的聊天消息並廣播給整個房間
// 廣播包含發送者自己（echo），由客戶端按指紋規則去重
func (h *RoomHub) readPump(client *Client) {
	client.Conn.SetReadLimit(4096)
	client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket 非正常關閉", zap.Error(err))
			}
			break
		}

		var msg models.ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("聊天消息解析失敗", zap.Error(err))
			continue
		}

		// 發送者身份與房間以連接為準，客戶端提供的字段不可信
		msg.RoomID = client.RoomID
		msg.SenderID = client.UserID
		msg.SenderName = client.Username
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}

		h.BroadcastEvent(client.RoomID, models.RoomEvent{
			Type:    models.EventTypeChat,
			RoomID:  client.RoomID,
			Message: &msg,
		})
	}
}

// writePump 處理向客戶端發送事件與心跳
func (h *RoomHub) writePump(client *Client) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-client.SendChan:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("事件編碼失敗", zap.Error(err))
				continue
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// BroadcastEvent 向房間內的所有客戶端廣播一個事件
// 推送是盡力而為的：發送隊列已滿的客戶端會被斷開，
// 丟失的事件由客戶端的輪詢補償
func (h *RoomHub) BroadcastEvent(roomID string, event models.RoomEvent) {
	h.clientsMux.RLock()
	clients := make([]*Client, 0, len(h.clients[roomID]))
	for client := range h.clients[roomID] {
		clients = append(clients, client)
	}
	h.clientsMux.RUnlock()

	for _, client := range clients {
		select {
		case client.SendChan <- event:
			// 事件成功加入發送隊列
		default:
			// 客戶端消費太慢，關閉連接，由其重連後靠輪詢恢復
			h.removeClient(client)
			client.Conn.Close()
		}
	}
}

// addClient 安全地添加新的客戶端連接
func (h *RoomHub) addClient(client *Client) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	if h.clients[client.RoomID] == nil {
		h.clients[client.RoomID] = make(map[*Client]bool)
	}
	h.clients[client.RoomID][client] = true
}

// removeClient 安全地移除客戶端連接
func (h *RoomHub) removeClient(client *Client) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	if clients, ok := h.clients[client.RoomID]; ok {
		delete(clients, client)
		// 如果房間空了，刪除房間
		if len(clients) == 0 {
			delete(h.clients, client.RoomID)
		}
	}
}

// RoomClientCount 獲取指定房間的在線連接數量
func (h *RoomHub) RoomClientCount(roomID string) int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()

	return len(h.clients[roomID])
}
