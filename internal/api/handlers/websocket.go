package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"code_arena/internal/service"
)

// 定義 WebSocket 升級器
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 注意：在生產環境中，應該檢查 origin
	},
}

// WebSocketHandler 處理房間頻道的 WebSocket 連接
type WebSocketHandler struct {
	hub         *service.RoomHub
	roomService *service.RoomService
}

// NewWebSocketHandler 創建一個新的 WebSocketHandler 實例
func NewWebSocketHandler(hub *service.RoomHub, roomService *service.RoomService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		roomService: roomService,
	}
}

// HandleWebSocket 把 HTTP 連接升級為房間頻道的 WebSocket 連接
// 只有在房成員可以訂閱；連接斷開不影響房間狀態，
// 客戶端靠輪詢補償期間丟失的事件
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	room, err := h.roomService.GetRoom(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "房間不存在"})
		return
	}

	userID, username := currentUser(c)
	if room.FindActiveParticipant(userID) == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "用戶未加入此房間"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "升級WebSocket失敗"})
		return
	}

	h.hub.HandleConnection(conn, room.ID, userID, username)
}
