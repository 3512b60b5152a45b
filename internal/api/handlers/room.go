package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"code_arena/internal/models"
	"code_arena/internal/service"
)

// RoomHandler 處理與對戰房間相關的請求
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 創建一個新的 RoomHandler 實例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	return &RoomHandler{roomService: roomService}
}

// statusForError 把服務層的錯誤分類映射為 HTTP 狀態碼
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrRoomFull),
		errors.Is(err, models.ErrRoomNotJoinable),
		errors.Is(err, models.ErrNotAParticipant),
		errors.Is(err, models.ErrNotReady),
		errors.Is(err, models.ErrAlreadyStarted),
		errors.Is(err, models.ErrRoomNotDeletable),
		errors.Is(err, models.ErrRoomNotActive),
		errors.Is(err, models.ErrNoProblems):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func currentUser(c *gin.Context) (uint, string) {
	userID, _ := c.Get("userID")
	username, _ := c.Get("username")
	return userID.(uint), username.(string)
}

// CreateRoom 處理創建新房間的請求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var input service.CreateRoomInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, username := currentUser(c)
	room, err := h.roomService.CreateRoom(userID, username, input)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, room)
}

// ListRooms 列出公開且等待中的房間
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.roomService.ListPublicRooms()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "獲取房間列表失敗"})
		return
	}

	c.JSON(http.StatusOK, rooms)
}

// ListMyRooms 列出當前用戶在房的所有房間
func (h *RoomHandler) ListMyRooms(c *gin.Context) {
	userID, _ := currentUser(c)
	rooms, err := h.roomService.ListUserRooms(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "獲取房間列表失敗"})
		return
	}

	c.JSON(http.StatusOK, rooms)
}

// GetRoom 獲取房間及在房成員的完整狀態
// 這是輪詢與推送提示共同指向的重新拉取端點
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.roomService.GetRoom(c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	// 回應中只保留尚未離開的成員
	room.Participants = room.ActiveParticipants()
	c.JSON(http.StatusOK, room)
}

// JoinRoom 處理加入房間的請求
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID, username := currentUser(c)

	room, err := h.roomService.JoinRoom(c.Param("id"), userID, username)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	room.Participants = room.ActiveParticipants()
	c.JSON(http.StatusOK, room)
}

// LeaveRoom 處理離開房間的請求
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	userID, _ := currentUser(c)

	if err := h.roomService.LeaveRoom(c.Param("id"), userID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "成功離開房間"})
}

// ReadyInput 定義準備狀態更新的請求結構
type ReadyInput struct {
	IsReady *bool `json:"is_ready" binding:"required"`
}

// SetReady 更新當前用戶的準備狀態
func (h *RoomHandler) SetReady(c *gin.Context) {
	var input ReadyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, _ := currentUser(c)
	if err := h.roomService.SetReady(c.Param("id"), userID, *input.IsReady); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "準備狀態已更新"})
}

// StartRoom 處理開始對戰的請求，返回確定的題目 ID
func (h *RoomHandler) StartRoom(c *gin.Context) {
	userID, _ := currentUser(c)

	problemID, err := h.roomService.StartRoom(c.Param("id"), userID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "對戰開始", "problem_id": problemID})
}

// CompleteRoom 處理結束對戰的請求，調用者被記錄為獲勝者
func (h *RoomHandler) CompleteRoom(c *gin.Context) {
	userID, _ := currentUser(c)

	if err := h.roomService.CompleteRoom(c.Param("id"), userID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "對戰結束"})
}

// DeleteRoom 處理刪除房間的請求
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	userID, _ := currentUser(c)

	if err := h.roomService.DeleteRoom(c.Param("id"), userID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "房間已刪除"})
}

// RandomJoin 隨機加入一個房間，找不到就創建新房間
func (h *RoomHandler) RandomJoin(c *gin.Context) {
	userID, username := currentUser(c)

	room, err := h.roomService.RandomJoin(userID, username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "隨機加入失敗"})
		return
	}

	room.Participants = room.ActiveParticipants()
	c.JSON(http.StatusOK, room)
}

// GetProblem 解析題目 ID 為顯示用的標題與難度
func (h *RoomHandler) GetProblem(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的題目 ID"})
		return
	}

	problem, err := h.roomService.GetProblem(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "題目不存在"})
		return
	}

	c.JSON(http.StatusOK, problem)
}
