package service

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"code_arena/internal/models"
	"code_arena/internal/repository"
)

// ProblemPicker 定義隨機模式下的抽題策略
// 傳入候選題目 ID 列表（保證非空），返回選中的一題
type ProblemPicker func(candidates []uint) uint

// CreateRoomInput 定義創建房間的配置
type CreateRoomInput struct {
	MaxParticipants      int    `json:"max_participants"`
	ProblemSelectionMode string `json:"problem_selection_mode"`
	ProblemID            *uint  `json:"problem_id"`
	IsPrivate            bool   `json:"is_private"`
}

// RoomService 實現房間生命週期的狀態機：
// 成員管理（加入、離開、準備）與開始仲裁（waiting → active 恰好一次）
type RoomService struct {
	roomRepo    repository.RoomRepository
	problemRepo repository.ProblemRepository
	hub         *RoomHub
	logger      *zap.Logger
	pickProblem ProblemPicker
}

func NewRoomService(roomRepo repository.RoomRepository, problemRepo repository.ProblemRepository,
	hub *RoomHub, logger *zap.Logger, picker ProblemPicker) *RoomService {
	return &RoomService{
		roomRepo:    roomRepo,
		problemRepo: problemRepo,
		hub:         hub,
		logger:      logger,
		pickProblem: picker,
	}
}

// 生成唯一房間代碼的最大重試次數
// 36^6 約 21 億種組合，碰撞本身就極少見
const maxCodeAttempts = 5

// CreateRoom 創建新房間並將創建者加入為第一位成員
func (s *RoomService) CreateRoom(creatorID uint, username string, input CreateRoomInput) (*models.Room, error) {
	if input.MaxParticipants < 1 || input.MaxParticipants > 4 {
		return nil, models.ErrInvalidConfig
	}
	mode := models.ProblemSelectionMode(input.ProblemSelectionMode)
	if mode != models.SelectionModeSingle && mode != models.SelectionModeRandom {
		return nil, models.ErrInvalidConfig
	}
	// single 模式必須在建房時指定題目；random 模式的題目在開始時才確定
	if mode == models.SelectionModeSingle && input.ProblemID == nil {
		return nil, models.ErrInvalidConfig
	}

	var code string
	for attempt := 0; ; attempt++ {
		c, err := models.GenerateRoomCode()
		if err != nil {
			return nil, err
		}
		if _, err := s.roomRepo.FindByID(c); errors.Is(err, models.ErrRoomNotFound) {
			code = c
			break
		} else if err != nil {
			return nil, err
		}
		if attempt >= maxCodeAttempts {
			return nil, models.ErrInvalidConfig
		}
		s.logger.Warn("房間代碼碰撞，重新生成", zap.String("code", c))
	}

	room := &models.Room{
		ID:                   code,
		CreatedBy:            creatorID,
		ProblemSelectionMode: mode,
		MaxParticipants:      input.MaxParticipants,
		Status:               models.RoomStatusWaiting,
		IsPrivate:            input.IsPrivate,
	}
	if mode == models.SelectionModeSingle {
		room.ProblemID = input.ProblemID
	}
	creator := &models.RoomParticipant{
		UserID:   creatorID,
		Username: username,
		IsReady:  false,
		JoinedAt: time.Now(),
	}
	if err := s.roomRepo.Create(room, creator); err != nil {
		return nil, err
	}

	s.logger.Info("房間已創建",
		zap.String("room_id", code),
		zap.Uint("created_by", creatorID),
		zap.String("mode", string(mode)))
	return s.roomRepo.FindByID(code)
}

// GetRoom 獲取房間及在房成員的完整狀態，是輪詢重新拉取的目標
func (s *RoomService) GetRoom(code string) (*models.Room, error) {
	normalized, ok := models.NormalizeRoomCode(code)
	if !ok {
		return nil, models.ErrRoomNotFound
	}
	return s.roomRepo.FindByID(normalized)
}

// ListPublicRooms 列出公開且等待中的房間
func (s *RoomService) ListPublicRooms() ([]models.Room, error) {
	return s.roomRepo.ListPublicWaiting()
}

// ListUserRooms 列出用戶當前在房的所有房間
func (s *RoomService) ListUserRooms(userID uint) ([]models.Room, error) {
	return s.roomRepo.ListActiveForUser(userID)
}

// JoinRoom 將用戶加入房間
// 容量檢查與寫入的原子性由存儲層保證；重複加入是冪等操作
func (s *RoomService) JoinRoom(code string, userID uint, username string) (*models.Room, error) {
	normalized, ok := models.NormalizeRoomCode(code)
	if !ok {
		return nil, models.ErrRoomNotFound
	}
	if err := s.roomRepo.AddParticipant(normalized, userID, username); err != nil {
		return nil, err
	}
	s.hub.BroadcastEvent(normalized, models.RoomEvent{
		Type:   models.EventTypeParticipantChanged,
		RoomID: normalized,
	})
	return s.roomRepo.FindByID(normalized)
}

// LeaveRoom 軟刪除成員記錄，立即釋放一個容量空位
// 用戶不在房內時視為無操作
func (s *RoomService) LeaveRoom(code string, userID uint) error {
	normalized, ok := models.NormalizeRoomCode(code)
	if !ok {
		return models.ErrRoomNotFound
	}
	if err := s.roomRepo.MarkLeft(normalized, userID, time.Now()); err != nil {
		return err
	}
	s.hub.BroadcastEvent(normalized, models.RoomEvent{
		Type:   models.EventTypeParticipantChanged,
		RoomID: normalized,
	})
	return nil
}

// SetReady 更新用戶自己的準備狀態，只能修改自己的記錄
func (s *RoomService) SetReady(code string, userID uint, isReady bool) error {
	normalized, ok := models.NormalizeRoomCode(code)
	if !ok {
		return models.ErrRoomNotFound
	}
	if err := s.roomRepo.SetReady(normalized, userID, isReady); err != nil {
		return err
	}
	s.hub.BroadcastEvent(normalized, models.RoomEvent{
		Type:   models.EventTypeParticipantChanged,
		RoomID: normalized,
	})
	return nil
}

// DeleteRoom 刪除房間，只允許房主在房間尚未開始時操作
func (s *RoomService) DeleteRoom(code string, requesterID uint) error {
	normalized, ok := models.NormalizeRoomCode(code)
	if !ok {
		return models.ErrRoomNotFound
	}
	room, err := s.roomRepo.FindByID(normalized)
	if err != nil {
		return err
	}
	if room.CreatedBy != requesterID {
		return models.ErrForbidden
	}
	if room.Status != models.RoomStatusWaiting {
		return models.ErrRoomNotDeletable
	}
	if err := s.roomRepo.Delete(normalized); err != nil {
		return err
	}
	s.hub.BroadcastEvent(normalized, models.RoomEvent{
		Type:   models.EventTypeRoomChanged,
		RoomID: normalized,
	})
	return nil
}

// StartRoom 把房間從 waiting 轉為 active，整個系統中恰好成功一次
// 返回確定的題目 ID，調用方可以直接跳轉而不需要再拉取一次
func (s *RoomService) StartRoom(code string, requesterID uint) (uint, error) {
	normalized, ok := models.NormalizeRoomCode(code)
	if !ok {
		return 0, models.ErrRoomNotFound
	}
	room, err := s.roomRepo.FindByID(normalized)
	if err != nil {
		return 0, err
	}
	if room.CreatedBy != requesterID {
		return 0, models.ErrForbidden
	}
	if room.Status != models.RoomStatusWaiting {
		return 0, models.ErrAlreadyStarted
	}
	// 準備狀態必須讀取當前在房成員的最新快照，已離開的成員不參與判定
	if !room.AllReady() {
		return 0, models.ErrNotReady
	}

	problemID, err := s.resolveProblem(room)
	if err != nil {
		return 0, err
	}

	// 狀態檢查與寫入由存儲層的 compare-and-set 保證原子：
	// 並發的開始請求只有一個會成功，其餘觀察到 AlreadyStarted
	started, err := s.roomRepo.TryStart(normalized, problemID, time.Now())
	if err != nil {
		return 0, err
	}
	if !started {
		return 0, models.ErrAlreadyStarted
	}

	s.logger.Info("房間已開始",
		zap.String("room_id", normalized),
		zap.Uint("problem_id", problemID))
	s.hub.BroadcastEvent(normalized, models.RoomEvent{
		Type:   models.EventTypeStatusChanged,
		RoomID: normalized,
		Status: models.RoomStatusActive,
	})
	return problemID, nil
}

// CompleteRoom 把房間從 active 轉為 completed，記錄獲勝者與結束時間
// 由評測系統在首個通過的提交出現時調用；requester 必須是在房成員
func (s *RoomService) CompleteRoom(code string, requesterID uint) error {
	normalized, ok := models.NormalizeRoomCode(code)
	if !ok {
		return models.ErrRoomNotFound
	}
	room, err := s.roomRepo.FindByID(normalized)
	if err != nil {
		return err
	}
	if room.FindActiveParticipant(requesterID) == nil {
		return models.ErrNotAParticipant
	}
	completed, err := s.roomRepo.TryComplete(normalized, requesterID, time.Now())
	if err != nil {
		return err
	}
	if !completed {
		return models.ErrRoomNotActive
	}

	s.logger.Info("房間已結束",
		zap.String("room_id", normalized),
		zap.Uint("winner_id", requesterID))
	s.hub.BroadcastEvent(normalized, models.RoomEvent{
		Type:   models.EventTypeStatusChanged,
		RoomID: normalized,
		Status: models.RoomStatusCompleted,
	})
	return nil
}

// RandomJoin 隨機加入一個有空位的公開房間
// 找不到或加入時輸掉競態都降級為創建新房間，調用方最終一定在某個房間內
func (s *RoomService) RandomJoin(userID uint, username string) (*models.Room, error) {
	for attempt := 0; attempt < 3; attempt++ {
		room, err := s.roomRepo.FindJoinable()
		if errors.Is(err, models.ErrRoomNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		joined, err := s.JoinRoom(room.ID, userID, username)
		if errors.Is(err, models.ErrRoomFull) || errors.Is(err, models.ErrRoomNotJoinable) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return joined, nil
	}
	return s.CreateRoom(userID, username, CreateRoomInput{
		MaxParticipants:      4,
		ProblemSelectionMode: string(models.SelectionModeRandom),
	})
}

// GetProblem 解析題目 ID 為顯示用的標題與難度
func (s *RoomService) GetProblem(id uint) (*models.Problem, error) {
	return s.problemRepo.FindByID(id)
}

// resolveProblem 確定房間開始時使用的題目
func (s *RoomService) resolveProblem(room *models.Room) (uint, error) {
	if room.ProblemSelectionMode == models.SelectionModeSingle {
		if room.ProblemID == nil {
			return 0, models.ErrInvalidConfig
		}
		return *room.ProblemID, nil
	}
	candidates, err := s.problemRepo.ListIDs()
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, models.ErrNoProblems
	}
	return s.pickProblem(candidates), nil
}
