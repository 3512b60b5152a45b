package models

import "errors"

// 房間操作的錯誤分類
// 服務層返回這些 sentinel error，由 handler 層用 errors.Is 映射為 HTTP 狀態碼
var (
	ErrInvalidConfig    = errors.New("房間配置無效")
	ErrRoomNotFound     = errors.New("房間不存在")
	ErrRoomNotJoinable  = errors.New("房間不開放加入")
	ErrRoomFull         = errors.New("房間已滿")
	ErrNotAParticipant  = errors.New("用戶未加入此房間")
	ErrForbidden        = errors.New("只有房主可以執行此操作")
	ErrNotReady         = errors.New("尚有成員未準備完成")
	ErrAlreadyStarted   = errors.New("房間已經開始")
	ErrRoomNotDeletable = errors.New("房間已開始，無法刪除")
	ErrRoomNotActive    = errors.New("房間尚未開始或已結束")
	ErrNoProblems       = errors.New("題庫中沒有可用的題目")
)
