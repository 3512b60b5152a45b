package models

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	roomCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// RoomCodeLength 房間代碼的固定長度
	RoomCodeLength = 6
)

// GenerateRoomCode 生成一個 6 位大寫英數字的房間代碼
func GenerateRoomCode() (string, error) {
	code := make([]byte, RoomCodeLength)
	for i := 0; i < RoomCodeLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = roomCodeCharset[num.Int64()]
	}
	return string(code), nil
}

// NormalizeRoomCode 規範化用戶輸入的房間代碼
// 轉為大寫並去除非法字符，規範化後長度不是 6 則視為無效
func NormalizeRoomCode(input string) (string, bool) {
	var sb strings.Builder
	for _, c := range strings.ToUpper(strings.TrimSpace(input)) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			sb.WriteRune(c)
		}
	}
	code := sb.String()
	return code, len(code) == RoomCodeLength
}
