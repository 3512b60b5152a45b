package models

import (
	"gorm.io/gorm"
)

// Problem 表示題庫中的一道題目
// 核心只需要題目 ID 與顯示用的標題、難度，題目內容由外部系統維護
type Problem struct {
	gorm.Model
	Title      string `gorm:"size:200;not null" json:"title"`
	Difficulty string `gorm:"size:20;not null" json:"difficulty"` // EASY / MEDIUM / HARD
}
