package repository

import (
	"code_arena/internal/models"
	"code_arena/internal/storage"
)

// ProblemRepository 提供題目目錄的讀取操作
// 隨機抽題只需要候選 ID 列表，題目內容由外部系統維護
type ProblemRepository interface {
	FindByID(id uint) (*models.Problem, error)
	ListIDs() ([]uint, error)
}

type problemRepository struct {
	db *storage.PostgresDB
}

func NewProblemRepository(db *storage.PostgresDB) ProblemRepository {
	return &problemRepository{db: db}
}

func (r *problemRepository) FindByID(id uint) (*models.Problem, error) {
	var problem models.Problem
	err := r.db.First(&problem, id).Error
	if err != nil {
		return nil, err
	}
	return &problem, nil
}

func (r *problemRepository) ListIDs() ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Problem{}).Pluck("id", &ids).Error
	return ids, err
}
