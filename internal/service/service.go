package service

import (
	"math/rand"

	"go.uber.org/zap"

	"code_arena/internal/repository"
)

type Services struct {
	User *UserService
	Room *RoomService
	Hub  *RoomHub
}

func NewServices(repos *repository.Repositories, logger *zap.Logger) *Services {
	hub := NewRoomHub(logger)

	userService := NewUserService(repos.User)
	roomService := NewRoomService(repos.Room, repos.Problem, hub, logger, UniformPicker)
	return &Services{
		User: userService,
		Room: roomService,
		Hub:  hub,
	}
}

// UniformPicker 是默認的隨機抽題策略：在候選題目中等概率抽取一題
// 抽題策略可替換，調用方只要求最終記錄下唯一確定的一題
func UniformPicker(candidates []uint) uint {
	return candidates[rand.Intn(len(candidates))]
}
