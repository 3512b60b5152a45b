package repository

import "code_arena/internal/storage"

type Repositories struct {
	User    UserRepository
	Room    RoomRepository
	Problem ProblemRepository
}

func NewRepositories(db *storage.PostgresDB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Room:    NewRoomRepository(db),
		Problem: NewProblemRepository(db),
	}
}
