package repository

import (
	"context"

	"store-management/internal/domain/model"
	repo "store-management/internal/repository"
)

// 起動時にシードしたユーザーを保持する
type UserMemoryRepository struct {
	users map[string]model.User
}

func NewUserMemoryRepository(users ...model.User) *UserMemoryRepository {
	m := make(map[string]model.User, len(users))
	for _, u := range users {
		m[u.Username] = u
	}
	return &UserMemoryRepository{users: m}
}

func (r *UserMemoryRepository) FindByUsername(ctx context.Context, username string) (model.User, error) {
	u, ok := r.users[username]
	if !ok {
		return model.User{}, repo.ErrUserNotFound
	}
	return u, nil
}
