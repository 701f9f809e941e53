package repository

import (
	"context"
	"errors"

	"store-management/internal/domain/model"
)

// ユーザーが見つかりませんを統一
var ErrUserNotFound = errors.New("user not found")

// ユーザーの取得を約束
type UserRepository interface {
	//ユーザー名から一件取得する。
	FindByUsername(ctx context.Context, username string) (model.User, error)
}
