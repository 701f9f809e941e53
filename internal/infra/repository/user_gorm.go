package repository

import (
	"context"
	"strings"

	"store-management/internal/domain/model"
	domainrepo "store-management/internal/repository"

	"github.com/go-faster/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// user_accounts の1行。ロールはカンマ区切りで保存する
type userRow struct {
	Username     string `gorm:"primaryKey;type:varchar(64)"`
	PasswordHash string `gorm:"column:password_hash;not null"`
	Roles        string `gorm:"type:varchar(128);not null"`
}

func (userRow) TableName() string {
	return "user_accounts"
}

type UserGormRepository struct {
	db *gorm.DB
}

// DI
// main.goでこれをnewしてusecaseに注入します。
func NewUserGormRepository(db *gorm.DB) *UserGormRepository {
	return &UserGormRepository{db: db}
}

// テーブルを作り、シードユーザーを登録（既存ならハッシュとロールを更新）
func (r *UserGormRepository) Seed(ctx context.Context, users ...model.User) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&userRow{}); err != nil {
		return errors.Wrap(err, "migrate user_accounts")
	}
	if len(users) == 0 {
		return nil
	}

	rows := make([]userRow, 0, len(users))
	for _, u := range users {
		rows = append(rows, toUserRow(u))
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"password_hash", "roles"}),
	}).Create(&rows).Error
	if err != nil {
		return errors.Wrap(err, "seed users")
	}
	return nil
}

// ユーザー名で1件取得
func (r *UserGormRepository) FindByUsername(ctx context.Context, username string) (model.User, error) {
	var row userRow

	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.User{}, domainrepo.ErrUserNotFound
		}
		return model.User{}, errors.Wrap(err, "find user")
	}

	return fromUserRow(row), nil
}

func toUserRow(u model.User) userRow {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, string(r))
	}
	return userRow{
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Roles:        strings.Join(roles, ","),
	}
}

func fromUserRow(row userRow) model.User {
	var roles []model.Role
	for _, r := range strings.Split(row.Roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, model.Role(r))
		}
	}
	return model.User{
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
		Roles:        roles,
	}
}
