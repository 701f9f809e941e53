package db

import (
	"store-management/internal/config"
	"store-management/internal/domain/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect はDBに接続して *gorm.DB を返す。
func Connect(cfg config.Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

// productsテーブルを作成する。一意制約は uk_product_sku / uk_product_name。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Product{})
}
