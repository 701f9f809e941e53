package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 商品エンティティ。versionは楽観ロック用でクライアントからは設定できない。
type Product struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement"`
	Version            int64           `gorm:"not null;default:0"`
	Sku                string          `gorm:"type:varchar(64);not null;uniqueIndex:uk_product_sku"`
	ProductName        string          `gorm:"column:product_name;type:varchar(255);not null;uniqueIndex:uk_product_name"`
	ProductDescription *string         `gorm:"column:product_description;type:text"`
	Price              decimal.Decimal `gorm:"type:numeric(19,2);not null"`
	Stock              int64           `gorm:"not null"`
	CreatedAt          time.Time       `gorm:"<-:create;not null"`
	Active             bool            `gorm:"not null;default:true"`
}

func (Product) TableName() string {
	return "products"
}
