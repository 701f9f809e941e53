package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// POST /api/products の入力。id/version/createdAt/activeは受け付けない。
type ProductCreate struct {
	Sku                string           `json:"sku"`
	ProductName        string           `json:"productName"`
	ProductDescription *string          `json:"productDescription,omitempty"`
	Price              *decimal.Decimal `json:"price"`
	Stock              *int64           `json:"stock"`
}

// PUT /api/products/:sku の入力。nilの項目は既存値を維持する。activeは必須。
type ProductUpdate struct {
	ProductName        *string          `json:"productName,omitempty"`
	ProductDescription *string          `json:"productDescription,omitempty"`
	Price              *decimal.Decimal `json:"price,omitempty"`
	Stock              *int64           `json:"stock,omitempty"`
	Active             *bool            `json:"active"`
}

// PATCH /api/products/:sku/price
type PriceUpdate struct {
	Price *decimal.Decimal `json:"price"`
}

// PATCH /api/products/:sku/stock
type StockUpdate struct {
	Stock *int64 `json:"stock"`
}

// GET /api/products のクエリ
type ListProducts struct {
	Active bool
	Page   int
	Size   int
	Sort   string
}

// 出力DTO
type Product struct {
	Sku                string          `json:"sku"`
	ProductName        string          `json:"productName"`
	ProductDescription *string         `json:"productDescription"`
	Price              decimal.Decimal `json:"price"`
	Stock              int64           `json:"stock"`
	CreatedAt          time.Time       `json:"createdAt"`
	Active             bool            `json:"active"`
	Version            int64           `json:"version"`
}

type Page struct {
	Content       []Product `json:"content"`
	Page          int       `json:"page"`
	Size          int       `json:"size"`
	TotalElements int64     `json:"totalElements"`
	TotalPages    int       `json:"totalPages"`
}
