package mapper

import (
	"time"

	"store-management/internal/domain/model"
	"store-management/internal/dto"
)

// 作成DTO -> 新規エンティティ。version=0, active=true。
func ToEntity(in dto.ProductCreate, now time.Time) model.Product {
	p := model.Product{
		Sku:                in.Sku,
		ProductName:        in.ProductName,
		ProductDescription: copyStr(in.ProductDescription),
		CreatedAt:          now,
		Active:             true,
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	return p
}

// 既存 + 入力から新しいレコードを作る。nilの項目は既存値、createdAtは変更しない。
func Merge(existing model.Product, in dto.ProductUpdate) model.Product {
	next := existing
	next.ProductDescription = copyStr(existing.ProductDescription)

	if in.ProductName != nil {
		next.ProductName = *in.ProductName
	}
	if in.ProductDescription != nil {
		next.ProductDescription = copyStr(in.ProductDescription)
	}
	if in.Price != nil {
		next.Price = *in.Price
	}
	if in.Stock != nil {
		next.Stock = *in.Stock
	}
	if in.Active != nil {
		next.Active = *in.Active
	}
	return next
}

func ToDTO(p model.Product) dto.Product {
	return dto.Product{
		Sku:                p.Sku,
		ProductName:        p.ProductName,
		ProductDescription: copyStr(p.ProductDescription),
		Price:              p.Price,
		Stock:              p.Stock,
		CreatedAt:          p.CreatedAt,
		Active:             p.Active,
		Version:            p.Version,
	}
}

func ToDTOs(ps []model.Product) []dto.Product {
	out := make([]dto.Product, 0, len(ps))
	for _, p := range ps {
		out = append(out, ToDTO(p))
	}
	return out
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
