package repository

import (
	"context"
	"errors"
	"fmt"

	"store-management/internal/domain/model"
	"store-management/internal/dto"
)

var (
	ErrNotFound = errors.New("not found")

	// 期待したversionと一致しない
	ErrOptimisticConflict = errors.New("optimistic lock conflict")

	// 一意制約違反。DuplicateKeyErrorはこれにIsで一致する。
	ErrDuplicateKey = errors.New("duplicate key")
)

// 一意制約違反の項目（sku / productName）
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key: %s", e.Field)
}

func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

// 一覧検索。Pageは0始まり。
type ProductListQuery struct {
	Active    bool
	Page      int
	Size      int
	SortField string
	SortDesc  bool
}

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	Insert(ctx context.Context, p model.Product) (model.Product, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)
	FindBySku(ctx context.Context, sku string) (model.Product, error)
	ExistsBySku(ctx context.Context, sku string) (bool, error)
	ExistsByProductName(ctx context.Context, name string) (bool, error)

	// p.Versionを期待値として更新し、version+1したレコードを返す
	Update(ctx context.Context, p model.Product) (model.Product, error)
	Delete(ctx context.Context, id int64, expectedVersion int64) error

	ListByActive(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
}

// SKUをキーにした出力DTOのキャッシュ
type ProductCache interface {
	Get(sku string) (dto.Product, bool)
	Generation(sku string) uint64
	PutIfUnchanged(sku string, gen uint64, p dto.Product) bool
	Evict(sku string)
}
