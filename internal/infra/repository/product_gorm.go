package repository

import (
	"context"

	"store-management/internal/domain/model"
	repo "store-management/internal/repository"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ConstraintProductSku  = "uk_product_sku"
	ConstraintProductName = "uk_product_name"

	pgUniqueViolation = "23505"
)

// ソート項目 -> カラム
var productSortColumns = map[string]string{
	"createdAt":   "created_at",
	"productName": "product_name",
	"price":       "price",
	"stock":       "stock",
	"sku":         "sku",
}

type ProductGormRepository struct {
	db *gorm.DB
}

// DI
func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

// 商品の作成
func (r *ProductGormRepository) Insert(ctx context.Context, p model.Product) (model.Product, error) {
	p.ID = 0
	p.Version = 0
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Product{}, translateWriteError(err, "insert product")
	}
	return p, nil
}

// IDで商品を取得
func (r *ProductGormRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, errors.Wrap(err, "find product by id")
	}
	return p, nil
}

// SKUで商品を取得
func (r *ProductGormRepository) FindBySku(ctx context.Context, sku string) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).Where("sku = ?", sku).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, errors.Wrap(err, "find product by sku")
	}
	return p, nil
}

func (r *ProductGormRepository) ExistsBySku(ctx context.Context, sku string) (bool, error) {
	return r.exists(ctx, "sku = ?", sku)
}

func (r *ProductGormRepository) ExistsByProductName(ctx context.Context, name string) (bool, error) {
	return r.exists(ctx, "product_name = ?", name)
}

func (r *ProductGormRepository) exists(ctx context.Context, cond string, v any) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Product{}).Where(cond, v).Count(&n).Error; err != nil {
		return false, errors.Wrap(err, "count products")
	}
	return n > 0, nil
}

// 商品の更新。versionが一致した行だけを更新し、versionを+1する。
func (r *ProductGormRepository) Update(ctx context.Context, p model.Product) (model.Product, error) {
	res := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]interface{}{
			"product_name":        p.ProductName,
			"product_description": p.ProductDescription,
			"price":               p.Price,
			"stock":               p.Stock,
			"active":              p.Active,
			"version":             gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return model.Product{}, translateWriteError(res.Error, "update product")
	}
	if res.RowsAffected == 0 {
		return model.Product{}, r.missOrConflict(ctx, p.ID)
	}

	p.Version++
	return p, nil
}

// 商品削除（物理削除）
func (r *ProductGormRepository) Delete(ctx context.Context, id int64, expectedVersion int64) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND version = ?", id, expectedVersion).
		Delete(&model.Product{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete product")
	}
	if res.RowsAffected == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

// active で絞り込み、ソート/ページング付きで返す。
func (r *ProductGormRepository) ListByActive(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	tx := r.db.WithContext(ctx).Model(&model.Product{}).Where("active = ?", q.Active)

	//total（件数）
	if err := tx.Count(&total).Error; err != nil {
		return []model.Product{}, 0, errors.Wrap(err, "count products")
	}

	//sort
	col, ok := productSortColumns[q.SortField]
	if !ok {
		col = "created_at"
	}
	tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: q.SortDesc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: q.SortDesc})

	//Page*Sizeが総件数を超えるなら問い合わせない（オーバーフロー対策）
	if q.Size <= 0 || q.Page < 0 || int64(q.Page) > total/int64(q.Size) {
		return []model.Product{}, total, nil
	}
	offset := q.Page * q.Size
	if err := tx.Offset(offset).Limit(q.Size).Find(&products).Error; err != nil {
		return []model.Product{}, 0, errors.Wrap(err, "list products")
	}

	return products, total, nil
}

// 0件更新のとき、行が消えたのかversion違いなのかを判定
func (r *ProductGormRepository) missOrConflict(ctx context.Context, id int64) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return errors.Wrap(err, "check product")
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return repo.ErrOptimisticConflict
}

// 一意制約違反を項目付きのエラーへ変換
func translateWriteError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case ConstraintProductSku:
			return &repo.DuplicateKeyError{Field: "sku"}
		case ConstraintProductName:
			return &repo.DuplicateKeyError{Field: "productName"}
		}
		return errors.Wrap(repo.ErrDuplicateKey, op)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrap(repo.ErrDuplicateKey, op)
	}
	return errors.Wrap(err, op)
}
