package repository

import (
	"cmp"
	"context"
	"sort"
	"sync"

	"store-management/internal/domain/model"
	repo "store-management/internal/repository"
)

// メモリ上の商品ストア。STORE_DRIVER=memory とテストで使う。
// 一意制約と楽観ロックはPostgres実装と同じ振る舞いにする。
type ProductMemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]model.Product
	bySku  map[string]int64
	byName map[string]int64
}

func NewProductMemoryRepository() *ProductMemoryRepository {
	return &ProductMemoryRepository{
		byID:   make(map[int64]model.Product),
		bySku:  make(map[string]int64),
		byName: make(map[string]int64),
	}
}

func (r *ProductMemoryRepository) Insert(ctx context.Context, p model.Product) (model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bySku[p.Sku]; ok {
		return model.Product{}, &repo.DuplicateKeyError{Field: "sku"}
	}
	if _, ok := r.byName[p.ProductName]; ok {
		return model.Product{}, &repo.DuplicateKeyError{Field: "productName"}
	}

	r.nextID++
	p.ID = r.nextID
	p.Version = 0
	p = clone(p)

	r.byID[p.ID] = p
	r.bySku[p.Sku] = p.ID
	r.byName[p.ProductName] = p.ID
	return clone(p), nil
}

func (r *ProductMemoryRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return clone(p), nil
}

func (r *ProductMemoryRepository) FindBySku(ctx context.Context, sku string) (model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySku[sku]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *ProductMemoryRepository) ExistsBySku(ctx context.Context, sku string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bySku[sku]
	return ok, nil
}

func (r *ProductMemoryRepository) ExistsByProductName(ctx context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok, nil
}

func (r *ProductMemoryRepository) Update(ctx context.Context, p model.Product) (model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[p.ID]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	if cur.Version != p.Version {
		return model.Product{}, repo.ErrOptimisticConflict
	}
	if owner, ok := r.byName[p.ProductName]; ok && owner != p.ID {
		return model.Product{}, &repo.DuplicateKeyError{Field: "productName"}
	}

	//skuとcreatedAtは変更しない
	next := clone(p)
	next.Sku = cur.Sku
	next.CreatedAt = cur.CreatedAt
	next.Version = cur.Version + 1

	delete(r.byName, cur.ProductName)
	r.byName[next.ProductName] = next.ID
	r.byID[next.ID] = next
	return clone(next), nil
}

func (r *ProductMemoryRepository) Delete(ctx context.Context, id int64, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return repo.ErrOptimisticConflict
	}

	delete(r.byID, id)
	delete(r.bySku, cur.Sku)
	delete(r.byName, cur.ProductName)
	return nil
}

func (r *ProductMemoryRepository) ListByActive(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	r.mu.RLock()
	matched := make([]model.Product, 0, len(r.byID))
	for _, p := range r.byID {
		if p.Active == q.Active {
			matched = append(matched, clone(p))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		c := compareBy(q.SortField, matched[i], matched[j])
		if c == 0 {
			c = cmp.Compare(matched[i].ID, matched[j].ID)
		}
		if q.SortDesc {
			return c > 0
		}
		return c < 0
	})

	total := int64(len(matched))
	//範囲外のページはPage*Sizeを計算する前に弾く（オーバーフロー対策）
	if q.Size <= 0 || q.Page < 0 || q.Page > len(matched)/q.Size {
		return []model.Product{}, total, nil
	}
	start := q.Page * q.Size
	if start >= len(matched) {
		return []model.Product{}, total, nil
	}
	end := start + q.Size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func compareBy(field string, a, b model.Product) int {
	switch field {
	case "productName":
		return cmp.Compare(a.ProductName, b.ProductName)
	case "price":
		return a.Price.Cmp(b.Price)
	case "stock":
		return cmp.Compare(a.Stock, b.Stock)
	case "sku":
		return cmp.Compare(a.Sku, b.Sku)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func clone(p model.Product) model.Product {
	if p.ProductDescription != nil {
		d := *p.ProductDescription
		p.ProductDescription = &d
	}
	return p
}

type txReposMemory struct {
	products repo.ProductRepository
}

func (r *txReposMemory) Products() repo.ProductRepository { return r.products }

// メモリストア用。ロールバックは無く、一意制約はInsert側で原子的に守る。
type TxManagerMemory struct {
	products *ProductMemoryRepository
}

func NewTxManagerMemory(products *ProductMemoryRepository) *TxManagerMemory {
	return &TxManagerMemory{products: products}
}

func (tm *TxManagerMemory) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&txReposMemory{products: tm.products})
}
