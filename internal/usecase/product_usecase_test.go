package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"store-management/internal/domain/model"
	"store-management/internal/dto"
	"store-management/internal/infra/cache"
	infraRepo "store-management/internal/infra/repository"
	repo "store-management/internal/repository"
	"store-management/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// =====================
// helpers
// =====================

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// トランザクションを持たないストア用
type passThroughTx struct{ products repo.ProductRepository }

type passThroughRepos struct{ products repo.ProductRepository }

func (r passThroughRepos) Products() repo.ProductRepository { return r.products }

func (tm passThroughTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return fn(passThroughRepos{products: tm.products})
}

type fixture struct {
	uc    *usecase.ProductUsecase
	store *infraRepo.ProductMemoryRepository
	cache *cache.ProductLRU
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := infraRepo.NewProductMemoryRepository()
	c := cache.NewProductLRU(64, time.Minute)
	uc := newUsecase(store, infraRepo.NewTxManagerMemory(store), c)
	return fixture{uc: uc, store: store, cache: c}
}

func newUsecase(products repo.ProductRepository, txm repo.TransactionManager, c repo.ProductCache) *usecase.ProductUsecase {
	return usecase.NewProductUsecase(
		products,
		txm,
		c,
		fixedClock{now: testNow},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracenoop.NewTracerProvider().Tracer("test"),
		metricnoop.NewMeterProvider().Meter("test"),
	)
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func i64(v int64) *int64 { return &v }

func str(v string) *string { return &v }

func boolp(v bool) *bool { return &v }

func createInput(sku, name string) dto.ProductCreate {
	return dto.ProductCreate{Sku: sku, ProductName: name, Price: dec("9.99"), Stock: i64(10)}
}

func requireKind(t *testing.T, err error, kind usecase.ErrorKind) *usecase.Error {
	t.Helper()
	require.Error(t, err)
	e, ok := usecase.AsError(err)
	require.True(t, ok, "expected *usecase.Error, got %T: %v", err, err)
	require.Equal(t, kind, e.Kind, e.Error())
	return e
}

// =====================
// Create
// =====================

func TestProductUsecase_Create_Success(t *testing.T) {
	f := newFixture(t)

	out, err := f.uc.CreateProduct(context.Background(), dto.ProductCreate{
		Sku: "ABC-1", ProductName: "Widget", ProductDescription: str("blue"), Price: dec("19.99"), Stock: i64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, "ABC-1", out.Sku)
	assert.Equal(t, int64(0), out.Version)
	assert.True(t, out.Active)
	assert.Equal(t, testNow, out.CreatedAt)
	assert.Equal(t, "19.99", out.Price.StringFixed(2))

	stored, err := f.store.FindBySku(context.Background(), "ABC-1")
	require.NoError(t, err)
	assert.Equal(t, "Widget", stored.ProductName)
}

func TestProductUsecase_Create_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.CreateProduct(context.Background(), dto.ProductCreate{Sku: "bad sku", ProductName: "", Price: dec("-1")})
	e := requireKind(t, err, usecase.KindValidation)
	assert.Contains(t, e.Fields, "sku")
	assert.Contains(t, e.Fields, "productName")
	assert.Contains(t, e.Fields, "price")
	assert.Contains(t, e.Fields, "stock")
	assert.ErrorIs(t, err, usecase.ErrValidation)
}

func TestProductUsecase_Create_Duplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.uc.CreateProduct(ctx, createInput("A1", "Alpha"))
	require.NoError(t, err)

	_, err = f.uc.CreateProduct(ctx, createInput("A1", "Other"))
	e := requireKind(t, err, usecase.KindDuplicateKey)
	assert.Equal(t, map[string]string{"sku": "already exists"}, e.Fields)

	_, err = f.uc.CreateProduct(ctx, createInput("B1", "Alpha"))
	e = requireKind(t, err, usecase.KindDuplicateKey)
	assert.Contains(t, e.Fields, "productName")

	_, err = f.uc.CreateProduct(ctx, createInput("A1", "Alpha"))
	e = requireKind(t, err, usecase.KindConflict)
	assert.Contains(t, e.Fields, "sku")
	assert.Contains(t, e.Fields, "productName")
	assert.ErrorIs(t, err, usecase.ErrConflict)
}

// 存在確認を通過した後にInsertで一意制約違反になるストア
type racyStore struct {
	*infraRepo.ProductMemoryRepository
	mu     sync.Mutex
	hidden int
}

func (r *racyStore) ExistsBySku(ctx context.Context, sku string) (bool, error) {
	if r.consumeHidden() {
		return false, nil
	}
	return r.ProductMemoryRepository.ExistsBySku(ctx, sku)
}

func (r *racyStore) ExistsByProductName(ctx context.Context, name string) (bool, error) {
	if r.consumeHidden() {
		return false, nil
	}
	return r.ProductMemoryRepository.ExistsByProductName(ctx, name)
}

func (r *racyStore) consumeHidden() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hidden > 0 {
		r.hidden--
		return true
	}
	return false
}

func TestProductUsecase_Create_LostRaceIsTranslated(t *testing.T) {
	ctx := context.Background()
	mem := infraRepo.NewProductMemoryRepository()
	_, err := mem.Insert(ctx, model.Product{Sku: "A1", ProductName: "Alpha", CreatedAt: testNow, Active: true})
	require.NoError(t, err)

	store := &racyStore{ProductMemoryRepository: mem, hidden: 2}
	uc := newUsecase(store, passThroughTx{products: store}, cache.NewProductLRU(8, time.Minute))

	_, err = uc.CreateProduct(ctx, createInput("A1", "Alpha"))
	requireKind(t, err, usecase.KindConflict)

	store.hidden = 2
	_, err = uc.CreateProduct(ctx, createInput("A1", "Beta"))
	e := requireKind(t, err, usecase.KindDuplicateKey)
	assert.Contains(t, e.Fields, "sku")
}

// =====================
// Update
// =====================

func TestProductUsecase_Update_MergesAndKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.uc.CreateProduct(ctx, dto.ProductCreate{
		Sku: "A1", ProductName: "Alpha", ProductDescription: str("d"), Price: dec("1.00"), Stock: i64(1),
	})
	require.NoError(t, err)

	out, err := f.uc.UpdateProduct(ctx, "A1", dto.ProductUpdate{ProductName: str("Alpha 2"), Active: boolp(false)})
	require.NoError(t, err)
	assert.Equal(t, "Alpha 2", out.ProductName)
	assert.Equal(t, "d", *out.ProductDescription)
	assert.Equal(t, int64(1), out.Stock)
	assert.False(t, out.Active)
	assert.Equal(t, int64(1), out.Version)
	assert.Equal(t, testNow, out.CreatedAt)
}

func TestProductUsecase_Update_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.uc.CreateProduct(ctx, createInput("A1", "Alpha"))
	require.NoError(t, err)
	_, err = f.uc.CreateProduct(ctx, createInput("B1", "Beta"))
	require.NoError(t, err)

	_, err = f.uc.UpdateProduct(ctx, "A1", dto.ProductUpdate{})
	e := requireKind(t, err, usecase.KindValidation)
	assert.Contains(t, e.Fields, "active")

	_, err = f.uc.UpdateProduct(ctx, "ZZ", dto.ProductUpdate{Active: boolp(true)})
	requireKind(t, err, usecase.KindNotFound)

	_, err = f.uc.UpdateProduct(ctx, "A1", dto.ProductUpdate{ProductName: str("Beta"), Active: boolp(true)})
	e = requireKind(t, err, usecase.KindDuplicateKey)
	assert.Contains(t, e.Fields, "productName")
}

func TestProductUsecase_PriceAndStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.uc.CreateProduct(ctx, createInput("A1", "Alpha"))
	require.NoError(t, err)

	out, err := f.uc.UpdateProductPrice(ctx, "A1", dto.PriceUpdate{Price: dec("5.50")})
	require.NoError(t, err)
	assert.Equal(t, "5.50", out.Price.StringFixed(2))
	assert.Equal(t, int64(1), out.Version)

	out, err = f.uc.UpdateProductStock(ctx, "A1", dto.StockUpdate{Stock: i64(0)})
	require.NoError(t, err)
	assert.Equal(t, int64(0), out.Stock)
	assert.Equal(t, int64(2), out.Version)
	assert.Equal(t, "5.50", out.Price.StringFixed(2))

	_, err = f.uc.UpdateProductPrice(ctx, "A1", dto.PriceUpdate{Price: dec("1.001")})
	requireKind(t, err, usecase.KindValidation)

	_, err = f.uc.UpdateProductStock(ctx, "A1", dto.StockUpdate{Stock: i64(-1)})
	requireKind(t, err, usecase.KindValidation)

	_, err = f.uc.UpdateProductStock(ctx, "NOPE", dto.StockUpdate{Stock: i64(1)})
	requireKind(t, err, usecase.KindNotFound)
}

// 両方が同じversionを読んでから保存するストア
type barrierStore struct {
	*infraRepo.ProductMemoryRepository
	reads sync.WaitGroup
}

func (r *barrierStore) FindBySku(ctx context.Context, sku string) (model.Product, error) {
	p, err := r.ProductMemoryRepository.FindBySku(ctx, sku)
	r.reads.Done()
	r.reads.Wait()
	return p, err
}

func TestProductUsecase_ConcurrentStaleStockUpdate(t *testing.T) {
	ctx := context.Background()
	mem := infraRepo.NewProductMemoryRepository()
	_, err := mem.Insert(ctx, model.Product{Sku: "A1", ProductName: "Alpha", Stock: 10, CreatedAt: testNow, Active: true})
	require.NoError(t, err)

	store := &barrierStore{ProductMemoryRepository: mem}
	store.reads.Add(2)
	uc := newUsecase(store, passThroughTx{products: store}, cache.NewProductLRU(8, time.Minute))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, stock := range []int64{7, 3} {
		wg.Add(1)
		go func(i int, stock int64) {
			defer wg.Done()
			_, errs[i] = uc.UpdateProductStock(ctx, "A1", dto.StockUpdate{Stock: i64(stock)})
		}(i, stock)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, usecase.ErrOptimisticConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	final, err := mem.FindBySku(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), final.Version)
}

// =====================
// Find / Cache
// =====================

type ProductCacheMock struct{ mock.Mock }

func (m *ProductCacheMock) Get(sku string) (dto.Product, bool) {
	args := m.Called(sku)
	p, _ := args.Get(0).(dto.Product)
	return p, args.Bool(1)
}

func (m *ProductCacheMock) Generation(sku string) uint64 {
	args := m.Called(sku)
	return args.Get(0).(uint64)
}

func (m *ProductCacheMock) PutIfUnchanged(sku string, gen uint64, p dto.Product) bool {
	args := m.Called(sku, gen, p)
	return args.Bool(0)
}

func (m *ProductCacheMock) Evict(sku string) {
	m.Called(sku)
}

func TestProductUsecase_FindBySku_ReadThrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.uc.CreateProduct(ctx, createInput("A1", "Alpha"))
	require.NoError(t, err)

	_, ok := f.cache.Get("A1")
	assert.False(t, ok)

	out, err := f.uc.FindBySku(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", out.ProductName)

	cached, ok := f.cache.Get("A1")
	require.True(t, ok)
	assert.Equal(t, out, cached)

	// 書き込み後は古い値を返さない
	_, err = f.uc.UpdateProductStock(ctx, "A1", dto.StockUpdate{Stock: i64(99)})
	require.NoError(t, err)
	_, ok = f.cache.Get("A1")
	assert.False(t, ok)

	out, err = f.uc.FindBySku(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, int64(99), out.Stock)

	_, err = f.uc.FindBySku(ctx, "MISSING")
	requireKind(t, err, usecase.KindNotFound)
	assert.ErrorIs(t, err, usecase.ErrNotFound)
}

// 最初の1回だけ、読み取り後に止まるストア
type pausingStore struct {
	*infraRepo.ProductMemoryRepository
	mu      sync.Mutex
	release chan struct{}
	read    chan struct{}
}

func (r *pausingStore) FindBySku(ctx context.Context, sku string) (model.Product, error) {
	p, err := r.ProductMemoryRepository.FindBySku(ctx, sku)
	r.mu.Lock()
	release := r.release
	r.release = nil
	r.mu.Unlock()
	if release != nil {
		close(r.read)
		<-release
	}
	return p, err
}

func TestProductUsecase_FindBySku_SlowReadDoesNotCacheStaleValue(t *testing.T) {
	ctx := context.Background()
	mem := infraRepo.NewProductMemoryRepository()
	_, err := mem.Insert(ctx, model.Product{Sku: "A1", ProductName: "Alpha", Stock: 10, CreatedAt: testNow, Active: true})
	require.NoError(t, err)

	store := &pausingStore{
		ProductMemoryRepository: mem,
		release:                 make(chan struct{}),
		read:                    make(chan struct{}),
	}
	release := store.release
	c := cache.NewProductLRU(8, time.Minute)
	uc := newUsecase(store, passThroughTx{products: store}, c)

	done := make(chan dto.Product)
	go func() {
		out, err := uc.FindBySku(ctx, "A1")
		assert.NoError(t, err)
		done <- out
	}()

	// 読み取りがversion 0を返した後に書き込む
	<-store.read
	_, err = uc.UpdateProductStock(ctx, "A1", dto.StockUpdate{Stock: i64(99)})
	require.NoError(t, err)
	close(release)

	slow := <-done
	assert.Equal(t, int64(0), slow.Version)
	_, ok := c.Get("A1")
	assert.False(t, ok)

	out, err := uc.FindBySku(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, int64(99), out.Stock)
	assert.Equal(t, int64(1), out.Version)
}

func TestProductUsecase_FindBySku_CacheHitSkipsStore(t *testing.T) {
	c := new(ProductCacheMock)
	store := new(ProductRepoMock)
	uc := newUsecase(store, passThroughTx{products: store}, c)

	hit := dto.Product{Sku: "A1", ProductName: "cached"}
	c.On("Get", "A1").Return(hit, true)

	out, err := uc.FindBySku(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, hit, out)
	store.AssertNotCalled(t, "FindBySku", mock.Anything, mock.Anything)
}

func TestProductUsecase_EvictsOnEveryWrite(t *testing.T) {
	ctx := context.Background()
	store := infraRepo.NewProductMemoryRepository()
	c := new(ProductCacheMock)
	uc := newUsecase(store, infraRepo.NewTxManagerMemory(store), c)

	c.On("Evict", "A1").Return()

	_, err := uc.CreateProduct(ctx, createInput("A1", "Alpha"))
	require.NoError(t, err)
	_, err = uc.UpdateProduct(ctx, "A1", dto.ProductUpdate{Active: boolp(true)})
	require.NoError(t, err)
	_, err = uc.UpdateProductPrice(ctx, "A1", dto.PriceUpdate{Price: dec("2")})
	require.NoError(t, err)
	_, err = uc.UpdateProductStock(ctx, "A1", dto.StockUpdate{Stock: i64(2)})
	require.NoError(t, err)
	require.NoError(t, uc.DeleteProduct(ctx, "A1"))

	c.AssertNumberOfCalls(t, "Evict", 5)

	// 失敗した書き込みではevictしない
	_, err = uc.UpdateProductStock(ctx, "A1", dto.StockUpdate{Stock: i64(2)})
	requireKind(t, err, usecase.KindNotFound)
	c.AssertNumberOfCalls(t, "Evict", 5)
}

// =====================
// List / Delete
// =====================

func TestProductUsecase_List(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, s := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		_, err := f.uc.CreateProduct(ctx, createInput(s, "name "+s))
		require.NoError(t, err)
	}
	_, err := f.uc.UpdateProduct(ctx, "G", dto.ProductUpdate{Active: boolp(false)})
	require.NoError(t, err)

	page, err := f.uc.ListProducts(ctx, dto.ListProducts{Active: true, Page: 0, Size: 5, Sort: "sku,asc"})
	require.NoError(t, err)
	assert.Equal(t, int64(6), page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Content, 5)
	assert.Equal(t, "A", page.Content[0].Sku)

	page, err = f.uc.ListProducts(ctx, dto.ListProducts{Active: true, Page: 1, Size: 5, Sort: "sku,asc"})
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "F", page.Content[0].Sku)

	page, err = f.uc.ListProducts(ctx, dto.ListProducts{Active: false, Page: 0, Size: 5})
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "G", page.Content[0].Sku)

	_, err = f.uc.ListProducts(ctx, dto.ListProducts{Active: true, Page: 0, Size: 0})
	requireKind(t, err, usecase.KindValidation)

	// 巨大なページ番号
	page, err = f.uc.ListProducts(ctx, dto.ListProducts{Active: true, Page: math.MaxInt / 100, Size: 100})
	require.NoError(t, err)
	assert.Empty(t, page.Content)
	assert.Equal(t, int64(6), page.TotalElements)

	_, err = f.uc.ListProducts(ctx, dto.ListProducts{Active: true, Page: math.MaxInt/100 + 1, Size: 100})
	e := requireKind(t, err, usecase.KindValidation)
	assert.Contains(t, e.Fields, "page")
}

func TestProductUsecase_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.uc.CreateProduct(ctx, createInput("A1", "Alpha"))
	require.NoError(t, err)
	_, err = f.uc.FindBySku(ctx, "A1")
	require.NoError(t, err)

	require.NoError(t, f.uc.DeleteProduct(ctx, "A1"))

	_, err = f.uc.FindBySku(ctx, "A1")
	requireKind(t, err, usecase.KindNotFound)

	err = f.uc.DeleteProduct(ctx, "A1")
	requireKind(t, err, usecase.KindNotFound)

	// 削除後は同じskuで作り直せる
	_, err = f.uc.CreateProduct(ctx, createInput("A1", "Alpha"))
	assert.NoError(t, err)
}

// =====================
// Store failures
// =====================

type ProductRepoMock struct{ mock.Mock }

func (m *ProductRepoMock) Insert(ctx context.Context, p model.Product) (model.Product, error) {
	args := m.Called(ctx, p)
	out, _ := args.Get(0).(model.Product)
	return out, args.Error(1)
}

func (m *ProductRepoMock) FindByID(ctx context.Context, id int64) (model.Product, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(model.Product)
	return out, args.Error(1)
}

func (m *ProductRepoMock) FindBySku(ctx context.Context, sku string) (model.Product, error) {
	args := m.Called(ctx, sku)
	out, _ := args.Get(0).(model.Product)
	return out, args.Error(1)
}

func (m *ProductRepoMock) ExistsBySku(ctx context.Context, sku string) (bool, error) {
	args := m.Called(ctx, sku)
	return args.Bool(0), args.Error(1)
}

func (m *ProductRepoMock) ExistsByProductName(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *ProductRepoMock) Update(ctx context.Context, p model.Product) (model.Product, error) {
	args := m.Called(ctx, p)
	out, _ := args.Get(0).(model.Product)
	return out, args.Error(1)
}

func (m *ProductRepoMock) Delete(ctx context.Context, id int64, expectedVersion int64) error {
	args := m.Called(ctx, id, expectedVersion)
	return args.Error(0)
}

func (m *ProductRepoMock) ListByActive(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	args := m.Called(ctx, q)
	items, _ := args.Get(0).([]model.Product)
	return items, args.Get(1).(int64), args.Error(2)
}

func TestProductUsecase_StoreFailureIsUnexpected(t *testing.T) {
	ctx := context.Background()
	store := new(ProductRepoMock)
	c := cache.NewProductLRU(8, time.Minute)
	uc := newUsecase(store, passThroughTx{products: store}, c)

	boom := errors.New("connection reset")
	store.On("FindBySku", mock.Anything, "A1").Return(model.Product{}, boom)
	store.On("ListByActive", mock.Anything, mock.Anything).Return(nil, int64(0), boom)

	_, err := uc.FindBySku(ctx, "A1")
	e := requireKind(t, err, usecase.KindUnexpected)
	assert.ErrorIs(t, e, boom)

	_, err = uc.ListProducts(ctx, dto.ListProducts{Active: true, Size: 5})
	requireKind(t, err, usecase.KindUnexpected)
}

func TestProductUsecase_DeleteConflict(t *testing.T) {
	ctx := context.Background()
	store := new(ProductRepoMock)
	c := new(ProductCacheMock)
	uc := newUsecase(store, passThroughTx{products: store}, c)

	store.On("FindBySku", mock.Anything, "A1").Return(model.Product{ID: 4, Sku: "A1", Version: 2}, nil)
	store.On("Delete", mock.Anything, int64(4), int64(2)).Return(repo.ErrOptimisticConflict)

	err := uc.DeleteProduct(ctx, "A1")
	e := requireKind(t, err, usecase.KindOptimisticConflict)
	assert.Equal(t, "Conflict while deleting product. Resource was modified concurrently.", e.Message)
	c.AssertNotCalled(t, "Evict", mock.Anything)
}
