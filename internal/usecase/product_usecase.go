package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"store-management/internal/domain/model"
	"store-management/internal/dto"
	"store-management/internal/mapper"
	repo "store-management/internal/repository"
	"store-management/internal/validator"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// 現在の時間
type Clock interface {
	Now() time.Time
}

// 商品の作成・更新・取得・削除。
// 排他は楽観ロック（version）だけで、サービス側ではロックを取らない。
type ProductUsecase struct {
	products repo.ProductRepository
	txm      repo.TransactionManager
	cache    repo.ProductCache
	clock    Clock

	logger *slog.Logger
	tracer trace.Tracer
	ops    metric.Int64Counter
}

// DI
func NewProductUsecase(
	products repo.ProductRepository,
	txm repo.TransactionManager,
	cache repo.ProductCache,
	clock Clock,
	logger *slog.Logger,
	tracer trace.Tracer,
	meter metric.Meter,
) *ProductUsecase {
	ops, _ := meter.Int64Counter(
		"products.operations",
		metric.WithDescription("Total number of product operations"),
	)

	return &ProductUsecase{
		products: products,
		txm:      txm,
		cache:    cache,
		clock:    clock,
		logger:   logger,
		tracer:   tracer,
		ops:      ops,
	}
}

// 商品の作成
func (u *ProductUsecase) CreateProduct(ctx context.Context, in dto.ProductCreate) (out dto.Product, err error) {
	ctx, span := u.start(ctx, "CreateProduct", in.Sku)
	defer func() { u.finish(ctx, span, "create", err) }()

	u.logger.DebugContext(ctx, "creating product", slog.String("sku", in.Sku))

	if verr := validator.ValidateCreate(in); verr != nil {
		return dto.Product{}, asValidation(verr)
	}

	var created model.Product
	err = u.txm.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := assertNoDuplicates(ctx, r.Products(), in.Sku, in.ProductName); err != nil {
			return err
		}

		p, err := r.Products().Insert(ctx, mapper.ToEntity(in, u.clock.Now()))
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateKey) {
			//同時作成に負けた。ロールバック後のストアで再確認する
			return dto.Product{}, u.classifyDuplicate(ctx, in.Sku, in.ProductName, err)
		}
		if _, ok := AsError(err); ok {
			return dto.Product{}, err
		}
		return dto.Product{}, unexpected("creating product", err)
	}

	u.cache.Evict(in.Sku)
	u.logger.InfoContext(ctx, "product created",
		slog.String("sku", created.Sku),
		slog.Int64("id", created.ID),
	)
	return mapper.ToDTO(created), nil
}

// 商品の全体更新。nilの項目は既存値を維持する。
func (u *ProductUsecase) UpdateProduct(ctx context.Context, sku string, in dto.ProductUpdate) (out dto.Product, err error) {
	ctx, span := u.start(ctx, "UpdateProduct", sku)
	defer func() { u.finish(ctx, span, "update", err) }()

	u.logger.DebugContext(ctx, "updating product", slog.String("sku", sku))

	if verr := errors.Join(validator.ValidateSku(sku), validator.ValidateUpdate(in)); verr != nil {
		return dto.Product{}, asValidation(verr)
	}

	existing, err := u.products.FindBySku(ctx, sku)
	if err != nil {
		return dto.Product{}, u.translate(err, sku, "", "updating product")
	}

	next := mapper.Merge(existing, in)

	//名前を変える場合は一意性を確認
	if next.ProductName != existing.ProductName {
		taken, err := u.products.ExistsByProductName(ctx, next.ProductName)
		if err != nil {
			return dto.Product{}, unexpected("updating product", err)
		}
		if taken {
			return dto.Product{}, duplicateKey("productName", next.ProductName)
		}
	}

	saved, err := u.products.Update(ctx, next)
	if err != nil {
		return dto.Product{}, u.translate(err, sku, next.ProductName, "updating product")
	}

	u.cache.Evict(sku)
	u.logger.InfoContext(ctx, "product updated",
		slog.String("sku", sku),
		slog.Int64("version", saved.Version),
	)
	return mapper.ToDTO(saved), nil
}

// 価格だけを更新
func (u *ProductUsecase) UpdateProductPrice(ctx context.Context, sku string, in dto.PriceUpdate) (out dto.Product, err error) {
	ctx, span := u.start(ctx, "UpdateProductPrice", sku)
	defer func() { u.finish(ctx, span, "update_price", err) }()

	if verr := errors.Join(validator.ValidateSku(sku), validator.ValidatePrice(in)); verr != nil {
		return dto.Product{}, asValidation(verr)
	}

	existing, err := u.products.FindBySku(ctx, sku)
	if err != nil {
		return dto.Product{}, u.translate(err, sku, "", "updating product price")
	}

	next := existing
	next.Price = *in.Price

	saved, err := u.products.Update(ctx, next)
	if err != nil {
		return dto.Product{}, u.translate(err, sku, "", "updating product price")
	}

	u.cache.Evict(sku)
	u.logger.InfoContext(ctx, "product price updated",
		slog.String("sku", sku),
		slog.String("old_price", existing.Price.StringFixed(2)),
		slog.String("new_price", saved.Price.StringFixed(2)),
	)
	return mapper.ToDTO(saved), nil
}

// 在庫だけを更新
func (u *ProductUsecase) UpdateProductStock(ctx context.Context, sku string, in dto.StockUpdate) (out dto.Product, err error) {
	ctx, span := u.start(ctx, "UpdateProductStock", sku)
	defer func() { u.finish(ctx, span, "update_stock", err) }()

	if verr := errors.Join(validator.ValidateSku(sku), validator.ValidateStock(in)); verr != nil {
		return dto.Product{}, asValidation(verr)
	}

	existing, err := u.products.FindBySku(ctx, sku)
	if err != nil {
		return dto.Product{}, u.translate(err, sku, "", "updating product stock")
	}

	next := existing
	next.Stock = *in.Stock

	saved, err := u.products.Update(ctx, next)
	if err != nil {
		return dto.Product{}, u.translate(err, sku, "", "updating product stock")
	}

	u.cache.Evict(sku)
	u.logger.InfoContext(ctx, "product stock updated",
		slog.String("sku", sku),
		slog.Int64("old_stock", existing.Stock),
		slog.Int64("new_stock", saved.Stock),
	)
	return mapper.ToDTO(saved), nil
}

// SKUで1件取得。キャッシュを先に見る。
func (u *ProductUsecase) FindBySku(ctx context.Context, sku string) (out dto.Product, err error) {
	ctx, span := u.start(ctx, "FindBySku", sku)
	defer func() { u.finish(ctx, span, "find", err) }()

	if verr := validator.ValidateSku(sku); verr != nil {
		return dto.Product{}, asValidation(verr)
	}

	if p, ok := u.cache.Get(sku); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return p, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	//読み取り中にEvictされた値は格納しない
	gen := u.cache.Generation(sku)
	p, err := u.products.FindBySku(ctx, sku)
	if err != nil {
		return dto.Product{}, u.translate(err, sku, "", "fetching product")
	}

	out = mapper.ToDTO(p)
	if !u.cache.PutIfUnchanged(sku, gen, out) {
		u.logger.DebugContext(ctx, "skipped caching stale product", slog.String("sku", sku))
	}
	return out, nil
}

// active で絞り込んだ一覧。キャッシュは使わない。
func (u *ProductUsecase) ListProducts(ctx context.Context, in dto.ListProducts) (out dto.Page, err error) {
	ctx, span := u.tracer.Start(ctx, "ProductUsecase.ListProducts", trace.WithAttributes(
		attribute.Bool("product.active", in.Active),
		attribute.Int("page", in.Page),
		attribute.Int("size", in.Size),
	))
	defer func() { u.finish(ctx, span, "list", err) }()

	if verr := validator.ValidateList(in); verr != nil {
		return dto.Page{}, asValidation(verr)
	}
	field, desc, _ := validator.ParseSort(in.Sort)

	items, total, err := u.products.ListByActive(ctx, repo.ProductListQuery{
		Active:    in.Active,
		Page:      in.Page,
		Size:      in.Size,
		SortField: field,
		SortDesc:  desc,
	})
	if err != nil {
		return dto.Page{}, unexpected("listing products", err)
	}

	return dto.Page{
		Content:       mapper.ToDTOs(items),
		Page:          in.Page,
		Size:          in.Size,
		TotalElements: total,
		TotalPages:    int((total + int64(in.Size) - 1) / int64(in.Size)),
	}, nil
}

// 商品削除（物理削除）
func (u *ProductUsecase) DeleteProduct(ctx context.Context, sku string) (err error) {
	ctx, span := u.start(ctx, "DeleteProduct", sku)
	defer func() { u.finish(ctx, span, "delete", err) }()

	if verr := validator.ValidateSku(sku); verr != nil {
		return asValidation(verr)
	}

	existing, err := u.products.FindBySku(ctx, sku)
	if err != nil {
		return u.translate(err, sku, "", "deleting product")
	}

	if err := u.products.Delete(ctx, existing.ID, existing.Version); err != nil {
		return u.translate(err, sku, "", "deleting product")
	}

	u.cache.Evict(sku)
	u.logger.InfoContext(ctx, "product deleted", slog.String("sku", sku))
	return nil
}

// sku/productNameの重複確認。両方ならConflict。
func assertNoDuplicates(ctx context.Context, products repo.ProductRepository, sku, name string) error {
	skuTaken, err := products.ExistsBySku(ctx, sku)
	if err != nil {
		return unexpected("checking sku", err)
	}
	nameTaken, err := products.ExistsByProductName(ctx, name)
	if err != nil {
		return unexpected("checking productName", err)
	}

	switch {
	case skuTaken && nameTaken:
		return conflict(sku, name)
	case skuTaken:
		return duplicateKey("sku", sku)
	case nameTaken:
		return duplicateKey("productName", name)
	}
	return nil
}

func (u *ProductUsecase) classifyDuplicate(ctx context.Context, sku, name string, cause error) error {
	if err := assertNoDuplicates(ctx, u.products, sku, name); err != nil {
		return err
	}

	//再確認時には既に消えていた
	var dup *repo.DuplicateKeyError
	if errors.As(cause, &dup) && dup.Field == "productName" {
		return duplicateKey("productName", name)
	}
	return duplicateKey("sku", sku)
}

// ストアのエラーを種別付きのエラーへ変換
func (u *ProductUsecase) translate(err error, sku, name, op string) error {
	var dup *repo.DuplicateKeyError
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return notFound(sku)
	case errors.Is(err, repo.ErrOptimisticConflict):
		return optimisticConflict(op, err)
	case errors.As(err, &dup):
		if dup.Field == "productName" {
			return duplicateKey("productName", name)
		}
		return duplicateKey(dup.Field, sku)
	case errors.Is(err, repo.ErrDuplicateKey):
		return duplicateKey("productName", name)
	}
	return unexpected(op, err)
}

func asValidation(err error) error {
	fields := map[string]string{}
	var fe validator.FieldErrors
	for _, e := range unwrapAll(err) {
		if errors.As(e, &fe) {
			for k, v := range fe {
				fields[k] = v
			}
		}
	}
	return validation(fields)
}

// errors.Joinした中身を取り出す
func unwrapAll(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

func (u *ProductUsecase) start(ctx context.Context, name, sku string) (context.Context, trace.Span) {
	return u.tracer.Start(ctx, "ProductUsecase."+name, trace.WithAttributes(
		attribute.String("product.sku", sku),
	))
}

// span終了・カウンタ・ログをまとめる
func (u *ProductUsecase) finish(ctx context.Context, span trace.Span, op string, err error) {
	defer span.End()

	result := "success"
	kind := ""
	if err != nil {
		result = "failure"
		kind = string(KindUnexpected)
		if e, ok := AsError(err); ok {
			kind = string(e.Kind)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)

		if kind == string(KindUnexpected) {
			u.logger.ErrorContext(ctx, "product operation failed",
				slog.String("operation", op),
				slog.String("error", err.Error()),
			)
		} else {
			u.logger.WarnContext(ctx, "product operation rejected",
				slog.String("operation", op),
				slog.String("kind", kind),
				slog.String("error", err.Error()),
			)
		}
	}

	u.ops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("result", result),
		attribute.String("kind", kind),
	))
}
