package handler

import (
	"net/http"
	"strconv"

	"store-management/internal/authz"
	"store-management/internal/dto"
	"store-management/internal/middleware"
	"store-management/internal/usecase"
	"store-management/internal/validator"

	"github.com/labstack/echo/v4"
)

const (
	MsgCreated      = "Product created successfully"
	MsgUpdated      = "Product updated successfully"
	MsgPriceUpdated = "Product price updated successfully"
	MsgStockUpdated = "Product stock updated successfully"
	MsgDeleted      = "Product deleted successfully"
)

// /api/products
type ProductHandler struct {
	uc *usecase.ProductUsecase
}

// DI
func NewProductHandler(uc *usecase.ProductUsecase) *ProductHandler {
	return &ProductHandler{uc: uc}
}

// 商品のルートを登録。authnは認証ミドルウェア。
func (h *ProductHandler) RegisterRoutes(e *echo.Echo, authn echo.MiddlewareFunc) {
	g := e.Group("/api/products", authn)

	g.POST("", h.create, middleware.RequireOperation(authz.OpCreate))
	g.GET("", h.list, middleware.RequireOperation(authz.OpList))
	g.GET("/:sku", h.get, middleware.RequireOperation(authz.OpRead))
	g.PUT("/:sku", h.update, middleware.RequireOperation(authz.OpUpdate))
	g.PATCH("/:sku/price", h.updatePrice, middleware.RequireOperation(authz.OpUpdatePrice))
	g.PATCH("/:sku/stock", h.updateStock, middleware.RequireOperation(authz.OpUpdateStock))
	g.DELETE("/:sku", h.remove, middleware.RequireOperation(authz.OpDelete))
}

func (h *ProductHandler) create(c echo.Context) error {
	var req dto.ProductCreate
	if err := decodeJSON(c.Request(), &req); err != nil {
		return badRequest(c, err)
	}

	if _, err := h.uc.CreateProduct(c.Request().Context(), req); err != nil {
		return writeError(c, err)
	}

	return writeSuccess(c, http.StatusCreated, MsgCreated)
}

func (h *ProductHandler) update(c echo.Context) error {
	var req dto.ProductUpdate
	if err := decodeJSON(c.Request(), &req); err != nil {
		return badRequest(c, err)
	}

	if _, err := h.uc.UpdateProduct(c.Request().Context(), c.Param("sku"), req); err != nil {
		return writeError(c, err)
	}

	return writeSuccess(c, http.StatusOK, MsgUpdated)
}

func (h *ProductHandler) updatePrice(c echo.Context) error {
	var req dto.PriceUpdate
	if err := decodeJSON(c.Request(), &req); err != nil {
		return badRequest(c, err)
	}

	if _, err := h.uc.UpdateProductPrice(c.Request().Context(), c.Param("sku"), req); err != nil {
		return writeError(c, err)
	}

	return writeSuccess(c, http.StatusOK, MsgPriceUpdated)
}

func (h *ProductHandler) updateStock(c echo.Context) error {
	var req dto.StockUpdate
	if err := decodeJSON(c.Request(), &req); err != nil {
		return badRequest(c, err)
	}

	if _, err := h.uc.UpdateProductStock(c.Request().Context(), c.Param("sku"), req); err != nil {
		return writeError(c, err)
	}

	return writeSuccess(c, http.StatusOK, MsgStockUpdated)
}

func (h *ProductHandler) get(c echo.Context) error {
	p, err := h.uc.FindBySku(c.Request().Context(), c.Param("sku"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, p)
}

func (h *ProductHandler) list(c echo.Context) error {
	in := dto.ListProducts{
		Active: true,
		Page:   0,
		Size:   validator.DefaultSize,
		Sort:   c.QueryParam("sort"),
	}
	fields := map[string]string{}

	// active（default true）
	if v := c.QueryParam("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fields["active"] = "must be true or false"
		}
		in.Active = b
	}

	// page（default 0）
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			fields["page"] = "must be a number"
		}
		in.Page = p
	}

	// size（default 5）
	if v := c.QueryParam("size"); v != "" {
		s, err := strconv.Atoi(v)
		if err != nil {
			fields["size"] = "must be a number"
		}
		in.Size = s
	}

	if len(fields) > 0 {
		return c.JSON(http.StatusBadRequest, fields)
	}

	out, err := h.uc.ListProducts(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) remove(c echo.Context) error {
	if err := h.uc.DeleteProduct(c.Request().Context(), c.Param("sku")); err != nil {
		return writeError(c, err)
	}

	return writeSuccess(c, http.StatusOK, MsgDeleted)
}
