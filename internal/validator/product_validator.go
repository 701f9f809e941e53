package validator

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"store-management/internal/dto"

	"github.com/shopspring/decimal"
)

const (
	MaxNameLength = 255
	DefaultSize   = 5
	MaxSize       = 100

	// page*size がintに収まる上限
	MaxPage = math.MaxInt / MaxSize
)

var skuPattern = regexp.MustCompile(`^[A-Z0-9-]{1,64}$`)

// ソート可能な項目
var SortableFields = map[string]bool{
	"createdAt":   true,
	"productName": true,
	"price":       true,
	"stock":       true,
	"sku":         true,
}

// 項目名 -> メッセージ
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, f[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// エラーが無ければnilを返す
func (f FieldErrors) OrNil() error {
	if len(f) == 0 {
		return nil
	}
	return f
}

func ValidateSku(sku string) error {
	f := FieldErrors{}
	checkSku(f, sku)
	return f.OrNil()
}

// 作成の入力を検証
func ValidateCreate(in dto.ProductCreate) error {
	f := FieldErrors{}

	checkSku(f, in.Sku)
	checkName(f, in.ProductName)

	if in.Price == nil {
		f["price"] = "must not be null"
	} else {
		checkPrice(f, *in.Price)
	}

	if in.Stock == nil {
		f["stock"] = "must not be null"
	} else {
		checkStock(f, *in.Stock)
	}

	return f.OrNil()
}

// 全体更新の入力を検証
func ValidateUpdate(in dto.ProductUpdate) error {
	f := FieldErrors{}

	if in.ProductName != nil {
		checkName(f, *in.ProductName)
	}
	if in.Price != nil {
		checkPrice(f, *in.Price)
	}
	if in.Stock != nil {
		checkStock(f, *in.Stock)
	}
	if in.Active == nil {
		f["active"] = "must not be null"
	}

	return f.OrNil()
}

func ValidatePrice(in dto.PriceUpdate) error {
	f := FieldErrors{}
	if in.Price == nil {
		f["price"] = "must not be null"
	} else {
		checkPrice(f, *in.Price)
	}
	return f.OrNil()
}

func ValidateStock(in dto.StockUpdate) error {
	f := FieldErrors{}
	if in.Stock == nil {
		f["stock"] = "must not be null"
	} else {
		checkStock(f, *in.Stock)
	}
	return f.OrNil()
}

// 一覧クエリを検証
func ValidateList(in dto.ListProducts) error {
	f := FieldErrors{}

	if in.Page < 0 {
		f["page"] = "must be greater than or equal to 0"
	} else if in.Page > MaxPage {
		f["page"] = fmt.Sprintf("must be less than or equal to %d", MaxPage)
	}
	if in.Size < 1 || in.Size > MaxSize {
		f["size"] = fmt.Sprintf("must be between 1 and %d", MaxSize)
	}
	if _, _, err := ParseSort(in.Sort); err != nil {
		f["sort"] = err.Error()
	}

	return f.OrNil()
}

// "field,dir" を分解する。空ならcreatedAt降順。
func ParseSort(s string) (field string, desc bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "createdAt", true, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) > 2 {
		return "", false, fmt.Errorf("must be field[,asc|desc]")
	}

	field = strings.TrimSpace(parts[0])
	if !SortableFields[field] {
		return "", false, fmt.Errorf("unsupported sort field %q", field)
	}

	if len(parts) == 2 {
		switch strings.ToLower(strings.TrimSpace(parts[1])) {
		case "asc":
			desc = false
		case "desc":
			desc = true
		default:
			return "", false, fmt.Errorf("sort direction must be asc or desc")
		}
	}

	return field, desc, nil
}

func checkSku(f FieldErrors, sku string) {
	if !skuPattern.MatchString(sku) {
		f["sku"] = "must match ^[A-Z0-9-]{1,64}$"
	}
}

func checkName(f FieldErrors, name string) {
	if strings.TrimSpace(name) == "" {
		f["productName"] = "must not be blank"
		return
	}
	if len(name) > MaxNameLength {
		f["productName"] = fmt.Sprintf("size must be at most %d", MaxNameLength)
	}
}

func checkPrice(f FieldErrors, p decimal.Decimal) {
	if p.IsNegative() {
		f["price"] = "must be greater than or equal to 0"
		return
	}
	// numeric(19,2)
	if p.Exponent() < -2 && !p.Equal(p.Truncate(2)) {
		f["price"] = "must have at most 2 fractional digits"
		return
	}
	if len(p.Truncate(0).String()) > 17 {
		f["price"] = "must have at most 17 integer digits"
	}
}

func checkStock(f FieldErrors, s int64) {
	if s < 0 {
		f["stock"] = "must be greater than or equal to 0"
	}
}
