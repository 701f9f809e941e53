package usecase

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindDuplicateKey       ErrorKind = "DUPLICATE_KEY"
	KindConflict           ErrorKind = "CONFLICT"
	KindOptimisticConflict ErrorKind = "OPTIMISTIC_CONFLICT"
	KindValidation         ErrorKind = "VALIDATION"
	KindUnexpected         ErrorKind = "UNEXPECTED"
)

// 種別ごとの番兵。errors.Is(err, ErrNotFound) のように使う。
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrDuplicateKey       = &Error{Kind: KindDuplicateKey}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrOptimisticConflict = &Error{Kind: KindOptimisticConflict}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrUnexpected         = &Error{Kind: KindUnexpected}
)

// 商品サービスが返すエラー
type Error struct {
	Kind    ErrorKind
	Message string
	// 項目名 -> メッセージ（Validation / DuplicateKey / Conflict）
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func notFound(sku string) error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("Product not found with the given input data sku : '%s'", sku),
	}
}

func duplicateKey(field, value string) error {
	return &Error{
		Kind:    KindDuplicateKey,
		Message: fmt.Sprintf("Product already exists with the given %s '%s'", field, value),
		Fields:  map[string]string{field: "already exists"},
	}
}

// skuとproductNameの両方が既存
func conflict(sku, name string) error {
	return &Error{
		Kind:    KindConflict,
		Message: fmt.Sprintf("Product already exists with the given sku '%s' and productName '%s'", sku, name),
		Fields: map[string]string{
			"sku":         "already exists",
			"productName": "already exists",
		},
	}
}

func optimisticConflict(op string, err error) error {
	return &Error{
		Kind:    KindOptimisticConflict,
		Message: fmt.Sprintf("Conflict while %s. Resource was modified concurrently.", op),
		Err:     err,
	}
}

func validation(fields map[string]string) error {
	return &Error{
		Kind:    KindValidation,
		Message: "Validation failed",
		Fields:  fields,
	}
}

func unexpected(op string, err error) error {
	return &Error{
		Kind:    KindUnexpected,
		Message: fmt.Sprintf("unexpected error while %s", op),
		Err:     err,
	}
}
