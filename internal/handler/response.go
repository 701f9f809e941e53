package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"store-management/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 書き込み系の成功レスポンス
type ResponseDto struct {
	StatusCode string `json:"statusCode"`
	StatusMsg  string `json:"statusMsg"`
}

type ErrorResponse struct {
	ErrorCode    string            `json:"errorCode"`
	ErrorMessage string            `json:"errorMessage"`
	Fields       map[string]string `json:"fields,omitempty"`
	ErrorTime    time.Time         `json:"errorTime"`
}

func writeSuccess(c echo.Context, status int, msg string) error {
	return c.JSON(status, ResponseDto{StatusCode: strconv.Itoa(status), StatusMsg: msg})
}

func errorBody(status int, msg string, fields map[string]string) ErrorResponse {
	return ErrorResponse{
		ErrorCode:    http.StatusText(status),
		ErrorMessage: msg,
		Fields:       fields,
		ErrorTime:    time.Now(),
	}
}

// エラー種別 -> HTTPステータス
func statusOf(kind usecase.ErrorKind) int {
	switch kind {
	case usecase.KindValidation, usecase.KindDuplicateKey, usecase.KindConflict:
		return http.StatusBadRequest
	case usecase.KindNotFound:
		return http.StatusNotFound
	case usecase.KindOptimisticConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// 500の原因。リクエストログが拾う。
const CtxErrorCauseKey = "error_cause"

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	e, ok := usecase.AsError(err)
	if !ok || e.Kind == usecase.KindUnexpected {
		//500 中身は返さない
		c.Set(CtxErrorCauseKey, err)
		return c.JSON(http.StatusInternalServerError, errorBody(http.StatusInternalServerError, "internal error", nil))
	}

	status := statusOf(e.Kind)

	//validationは項目 -> メッセージのmapだけを返す
	if e.Kind == usecase.KindValidation {
		return c.JSON(status, e.Fields)
	}

	return c.JSON(status, errorBody(status, e.Message, e.Fields))
}

// リクエストボディのJSONを読み取り。未知の項目はエラー。
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, errorBody(http.StatusBadRequest, err.Error(), nil))
}
