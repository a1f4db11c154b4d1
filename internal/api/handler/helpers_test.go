package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-table-reservation/internal/api"
)

// NewTestEcho は本番と同じバリデーターとエラーハンドラーを持つEchoを作る
func NewTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	return e
}
