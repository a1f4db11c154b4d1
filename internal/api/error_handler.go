package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-table-reservation/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
	Code   int    `json:"code,omitempty"`
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	he := ToHTTPError(err)
	resp := ErrorResponse{Code: he.Code}
	switch m := he.Message.(type) {
	case Problem:
		resp.Error, resp.Kind, resp.Reason = m.Message, m.Kind, m.Reason
	case string:
		resp.Error, resp.Kind = m, kindForStatus(he.Code)
	default:
		resp.Error, resp.Kind = http.StatusText(he.Code), kindForStatus(he.Code)
	}

	// エラーログを出力（5xx エラーの場合）
	if he.Code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", he.Code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(he.Code)
	} else {
		err = c.JSON(he.Code, resp)
	}
	if err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
