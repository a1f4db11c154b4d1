package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-table-reservation/internal/api"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/logger"
)

// RequestLogger はリクエストの構造化ログを出力するミドルウェア。
// 空席不足や状態競合は通常の結果なので Warn、5xx のみ Error で出す
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			res := c.Response()

			err := next(c)

			status := res.Status
			fields := []zap.Field{
				zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				zap.String("method", req.Method),
				zap.String("route", c.Path()),
				zap.String("path", req.URL.Path),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_ip", c.RealIP()),
			}
			if r := req.Header.Get(HeaderRequester); r != "" {
				fields = append(fields, logger.Requester(r))
			}
			if err != nil {
				he := api.ToHTTPError(err)
				status = he.Code
				if p, ok := he.Message.(api.Problem); ok {
					fields = append(fields, zap.String("kind", p.Kind), zap.String("reason", p.Reason))
				}
				fields = append(fields, zap.Error(err))
			}
			fields = append(fields, zap.Int("status", status), zap.Int64("size", res.Size))

			switch {
			case status >= 500:
				logger.Error("server error", fields...)
			case status >= 400:
				logger.Warn("client error", fields...)
			default:
				logger.Info("request completed", fields...)
			}
			return err
		}
	}
}

// RequestIDMiddleware はリクエストIDを引き継ぐか生成し、レスポンスヘッダーに付与する
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = generateRequestID()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(c)
		}
	}
}

func generateRequestID() string {
	return uuid.NewString()
}
