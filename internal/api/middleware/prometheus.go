package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-table-reservation/internal/api"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/metrics"
)

// スクレイプ自体とヘルスチェックは集計しない
var unmeasuredPaths = map[string]bool{
	"/metrics": true,
	"/health":  true,
	"/ready":   true,
}

// PrometheusMiddleware はHTTPメトリクスを収集するミドルウェア。
// path はルート定義（/api/v1/bookings/:id など）で集計する
func PrometheusMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			if unmeasuredPaths[path] {
				return next(c)
			}
			if path == "" {
				path = "unmatched"
			}

			start := time.Now()
			err := next(c)
			duration := time.Since(start).Seconds()

			status := c.Response().Status
			if err != nil {
				status = api.ToHTTPError(err).Code
			}

			method := c.Request().Method
			m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)

			return err
		}
	}
}
