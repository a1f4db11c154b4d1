package middleware

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveMetrics(t *testing.T, cfg MetricsConfig, authHeader string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := MetricsBasicAuth(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "metrics")
	})
	return rec, handler(c)
}

func basic(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestMetricsBasicAuth_NoCredentials(t *testing.T) {
	rec, err := serveMetrics(t, MetricsConfig{}, "")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}

func TestMetricsBasicAuth_ValidCredentials(t *testing.T) {
	rec, err := serveMetrics(t, MetricsConfig{User: "testuser", Password: "testpass"}, basic("testuser", "testpass"))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsBasicAuth_InvalidCredentials(t *testing.T) {
	rec, err := serveMetrics(t, MetricsConfig{User: "testuser", Password: "testpass"}, basic("wronguser", "wrongpass"))

	// Basic認証失敗時はHTTPErrorが返る
	if err != nil {
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	} else {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestMetricsBasicAuth_NoAuthHeader(t *testing.T) {
	_, err := serveMetrics(t, MetricsConfig{User: "testuser", Password: "testpass"}, "")

	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestMetricsConfig_IsEnabled(t *testing.T) {
	tests := []struct {
		name        string
		cfg         MetricsConfig
		wantEnabled bool
	}{
		{name: "両方設定あり", cfg: MetricsConfig{User: "user", Password: "pass"}, wantEnabled: true},
		{name: "ユーザーのみ", cfg: MetricsConfig{User: "user"}, wantEnabled: false},
		{name: "パスワードのみ", cfg: MetricsConfig{Password: "pass"}, wantEnabled: false},
		{name: "両方なし", cfg: MetricsConfig{}, wantEnabled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantEnabled, tt.cfg.IsEnabled())
		})
	}
}
