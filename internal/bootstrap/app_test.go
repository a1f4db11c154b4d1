package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-table-reservation/internal/config"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/metrics"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{Env: "test", Storage: StorageMemory},
		Reservation: config.ReservationConfig{
			HoldDuration:      15 * time.Minute,
			ReaperInterval:    time.Hour,
			InitialStatus:     "reserved",
			DirectPayment:     true,
			SideEffectWorkers: 1,
			SideEffectQueue:   4,
		},
		Ticket: config.TicketConfig{OutputDir: t.TempDir()},
	}
}

func TestNew(t *testing.T) {
	t.Run("インメモリストアで組み立てられる", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		app, err := New(memoryConfig(t), Options{Metrics: metrics.NewWithRegistry(reg), Gatherer: reg})
		require.NoError(t, err)
		defer app.Close()

		assert.NotNil(t, app.Events)
		assert.NotNil(t, app.Reservations)
		assert.NotNil(t, app.Reaper)

		rec := httptest.NewRecorder()
		app.Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		app.Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Gathererがなければ/metricsを公開しない", func(t *testing.T) {
		app, err := New(memoryConfig(t), Options{})
		require.NoError(t, err)
		defer app.Close()

		rec := httptest.NewRecorder()
		app.Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("期限付きでない初期状態は拒否する", func(t *testing.T) {
		cfg := memoryConfig(t)
		cfg.Reservation.InitialStatus = "paid"

		app, err := New(cfg, Options{})

		assert.Nil(t, app)
		assert.ErrorContains(t, err, "INITIAL_STATUS")
	})

	t.Run("回収間隔が0以下なら拒否する", func(t *testing.T) {
		for _, interval := range []time.Duration{0, -time.Second} {
			cfg := memoryConfig(t)
			cfg.Reservation.ReaperInterval = interval

			app, err := New(cfg, Options{})

			assert.Nil(t, app)
			assert.ErrorContains(t, err, "REAPER_INTERVAL")
		}
	})

	t.Run("不明なストレージ種別は拒否する", func(t *testing.T) {
		cfg := memoryConfig(t)
		cfg.App.Storage = "sqlite"

		_, err := New(cfg, Options{})

		assert.ErrorContains(t, err, "sqlite")
	})
}

func TestApp_StartWorkersAndClose(t *testing.T) {
	app, err := New(memoryConfig(t), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.StartWorkers(ctx)

	done := make(chan error, 1)
	go func() { done <- app.Close() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close が戻りません")
	}
	// 二度目の Close は何もしない
	assert.NoError(t, app.Close())
}
