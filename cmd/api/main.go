package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-table-reservation/internal/bootstrap"
	"github.com/sanosuguru/go-table-reservation/internal/config"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/metrics"
)

func main() {
	cfg := config.Load()

	logger.Set(logger.NewLogger(cfg.App.Env))
	defer func() { _ = logger.Sync() }()

	app, err := bootstrap.New(cfg, bootstrap.Options{
		Metrics:  metrics.Init(),
		Gatherer: prometheus.DefaultGatherer,
	})
	if err != nil {
		logger.Fatal("アプリケーションの初期化に失敗しました", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	app.StartWorkers(ctx)

	// サーバー起動
	go func() {
		logger.Info("サーバーを起動します",
			zap.String("port", cfg.Server.Port),
			zap.String("storage", cfg.App.Storage),
			zap.Bool("redis", cfg.Redis.Enabled))
		if err := app.Echo.Start(fmt.Sprintf(":%s", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.Echo.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
	}
	stop()
	if err := app.Close(); err != nil {
		logger.Error("終了処理エラー", zap.Error(err))
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
