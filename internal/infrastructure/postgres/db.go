package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-table-reservation/internal/config"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/logger"
)

// 起動直後のDBコンテナを待つための再試行
const (
	connectAttempts = 5
	connectBackoff  = time.Second
)

// NewConnection はPostgreSQLへの接続を作成する。接続できるまで数回再試行する
func NewConnection(cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err := sqlx.Connect("postgres", cfg.DSN())
		if err == nil {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
			db.SetMaxIdleConns(cfg.MaxIdleConns)
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
			return db, nil
		}
		lastErr = err
		logger.Warn("データベース接続を再試行します",
			zap.Int("attempt", attempt), zap.String("host", cfg.Host), zap.Error(err))
		time.Sleep(time.Duration(attempt) * connectBackoff)
	}
	return nil, fmt.Errorf("データベース接続に失敗しました: %w", lastErr)
}

// Ping はデータベース接続を確認する
func Ping(ctx context.Context, db *sqlx.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("データベースに到達できません: %w", err)
	}
	return nil
}
