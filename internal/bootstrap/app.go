// Package bootstrap は設定からストレージ、サービス、HTTPサーバーを組み立てる
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-table-reservation/internal/api"
	"github.com/sanosuguru/go-table-reservation/internal/api/handler"
	"github.com/sanosuguru/go-table-reservation/internal/api/middleware"
	"github.com/sanosuguru/go-table-reservation/internal/application"
	"github.com/sanosuguru/go-table-reservation/internal/config"
	"github.com/sanosuguru/go-table-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-table-reservation/internal/domain/event"
	"github.com/sanosuguru/go-table-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-table-reservation/internal/infrastructure/memory"
	"github.com/sanosuguru/go-table-reservation/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-table-reservation/internal/infrastructure/rabbitmq"
	redisinfra "github.com/sanosuguru/go-table-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-table-reservation/internal/infrastructure/ticket"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/clock"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/metrics"
	"github.com/sanosuguru/go-table-reservation/internal/worker"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// 通知とチケット生成1件あたりの上限
const sideEffectTimeout = 30 * time.Second

// Options は組み立て時に差し替える依存
type Options struct {
	Metrics  *metrics.Metrics    // nil ならメトリクスを収集しない
	Gatherer prometheus.Gatherer // /metrics の出力元。nil なら /metrics を公開しない
	Clock    clock.Clock
}

// App は組み立て済みのアプリケーション
type App struct {
	Config       *config.Config
	Echo         *echo.Echo
	Events       *application.EventService
	Reservations *application.ReservationService
	Dispatcher   *application.Dispatcher
	Reaper       *worker.ExpiryReaper

	checks  map[string]handler.HealthCheck
	closers []func() error
	started bool
}

type storage struct {
	txm      transaction.Manager
	events   event.Repository
	bookings booking.Repository
}

// New は設定に従ってアプリケーションを組み立てる。途中で失敗した場合は確保済みの接続を閉じる
func New(cfg *config.Config, opts Options) (*App, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if cfg.Reservation.ReaperInterval <= 0 {
		return nil, fmt.Errorf("REAPER_INTERVAL は正の値を指定してください: %s", cfg.Reservation.ReaperInterval)
	}
	a := &App{Config: cfg, checks: make(map[string]handler.HealthCheck)}

	st, err := a.openStorage(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		rdb, err = redisinfra.NewClient(&redisinfra.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		a.checks["redis"] = func(ctx context.Context) error { return redisinfra.Ping(ctx, rdb) }
		logger.Info("Redisに接続しました", zap.String("addr", cfg.Redis.Addr()))
	}

	var locks redisinfra.LockManagerInterface
	if rdb != nil && cfg.Reservation.DistributedLock {
		locks = redisinfra.NewLockManager(rdb)
	}
	guard := application.NewAllocationGuard(locks, application.GuardConfig{
		LockTTL:        cfg.Reservation.LockTTL,
		LockRetries:    cfg.Reservation.LockRetries,
		LockRetryDelay: cfg.Reservation.LockRetryDelay,
	}, opts.Metrics)

	a.Dispatcher = application.NewDispatcher(cfg.Reservation.SideEffectWorkers, cfg.Reservation.SideEffectQueue, sideEffectTimeout, opts.Metrics)
	a.closers = append(a.closers, func() error { a.Dispatcher.Close(); return nil })

	eventOpts := []application.EventOption{application.WithEventClock(opts.Clock)}
	resOpts := []application.ReservationOption{
		application.WithClock(opts.Clock),
		application.WithDispatcher(a.Dispatcher),
		application.WithMetrics(opts.Metrics),
	}
	if rdb != nil {
		cache := redisinfra.NewAvailabilityCache(rdb)
		eventOpts = append(eventOpts, application.WithEventCache(cache, application.DefaultAvailabilityTTL))
		resOpts = append(resOpts, application.WithAvailabilityCache(cache))
	}

	if cfg.RabbitMQ.URL != "" {
		n, err := rabbitmq.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, n.Close)
		resOpts = append(resOpts, application.WithNotifier(n))
	}

	if cfg.Ticket.OutputDir != "" {
		issuer, err := ticket.NewIssuer(cfg.Ticket.OutputDir)
		if err != nil {
			a.Close()
			return nil, err
		}
		resOpts = append(resOpts, application.WithTicketIssuer(issuer))
	}

	resCfg := application.DefaultReservationConfig()
	resCfg.HoldDuration = cfg.Reservation.HoldDuration
	resCfg.InitialStatus = booking.Status(cfg.Reservation.InitialStatus)
	resCfg.DirectPayment = cfg.Reservation.DirectPayment
	if !resCfg.InitialStatus.IsExpirable() {
		a.Close()
		return nil, fmt.Errorf("INITIAL_STATUS は pending か reserved を指定してください: %q", cfg.Reservation.InitialStatus)
	}

	a.Events = application.NewEventService(st.txm, st.events, st.bookings, guard, eventOpts...)
	a.Reservations = application.NewReservationService(st.txm, st.bookings, st.events, guard, resCfg, resOpts...)
	a.Reaper = worker.NewExpiryReaper(a.Reservations, cfg.Reservation.ReaperInterval, opts.Clock)

	a.Echo = a.newEcho(cfg, opts)
	return a, nil
}

func (a *App) openStorage(cfg *config.Config) (*storage, error) {
	switch cfg.App.Storage {
	case StorageMemory:
		store := memory.NewStore()
		logger.Info("インメモリストアを使用します")
		return &storage{
			txm:      memory.NewTxManager(store),
			events:   memory.NewEventRepository(store),
			bookings: memory.NewBookingRepository(store),
		}, nil
	case StoragePostgres, "":
		db, err := OpenPostgres(cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.checks["postgres"] = func(ctx context.Context) error { return postgres.Ping(ctx, db) }
		return &storage{
			txm:      postgres.NewTxManager(db),
			events:   postgres.NewEventRepository(db),
			bookings: postgres.NewBookingRepository(db),
		}, nil
	default:
		return nil, fmt.Errorf("不明なストレージ種別です: %q", cfg.App.Storage)
	}
}

// OpenPostgres はデータベースに接続し、マイグレーションを適用する
func OpenPostgres(cfg *config.Config) (*sqlx.DB, error) {
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := postgres.RunMigrations(db.DB, cfg.App.MigrationsPath); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (a *App) newEcho(cfg *config.Config, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	middleware.SetupMiddleware(e, opts.Metrics)

	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})),
			middleware.MetricsBasicAuth(middleware.MetricsConfig{
				User:     cfg.Auth.MetricsUser,
				Password: cfg.Auth.MetricsPassword,
			}))
	}

	handler.Register(e, handler.Handlers{
		Health:  handler.NewHealthHandler(a.checks),
		Event:   handler.NewEventHandler(a.Events),
		Booking: handler.NewBookingHandler(a.Reservations),
		Admin:   handler.NewAdminHandler(a.Reservations),
	}, cfg.Auth.JWTSecret)
	return e
}

// StartWorkers は期限切れ回収を開始する。ctx の終了か Close で停止する
func (a *App) StartWorkers(ctx context.Context) {
	a.started = true
	go a.Reaper.Start(ctx)
}

// Close は回収ワーカーを止め、確保した接続を逆順に閉じる
func (a *App) Close() error {
	if a.started {
		a.Reaper.Stop()
		a.started = false
	}
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("終了処理に失敗しました", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.closers = nil
	return firstErr
}
