// reconcile は保持中の予約からテーブルの空席数を再計算し、ずれを補正する運用コマンド。
// API サーバーと同じ環境変数で PostgreSQL と Redis に接続する
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-table-reservation/internal/application"
	"github.com/sanosuguru/go-table-reservation/internal/bootstrap"
	"github.com/sanosuguru/go-table-reservation/internal/config"
	"github.com/sanosuguru/go-table-reservation/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-table-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var eventID string
	var all bool
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("reconcile", pflag.ContinueOnError)
	flagSet.StringVar(&eventID, "event", "", "再計算するイベントID")
	flagSet.BoolVar(&all, "all", false, "全イベントを再計算する")
	flagSet.DurationVar(&timeout, "timeout", 5*time.Minute, "処理全体のタイムアウト")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if (eventID == "") == !all {
		flagSet.PrintDefaults()
		return errors.New("--event と --all のどちらか一方を指定してください")
	}

	cfg := config.Load()
	logger.Set(logger.NewLogger(cfg.App.Env))
	defer func() { _ = logger.Sync() }()

	db, err := bootstrap.OpenPostgres(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// API サーバーと同じロックで排他する
	var locks redisinfra.LockManagerInterface
	if cfg.Redis.Enabled && cfg.Reservation.DistributedLock {
		rdb, err := redisinfra.NewClient(&redisinfra.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		locks = redisinfra.NewLockManager(rdb)
	}
	guard := application.NewAllocationGuard(locks, application.GuardConfig{
		LockTTL:        cfg.Reservation.LockTTL,
		LockRetries:    cfg.Reservation.LockRetries,
		LockRetryDelay: cfg.Reservation.LockRetryDelay,
	}, nil)

	svc := application.NewReservationService(
		postgres.NewTxManager(db),
		postgres.NewBookingRepository(db),
		postgres.NewEventRepository(db),
		guard,
		application.DefaultReservationConfig(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var drifts []application.TableDrift
	if all {
		drifts, err = svc.ReconcileAll(ctx)
	} else {
		drifts, err = svc.Reconcile(ctx, eventID)
	}
	if err != nil {
		return err
	}

	logger.Info("再計算が完了しました", logger.Count(len(drifts)), zap.Bool("all", all))
	printDrifts(drifts)
	return nil
}

func printDrifts(drifts []application.TableDrift) {
	if len(drifts) == 0 {
		fmt.Println("ずれはありませんでした")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tTABLE\tNO\tTOTAL\tHELD\tBEFORE\tAFTER")
	for _, d := range drifts {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			d.EventID, d.TableID, d.Number, d.SeatsTotal, d.Held, d.Before, d.After)
	}
	_ = w.Flush()
}
