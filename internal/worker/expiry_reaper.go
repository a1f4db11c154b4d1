package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-table-reservation/internal/pkg/clock"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/logger"
)

// Reclaimer は期限切れの仮押さえを回収するインターフェース
type Reclaimer interface {
	ReclaimExpired(ctx context.Context, now time.Time) (int, error)
}

// ExpiryReaper は一定間隔で期限切れの仮押さえを回収するワーカー。
// 複数プロセスで同時に動かしても回収は一度だけ成功する
type ExpiryReaper struct {
	reclaimer Reclaimer
	interval  time.Duration
	clock     clock.Clock
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
}

// NewExpiryReaper は新しいリーパーを作成
func NewExpiryReaper(r Reclaimer, interval time.Duration, c clock.Clock) *ExpiryReaper {
	if c == nil {
		c = clock.Real{}
	}
	return &ExpiryReaper{
		reclaimer: r,
		interval:  interval,
		clock:     c,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start はリーパーを開始し、停止するまでブロックする
func (r *ExpiryReaper) Start(ctx context.Context) {
	logger.Info("期限切れ予約リーパー開始", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer close(r.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("期限切れ予約リーパー停止（コンテキストキャンセル）")
			return
		case <-r.stopCh:
			logger.Info("期限切れ予約リーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// Stop はリーパーを停止し、実行中の回収が終わるまで待つ。Start 前には呼ばないこと
func (r *ExpiryReaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

// sweep は現在時刻で一度だけ回収する
func (r *ExpiryReaper) sweep(ctx context.Context) {
	log := logger.Get()

	count, err := r.reclaimer.ReclaimExpired(ctx, r.clock.Now())
	if err != nil {
		log.Error("期限切れ予約の回収失敗", zap.Error(err))
		return
	}

	if count > 0 {
		log.Debug("期限切れ予約を回収", logger.Count(count))
	}
}
