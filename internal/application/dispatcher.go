package application

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-table-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/metrics"
)

// Dispatcher はコミット後の副作用（通知・チケット生成）を非同期に実行する
type Dispatcher struct {
	tasks       chan task
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
	taskTimeout time.Duration
	metrics     *metrics.Metrics
}

type task struct {
	name string
	run  func(ctx context.Context) error
}

// NewDispatcher は workers 個のワーカーを起動する
func NewDispatcher(workers, queueSize int, taskTimeout time.Duration, m *metrics.Metrics) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{
		tasks:       make(chan task, queueSize),
		taskTimeout: taskTimeout,
		metrics:     m,
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

// Dispatch はタスクを投入する。キューが満杯または停止済みなら破棄して false を返す
func (d *Dispatcher) Dispatch(name string, run func(ctx context.Context) error) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.count(name, "dropped")
		logger.Warn("停止済みのため非同期タスクを破棄しました", zap.String("task", name))
		return false
	}
	select {
	case d.tasks <- task{name: name, run: run}:
		return true
	default:
		d.count(name, "dropped")
		logger.Warn("キューが満杯のため非同期タスクを破棄しました", zap.String("task", name))
		return false
	}
}

// Close は新規投入を止め、キューに残ったタスクを処理し終えるまで待つ
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for t := range d.tasks {
		d.execute(t)
	}
}

func (d *Dispatcher) execute(t task) {
	ctx := context.Background()
	if d.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.taskTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			d.count(t.name, "failed")
			logger.Error("非同期タスクでパニックが発生しました", zap.String("task", t.name), zap.Any("panic", r))
		}
	}()

	if err := t.run(ctx); err != nil {
		d.count(t.name, "failed")
		logger.Warn("非同期タスクが失敗しました", zap.String("task", t.name), zap.Error(err))
		return
	}
	d.count(t.name, "success")
}

func (d *Dispatcher) count(name, result string) {
	if d.metrics != nil {
		d.metrics.SideEffectsTotal.WithLabelValues(name, result).Inc()
	}
}
