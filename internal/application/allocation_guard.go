package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	redisinfra "github.com/sanosuguru/go-table-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/metrics"
)

// ErrGuardBusy は他プロセスがテーブルを処理中でガードを取得できない場合のエラー
var ErrGuardBusy = errors.New("テーブルが他の処理で使用中です")

// GuardConfig は分散ロックの設定
type GuardConfig struct {
	LockTTL        time.Duration
	LockRetries    int
	LockRetryDelay time.Duration
}

// DefaultGuardConfig はデフォルトの分散ロック設定を返す
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		LockTTL:        10 * time.Second,
		LockRetries:    50,
		LockRetryDelay: 20 * time.Millisecond,
	}
}

// AllocationGuard はテーブルごとの空席数の更新を直列化する。
// プロセス内はキーごとのミューテックス、locks が設定されていればプロセス間は Redis ロックで排他する。
// 複数キーは常に昇順で取得し、逆順で解放する
type AllocationGuard struct {
	mu      sync.Mutex
	slots   map[string]*guardSlot
	locks   redisinfra.LockManagerInterface
	cfg     GuardConfig
	metrics *metrics.Metrics
}

type guardSlot struct {
	ch   chan struct{} // 容量1。送信できた者が保持者
	refs int
}

// NewAllocationGuard は AllocationGuard を作成する。locks が nil ならプロセス内のみで排他する
func NewAllocationGuard(locks redisinfra.LockManagerInterface, cfg GuardConfig, m *metrics.Metrics) *AllocationGuard {
	return &AllocationGuard{
		slots:   make(map[string]*guardSlot),
		locks:   locks,
		cfg:     cfg,
		metrics: m,
	}
}

// TableKey はテーブルのガードキー
func TableKey(tableID string) string { return "table:" + tableID }

// EventKey はイベント全体のガードキー
func EventKey(eventID string) string { return "event:" + eventID }

// Acquire は指定テーブルのガードをすべて取得し、解放関数を返す
func (g *AllocationGuard) Acquire(ctx context.Context, tableIDs ...string) (func(), error) {
	keys := make([]string, len(tableIDs))
	for i, id := range tableIDs {
		keys[i] = TableKey(id)
	}
	return g.acquire(ctx, keys)
}

// AcquireEvent はイベント全体のガードと、そのテーブルのガードをすべて取得する
func (g *AllocationGuard) AcquireEvent(ctx context.Context, eventID string, tableIDs ...string) (func(), error) {
	keys := make([]string, 0, len(tableIDs)+1)
	keys = append(keys, EventKey(eventID))
	for _, id := range tableIDs {
		keys = append(keys, TableKey(id))
	}
	return g.acquire(ctx, keys)
}

func (g *AllocationGuard) acquire(ctx context.Context, keys []string) (func(), error) {
	start := time.Now()
	ordered := sortedUnique(keys)

	var (
		held   []string
		remote []redisinfra.Lock
	)
	releaseAll := func() {
		for i := len(remote) - 1; i >= 0; i-- {
			// 呼び出し元のコンテキストが終わっていても解放する
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := remote[i].Release(rctx); err != nil {
				logger.Warn("分散ロックの解放に失敗しました", zap.Error(err))
			}
			cancel()
		}
		for i := len(held) - 1; i >= 0; i-- {
			g.unlock(held[i])
		}
	}

	for _, key := range ordered {
		if err := g.lock(ctx, key); err != nil {
			releaseAll()
			g.observe("failed", start)
			return nil, err
		}
		held = append(held, key)

		if g.locks == nil {
			continue
		}
		l, err := g.locks.AcquireLockWithRetry(ctx, key, g.cfg.LockTTL, g.cfg.LockRetries, g.cfg.LockRetryDelay)
		if err != nil {
			releaseAll()
			g.observe("failed", start)
			if errors.Is(err, redisinfra.ErrLockNotAcquired) {
				return nil, ErrGuardBusy
			}
			return nil, fmt.Errorf("分散ロック取得に失敗: %w", err)
		}
		remote = append(remote, l)
	}
	g.observe("acquired", start)

	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}

func (g *AllocationGuard) lock(ctx context.Context, key string) error {
	g.mu.Lock()
	slot, ok := g.slots[key]
	if !ok {
		slot = &guardSlot{ch: make(chan struct{}, 1)}
		g.slots[key] = slot
	}
	slot.refs++
	g.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		g.drop(key, slot)
		g.mu.Unlock()
		return ctx.Err()
	}
}

func (g *AllocationGuard) unlock(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.slots[key]
	if !ok {
		return
	}
	<-slot.ch
	g.drop(key, slot)
}

// drop は参照を減らし、誰も使っていなければスロットを破棄する。g.mu を保持して呼ぶ
func (g *AllocationGuard) drop(key string, slot *guardSlot) {
	slot.refs--
	if slot.refs == 0 {
		delete(g.slots, key)
	}
}

// activeSlots は保持または待機中のキー数を返す
func (g *AllocationGuard) activeSlots() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.slots)
}

func (g *AllocationGuard) observe(result string, start time.Time) {
	if g.metrics != nil {
		g.metrics.GuardWaitDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}
}

func sortedUnique(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
