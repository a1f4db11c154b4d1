package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	redisinfra "github.com/sanosuguru/go-table-reservation/internal/infrastructure/redis"
)

func TestAllocationGuard_同じテーブルは直列化される(t *testing.T) {
	g := NewAllocationGuard(nil, DefaultGuardConfig(), nil)
	ctx := context.Background()

	release, err := g.Acquire(ctx, "t-1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := g.Acquire(ctx, "t-1")
		if err == nil {
			close(acquired)
			r()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("保持中のテーブルのガードを取得できてしまった")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("解放後もガードを取得できない")
	}
}

func TestAllocationGuard_異なるテーブルは互いに待たない(t *testing.T) {
	g := NewAllocationGuard(nil, DefaultGuardConfig(), nil)

	release, err := g.Acquire(context.Background(), "t-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	other, err := g.Acquire(ctx, "t-2")
	require.NoError(t, err)
	other()
}

func TestAllocationGuard_コンテキストの終了で待機を中断する(t *testing.T) {
	g := NewAllocationGuard(nil, DefaultGuardConfig(), nil)

	release, err := g.Acquire(context.Background(), "t-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx, "t-1", "t-0")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 先に取得した t-0 も解放されている
	assert.Equal(t, 1, g.activeSlots())

	release()
	assert.Equal(t, 0, g.activeSlots())
}

func TestAllocationGuard_重複したキーは1度だけ取得する(t *testing.T) {
	g := NewAllocationGuard(nil, DefaultGuardConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release, err := g.Acquire(ctx, "t-1", "t-1", "t-2")
	require.NoError(t, err)
	assert.Equal(t, 2, g.activeSlots())
	release()
	assert.Equal(t, 0, g.activeSlots())
}

func TestAllocationGuard_解放関数は何度呼んでもよい(t *testing.T) {
	g := NewAllocationGuard(nil, DefaultGuardConfig(), nil)

	release, err := g.Acquire(context.Background(), "t-1")
	require.NoError(t, err)
	release()
	release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	again, err := g.Acquire(ctx, "t-1")
	require.NoError(t, err)
	again()
	assert.Equal(t, 0, g.activeSlots())
}

func TestAllocationGuard_逆順の要求が交差してもデッドロックしない(t *testing.T) {
	g := NewAllocationGuard(nil, DefaultGuardConfig(), nil)

	const goroutines = 50
	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids := []string{"t-a", "t-b", "t-c"}
			if i%2 == 1 {
				ids = []string{"t-c", "t-b", "t-a"}
			}
			release, err := g.Acquire(ctx, ids...)
			if err != nil {
				errs <- err
				return
			}
			time.Sleep(time.Millisecond)
			release()
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("ガード取得に失敗: %v", err)
	}
	assert.Equal(t, 0, g.activeSlots())
}

func TestAllocationGuard_AcquireEvent(t *testing.T) {
	g := NewAllocationGuard(nil, DefaultGuardConfig(), nil)

	release, err := g.AcquireEvent(context.Background(), "e-1", "t-1", "t-2")
	require.NoError(t, err)
	assert.Equal(t, 3, g.activeSlots())

	// イベントのガード保持中はそのテーブルのガードを取得できない
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx, "t-2")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.Equal(t, 0, g.activeSlots())
}

func TestAllocationGuard_分散ロックは昇順で取得し逆順で解放する(t *testing.T) {
	locks := new(MockLockManager)
	cfg := DefaultGuardConfig()
	g := NewAllocationGuard(locks, cfg, nil)

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	lockA := new(MockLock)
	lockB := new(MockLock)
	locks.On("AcquireLockWithRetry", mock.Anything, "table:t-a", cfg.LockTTL, cfg.LockRetries, cfg.LockRetryDelay).
		Run(func(mock.Arguments) { record("acquire:t-a") }).Return(lockA, nil)
	locks.On("AcquireLockWithRetry", mock.Anything, "table:t-b", cfg.LockTTL, cfg.LockRetries, cfg.LockRetryDelay).
		Run(func(mock.Arguments) { record("acquire:t-b") }).Return(lockB, nil)
	lockA.On("Release", mock.Anything).Run(func(mock.Arguments) { record("release:t-a") }).Return(nil)
	lockB.On("Release", mock.Anything).Run(func(mock.Arguments) { record("release:t-b") }).Return(nil)

	// Execute
	release, err := g.Acquire(context.Background(), "t-b", "t-a")
	require.NoError(t, err)
	release()

	// Assert
	assert.Equal(t, []string{"acquire:t-a", "acquire:t-b", "release:t-b", "release:t-a"}, order)
	locks.AssertExpectations(t)
	lockA.AssertExpectations(t)
	lockB.AssertExpectations(t)
}

func TestAllocationGuard_分散ロックを取得できなければ使用中エラー(t *testing.T) {
	locks := new(MockLockManager)
	cfg := DefaultGuardConfig()
	g := NewAllocationGuard(locks, cfg, nil)

	lockA := new(MockLock)
	locks.On("AcquireLockWithRetry", mock.Anything, "table:t-a", cfg.LockTTL, cfg.LockRetries, cfg.LockRetryDelay).
		Return(lockA, nil)
	locks.On("AcquireLockWithRetry", mock.Anything, "table:t-b", cfg.LockTTL, cfg.LockRetries, cfg.LockRetryDelay).
		Return(nil, redisinfra.ErrLockNotAcquired)
	lockA.On("Release", mock.Anything).Return(nil)

	release, err := g.Acquire(context.Background(), "t-a", "t-b")

	require.Error(t, err)
	assert.Nil(t, release)
	assert.ErrorIs(t, err, ErrGuardBusy)
	// 取得済みのロックは解放される
	lockA.AssertCalled(t, "Release", mock.Anything)
	assert.Equal(t, 0, g.activeSlots())
}

func TestAllocationGuard_分散ロックの障害はそのまま返す(t *testing.T) {
	locks := new(MockLockManager)
	cfg := DefaultGuardConfig()
	g := NewAllocationGuard(locks, cfg, nil)

	connErr := errors.New("connection refused")
	locks.On("AcquireLockWithRetry", mock.Anything, "table:t-a", cfg.LockTTL, cfg.LockRetries, cfg.LockRetryDelay).
		Return(nil, connErr)

	_, err := g.Acquire(context.Background(), "t-a")

	require.Error(t, err)
	assert.ErrorIs(t, err, connErr)
	assert.NotErrorIs(t, err, ErrGuardBusy)
	assert.Equal(t, 0, g.activeSlots())
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []string{"event:e", "table:a", "table:b"},
		sortedUnique([]string{"table:b", "event:e", "table:a", "table:b"}))
	assert.Empty(t, sortedUnique(nil))
}
