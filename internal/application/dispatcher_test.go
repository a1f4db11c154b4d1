package application

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-table-reservation/internal/pkg/metrics"
)

func TestDispatcher_Closeは残りのタスクを処理してから戻る(t *testing.T) {
	d := NewDispatcher(2, 100, time.Second, nil)

	var done atomic.Int32
	for i := 0; i < 50; i++ {
		require.True(t, d.Dispatch("notify", func(ctx context.Context) error {
			done.Add(1)
			return nil
		}))
	}
	d.Close()

	assert.Equal(t, int32(50), done.Load())
}

func TestDispatcher_停止後の投入は破棄する(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	d := NewDispatcher(1, 10, time.Second, m)
	d.Close()
	d.Close()

	ok := d.Dispatch("notify", func(ctx context.Context) error { return nil })

	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SideEffectsTotal.WithLabelValues("notify", "dropped")))
}

func TestDispatcher_キューが満杯なら破棄する(t *testing.T) {
	d := NewDispatcher(1, 1, time.Second, nil)
	defer d.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	require.True(t, d.Dispatch("ticket", func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}))
	<-started

	// ワーカーは塞がっており、キューには1件だけ入る
	assert.True(t, d.Dispatch("ticket", func(ctx context.Context) error { return nil }))
	assert.False(t, d.Dispatch("ticket", func(ctx context.Context) error { return nil }))

	close(block)
}

func TestDispatcher_失敗とパニックを記録して処理を続ける(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	d := NewDispatcher(1, 10, time.Second, m)

	d.Dispatch("notify", func(ctx context.Context) error { return errors.New("broker down") })
	d.Dispatch("notify", func(ctx context.Context) error { panic("boom") })
	d.Dispatch("notify", func(ctx context.Context) error { return nil })
	d.Close()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SideEffectsTotal.WithLabelValues("notify", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SideEffectsTotal.WithLabelValues("notify", "success")))
}

func TestDispatcher_タスクにはタイムアウトが設定される(t *testing.T) {
	d := NewDispatcher(1, 1, 20*time.Millisecond, nil)

	var got atomic.Value
	d.Dispatch("notify", func(ctx context.Context) error {
		<-ctx.Done()
		got.Store(ctx.Err())
		return ctx.Err()
	})
	d.Close()

	assert.ErrorIs(t, got.Load().(error), context.DeadlineExceeded)
}
