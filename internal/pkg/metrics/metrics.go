package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約作成の試行数（result: success, idempotent, insufficient, rejected, busy, error）
	BookingsTotal *prometheus.CounterVec

	// 予約の状態遷移数（action: confirm, pay, cancel, expire / result: success, final, invalid, error）
	BookingTransitionsTotal *prometheus.CounterVec

	// テーブルガードの取得待ち時間（result: acquired, failed）
	GuardWaitDuration *prometheus.HistogramVec

	// 分散ロックの操作時間（operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec

	// 期限切れで回収した仮押さえの数
	ReclaimedHoldsTotal prometheus.Counter

	// 整合性修復で補正したテーブル数
	ReconciledTablesTotal prometheus.Counter

	// 非同期タスクの処理数（task: notify, ticket / result: success, failed, dropped）
	SideEffectsTotal *prometheus.CounterVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		BookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookings_total",
				Help: "Total number of booking attempts by result",
			},
			[]string{"result"},
		),
		BookingTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_transitions_total",
				Help: "Total number of booking status transitions by action and result",
			},
			[]string{"action", "result"},
		),
		GuardWaitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "allocation_guard_wait_seconds",
				Help:    "Time spent waiting for table guards",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"result"},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
		ReclaimedHoldsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reclaimed_holds_total",
				Help: "Total number of expired holds reclaimed",
			},
		),
		ReconciledTablesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reconciled_tables_total",
				Help: "Total number of tables whose availability was corrected",
			},
		),
		SideEffectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "side_effects_total",
				Help: "Total number of asynchronous side effects by task and result",
			},
			[]string{"task", "result"},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BookingsTotal,
		m.BookingTransitionsTotal,
		m.GuardWaitDuration,
		m.DistributedLockDuration,
		m.ReclaimedHoldsTotal,
		m.ReconciledTablesTotal,
		m.SideEffectsTotal,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
