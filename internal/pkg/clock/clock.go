package clock

import (
	"sync"
	"time"
)

// Clock は現在時刻を返す。テストでは Fake を注入する
type Clock interface {
	Now() time.Time
}

// Real はシステム時刻を返す Clock
type Real struct{}

// Now は time.Now を返す
func (Real) Now() time.Time {
	return time.Now()
}

// Fake は手動で進める Clock
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake は指定時刻から始まる Fake を作成する
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance は時刻を d だけ進める
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set は時刻を t に設定する
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}
