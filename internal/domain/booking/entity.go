package booking

import (
	"sort"
	"time"
)

// Allocation はテーブルごとの確保座席数
type Allocation struct {
	TableID string
	Seats   int
}

// Booking は予約エンティティを表す
type Booking struct {
	ID             string
	EventID        string
	Requester      string // 電話番号やチャットID
	Allocations    []Allocation
	TotalAmount    int
	Status         Status
	IdempotencyKey string
	ExpiresAt      *time.Time // pending/reserved の仮押さえ期限
	ConfirmedAt    *time.Time
	PaidAt         *time.Time
	ClosedAt       *time.Time // cancelled/expired になった時刻
	TicketRef      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewBooking は仮押さえ状態の予約を作成する。hold が 0 以下なら期限なし
func NewBooking(eventID, requester, idempotencyKey string, allocations []Allocation, totalAmount int, status Status, hold time.Duration, now time.Time) *Booking {
	b := &Booking{
		EventID:        eventID,
		Requester:      requester,
		Allocations:    NormalizeAllocations(allocations),
		TotalAmount:    totalAmount,
		Status:         status,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if hold > 0 {
		expiresAt := now.Add(hold)
		b.ExpiresAt = &expiresAt
	}
	return b
}

// NormalizeAllocations は同一テーブルの指定をまとめ、テーブルID昇順に並べる
func NormalizeAllocations(allocations []Allocation) []Allocation {
	merged := make(map[string]int, len(allocations))
	for _, a := range allocations {
		merged[a.TableID] += a.Seats
	}
	out := make([]Allocation, 0, len(merged))
	for id, seats := range merged {
		out = append(out, Allocation{TableID: id, Seats: seats})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableID < out[j].TableID })
	return out
}

// Validate は予約の検証を行う
func (b *Booking) Validate() error {
	if b.EventID == "" {
		return ErrEventIDRequired
	}
	if b.Requester == "" {
		return ErrRequesterRequired
	}
	if len(b.Allocations) == 0 {
		return ErrAllocationsRequired
	}
	for _, a := range b.Allocations {
		if a.TableID == "" || a.Seats <= 0 {
			return ErrInvalidAllocation
		}
	}
	if b.TotalAmount < 0 {
		return ErrInvalidAmount
	}
	if !b.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// Seats は予約全体の座席数を返す
func (b *Booking) Seats() int {
	n := 0
	for _, a := range b.Allocations {
		n += a.Seats
	}
	return n
}

// SeatsOn はテーブルでの確保座席数を返す
func (b *Booking) SeatsOn(tableID string) int {
	for _, a := range b.Allocations {
		if a.TableID == tableID {
			return a.Seats
		}
	}
	return 0
}

// TableIDs は参照するテーブルIDを昇順で返す
func (b *Booking) TableIDs() []string {
	ids := make([]string, len(b.Allocations))
	for i, a := range b.Allocations {
		ids[i] = a.TableID
	}
	sort.Strings(ids)
	return ids
}

// HoldsSeats は座席を保持しているかを返す
func (b *Booking) HoldsSeats() bool {
	return b.Status.HoldsSeats()
}

// IsExpired は仮押さえが now 時点で期限切れかを返す
func (b *Booking) IsExpired(now time.Time) bool {
	return b.Status.IsExpirable() && b.ExpiresAt != nil && b.ExpiresAt.Before(now)
}

// Confirm は主催者確認待ちへ遷移する
func (b *Booking) Confirm(now time.Time) error {
	to, err := Next(b.Status, ActionConfirm, false)
	if err != nil {
		return err
	}
	if b.IsExpired(now) {
		return ErrHoldExpired
	}
	b.Status = to
	b.ConfirmedAt = &now
	b.UpdatedAt = now
	return nil
}

// Pay は決済済みへ遷移する。allowDirect が真なら確認待ちを経ずに決済できる
func (b *Booking) Pay(now time.Time, allowDirect bool) error {
	to, err := Next(b.Status, ActionPay, allowDirect)
	if err != nil {
		return err
	}
	if b.IsExpired(now) {
		return ErrHoldExpired
	}
	b.Status = to
	b.PaidAt = &now
	b.UpdatedAt = now
	return nil
}

// Cancel は取り消し状態へ遷移する
func (b *Booking) Cancel(now time.Time) error {
	to, err := Next(b.Status, ActionCancel, false)
	if err != nil {
		return err
	}
	b.Status = to
	b.ClosedAt = &now
	b.UpdatedAt = now
	return nil
}

// Expire は期限切れの仮押さえを失効させる
func (b *Booking) Expire(now time.Time) error {
	to, err := Next(b.Status, ActionExpire, false)
	if err != nil {
		return err
	}
	if !b.IsExpired(now) {
		return ErrHoldNotExpired
	}
	b.Status = to
	b.ClosedAt = &now
	b.UpdatedAt = now
	return nil
}
