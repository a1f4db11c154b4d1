package application

import (
	"context"
	"time"

	"github.com/sanosuguru/go-table-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-table-reservation/internal/domain/event"
)

// NotificationKind は予約者への通知種別
type NotificationKind string

const (
	NotifyBookingCreated   NotificationKind = "booking_created"
	NotifyBookingConfirmed NotificationKind = "booking_confirmed"
	NotifyBookingPaid      NotificationKind = "booking_paid"
	NotifyBookingCancelled NotificationKind = "booking_cancelled"
	NotifyBookingExpired   NotificationKind = "booking_expired"
)

// Notifier は予約者へ通知を送る外部連携。失敗しても状態遷移は取り消さない
type Notifier interface {
	Notify(ctx context.Context, kind NotificationKind, b *booking.Booking) error
}

// TicketIssuer は決済済み予約のチケット成果物を生成し、その参照を返す
type TicketIssuer interface {
	Issue(ctx context.Context, b *booking.Booking, e *event.Event) (string, error)
}

// AvailabilityCache はイベントのテーブル別空席数のキャッシュ
type AvailabilityCache interface {
	Get(ctx context.Context, eventID string) (map[string]int, error)
	Set(ctx context.Context, eventID string, available map[string]int, ttl time.Duration) error
	Invalidate(ctx context.Context, eventID string) error
}
