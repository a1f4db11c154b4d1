package handler

import (
	"context"

	"github.com/sanosuguru/go-table-reservation/internal/application"
	"github.com/sanosuguru/go-table-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-table-reservation/internal/domain/event"
)

// EventServiceInterface はイベントサービスのインターフェース
type EventServiceInterface interface {
	CreateEvent(ctx context.Context, input application.CreateEventInput) (*event.Event, error)
	GetEvent(ctx context.Context, id string) (*event.Event, error)
	ListEvents(ctx context.Context, limit, offset int) ([]*event.Event, error)
	GetAvailability(ctx context.Context, id string) (map[string]int, error)
	UpdateEvent(ctx context.Context, id string, patch event.Patch) (*event.Event, error)
	Publish(ctx context.Context, id string) (*event.Event, error)
	Archive(ctx context.Context, id string) (*event.Event, error)
}

// BookingServiceInterface は予約サービスのインターフェース
type BookingServiceInterface interface {
	CreateBooking(ctx context.Context, input application.CreateBookingInput) (*booking.Booking, error)
	GetBooking(ctx context.Context, id string) (*booking.Booking, error)
	ListRequesterBookings(ctx context.Context, requester string, limit, offset int) ([]*booking.Booking, error)
	ListEventBookings(ctx context.Context, eventID string, statuses []booking.Status) ([]*booking.Booking, error)
	CancelBooking(ctx context.Context, id string) (*booking.Booking, error)
	ConfirmBooking(ctx context.Context, id string) (*booking.Booking, error)
	ConfirmPayment(ctx context.Context, id string) (*booking.Booking, error)
}

// ReconcilerInterface は空席数の整合性修復のインターフェース
type ReconcilerInterface interface {
	Reconcile(ctx context.Context, eventID string) ([]application.TableDrift, error)
	ReconcileAll(ctx context.Context) ([]application.TableDrift, error)
}
