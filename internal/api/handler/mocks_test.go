package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-table-reservation/internal/application"
	"github.com/sanosuguru/go-table-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-table-reservation/internal/domain/event"
)

// MockEventService はEventServiceInterfaceのモック
type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) eventResult(args mock.Arguments) (*event.Event, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventService) CreateEvent(ctx context.Context, input application.CreateEventInput) (*event.Event, error) {
	return m.eventResult(m.Called(ctx, input))
}

func (m *MockEventService) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	return m.eventResult(m.Called(ctx, id))
}

func (m *MockEventService) ListEvents(ctx context.Context, limit, offset int) ([]*event.Event, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*event.Event), args.Error(1)
}

func (m *MockEventService) GetAvailability(ctx context.Context, id string) (map[string]int, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *MockEventService) UpdateEvent(ctx context.Context, id string, patch event.Patch) (*event.Event, error) {
	return m.eventResult(m.Called(ctx, id, patch))
}

func (m *MockEventService) Publish(ctx context.Context, id string) (*event.Event, error) {
	return m.eventResult(m.Called(ctx, id))
}

func (m *MockEventService) Archive(ctx context.Context, id string) (*event.Event, error) {
	return m.eventResult(m.Called(ctx, id))
}

// MockBookingService はBookingServiceInterfaceのモック
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) bookingResult(args mock.Arguments) (*booking.Booking, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingService) bookingsResult(args mock.Arguments) ([]*booking.Booking, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*booking.Booking), args.Error(1)
}

func (m *MockBookingService) CreateBooking(ctx context.Context, input application.CreateBookingInput) (*booking.Booking, error) {
	return m.bookingResult(m.Called(ctx, input))
}

func (m *MockBookingService) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	return m.bookingResult(m.Called(ctx, id))
}

func (m *MockBookingService) ListRequesterBookings(ctx context.Context, requester string, limit, offset int) ([]*booking.Booking, error) {
	return m.bookingsResult(m.Called(ctx, requester, limit, offset))
}

func (m *MockBookingService) ListEventBookings(ctx context.Context, eventID string, statuses []booking.Status) ([]*booking.Booking, error) {
	return m.bookingsResult(m.Called(ctx, eventID, statuses))
}

func (m *MockBookingService) CancelBooking(ctx context.Context, id string) (*booking.Booking, error) {
	return m.bookingResult(m.Called(ctx, id))
}

func (m *MockBookingService) ConfirmBooking(ctx context.Context, id string) (*booking.Booking, error) {
	return m.bookingResult(m.Called(ctx, id))
}

func (m *MockBookingService) ConfirmPayment(ctx context.Context, id string) (*booking.Booking, error) {
	return m.bookingResult(m.Called(ctx, id))
}

// MockReconciler はReconcilerInterfaceのモック
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, eventID string) ([]application.TableDrift, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]application.TableDrift), args.Error(1)
}

func (m *MockReconciler) ReconcileAll(ctx context.Context) ([]application.TableDrift, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]application.TableDrift), args.Error(1)
}
