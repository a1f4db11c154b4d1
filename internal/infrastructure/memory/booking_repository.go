package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sanosuguru/go-table-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-table-reservation/internal/domain/transaction"
)

// BookingRepository は予約リポジトリのインメモリ実装
type BookingRepository struct {
	store *Store
}

// NewBookingRepository はBookingRepositoryを作成する
func NewBookingRepository(store *Store) *BookingRepository {
	return &BookingRepository{store: store}
}

// Create は新しい予約を作成する
func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	t, err := unwrapTx(r.store, tx)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if b.IdempotencyKey != "" {
		if _, exists := r.store.idempotency[b.IdempotencyKey]; exists {
			return booking.ErrIdempotencyKeyAlreadyExists
		}
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	id, key := b.ID, b.IdempotencyKey
	if err := t.record(func() {
		delete(r.store.bookings, id)
		if key != "" {
			delete(r.store.idempotency, key)
		}
	}); err != nil {
		return err
	}

	r.store.bookings[id] = cloneBooking(b)
	if key != "" {
		r.store.idempotency[key] = id
	}
	return nil
}

// GetByID はIDから予約を取得する
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	b, ok := r.store.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

// GetByIdempotencyKey は冪等性キーから予約を取得する
func (r *BookingRepository) GetByIdempotencyKey(ctx context.Context, key string) (*booking.Booking, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.idempotency[key]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return cloneBooking(r.store.bookings[id]), nil
}

// ListByRequester は予約者の予約一覧を新しい順に取得する
func (r *BookingRepository) ListByRequester(ctx context.Context, requester string, limit, offset int) ([]*booking.Booking, error) {
	matched := r.filter(func(b *booking.Booking) bool { return b.Requester == requester })
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if offset >= len(matched) {
		return []*booking.Booking{}, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], nil
}

// ListByEvent はイベントの予約一覧を作成順に取得する
func (r *BookingRepository) ListByEvent(ctx context.Context, eventID string, statuses []booking.Status) ([]*booking.Booking, error) {
	matched := r.filter(func(b *booking.Booking) bool {
		return b.EventID == eventID && statusIn(b.Status, statuses)
	})
	sortByCreated(matched)
	return matched, nil
}

// ListExpiredHolds は now より前に期限切れとなった仮押さえを取得する
func (r *BookingRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*booking.Booking, error) {
	matched := r.filter(func(b *booking.Booking) bool { return b.IsExpired(now) })
	sort.Slice(matched, func(i, j int) bool { return matched[i].ExpiresAt.Before(*matched[j].ExpiresAt) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// UpdateStatus は現在の状態が from の場合に限り予約を更新する
func (r *BookingRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, b *booking.Booking, from booking.Status) error {
	t, err := unwrapTx(r.store, tx)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	prev, ok := r.store.bookings[b.ID]
	if !ok {
		return booking.ErrBookingNotFound
	}
	if prev.Status != from {
		return booking.ErrStatusConflict
	}
	if err := t.record(func() { r.store.bookings[prev.ID] = prev }); err != nil {
		return err
	}

	next := cloneBooking(prev)
	next.Status = b.Status
	next.ConfirmedAt = b.ConfirmedAt
	next.PaidAt = b.PaidAt
	next.ClosedAt = b.ClosedAt
	next.UpdatedAt = b.UpdatedAt
	r.store.bookings[b.ID] = next
	return nil
}

// SetTicketRef はチケット成果物の参照を保存する
func (r *BookingRepository) SetTicketRef(ctx context.Context, id, ref string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	b, ok := r.store.bookings[id]
	if !ok {
		return booking.ErrBookingNotFound
	}
	next := cloneBooking(b)
	next.TicketRef = ref
	next.UpdatedAt = time.Now()
	r.store.bookings[id] = next
	return nil
}

// HeldSeatsByTable はイベントのテーブルごとの保持中座席数を集計する
func (r *BookingRepository) HeldSeatsByTable(ctx context.Context, eventID string) (map[string]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	held := make(map[string]int)
	for _, b := range r.store.bookings {
		if b.EventID != eventID || !b.HoldsSeats() {
			continue
		}
		for _, a := range b.Allocations {
			held[a.TableID] += a.Seats
		}
	}
	return held, nil
}

func (r *BookingRepository) filter(keep func(*booking.Booking) bool) []*booking.Booking {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*booking.Booking, 0)
	for _, b := range r.store.bookings {
		if keep(b) {
			out = append(out, cloneBooking(b))
		}
	}
	return out
}

func statusIn(s booking.Status, statuses []booking.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, candidate := range statuses {
		if s == candidate {
			return true
		}
	}
	return false
}

func sortByCreated(bs []*booking.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
			return bs[i].ID < bs[j].ID
		}
		return bs[i].CreatedAt.Before(bs[j].CreatedAt)
	})
}

func cloneBooking(b *booking.Booking) *booking.Booking {
	c := *b
	c.Allocations = append([]booking.Allocation(nil), b.Allocations...)
	return &c
}

var _ booking.Repository = (*BookingRepository)(nil)
