package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestNewBooking(t *testing.T) {
	tests := []struct {
		name        string
		eventID     string
		requester   string
		allocations []Allocation
		totalAmount int
		errExpected error
	}{
		{
			name: "正常な予約作成", eventID: "event-1", requester: "line:U123",
			allocations: []Allocation{{TableID: "t-1", Seats: 2}}, totalAmount: 10000,
		},
		{
			name: "イベントID未指定", eventID: "", requester: "line:U123",
			allocations: []Allocation{{TableID: "t-1", Seats: 2}}, errExpected: ErrEventIDRequired,
		},
		{
			name: "予約者未指定", eventID: "event-1", requester: "",
			allocations: []Allocation{{TableID: "t-1", Seats: 2}}, errExpected: ErrRequesterRequired,
		},
		{
			name: "テーブル未指定", eventID: "event-1", requester: "line:U123",
			allocations: nil, errExpected: ErrAllocationsRequired,
		},
		{
			name: "座席数0", eventID: "event-1", requester: "line:U123",
			allocations: []Allocation{{TableID: "t-1", Seats: 0}}, errExpected: ErrInvalidAllocation,
		},
		{
			name: "金額が負", eventID: "event-1", requester: "line:U123",
			allocations: []Allocation{{TableID: "t-1", Seats: 1}}, totalAmount: -1, errExpected: ErrInvalidAmount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBooking(tt.eventID, tt.requester, "idem-1", tt.allocations, tt.totalAmount, StatusReserved, 15*time.Minute, baseTime)
			err := b.Validate()
			if tt.errExpected != nil {
				assert.ErrorIs(t, err, tt.errExpected)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusReserved, b.Status)
			require.NotNil(t, b.ExpiresAt)
			assert.Equal(t, baseTime.Add(15*time.Minute), *b.ExpiresAt)
			assert.Equal(t, tt.totalAmount, b.TotalAmount)
		})
	}
}

func TestNormalizeAllocations(t *testing.T) {
	got := NormalizeAllocations([]Allocation{
		{TableID: "t-b", Seats: 1},
		{TableID: "t-a", Seats: 2},
		{TableID: "t-b", Seats: 3},
	})
	assert.Equal(t, []Allocation{{TableID: "t-a", Seats: 2}, {TableID: "t-b", Seats: 4}}, got)
}

func TestBooking_Seats(t *testing.T) {
	b := newTestBooking(StatusReserved)
	b.Allocations = []Allocation{{TableID: "t-1", Seats: 2}, {TableID: "t-2", Seats: 3}}

	assert.Equal(t, 5, b.Seats())
	assert.Equal(t, 3, b.SeatsOn("t-2"))
	assert.Equal(t, 0, b.SeatsOn("t-9"))
	assert.Equal(t, []string{"t-1", "t-2"}, b.TableIDs())
}

func TestBooking_IsExpired(t *testing.T) {
	b := newTestBooking(StatusReserved)
	assert.False(t, b.IsExpired(baseTime))
	assert.False(t, b.IsExpired(baseTime.Add(15*time.Minute)))
	assert.True(t, b.IsExpired(baseTime.Add(15*time.Minute+time.Second)))

	b.Status = StatusAwaitingConfirmation
	assert.False(t, b.IsExpired(baseTime.Add(time.Hour)))

	noHold := NewBooking("event-1", "u", "", []Allocation{{TableID: "t-1", Seats: 1}}, 0, StatusPending, 0, baseTime)
	assert.Nil(t, noHold.ExpiresAt)
	assert.False(t, noHold.IsExpired(baseTime.Add(time.Hour)))
}

func TestNext(t *testing.T) {
	tests := []struct {
		from    Status
		action  Action
		direct  bool
		want    Status
		wantErr error
	}{
		{StatusPending, ActionConfirm, false, StatusAwaitingConfirmation, nil},
		{StatusReserved, ActionConfirm, false, StatusAwaitingConfirmation, nil},
		{StatusAwaitingConfirmation, ActionPay, false, StatusPaid, nil},
		{StatusPending, ActionCancel, false, StatusCancelled, nil},
		{StatusReserved, ActionCancel, false, StatusCancelled, nil},
		{StatusAwaitingConfirmation, ActionCancel, false, StatusCancelled, nil},
		{StatusPending, ActionExpire, false, StatusExpired, nil},
		{StatusReserved, ActionExpire, false, StatusExpired, nil},
		{StatusReserved, ActionPay, true, StatusPaid, nil},
		{StatusReserved, ActionPay, false, "", ErrInvalidTransition},
		{StatusAwaitingConfirmation, ActionExpire, false, "", ErrInvalidTransition},
		{StatusAwaitingConfirmation, ActionConfirm, false, "", ErrInvalidTransition},
		{StatusPaid, ActionCancel, false, "", ErrInvalidTransition},
		{StatusPaid, ActionExpire, false, "", ErrInvalidTransition},
		{StatusPaid, ActionPay, true, "", ErrAlreadyFinal},
		{StatusCancelled, ActionCancel, false, "", ErrAlreadyFinal},
		{StatusCancelled, ActionPay, true, "", ErrAlreadyFinal},
		{StatusExpired, ActionExpire, false, "", ErrAlreadyFinal},
		{StatusExpired, ActionConfirm, false, "", ErrAlreadyFinal},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.action), func(t *testing.T) {
			got, err := Next(tt.from, tt.action, tt.direct)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatus_HoldsSeats(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusReserved, StatusAwaitingConfirmation, StatusPaid} {
		assert.True(t, s.HoldsSeats(), s)
	}
	for _, s := range []Status{StatusCancelled, StatusExpired} {
		assert.False(t, s.HoldsSeats(), s)
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, Status("confirmed").IsValid())
}

func TestBooking_Confirm(t *testing.T) {
	t.Run("期限内なら確認待ちになる", func(t *testing.T) {
		b := newTestBooking(StatusReserved)
		now := baseTime.Add(time.Minute)
		require.NoError(t, b.Confirm(now))
		assert.Equal(t, StatusAwaitingConfirmation, b.Status)
		require.NotNil(t, b.ConfirmedAt)
		assert.Equal(t, now, *b.ConfirmedAt)
	})

	t.Run("期限切れは確認できない", func(t *testing.T) {
		b := newTestBooking(StatusPending)
		assert.ErrorIs(t, b.Confirm(baseTime.Add(time.Hour)), ErrHoldExpired)
		assert.Equal(t, StatusPending, b.Status)
	})

	t.Run("失効済み", func(t *testing.T) {
		b := newTestBooking(StatusExpired)
		assert.ErrorIs(t, b.Confirm(baseTime), ErrAlreadyFinal)
	})
}

func TestBooking_Pay(t *testing.T) {
	t.Run("確認待ちから決済", func(t *testing.T) {
		b := newTestBooking(StatusAwaitingConfirmation)
		require.NoError(t, b.Pay(baseTime.Add(time.Hour), false))
		assert.Equal(t, StatusPaid, b.Status)
		assert.NotNil(t, b.PaidAt)
	})

	t.Run("直接決済は期限内のみ", func(t *testing.T) {
		b := newTestBooking(StatusReserved)
		assert.ErrorIs(t, b.Pay(baseTime.Add(time.Hour), true), ErrHoldExpired)
		require.NoError(t, b.Pay(baseTime.Add(time.Minute), true))
		assert.Equal(t, StatusPaid, b.Status)
	})

	t.Run("直接決済が無効なら遷移できない", func(t *testing.T) {
		b := newTestBooking(StatusReserved)
		assert.ErrorIs(t, b.Pay(baseTime, false), ErrInvalidTransition)
	})

	t.Run("二重決済", func(t *testing.T) {
		b := newTestBooking(StatusPaid)
		assert.ErrorIs(t, b.Pay(baseTime, true), ErrAlreadyFinal)
	})
}

func TestBooking_Cancel(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		wantErr error
	}{
		{"pendingからキャンセル", StatusPending, nil},
		{"reservedからキャンセル", StatusReserved, nil},
		{"確認待ちからキャンセル", StatusAwaitingConfirmation, nil},
		{"キャンセル済み", StatusCancelled, ErrAlreadyFinal},
		{"失効済み", StatusExpired, ErrAlreadyFinal},
		{"決済済み", StatusPaid, ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBooking(tt.status)
			err := b.Cancel(baseTime)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.status, b.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusCancelled, b.Status)
			assert.NotNil(t, b.ClosedAt)
		})
	}
}

func TestBooking_Expire(t *testing.T) {
	t.Run("期限切れなら失効する", func(t *testing.T) {
		b := newTestBooking(StatusReserved)
		require.NoError(t, b.Expire(baseTime.Add(time.Hour)))
		assert.Equal(t, StatusExpired, b.Status)
	})

	t.Run("期限内は失効しない", func(t *testing.T) {
		b := newTestBooking(StatusReserved)
		assert.ErrorIs(t, b.Expire(baseTime.Add(time.Minute)), ErrHoldNotExpired)
	})

	t.Run("確認待ちは失効しない", func(t *testing.T) {
		b := newTestBooking(StatusAwaitingConfirmation)
		assert.ErrorIs(t, b.Expire(baseTime.Add(time.Hour)), ErrInvalidTransition)
	})

	t.Run("キャンセル済み", func(t *testing.T) {
		b := newTestBooking(StatusCancelled)
		assert.ErrorIs(t, b.Expire(baseTime.Add(time.Hour)), ErrAlreadyFinal)
	})
}

func newTestBooking(status Status) *Booking {
	b := NewBooking("event-1", "line:U123", "idem-1", []Allocation{{TableID: "t-1", Seats: 2}}, 10000, status, 15*time.Minute, baseTime)
	b.ID = "booking-1"
	return b
}
