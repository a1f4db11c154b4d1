package event

import "time"

// Shape はテーブルの形状（表示専用）
type Shape string

const (
	ShapeRound Shape = "round"
	ShapeRect  Shape = "rect"
)

// IsValid は既知の形状かを返す
func (s Shape) IsValid() bool {
	return s == ShapeRound || s == ShapeRect
}

// Position はフロア上の座標（表示専用）
type Position struct {
	X float64
	Y float64
}

// Table は座席付きテーブルを表す。イベントに従属する
type Table struct {
	ID             string
	EventID        string
	Number         int
	SeatsTotal     int
	SeatsAvailable int
	Price          int // 1席あたり
	IsAvailable    bool
	Shape          Shape
	Position       Position
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewTable は全席空きのテーブルを作成する
func NewTable(eventID string, number, seatsTotal, price int, now time.Time) *Table {
	return &Table{
		EventID:        eventID,
		Number:         number,
		SeatsTotal:     seatsTotal,
		SeatsAvailable: seatsTotal,
		Price:          price,
		IsAvailable:    true,
		Shape:          ShapeRound,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Adjust は空席数を delta だけ増減する。0..SeatsTotal を外れる変更は拒否する
func (t *Table) Adjust(delta int, now time.Time) error {
	switch {
	case delta < 0:
		return t.Reserve(-delta, now)
	case delta > 0:
		return t.Release(delta, now)
	}
	return nil
}

// Reserve は n 席を確保する
func (t *Table) Reserve(n int, now time.Time) error {
	if n <= 0 {
		return ErrInvalidSeatCount
	}
	if t.SeatsAvailable < n {
		return ErrInsufficientSeats
	}
	t.SeatsAvailable -= n
	t.UpdatedAt = now
	return nil
}

// Release は n 席を返却する
func (t *Table) Release(n int, now time.Time) error {
	if n <= 0 {
		return ErrInvalidSeatCount
	}
	if t.SeatsAvailable+n > t.SeatsTotal {
		return ErrSeatCountOverflow
	}
	t.SeatsAvailable += n
	t.UpdatedAt = now
	return nil
}

// Resize は座席数を変更する。held は保持中予約の座席合計
func (t *Table) Resize(seatsTotal, held int, now time.Time) error {
	if seatsTotal <= 0 {
		return ErrInvalidSeatsTotal
	}
	if seatsTotal < held {
		return ErrSeatsBelowHeld
	}
	t.SeatsTotal = seatsTotal
	t.SeatsAvailable = seatsTotal - held
	t.UpdatedAt = now
	return nil
}

// Validate はテーブルの検証を行う
func (t *Table) Validate() error {
	if t.Number <= 0 {
		return ErrInvalidTableNumber
	}
	if t.SeatsTotal <= 0 {
		return ErrInvalidSeatsTotal
	}
	if t.SeatsAvailable < 0 || t.SeatsAvailable > t.SeatsTotal {
		return ErrAvailabilityInvariant
	}
	if t.Price < 0 {
		return ErrInvalidPrice
	}
	if !t.Shape.IsValid() {
		return ErrInvalidShape
	}
	return nil
}
