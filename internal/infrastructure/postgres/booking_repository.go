package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-table-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-table-reservation/internal/domain/transaction"
)

type bookingRow struct {
	ID             string     `db:"id"`
	EventID        string     `db:"event_id"`
	Requester      string     `db:"requester"`
	Status         string     `db:"status"`
	IdempotencyKey *string    `db:"idempotency_key"`
	TotalAmount    int        `db:"total_amount"`
	ExpiresAt      *time.Time `db:"expires_at"`
	ConfirmedAt    *time.Time `db:"confirmed_at"`
	PaidAt         *time.Time `db:"paid_at"`
	ClosedAt       *time.Time `db:"closed_at"`
	TicketRef      *string    `db:"ticket_ref"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

type allocationRow struct {
	BookingID string `db:"booking_id"`
	TableID   string `db:"table_id"`
	Seats     int    `db:"seats"`
}

const bookingColumns = `id, event_id, requester, status, idempotency_key, total_amount, expires_at, confirmed_at, paid_at, closed_at, ticket_ref, created_at, updated_at`

// BookingRepository は予約リポジトリのPostgreSQL実装
type BookingRepository struct{ db *sqlx.DB }

// NewBookingRepository はBookingRepositoryを作成する
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create は予約とテーブルごとの確保座席を登録する
func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO bookings (event_id, requester, status, idempotency_key, total_amount, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err = sqlTx.QueryRowContext(ctx, query,
		b.EventID, b.Requester, string(b.Status), nullable(b.IdempotencyKey), b.TotalAmount, b.ExpiresAt, b.CreatedAt, b.UpdatedAt,
	).Scan(&b.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation {
			return booking.ErrIdempotencyKeyAlreadyExists
		}
		return fmt.Errorf("予約作成に失敗: %w", err)
	}

	for _, a := range b.Allocations {
		if _, err := sqlTx.ExecContext(ctx,
			`INSERT INTO booking_allocations (booking_id, table_id, seats) VALUES ($1, $2, $3)`,
			b.ID, a.TableID, a.Seats); err != nil {
			return fmt.Errorf("確保座席の登録に失敗: %w", err)
		}
	}
	return nil
}

// GetByID はIDから予約を取得する
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, booking.ErrBookingNotFound
	}
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetByIdempotencyKey は冪等性キーから予約を取得する
func (r *BookingRepository) GetByIdempotencyKey(ctx context.Context, key string) (*booking.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE idempotency_key = $1`, key)
}

func (r *BookingRepository) getOne(ctx context.Context, query string, arg any) (*booking.Booking, error) {
	var row bookingRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	bookings, err := r.withAllocations(ctx, []bookingRow{row})
	if err != nil {
		return nil, err
	}
	return bookings[0], nil
}

// ListByRequester は予約者の予約一覧を新しい順に取得する
func (r *BookingRepository) ListByRequester(ctx context.Context, requester string, limit, offset int) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE requester = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &rows, query, requester, limit, offset); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return r.withAllocations(ctx, rows)
}

// ListByEvent はイベントの予約一覧を取得する。statuses が空なら全状態
func (r *BookingRepository) ListByEvent(ctx context.Context, eventID string, statuses []booking.Status) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `
		SELECT ` + bookingColumns + ` FROM bookings
		WHERE event_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY created_at DESC, id
	`
	if err := r.db.SelectContext(ctx, &rows, query, eventID, pq.Array(statusStrings(statuses))); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return r.withAllocations(ctx, rows)
}

// ListExpiredHolds は now より前に期限切れとなった仮押さえを期限の古い順に取得する
func (r *BookingRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `
		SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = ANY($1) AND expires_at < $2
		ORDER BY expires_at
		LIMIT $3
	`
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(statusStrings(booking.ExpirableStatuses)), now, limit); err != nil {
		return nil, fmt.Errorf("期限切れ予約取得に失敗: %w", err)
	}
	return r.withAllocations(ctx, rows)
}

// UpdateStatus は現在の状態が from の場合に限り予約の状態を更新する
func (r *BookingRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, b *booking.Booking, from booking.Status) error {
	sqlTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}

	query := `
		UPDATE bookings
		SET status = $1, confirmed_at = $2, paid_at = $3, closed_at = $4, updated_at = $5
		WHERE id = $6 AND status = $7
	`
	result, err := sqlTx.ExecContext(ctx, query,
		string(b.Status), b.ConfirmedAt, b.PaidAt, b.ClosedAt, b.UpdatedAt, b.ID, string(from))
	if err != nil {
		return fmt.Errorf("予約更新に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := sqlTx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, b.ID); err != nil {
		return fmt.Errorf("予約の存在確認に失敗: %w", err)
	}
	if !exists {
		return booking.ErrBookingNotFound
	}
	return booking.ErrStatusConflict
}

// SetTicketRef はチケット成果物の参照を保存する
func (r *BookingRepository) SetTicketRef(ctx context.Context, id, ref string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE bookings SET ticket_ref = $1, updated_at = NOW() WHERE id = $2`, ref, id)
	if err != nil {
		return fmt.Errorf("チケット参照の保存に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗: %w", err)
	}
	if rows == 0 {
		return booking.ErrBookingNotFound
	}
	return nil
}

// HeldSeatsByTable はイベントのテーブルごとの保持中座席数を集計する
func (r *BookingRepository) HeldSeatsByTable(ctx context.Context, eventID string) (map[string]int, error) {
	var rows []struct {
		TableID string `db:"table_id"`
		Seats   int    `db:"seats"`
	}
	query := `
		SELECT a.table_id, SUM(a.seats) AS seats
		FROM booking_allocations a
		JOIN bookings b ON b.id = a.booking_id
		WHERE b.event_id = $1 AND b.status = ANY($2)
		GROUP BY a.table_id
	`
	if err := r.db.SelectContext(ctx, &rows, query, eventID, pq.Array(statusStrings(booking.HoldingStatuses))); err != nil {
		return nil, fmt.Errorf("保持中座席の集計に失敗: %w", err)
	}
	held := make(map[string]int, len(rows))
	for _, row := range rows {
		held[row.TableID] = row.Seats
	}
	return held, nil
}

// withAllocations は予約行に確保座席を付けてエンティティへ変換する
func (r *BookingRepository) withAllocations(ctx context.Context, rows []bookingRow) ([]*booking.Booking, error) {
	result := make([]*booking.Booking, len(rows))
	if len(rows) == 0 {
		return result, nil
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	var allocs []allocationRow
	query := `SELECT booking_id, table_id, seats FROM booking_allocations WHERE booking_id = ANY($1) ORDER BY booking_id, table_id`
	if err := r.db.SelectContext(ctx, &allocs, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("確保座席の取得に失敗: %w", err)
	}
	byBooking := make(map[string][]booking.Allocation, len(rows))
	for _, a := range allocs {
		byBooking[a.BookingID] = append(byBooking[a.BookingID], booking.Allocation{TableID: a.TableID, Seats: a.Seats})
	}

	for i := range rows {
		result[i] = rows[i].toEntity(byBooking[rows[i].ID])
	}
	return result, nil
}

func (row *bookingRow) toEntity(allocations []booking.Allocation) *booking.Booking {
	return &booking.Booking{
		ID:             row.ID,
		EventID:        row.EventID,
		Requester:      row.Requester,
		Allocations:    allocations,
		TotalAmount:    row.TotalAmount,
		Status:         booking.Status(row.Status),
		IdempotencyKey: deref(row.IdempotencyKey),
		ExpiresAt:      row.ExpiresAt,
		ConfirmedAt:    row.ConfirmedAt,
		PaidAt:         row.PaidAt,
		ClosedAt:       row.ClosedAt,
		TicketRef:      deref(row.TicketRef),
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

func statusStrings(statuses []booking.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

var _ booking.Repository = (*BookingRepository)(nil)
