package booking

import (
	"context"
	"time"

	"github.com/sanosuguru/go-table-reservation/internal/domain/transaction"
)

// Repository は予約リポジトリのインターフェース
type Repository interface {
	// Create は新しい予約を作成し ID を採番する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, booking *Booking) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Booking, error)

	// GetByIdempotencyKey は冪等性キーから予約を取得する
	GetByIdempotencyKey(ctx context.Context, key string) (*Booking, error)

	// ListByRequester は予約者の予約一覧を新しい順に取得する
	ListByRequester(ctx context.Context, requester string, limit, offset int) ([]*Booking, error)

	// ListByEvent はイベントの予約一覧を取得する。statuses が空なら全状態
	ListByEvent(ctx context.Context, eventID string, statuses []Status) ([]*Booking, error)

	// ListExpiredHolds は now より前に期限切れとなった仮押さえを取得する
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*Booking, error)

	// UpdateStatus は現在の状態が from の場合に限り予約の状態を更新する。
	// 一致しなければ ErrStatusConflict を返す（トランザクション必須）
	UpdateStatus(ctx context.Context, tx transaction.Tx, booking *Booking, from Status) error

	// SetTicketRef はチケット成果物の参照を保存する
	SetTicketRef(ctx context.Context, id, ref string) error

	// HeldSeatsByTable はイベントのテーブルごとの保持中座席数を集計する
	HeldSeatsByTable(ctx context.Context, eventID string) (map[string]int, error)
}
