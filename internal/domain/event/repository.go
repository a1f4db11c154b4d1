package event

import (
	"context"

	"github.com/sanosuguru/go-table-reservation/internal/domain/transaction"
)

// Repository はイベントリポジトリのインターフェース
type Repository interface {
	// Create は新しいイベントをテーブルごと作成する
	Create(ctx context.Context, event *Event) error

	// GetByID はIDからイベントをテーブル込みで取得する
	GetByID(ctx context.Context, id string) (*Event, error)

	// List はイベント一覧を取得する
	List(ctx context.Context, limit, offset int) ([]*Event, error)

	// Save はイベントをテーブルごと置き換える（楽観的ロック、トランザクション必須）
	Save(ctx context.Context, tx transaction.Tx, event *Event) error

	// AdjustSeats はテーブルの空席数を delta だけ条件付きで増減する。
	// 結果が 0 未満または座席数超過になる場合は更新しない（トランザクション必須）
	AdjustSeats(ctx context.Context, tx transaction.Tx, tableID string, delta int) error

	// SetSeatsAvailable はテーブルの空席数を上書きする（整合性修復用、トランザクション必須）
	SetSeatsAvailable(ctx context.Context, tx transaction.Tx, tableID string, seatsAvailable int) error
}
