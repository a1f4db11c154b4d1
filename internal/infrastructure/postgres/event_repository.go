package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-table-reservation/internal/domain/event"
	"github.com/sanosuguru/go-table-reservation/internal/domain/transaction"
)

// eventRow はDBの行を表す構造体
type eventRow struct {
	ID            string     `db:"id"`
	OrganizerID   string     `db:"organizer_id"`
	Name          string     `db:"name"`
	Description   *string    `db:"description"`
	Venue         *string    `db:"venue"`
	CoverImageURL *string    `db:"cover_image_url"`
	StartAt       time.Time  `db:"start_at"`
	EndAt         time.Time  `db:"end_at"`
	Status        string     `db:"status"`
	PublishedAt   *time.Time `db:"published_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	Version       int        `db:"version"`
}

type tableRow struct {
	ID             string    `db:"id"`
	EventID        string    `db:"event_id"`
	Number         int       `db:"number"`
	SeatsTotal     int       `db:"seats_total"`
	SeatsAvailable int       `db:"seats_available"`
	Price          int       `db:"price"`
	IsAvailable    bool      `db:"is_available"`
	Shape          string    `db:"shape"`
	PosX           float64   `db:"pos_x"`
	PosY           float64   `db:"pos_y"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

const eventColumns = `id, organizer_id, name, description, venue, cover_image_url, start_at, end_at, status, published_at, created_at, updated_at, version`

const tableColumns = `id, event_id, number, seats_total, seats_available, price, is_available, shape, pos_x, pos_y, created_at, updated_at`

// toEntity はeventRowをEventエンティティに変換する
func (r *eventRow) toEntity(tables []*event.Table) *event.Event {
	return &event.Event{
		ID:            r.ID,
		OrganizerID:   r.OrganizerID,
		Name:          r.Name,
		Description:   deref(r.Description),
		Venue:         deref(r.Venue),
		CoverImageURL: deref(r.CoverImageURL),
		StartAt:       r.StartAt,
		EndAt:         r.EndAt,
		Status:        event.Status(r.Status),
		Tables:        tables,
		PublishedAt:   r.PublishedAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		Version:       r.Version,
	}
}

func (r *tableRow) toEntity() *event.Table {
	return &event.Table{
		ID:             r.ID,
		EventID:        r.EventID,
		Number:         r.Number,
		SeatsTotal:     r.SeatsTotal,
		SeatsAvailable: r.SeatsAvailable,
		Price:          r.Price,
		IsAvailable:    r.IsAvailable,
		Shape:          event.Shape(r.Shape),
		Position:       event.Position{X: r.PosX, Y: r.PosY},
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// EventRepository はイベントリポジトリのPostgreSQL実装
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository はEventRepositoryを作成する
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create は新しいイベントをテーブルごと作成する
func (r *EventRepository) Create(ctx context.Context, e *event.Event) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO events (organizer_id, name, description, venue, cover_image_url, start_at, end_at, status, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, query,
		e.OrganizerID, e.Name, nullable(e.Description), nullable(e.Venue), nullable(e.CoverImageURL),
		e.StartAt, e.EndAt, string(e.Status), e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("イベント作成に失敗しました: %w", err)
	}

	for i, t := range e.Tables {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		t.EventID = e.ID
		if err := upsertTable(ctx, tx, t, i); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("イベント作成のコミットに失敗しました: %w", err)
	}
	e.Version = 1
	return nil
}

// GetByID はIDからイベントをテーブル込みで取得する
func (r *EventRepository) GetByID(ctx context.Context, id string) (*event.Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, event.ErrEventNotFound
	}
	var row eventRow
	err := r.db.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, event.ErrEventNotFound
		}
		return nil, fmt.Errorf("イベント取得に失敗しました: %w", err)
	}
	tables, err := r.tablesOf(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return row.toEntity(tables[id]), nil
}

// List はイベント一覧を開始日時の新しい順に取得する
func (r *EventRepository) List(ctx context.Context, limit, offset int) ([]*event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events ORDER BY start_at DESC, id LIMIT $1 OFFSET $2`

	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("イベント一覧取得に失敗しました: %w", err)
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	tables, err := r.tablesOf(ctx, ids)
	if err != nil {
		return nil, err
	}

	events := make([]*event.Event, len(rows))
	for i := range rows {
		events[i] = rows[i].toEntity(tables[rows[i].ID])
	}
	return events, nil
}

// tablesOf はイベントID → 表示順のテーブル一覧を返す
func (r *EventRepository) tablesOf(ctx context.Context, eventIDs []string) (map[string][]*event.Table, error) {
	out := make(map[string][]*event.Table, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}
	var rows []tableRow
	query := `SELECT ` + tableColumns + ` FROM event_tables WHERE event_id = ANY($1) ORDER BY event_id, sort_order, number`
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(eventIDs)); err != nil {
		return nil, fmt.Errorf("テーブル取得に失敗しました: %w", err)
	}
	for i := range rows {
		out[rows[i].EventID] = append(out[rows[i].EventID], rows[i].toEntity())
	}
	return out, nil
}

// Save はイベントをテーブルごと置き換える（楽観的ロック）
func (r *EventRepository) Save(ctx context.Context, tx transaction.Tx, e *event.Event) error {
	sqlTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}

	query := `
		UPDATE events
		SET name = $1, description = $2, venue = $3, cover_image_url = $4, start_at = $5, end_at = $6,
		    status = $7, published_at = $8, updated_at = $9, version = version + 1
		WHERE id = $10 AND version = $11
	`
	result, err := sqlTx.ExecContext(ctx, query,
		e.Name, nullable(e.Description), nullable(e.Venue), nullable(e.CoverImageURL), e.StartAt, e.EndAt,
		string(e.Status), e.PublishedAt, time.Now(), e.ID, e.Version,
	)
	if err != nil {
		return fmt.Errorf("イベント更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		var exists bool
		if err := sqlTx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, e.ID); err != nil {
			return fmt.Errorf("イベントの存在確認に失敗しました: %w", err)
		}
		if !exists {
			return event.ErrEventNotFound
		}
		return event.ErrOptimisticLockConflict
	}

	ids := make([]string, len(e.Tables))
	for i, t := range e.Tables {
		ids[i] = t.ID
	}
	if _, err := sqlTx.ExecContext(ctx,
		`DELETE FROM event_tables WHERE event_id = $1 AND NOT (id = ANY($2))`, e.ID, pq.Array(ids)); err != nil {
		return fmt.Errorf("テーブル削除に失敗しました: %w", err)
	}
	for i, t := range e.Tables {
		t.EventID = e.ID
		if err := upsertTable(ctx, sqlTx, t, i); err != nil {
			return err
		}
	}

	e.Version++
	return nil
}

// upsertTable は既存テーブルの空席数を読み込み時の値で上書きしない。
// 座席数の変更分だけ現在の空席数をずらすので、並行した AdjustSeats の結果は残る
func upsertTable(ctx context.Context, tx *sqlx.Tx, t *event.Table, order int) error {
	query := `
		INSERT INTO event_tables (id, event_id, number, seats_total, seats_available, price, is_available, shape, pos_x, pos_y, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE
		SET number = EXCLUDED.number, seats_total = EXCLUDED.seats_total,
		    seats_available = event_tables.seats_available + (EXCLUDED.seats_total - event_tables.seats_total),
		    price = EXCLUDED.price, is_available = EXCLUDED.is_available, shape = EXCLUDED.shape,
		    pos_x = EXCLUDED.pos_x, pos_y = EXCLUDED.pos_y, sort_order = EXCLUDED.sort_order, updated_at = EXCLUDED.updated_at
	`
	_, err := tx.ExecContext(ctx, query,
		t.ID, t.EventID, t.Number, t.SeatsTotal, t.SeatsAvailable, t.Price, t.IsAvailable, string(t.Shape),
		t.Position.X, t.Position.Y, order, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("テーブル %d の保存に失敗しました: %w", t.Number, err)
	}
	return nil
}

// AdjustSeats はテーブルの空席数を delta だけ条件付きで増減する。
// 0 未満または座席数超過になる場合は更新しない
func (r *EventRepository) AdjustSeats(ctx context.Context, tx transaction.Tx, tableID string, delta int) error {
	sqlTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}

	query := `
		UPDATE event_tables
		SET seats_available = seats_available + $2, updated_at = NOW()
		WHERE id = $1 AND seats_available + $2 BETWEEN 0 AND seats_total
	`
	result, err := sqlTx.ExecContext(ctx, query, tableID, delta)
	if err != nil {
		return fmt.Errorf("空席数の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var available int
	err = sqlTx.GetContext(ctx, &available, `SELECT seats_available FROM event_tables WHERE id = $1`, tableID)
	if errors.Is(err, sql.ErrNoRows) {
		return event.ErrTableNotFound
	}
	if err != nil {
		return fmt.Errorf("テーブル取得に失敗しました: %w", err)
	}
	if available+delta < 0 {
		return event.ErrInsufficientSeats
	}
	return event.ErrSeatCountOverflow
}

// SetSeatsAvailable はテーブルの空席数を上書きする
func (r *EventRepository) SetSeatsAvailable(ctx context.Context, tx transaction.Tx, tableID string, seatsAvailable int) error {
	sqlTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}

	query := `
		UPDATE event_tables
		SET seats_available = $2, updated_at = NOW()
		WHERE id = $1 AND $2 BETWEEN 0 AND seats_total
	`
	result, err := sqlTx.ExecContext(ctx, query, tableID, seatsAvailable)
	if err != nil {
		return fmt.Errorf("空席数の補正に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	if err := sqlTx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM event_tables WHERE id = $1)`, tableID); err != nil {
		return fmt.Errorf("テーブルの存在確認に失敗しました: %w", err)
	}
	if !exists {
		return event.ErrTableNotFound
	}
	return event.ErrAvailabilityInvariant
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// インターフェースを満たしているか確認
var _ event.Repository = (*EventRepository)(nil)
