package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sanosuguru/go-table-reservation/internal/domain/event"
	"github.com/sanosuguru/go-table-reservation/internal/domain/transaction"
)

// EventRepository はイベントリポジトリのインメモリ実装
type EventRepository struct {
	store *Store
}

// NewEventRepository はEventRepositoryを作成する
func NewEventRepository(store *Store) *EventRepository {
	return &EventRepository{store: store}
}

// Create は新しいイベントを作成する
func (r *EventRepository) Create(ctx context.Context, e *event.Event) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	for _, t := range e.Tables {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		t.EventID = e.ID
	}
	e.Version = 1
	r.store.putEvent(cloneEvent(e))
	return nil
}

// GetByID はIDからイベントを取得する
func (r *EventRepository) GetByID(ctx context.Context, id string) (*event.Event, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	e, ok := r.store.events[id]
	if !ok {
		return nil, event.ErrEventNotFound
	}
	return cloneEvent(e), nil
}

// List はイベント一覧を開始日時の新しい順に取得する
func (r *EventRepository) List(ctx context.Context, limit, offset int) ([]*event.Event, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	all := make([]*event.Event, 0, len(r.store.events))
	for _, e := range r.store.events {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].StartAt.Equal(all[j].StartAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].StartAt.After(all[j].StartAt)
	})

	if offset >= len(all) {
		return []*event.Event{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*event.Event, 0, end-offset)
	for _, e := range all[offset:end] {
		out = append(out, cloneEvent(e))
	}
	return out, nil
}

// Save はイベントをテーブルごと置き換える（楽観的ロック）
func (r *EventRepository) Save(ctx context.Context, tx transaction.Tx, e *event.Event) error {
	t, err := unwrapTx(r.store, tx)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	prev, ok := r.store.events[e.ID]
	if !ok {
		return event.ErrEventNotFound
	}
	if prev.Version != e.Version {
		return event.ErrOptimisticLockConflict
	}
	if err := t.record(func() { r.store.putEvent(prev) }); err != nil {
		return err
	}

	e.Version++
	e.UpdatedAt = time.Now()
	r.store.putEvent(cloneEvent(e))
	return nil
}

// AdjustSeats はテーブルの空席数を delta だけ条件付きで増減する
func (r *EventRepository) AdjustSeats(ctx context.Context, tx transaction.Tx, tableID string, delta int) error {
	t, err := unwrapTx(r.store, tx)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	table, ok := r.store.table(tableID)
	if !ok {
		return event.ErrTableNotFound
	}
	prevSeats, prevUpdated := table.SeatsAvailable, table.UpdatedAt
	if err := t.record(func() {
		table.SeatsAvailable = prevSeats
		table.UpdatedAt = prevUpdated
	}); err != nil {
		return err
	}
	return table.Adjust(delta, time.Now())
}

// SetSeatsAvailable はテーブルの空席数を上書きする
func (r *EventRepository) SetSeatsAvailable(ctx context.Context, tx transaction.Tx, tableID string, seatsAvailable int) error {
	t, err := unwrapTx(r.store, tx)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	table, ok := r.store.table(tableID)
	if !ok {
		return event.ErrTableNotFound
	}
	if seatsAvailable < 0 || seatsAvailable > table.SeatsTotal {
		return event.ErrAvailabilityInvariant
	}
	prev := table.SeatsAvailable
	if err := t.record(func() { table.SeatsAvailable = prev }); err != nil {
		return err
	}
	table.SeatsAvailable = seatsAvailable
	return nil
}

// putEvent はイベントを格納しテーブルの所属を更新する。store.mu を保持して呼ぶ
func (s *Store) putEvent(e *event.Event) {
	if old, ok := s.events[e.ID]; ok {
		for _, t := range old.Tables {
			delete(s.tableOwner, t.ID)
		}
	}
	s.events[e.ID] = e
	for _, t := range e.Tables {
		s.tableOwner[t.ID] = e.ID
	}
}

// table は格納中のテーブルを返す。store.mu を保持して呼ぶ
func (s *Store) table(id string) (*event.Table, bool) {
	eventID, ok := s.tableOwner[id]
	if !ok {
		return nil, false
	}
	return s.events[eventID].Table(id)
}

func cloneEvent(e *event.Event) *event.Event {
	c := *e
	c.Tables = make([]*event.Table, len(e.Tables))
	for i, t := range e.Tables {
		tc := *t
		c.Tables[i] = &tc
	}
	if e.PublishedAt != nil {
		p := *e.PublishedAt
		c.PublishedAt = &p
	}
	return &c
}

var _ event.Repository = (*EventRepository)(nil)
