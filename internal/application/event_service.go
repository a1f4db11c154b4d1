package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-table-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-table-reservation/internal/domain/event"
	"github.com/sanosuguru/go-table-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/clock"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/logger"
)

// DefaultAvailabilityTTL は空席キャッシュの有効期間
const DefaultAvailabilityTTL = 5 * time.Second

type EventService struct {
	txManager   transaction.Manager
	eventRepo   event.Repository
	bookingRepo booking.Repository
	guard       *AllocationGuard
	cache       AvailabilityCache
	cacheTTL    time.Duration
	clock       clock.Clock
	newID       func() string
}

// EventOption は EventService の任意の連携先を設定する
type EventOption func(*EventService)

func WithEventCache(c AvailabilityCache, ttl time.Duration) EventOption {
	return func(s *EventService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithEventClock(c clock.Clock) EventOption {
	return func(s *EventService) { s.clock = c }
}

func NewEventService(txm transaction.Manager, er event.Repository, br booking.Repository, guard *AllocationGuard, opts ...EventOption) *EventService {
	s := &EventService{
		txManager:   txm,
		eventRepo:   er,
		bookingRepo: br,
		guard:       guard,
		cacheTTL:    DefaultAvailabilityTTL,
		clock:       clock.Real{},
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateEventInput struct {
	OrganizerID   string
	Name          string
	Description   string
	Venue         string
	CoverImageURL string
	StartAt       time.Time
	EndAt         time.Time
	Tables        []event.TableSpec
}

// CreateEvent は下書きのイベントをテーブルごと作成する
func (s *EventService) CreateEvent(ctx context.Context, input CreateEventInput) (*event.Event, error) {
	now := s.clock.Now()
	e := event.NewEvent(input.OrganizerID, input.Name, input.Description, input.Venue, input.StartAt, input.EndAt, now)
	e.CoverImageURL = input.CoverImageURL
	for _, ts := range input.Tables {
		t := event.NewTable("", ts.Number, ts.SeatsTotal, ts.Price, now)
		t.ID = s.newID()
		if ts.Shape != "" {
			t.Shape = ts.Shape
		}
		t.Position = ts.Position
		e.AddTable(t)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("バリデーションエラー: %w", err)
	}
	if err := s.eventRepo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("イベント作成に失敗しました: %w", err)
	}
	logger.Info("イベントを作成しました", logger.EventID(e.ID), logger.Count(len(e.Tables)))
	return e, nil
}

func (s *EventService) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	return s.eventRepo.GetByID(ctx, id)
}

func (s *EventService) ListEvents(ctx context.Context, limit, offset int) ([]*event.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.eventRepo.List(ctx, limit, offset)
}

// GetAvailability はテーブルID → 空席数を返す。キャッシュがあれば優先する
func (s *EventService) GetAvailability(ctx context.Context, id string) (map[string]int, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err == nil {
			return cached, nil
		}
		logger.Debug("空席キャッシュを使用できません", logger.EventID(id), zap.Error(err))
	}

	e, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	available := make(map[string]int, len(e.Tables))
	for _, t := range e.Tables {
		available[t.ID] = t.SeatsAvailable
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, id, available, s.cacheTTL); err != nil {
			logger.Warn("空席キャッシュの保存に失敗しました", logger.EventID(id), zap.Error(err))
		}
	}
	return available, nil
}

// UpdateEvent はイベント全体のガード下で patch を適用する。
// 公開中は各テーブルの IsAvailable のみ変更できる
func (s *EventService) UpdateEvent(ctx context.Context, id string, patch event.Patch) (*event.Event, error) {
	return s.mutate(ctx, id, func(e *event.Event, now time.Time) error {
		held, err := s.bookingRepo.HeldSeatsByTable(ctx, id)
		if err != nil {
			return fmt.Errorf("保持中座席の集計に失敗: %w", err)
		}
		return e.Apply(patch, held, s.newID, now)
	})
}

// Publish はイベントを公開する。公開条件はここで再検証する
func (s *EventService) Publish(ctx context.Context, id string) (*event.Event, error) {
	return s.mutate(ctx, id, func(e *event.Event, now time.Time) error {
		return e.Publish(now)
	})
}

// Archive はイベントをアーカイブする
func (s *EventService) Archive(ctx context.Context, id string) (*event.Event, error) {
	return s.mutate(ctx, id, func(e *event.Event, now time.Time) error {
		e.Archive(now)
		return nil
	})
}

// mutate はイベントと全テーブルのガードを取得して読み直したイベントに fn を適用し、保存する
func (s *EventService) mutate(ctx context.Context, id string, fn func(*event.Event, time.Time) error) (*event.Event, error) {
	e, err := s.lockAndApply(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	s.invalidate(id)
	return e, nil
}

func (s *EventService) lockAndApply(ctx context.Context, id string, fn func(*event.Event, time.Time) error) (*event.Event, error) {
	e, release, err := lockEvent(ctx, s.guard, s.eventRepo, id)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := fn(e, s.clock.Now()); err != nil {
		return nil, err
	}
	err = transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		return s.eventRepo.Save(ctx, tx, e)
	})
	if err != nil {
		return nil, err
	}
	logger.Info("イベントを更新しました", logger.EventID(e.ID), zap.String("status", string(e.Status)))
	return e, nil
}

func (s *EventService) invalidate(eventID string) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx, eventID); err != nil {
		logger.Warn("空席キャッシュの無効化に失敗しました", logger.EventID(eventID), zap.Error(err))
	}
}
