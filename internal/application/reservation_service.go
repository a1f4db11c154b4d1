package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-table-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-table-reservation/internal/domain/event"
	"github.com/sanosuguru/go-table-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/clock"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/metrics"
)

// ReservationConfig は予約エンジンの動作設定
type ReservationConfig struct {
	HoldDuration  time.Duration  // 仮押さえの有効期間
	InitialStatus booking.Status // reserved または pending
	DirectPayment bool           // 確認待ちを経ない決済を許可する
	ReapBatchSize int            // 1回の回収で扱う最大件数
}

// DefaultReservationConfig はデフォルト設定を返す
func DefaultReservationConfig() ReservationConfig {
	return ReservationConfig{
		HoldDuration:  15 * time.Minute,
		InitialStatus: booking.StatusReserved,
		DirectPayment: true,
		ReapBatchSize: 500,
	}
}

// ReservationService は座席の確保と予約の状態遷移を担う。
// 空席数の変更はすべて AllocationGuard の下で行う
type ReservationService struct {
	txManager   transaction.Manager
	bookingRepo booking.Repository
	eventRepo   event.Repository
	guard       *AllocationGuard
	cfg         ReservationConfig

	cache      AvailabilityCache
	notifier   Notifier
	tickets    TicketIssuer
	dispatcher *Dispatcher
	clock      clock.Clock
	metrics    *metrics.Metrics
}

// ReservationOption は ReservationService の任意の連携先を設定する
type ReservationOption func(*ReservationService)

func WithAvailabilityCache(c AvailabilityCache) ReservationOption {
	return func(s *ReservationService) { s.cache = c }
}

func WithNotifier(n Notifier) ReservationOption {
	return func(s *ReservationService) { s.notifier = n }
}

func WithTicketIssuer(t TicketIssuer) ReservationOption {
	return func(s *ReservationService) { s.tickets = t }
}

func WithDispatcher(d *Dispatcher) ReservationOption {
	return func(s *ReservationService) { s.dispatcher = d }
}

func WithClock(c clock.Clock) ReservationOption {
	return func(s *ReservationService) { s.clock = c }
}

func WithMetrics(m *metrics.Metrics) ReservationOption {
	return func(s *ReservationService) { s.metrics = m }
}

// NewReservationService は ReservationService を作成する
func NewReservationService(txm transaction.Manager, br booking.Repository, er event.Repository, guard *AllocationGuard, cfg ReservationConfig, opts ...ReservationOption) *ReservationService {
	if cfg.InitialStatus == "" {
		cfg.InitialStatus = booking.StatusReserved
	}
	if cfg.ReapBatchSize <= 0 {
		cfg.ReapBatchSize = 500
	}
	s := &ReservationService{
		txManager:   txm,
		bookingRepo: br,
		eventRepo:   er,
		guard:       guard,
		cfg:         cfg,
		clock:       clock.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBookingInput は予約作成の入力
type CreateBookingInput struct {
	EventID        string
	Requester      string
	Allocations    []booking.Allocation
	IdempotencyKey string
	HoldDuration   time.Duration // 0 なら設定値を使う
}

// CreateBooking は全テーブルのガード下で空席を確認し、すべて足りる場合のみ一括で確保する
func (s *ReservationService) CreateBooking(ctx context.Context, input CreateBookingInput) (*booking.Booking, error) {
	// ロック取得前に入力を検証する
	for _, a := range input.Allocations {
		if a.TableID == "" || a.Seats <= 0 {
			s.countBooking("rejected")
			return nil, booking.ErrInvalidAllocation
		}
	}
	hold := input.HoldDuration
	if hold <= 0 {
		hold = s.cfg.HoldDuration
	}
	draft := booking.NewBooking(input.EventID, input.Requester, input.IdempotencyKey, input.Allocations, 0, s.cfg.InitialStatus, hold, s.clock.Now())
	if err := draft.Validate(); err != nil {
		s.countBooking("rejected")
		return nil, err
	}

	if input.IdempotencyKey != "" {
		existing, err := s.bookingRepo.GetByIdempotencyKey(ctx, input.IdempotencyKey)
		if err == nil {
			if err := sameRequest(existing, draft); err != nil {
				s.countBooking("rejected")
				return nil, err
			}
			s.countBooking("idempotent")
			return existing, nil
		}
		if !errors.Is(err, booking.ErrBookingNotFound) {
			s.countBooking("error")
			return nil, fmt.Errorf("冪等性チェックに失敗: %w", err)
		}
	}

	if _, err := s.loadBookableEvent(ctx, input.EventID, draft.Allocations); err != nil {
		s.countBooking("rejected")
		return nil, err
	}

	b, created, err := s.allocate(ctx, draft, hold)
	if err != nil {
		s.countBooking(bookingResult(err))
		return nil, err
	}
	if !created {
		s.countBooking("idempotent")
		return b, nil
	}

	s.countBooking("success")
	logger.Info("予約を作成しました",
		logger.BookingID(b.ID), logger.EventID(b.EventID), logger.Count(b.Seats()))
	s.invalidate(b.EventID)
	s.notify(NotifyBookingCreated, b)
	return b, nil
}

// allocate はガード下で空席を確認し、座席の確保と予約の作成を1つのトランザクションで行う。
// 同じ冪等性キーの予約が先に作られていた場合はそれを created=false で返す
func (s *ReservationService) allocate(ctx context.Context, draft *booking.Booking, hold time.Duration) (*booking.Booking, bool, error) {
	release, err := s.guard.Acquire(ctx, draft.TableIDs()...)
	if err != nil {
		return nil, false, err
	}
	defer release()

	// ガード下で最新の空席数を読み直す
	ev, err := s.loadBookableEvent(ctx, draft.EventID, draft.Allocations)
	if err != nil {
		return nil, false, err
	}
	total := 0
	for _, a := range draft.Allocations {
		table, _ := ev.Table(a.TableID)
		if table.SeatsAvailable < a.Seats {
			return nil, false, event.ErrInsufficientSeats
		}
		total += table.Price * a.Seats
	}

	b := booking.NewBooking(draft.EventID, draft.Requester, draft.IdempotencyKey, draft.Allocations, total, s.cfg.InitialStatus, hold, s.clock.Now())
	err = transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		for _, a := range b.Allocations {
			if err := s.eventRepo.AdjustSeats(ctx, tx, a.TableID, -a.Seats); err != nil {
				return err
			}
		}
		return s.bookingRepo.Create(ctx, tx, b)
	})
	if errors.Is(err, booking.ErrIdempotencyKeyAlreadyExists) {
		existing, getErr := s.bookingRepo.GetByIdempotencyKey(ctx, b.IdempotencyKey)
		if getErr != nil {
			return nil, false, err
		}
		if err := sameRequest(existing, b); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// sameRequest は冪等性キーで見つかった予約が同じ予約者・イベントのものか確認する
func sameRequest(existing, draft *booking.Booking) error {
	if existing.Requester != draft.Requester || existing.EventID != draft.EventID {
		return booking.ErrIdempotencyKeyMismatch
	}
	return nil
}

func bookingResult(err error) string {
	switch {
	case errors.Is(err, event.ErrInsufficientSeats):
		return "insufficient"
	case errors.Is(err, ErrGuardBusy):
		return "busy"
	case errors.Is(err, booking.ErrIdempotencyKeyMismatch):
		return "rejected"
	case errors.Is(err, event.ErrEventNotPublished), errors.Is(err, event.ErrTableNotFound),
		errors.Is(err, event.ErrTableUnavailable), errors.Is(err, event.ErrEventNotFound):
		return "rejected"
	}
	return "error"
}

// loadBookableEvent は公開中のイベントを取得し、指定テーブルが予約を受け付けるか確認する
func (s *ReservationService) loadBookableEvent(ctx context.Context, eventID string, allocations []booking.Allocation) (*event.Event, error) {
	ev, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.IsPublished() {
		return nil, event.ErrEventNotPublished
	}
	for _, a := range allocations {
		table, ok := ev.Table(a.TableID)
		if !ok {
			return nil, event.ErrTableNotFound
		}
		if !table.IsAvailable {
			return nil, event.ErrTableUnavailable
		}
	}
	return ev, nil
}

// CancelBooking は座席を保持中の予約を取り消し、座席を返却する
func (s *ReservationService) CancelBooking(ctx context.Context, id string) (*booking.Booking, error) {
	b, err := s.transition(ctx, id, booking.ActionCancel, func(b *booking.Booking, now time.Time) error {
		return b.Cancel(now)
	})
	if err != nil {
		return nil, err
	}
	s.notify(NotifyBookingCancelled, b)
	return b, nil
}

// ConfirmBooking は仮押さえを主催者確認待ちにする。座席数は変わらない
func (s *ReservationService) ConfirmBooking(ctx context.Context, id string) (*booking.Booking, error) {
	b, err := s.transition(ctx, id, booking.ActionConfirm, func(b *booking.Booking, now time.Time) error {
		return b.Confirm(now)
	})
	if err != nil {
		return nil, err
	}
	s.notify(NotifyBookingConfirmed, b)
	return b, nil
}

// ConfirmPayment は予約を決済済みにする。チケット生成は遷移の確定後に非同期で行う
func (s *ReservationService) ConfirmPayment(ctx context.Context, id string) (*booking.Booking, error) {
	b, err := s.transition(ctx, id, booking.ActionPay, func(b *booking.Booking, now time.Time) error {
		return b.Pay(now, s.cfg.DirectPayment)
	})
	if err != nil {
		return nil, err
	}
	s.issueTicket(b)
	s.notify(NotifyBookingPaid, b)
	return b, nil
}

// ReclaimExpired は now より前に期限切れとなった仮押さえを失効させ、座席を返却する。
// 他の遷移に先を越された予約は数えずに読み飛ばす
func (s *ReservationService) ReclaimExpired(ctx context.Context, now time.Time) (int, error) {
	holds, err := s.bookingRepo.ListExpiredHolds(ctx, now, s.cfg.ReapBatchSize)
	if err != nil {
		return 0, fmt.Errorf("期限切れ予約の取得に失敗: %w", err)
	}

	reclaimed := 0
	for _, h := range holds {
		if err := ctx.Err(); err != nil {
			return reclaimed, err
		}
		b, err := s.transitionAt(ctx, h.ID, booking.ActionExpire, now, func(b *booking.Booking, now time.Time) error {
			return b.Expire(now)
		})
		if err != nil {
			if isLostRace(err) {
				continue
			}
			logger.Warn("期限切れ予約の回収に失敗しました", logger.BookingID(h.ID), zap.Error(err))
			continue
		}
		reclaimed++
		s.notify(NotifyBookingExpired, b)
	}

	if reclaimed > 0 {
		if s.metrics != nil {
			s.metrics.ReclaimedHoldsTotal.Add(float64(reclaimed))
		}
		logger.Info("期限切れ予約を回収しました", logger.Count(reclaimed))
	}
	return reclaimed, nil
}

// isLostRace は回収対象が他の遷移で既に動いていたことを示すエラーかを返す
func isLostRace(err error) bool {
	return errors.Is(err, booking.ErrAlreadyFinal) ||
		errors.Is(err, booking.ErrInvalidTransition) ||
		errors.Is(err, booking.ErrHoldNotExpired) ||
		errors.Is(err, booking.ErrStatusConflict)
}

func (s *ReservationService) transition(ctx context.Context, id string, action booking.Action, apply func(*booking.Booking, time.Time) error) (*booking.Booking, error) {
	return s.transitionAt(ctx, id, action, time.Time{}, apply)
}

// transitionAt は予約を遷移させ、確定後に通知以外の後処理を行う。at がゼロなら現在時刻を使う
func (s *ReservationService) transitionAt(ctx context.Context, id string, action booking.Action, at time.Time, apply func(*booking.Booking, time.Time) error) (*booking.Booking, error) {
	b, from, err := s.applyTransition(ctx, id, at, apply)
	if err != nil {
		s.countTransition(action, transitionResult(err))
		return nil, err
	}

	s.countTransition(action, "success")
	logger.Info("予約の状態を更新しました",
		logger.BookingID(b.ID), zap.String("from", string(from)), zap.String("to", string(b.Status)))
	if from.HoldsSeats() && !b.Status.HoldsSeats() {
		s.invalidate(b.EventID)
	}
	return b, nil
}

// applyTransition は予約の全テーブルのガード下で予約を読み直して遷移させ、
// 座席を保持しなくなる遷移なら同じトランザクションで座席を返却する
func (s *ReservationService) applyTransition(ctx context.Context, id string, at time.Time, apply func(*booking.Booking, time.Time) error) (*booking.Booking, booking.Status, error) {
	b, err := s.bookingRepo.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}

	release, err := s.guard.Acquire(ctx, b.TableIDs()...)
	if err != nil {
		return nil, "", err
	}
	defer release()

	current, err := s.bookingRepo.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	from := current.Status
	now := at
	if now.IsZero() {
		now = s.clock.Now()
	}
	if err := apply(current, now); err != nil {
		return nil, "", err
	}
	freesSeats := from.HoldsSeats() && !current.Status.HoldsSeats()

	err = transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		if err := s.bookingRepo.UpdateStatus(ctx, tx, current, from); err != nil {
			return err
		}
		if !freesSeats {
			return nil
		}
		for _, a := range current.Allocations {
			if err := s.eventRepo.AdjustSeats(ctx, tx, a.TableID, a.Seats); err != nil {
				return fmt.Errorf("テーブル %s の座席返却に失敗: %w", a.TableID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return current, from, nil
}

func transitionResult(err error) string {
	switch {
	case errors.Is(err, booking.ErrAlreadyFinal):
		return "final"
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrHoldExpired),
		errors.Is(err, booking.ErrHoldNotExpired), errors.Is(err, booking.ErrStatusConflict):
		return "invalid"
	}
	return "error"
}

// GetBooking はIDから予約を取得する
func (s *ReservationService) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	return s.bookingRepo.GetByID(ctx, id)
}

// ListRequesterBookings は予約者の予約一覧を取得する
func (s *ReservationService) ListRequesterBookings(ctx context.Context, requester string, limit, offset int) ([]*booking.Booking, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookingRepo.ListByRequester(ctx, requester, limit, offset)
}

// ListEventBookings はイベントの予約一覧を取得する。statuses が空なら全状態
func (s *ReservationService) ListEventBookings(ctx context.Context, eventID string, statuses []booking.Status) ([]*booking.Booking, error) {
	if _, err := s.eventRepo.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	for _, st := range statuses {
		if !st.IsValid() {
			return nil, booking.ErrInvalidStatus
		}
	}
	return s.bookingRepo.ListByEvent(ctx, eventID, statuses)
}

func (s *ReservationService) issueTicket(b *booking.Booking) {
	if s.tickets == nil || s.dispatcher == nil {
		return
	}
	snapshot := *b
	s.dispatcher.Dispatch("ticket", func(ctx context.Context) error {
		ev, err := s.eventRepo.GetByID(ctx, snapshot.EventID)
		if err != nil {
			return fmt.Errorf("チケット用のイベント取得に失敗: %w", err)
		}
		ref, err := s.tickets.Issue(ctx, &snapshot, ev)
		if err != nil {
			return fmt.Errorf("チケット生成に失敗: %w", err)
		}
		if err := s.bookingRepo.SetTicketRef(ctx, snapshot.ID, ref); err != nil {
			return fmt.Errorf("チケット参照の保存に失敗: %w", err)
		}
		logger.Info("チケットを発行しました", logger.BookingID(snapshot.ID), zap.String("ticket_ref", ref))
		return nil
	})
}

func (s *ReservationService) notify(kind NotificationKind, b *booking.Booking) {
	if s.notifier == nil || s.dispatcher == nil {
		return
	}
	snapshot := *b
	s.dispatcher.Dispatch("notify", func(ctx context.Context) error {
		return s.notifier.Notify(ctx, kind, &snapshot)
	})
}

func (s *ReservationService) invalidate(eventID string) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx, eventID); err != nil {
		logger.Warn("空席キャッシュの無効化に失敗しました", logger.EventID(eventID), zap.Error(err))
	}
}

func (s *ReservationService) countBooking(result string) {
	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues(result).Inc()
	}
}

func (s *ReservationService) countTransition(action booking.Action, result string) {
	if s.metrics != nil {
		s.metrics.BookingTransitionsTotal.WithLabelValues(string(action), result).Inc()
	}
}
