package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-table-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/logger"
)

// TableDrift は整合性修復で補正したテーブルの記録
type TableDrift struct {
	EventID    string
	TableID    string
	Number     int
	SeatsTotal int
	Held       int // 保持中予約の座席合計
	Before     int // 補正前の空席数
	After      int // 補正後の空席数
}

const reconcilePageSize = 100

// Reconcile は保持中の予約からイベントの全テーブルの空席数を再計算し、ずれていれば補正する。
// 何度実行しても結果は変わらない
func (s *ReservationService) Reconcile(ctx context.Context, eventID string) ([]TableDrift, error) {
	drifts, err := s.reconcileLocked(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(drifts) > 0 {
		if s.metrics != nil {
			s.metrics.ReconciledTablesTotal.Add(float64(len(drifts)))
		}
		for _, d := range drifts {
			logger.Warn("空席数のずれを補正しました",
				logger.EventID(d.EventID), logger.TableID(d.TableID),
				zap.Int("before", d.Before), zap.Int("after", d.After), zap.Int("held", d.Held))
		}
		s.invalidate(eventID)
	}
	return drifts, nil
}

func (s *ReservationService) reconcileLocked(ctx context.Context, eventID string) ([]TableDrift, error) {
	e, release, err := lockEvent(ctx, s.guard, s.eventRepo, eventID)
	if err != nil {
		return nil, err
	}
	defer release()

	held, err := s.bookingRepo.HeldSeatsByTable(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("保持中座席の集計に失敗: %w", err)
	}

	var drifts []TableDrift
	for _, t := range e.Tables {
		want := t.SeatsTotal - held[t.ID]
		if want < 0 {
			// 座席数を超えて保持されている。空席0で止め、記録を残す
			logger.Error("保持座席数が座席数を超えています",
				logger.EventID(eventID), logger.TableID(t.ID), zap.Int("held", held[t.ID]), zap.Int("seats_total", t.SeatsTotal))
			want = 0
		}
		if want == t.SeatsAvailable {
			continue
		}
		drifts = append(drifts, TableDrift{
			EventID:    eventID,
			TableID:    t.ID,
			Number:     t.Number,
			SeatsTotal: t.SeatsTotal,
			Held:       held[t.ID],
			Before:     t.SeatsAvailable,
			After:      want,
		})
	}
	if len(drifts) == 0 {
		return nil, nil
	}

	err = transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		for _, d := range drifts {
			if err := s.eventRepo.SetSeatsAvailable(ctx, tx, d.TableID, d.After); err != nil {
				return fmt.Errorf("テーブル %s の空席数補正に失敗: %w", d.TableID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drifts, nil
}

// ReconcileAll は全イベントを順に Reconcile する
func (s *ReservationService) ReconcileAll(ctx context.Context) ([]TableDrift, error) {
	var all []TableDrift
	for offset := 0; ; offset += reconcilePageSize {
		events, err := s.eventRepo.List(ctx, reconcilePageSize, offset)
		if err != nil {
			return all, fmt.Errorf("イベント一覧取得に失敗: %w", err)
		}
		for _, e := range events {
			drifts, err := s.Reconcile(ctx, e.ID)
			if err != nil {
				return all, fmt.Errorf("イベント %s の整合性修復に失敗: %w", e.ID, err)
			}
			all = append(all, drifts...)
		}
		if len(events) < reconcilePageSize {
			return all, nil
		}
	}
}
