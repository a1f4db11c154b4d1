package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/sanosuguru/go-table-reservation/internal/domain/event"
)

const maxEventLockAttempts = 3

// errTablesChanged はガード取得中にテーブル構成が変わったことを示す
var errTablesChanged = errors.New("ガード取得中にテーブル構成が変更されました")

// lockEvent はイベント全体のガードとその全テーブルのガードを取得し、ガード下で読み直したイベントを返す
func lockEvent(ctx context.Context, guard *AllocationGuard, repo event.Repository, eventID string) (*event.Event, func(), error) {
	for attempt := 0; attempt < maxEventLockAttempts; attempt++ {
		e, err := repo.GetByID(ctx, eventID)
		if err != nil {
			return nil, nil, err
		}
		release, err := guard.AcquireEvent(ctx, eventID, e.TableIDs()...)
		if err != nil {
			return nil, nil, err
		}

		current, err := repo.GetByID(ctx, eventID)
		if err != nil {
			release()
			return nil, nil, err
		}
		if sameIDs(e.TableIDs(), current.TableIDs()) {
			return current, release, nil
		}
		release()
	}
	return nil, nil, fmt.Errorf("イベント %s: %w", eventID, errTablesChanged)
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
