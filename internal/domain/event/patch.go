package event

import "time"

// TableSpec は追加するテーブルの定義
type TableSpec struct {
	Number     int
	SeatsTotal int
	Price      int
	Shape      Shape
	Position   Position
}

// TablePatch は既存テーブルへの部分更新。nil のフィールドは変更しない
type TablePatch struct {
	ID          string
	Number      *int
	SeatsTotal  *int
	Price       *int
	Shape       *Shape
	Position    *Position
	IsAvailable *bool
}

// Patch はイベントへの部分更新
type Patch struct {
	Name           *string
	Description    *string
	Venue          *string
	CoverImageURL  *string
	StartAt        *time.Time
	EndAt          *time.Time
	AddTables      []TableSpec
	RemoveTableIDs []string
	UpdateTables   []TablePatch
}

// TouchedTableIDs は更新・削除対象のテーブルIDを返す
func (p Patch) TouchedTableIDs() []string {
	ids := make([]string, 0, len(p.RemoveTableIDs)+len(p.UpdateTables))
	ids = append(ids, p.RemoveTableIDs...)
	for _, tp := range p.UpdateTables {
		ids = append(ids, tp.ID)
	}
	return ids
}

// PublishLockPolicy は公開中イベントの構成変更を拒否する。
// 公開中に変更できるのはテーブルごとの IsAvailable のみ
type PublishLockPolicy struct{}

// Check は patch が e に適用可能かを判定する。値が変わらないフィールドは変更とみなさない
func (PublishLockPolicy) Check(e *Event, p Patch) error {
	if e.Status != StatusPublished {
		return nil
	}
	if changedString(p.Name, e.Name) ||
		changedString(p.Description, e.Description) ||
		changedString(p.Venue, e.Venue) ||
		changedString(p.CoverImageURL, e.CoverImageURL) ||
		changedTime(p.StartAt, e.StartAt) ||
		changedTime(p.EndAt, e.EndAt) ||
		len(p.AddTables) > 0 ||
		len(p.RemoveTableIDs) > 0 {
		return ErrEventLocked
	}
	for _, tp := range p.UpdateTables {
		t, ok := e.Table(tp.ID)
		if !ok {
			return ErrTableNotFound
		}
		if changedInt(tp.Number, t.Number) ||
			changedInt(tp.SeatsTotal, t.SeatsTotal) ||
			changedInt(tp.Price, t.Price) ||
			(tp.Shape != nil && *tp.Shape != t.Shape) ||
			(tp.Position != nil && *tp.Position != t.Position) {
			return ErrEventLocked
		}
	}
	return nil
}

// Apply は patch をイベントに適用する。
// held はテーブルID → 保持中予約の座席合計、newID は追加テーブルのID採番に使う
func (e *Event) Apply(p Patch, held map[string]int, newID func() string, now time.Time) error {
	if err := (PublishLockPolicy{}).Check(e, p); err != nil {
		return err
	}

	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Venue != nil {
		e.Venue = *p.Venue
	}
	if p.CoverImageURL != nil {
		e.CoverImageURL = *p.CoverImageURL
	}
	if p.StartAt != nil {
		e.StartAt = *p.StartAt
	}
	if p.EndAt != nil {
		e.EndAt = *p.EndAt
	}

	for _, id := range p.RemoveTableIDs {
		if _, ok := e.Table(id); !ok {
			return ErrTableNotFound
		}
		if held[id] > 0 {
			return ErrTableHasBookings
		}
		if err := e.RemoveTable(id); err != nil {
			return err
		}
	}

	for _, tp := range p.UpdateTables {
		t, ok := e.Table(tp.ID)
		if !ok {
			return ErrTableNotFound
		}
		if tp.Number != nil {
			t.Number = *tp.Number
		}
		if tp.SeatsTotal != nil && *tp.SeatsTotal != t.SeatsTotal {
			if err := t.Resize(*tp.SeatsTotal, held[t.ID], now); err != nil {
				return err
			}
		}
		if tp.Price != nil {
			t.Price = *tp.Price
		}
		if tp.Shape != nil {
			t.Shape = *tp.Shape
		}
		if tp.Position != nil {
			t.Position = *tp.Position
		}
		if tp.IsAvailable != nil {
			t.IsAvailable = *tp.IsAvailable
		}
		t.UpdatedAt = now
	}

	for _, ts := range p.AddTables {
		t := NewTable(e.ID, ts.Number, ts.SeatsTotal, ts.Price, now)
		t.ID = newID()
		if ts.Shape != "" {
			t.Shape = ts.Shape
		}
		t.Position = ts.Position
		e.AddTable(t)
	}

	e.UpdatedAt = now
	return e.Validate()
}

func changedString(p *string, cur string) bool {
	return p != nil && *p != cur
}

func changedInt(p *int, cur int) bool {
	return p != nil && *p != cur
}

func changedTime(p *time.Time, cur time.Time) bool {
	return p != nil && !p.Equal(cur)
}
