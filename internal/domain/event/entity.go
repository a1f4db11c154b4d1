package event

import (
	"sort"
	"time"
)

// Status はイベントの公開状態を表す
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Event はイベントエンティティを表す
type Event struct {
	ID            string
	OrganizerID   string
	Name          string
	Description   string
	Venue         string
	CoverImageURL string
	StartAt       time.Time
	EndAt         time.Time
	Status        Status
	Tables        []*Table // 表示順
	PublishedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int // 楽観的ロック用
}

// NewEvent は下書き状態のイベントを作成する
func NewEvent(organizerID, name, description, venue string, startAt, endAt, now time.Time) *Event {
	return &Event{
		OrganizerID: organizerID,
		Name:        name,
		Description: description,
		Venue:       venue,
		StartAt:     startAt,
		EndAt:       endAt,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     0,
	}
}

// Validate はイベントの検証を行う
func (e *Event) Validate() error {
	if e.Name == "" {
		return ErrEventNameRequired
	}
	if e.EndAt.Before(e.StartAt) {
		return ErrInvalidEventTime
	}
	numbers := make(map[int]struct{}, len(e.Tables))
	for _, t := range e.Tables {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, dup := numbers[t.Number]; dup {
			return ErrDuplicateTableNumber
		}
		numbers[t.Number] = struct{}{}
	}
	return nil
}

// IsPublished は公開中かを返す
func (e *Event) IsPublished() bool {
	return e.Status == StatusPublished
}

// Table はIDからテーブルを返す
func (e *Event) Table(id string) (*Table, bool) {
	for _, t := range e.Tables {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// TableIDs はテーブルIDを昇順で返す
func (e *Event) TableIDs() []string {
	ids := make([]string, len(e.Tables))
	for i, t := range e.Tables {
		ids[i] = t.ID
	}
	sort.Strings(ids)
	return ids
}

// AddTable はテーブルを末尾に追加する。更新日時は呼び出し側で設定する
func (e *Event) AddTable(t *Table) {
	t.EventID = e.ID
	e.Tables = append(e.Tables, t)
}

// RemoveTable はテーブルを取り除く
func (e *Event) RemoveTable(id string) error {
	for i, t := range e.Tables {
		if t.ID == id {
			e.Tables = append(e.Tables[:i], e.Tables[i+1:]...)
			return nil
		}
	}
	return ErrTableNotFound
}

// Publish はイベントを公開する。公開条件はこの遷移時にのみ検証する
func (e *Event) Publish(now time.Time) error {
	if e.Status == StatusPublished {
		return ErrAlreadyPublished
	}
	if len(e.Tables) == 0 {
		return ErrNoTables
	}
	if e.CoverImageURL == "" {
		return ErrCoverImageRequired
	}
	e.Status = StatusPublished
	e.PublishedAt = &now
	e.UpdatedAt = now
	return nil
}

// Archive はイベントをアーカイブする。常に許可される
func (e *Event) Archive(now time.Time) {
	e.Status = StatusArchived
	e.PublishedAt = nil
	e.UpdatedAt = now
}
