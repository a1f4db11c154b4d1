// Package memory はリポジトリのインメモリ実装を提供する。
// 単一ノード運用とテストで使用し、トランザクションは取り消しログで表現する
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/sanosuguru/go-table-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-table-reservation/internal/domain/event"
	"github.com/sanosuguru/go-table-reservation/internal/domain/transaction"
)

// ErrForeignTx はインメモリ以外のトランザクションが渡された場合のエラー
var ErrForeignTx = errors.New("インメモリストアのトランザクションではありません")

// ErrTxDone は終了済みトランザクションへの操作のエラー
var ErrTxDone = errors.New("トランザクションは既に終了しています")

// Store はイベントと予約を保持する共有ストア
type Store struct {
	mu          sync.RWMutex
	events      map[string]*event.Event
	tableOwner  map[string]string // テーブルID → イベントID
	bookings    map[string]*booking.Booking
	idempotency map[string]string // 冪等性キー → 予約ID
}

// NewStore は空のストアを作成する
func NewStore() *Store {
	return &Store{
		events:      make(map[string]*event.Event),
		tableOwner:  make(map[string]string),
		bookings:    make(map[string]*booking.Booking),
		idempotency: make(map[string]string),
	}
}

// Tx は取り消しログを持つトランザクション。書き込みは即時反映され、Rollback で逆順に打ち消す
type Tx struct {
	store *Store
	mu    sync.Mutex
	undo  []func()
	done  bool
}

// Commit はトランザクションを確定する
func (t *Tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.undo = nil
	return nil
}

// Rollback は記録された変更を逆順に取り消す
func (t *Tx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	return nil
}

// record は取り消し処理を登録する。呼び出し側は store.mu を保持していること
func (t *Tx) record(fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.undo = append(t.undo, fn)
	return nil
}

// TxManager はインメモリストアのトランザクションマネージャー
type TxManager struct {
	store *Store
}

// NewTxManager は新しい TxManager を作成する
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin は新しいトランザクションを開始する
func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{store: m.store}, nil
}

func unwrapTx(store *Store, tx transaction.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != store {
		return nil, ErrForeignTx
	}
	return t, nil
}

var _ transaction.Manager = (*TxManager)(nil)
