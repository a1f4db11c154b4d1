package event

import "errors"

// Event ドメインのエラー定義
var (
	ErrEventNotFound          = errors.New("イベントが見つかりません")
	ErrEventNameRequired      = errors.New("イベント名は必須です")
	ErrInvalidEventTime       = errors.New("終了時刻は開始時刻より後である必要があります")
	ErrOptimisticLockConflict = errors.New("楽観的ロックの競合が発生しました")

	// 公開状態
	ErrEventNotPublished  = errors.New("イベントは公開されていません")
	ErrAlreadyPublished   = errors.New("イベントは既に公開されています")
	ErrNoTables           = errors.New("公開にはテーブルが1つ以上必要です")
	ErrCoverImageRequired = errors.New("公開にはカバー画像が必要です")
	ErrEventLocked        = errors.New("公開中のイベントは構成を変更できません")

	// テーブル
	ErrTableNotFound         = errors.New("テーブルが見つかりません")
	ErrTableIDRequired       = errors.New("テーブルIDは必須です")
	ErrInvalidTableNumber    = errors.New("テーブル番号は1以上である必要があります")
	ErrDuplicateTableNumber  = errors.New("テーブル番号が重複しています")
	ErrInvalidSeatsTotal     = errors.New("座席数は1以上である必要があります")
	ErrInvalidPrice          = errors.New("価格は0以上である必要があります")
	ErrInvalidShape          = errors.New("テーブル形状が不正です")
	ErrTableHasBookings      = errors.New("予約が残っているテーブルは削除できません")
	ErrTableUnavailable      = errors.New("テーブルは現在予約を受け付けていません")
	ErrSeatsBelowHeld        = errors.New("座席数を予約済み座席数より少なくできません")
	ErrInvalidSeatCount      = errors.New("座席数の指定が不正です")
	ErrInsufficientSeats     = errors.New("空席が不足しています")
	ErrSeatCountOverflow     = errors.New("空席数が座席数を超えます")
	ErrAvailabilityInvariant = errors.New("空席数が不整合です")
)
