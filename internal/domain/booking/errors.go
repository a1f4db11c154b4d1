package booking

import "errors"

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound = errors.New("予約が見つかりません")

	// 状態遷移
	ErrAlreadyFinal      = errors.New("予約は既に終了状態です")
	ErrInvalidTransition = errors.New("この状態からは遷移できません")
	ErrHoldExpired       = errors.New("仮押さえの有効期限が切れています")
	ErrHoldNotExpired    = errors.New("仮押さえはまだ有効期限内です")
	ErrStatusConflict    = errors.New("予約の状態が他の操作で変更されました")

	// 入力検証
	ErrEventIDRequired     = errors.New("イベントIDは必須です")
	ErrRequesterRequired   = errors.New("予約者は必須です")
	ErrAllocationsRequired = errors.New("テーブルの指定は必須です")
	ErrInvalidAllocation   = errors.New("テーブルごとの座席数は1以上である必要があります")
	ErrInvalidStatus       = errors.New("予約の状態が不正です")
	ErrInvalidAmount       = errors.New("金額は0以上である必要があります")

	ErrIdempotencyKeyAlreadyExists = errors.New("同じ冪等性キーの予約が既に存在します")
	ErrIdempotencyKeyMismatch      = errors.New("冪等性キーは別の予約者またはイベントで使用済みです")
)
