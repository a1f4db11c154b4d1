package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-table-reservation/internal/application"
	"github.com/sanosuguru/go-table-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-table-reservation/internal/domain/event"
)

// エラー種別。クライアントはこの値で表示を切り替える
const (
	KindValidation = "validation"
	KindCapacity   = "capacity"
	KindNotFound   = "not_found"
	KindState      = "state"
	KindBusy       = "busy"
	KindAuth       = "unauthorized"
	KindInternal   = "internal"
)

// Problem はHTTPErrorに載せるエラー内容
type Problem struct {
	Kind    string
	Reason  string
	Message string
}

type errorRule struct {
	err    error
	status int
	kind   string
	reason string
}

// 先頭から順に照合する
var errorRules = []errorRule{
	{event.ErrInsufficientSeats, http.StatusBadRequest, KindCapacity, "insufficient_seats"},

	{event.ErrEventNotFound, http.StatusNotFound, KindNotFound, "unknown_event"},
	{booking.ErrBookingNotFound, http.StatusNotFound, KindNotFound, "unknown_booking"},
	{event.ErrTableNotFound, http.StatusBadRequest, KindValidation, "unknown_table"},
	{event.ErrEventNotPublished, http.StatusBadRequest, KindValidation, "event_not_published"},
	{event.ErrTableUnavailable, http.StatusBadRequest, KindValidation, "table_unavailable"},

	{booking.ErrAlreadyFinal, http.StatusConflict, KindState, "already_final"},
	{booking.ErrInvalidTransition, http.StatusConflict, KindState, "invalid_transition"},
	{booking.ErrHoldExpired, http.StatusConflict, KindState, "hold_expired"},
	{booking.ErrStatusConflict, http.StatusConflict, KindState, "status_conflict"},
	{booking.ErrIdempotencyKeyMismatch, http.StatusConflict, KindState, "idempotency_key_reused"},
	{event.ErrAlreadyPublished, http.StatusConflict, KindState, "already_published"},
	{event.ErrEventLocked, http.StatusConflict, KindState, "event_locked"},
	{event.ErrTableHasBookings, http.StatusConflict, KindState, "table_has_bookings"},
	{event.ErrSeatsBelowHeld, http.StatusConflict, KindState, "seats_below_held"},
	{event.ErrNoTables, http.StatusConflict, KindState, "no_tables"},
	{event.ErrCoverImageRequired, http.StatusConflict, KindState, "cover_image_required"},
	{event.ErrOptimisticLockConflict, http.StatusConflict, KindState, "concurrent_update"},
	{application.ErrGuardBusy, http.StatusConflict, KindBusy, "busy"},

	{event.ErrEventNameRequired, http.StatusBadRequest, KindValidation, "invalid_event"},
	{event.ErrInvalidEventTime, http.StatusBadRequest, KindValidation, "invalid_event"},
	{event.ErrTableIDRequired, http.StatusBadRequest, KindValidation, "invalid_table"},
	{event.ErrInvalidTableNumber, http.StatusBadRequest, KindValidation, "invalid_table"},
	{event.ErrDuplicateTableNumber, http.StatusBadRequest, KindValidation, "invalid_table"},
	{event.ErrInvalidSeatsTotal, http.StatusBadRequest, KindValidation, "invalid_table"},
	{event.ErrInvalidPrice, http.StatusBadRequest, KindValidation, "invalid_table"},
	{event.ErrInvalidShape, http.StatusBadRequest, KindValidation, "invalid_table"},
	{event.ErrInvalidSeatCount, http.StatusBadRequest, KindValidation, "invalid_booking"},
	{booking.ErrEventIDRequired, http.StatusBadRequest, KindValidation, "invalid_booking"},
	{booking.ErrRequesterRequired, http.StatusBadRequest, KindValidation, "invalid_booking"},
	{booking.ErrAllocationsRequired, http.StatusBadRequest, KindValidation, "invalid_booking"},
	{booking.ErrInvalidAllocation, http.StatusBadRequest, KindValidation, "invalid_booking"},
	{booking.ErrInvalidStatus, http.StatusBadRequest, KindValidation, "invalid_booking"},
	{booking.ErrInvalidAmount, http.StatusBadRequest, KindValidation, "invalid_booking"},
}

// ToHTTPError はサービスのエラーをHTTPErrorに変換する。未知のエラーは500
func ToHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	for _, rule := range errorRules {
		if errors.Is(err, rule.err) {
			return newHTTPError(rule.status, rule.kind, rule.reason, rule.err.Error(), err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newHTTPError(http.StatusServiceUnavailable, KindBusy, "timeout", "処理がタイムアウトしました", err)
	}
	return newHTTPError(http.StatusInternalServerError, KindInternal, "internal", "内部サーバーエラー", err)
}

// NewValidationError は入力不備のHTTPErrorを作成する
func NewValidationError(message string) *echo.HTTPError {
	return newHTTPError(http.StatusBadRequest, KindValidation, "invalid_request", message, nil)
}

func newHTTPError(status int, kind, reason, message string, cause error) *echo.HTTPError {
	he := echo.NewHTTPError(status, Problem{Kind: kind, Reason: reason, Message: message})
	if cause != nil {
		he = he.SetInternal(cause)
	}
	return he
}

// kindForStatus はProblemを持たないHTTPErrorの種別を返す
func kindForStatus(code int) string {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusConflict:
		return KindState
	case code >= 500:
		return KindInternal
	default:
		return KindValidation
	}
}
