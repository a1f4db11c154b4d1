package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-table-reservation/internal/api"
	"github.com/sanosuguru/go-table-reservation/internal/api/middleware"
	"github.com/sanosuguru/go-table-reservation/internal/application"
	"github.com/sanosuguru/go-table-reservation/internal/domain/booking"
)

type BookingHandler struct {
	bookingService BookingServiceInterface
}

func NewBookingHandler(bookingService BookingServiceInterface) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

type AllocationRequest struct {
	TableID string `json:"table_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440001"`
	Seats   int    `json:"seats" validate:"required,gt=0" example:"2"`
}

type CreateBookingRequest struct {
	EventID        string              `json:"event_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	Allocations    []AllocationRequest `json:"allocations" validate:"required,min=1,dive"`
	IdempotencyKey string              `json:"idempotency_key" example:"chat-123-msg-456"`
	HoldSeconds    int                 `json:"hold_seconds" validate:"gte=0" example:"900"`
}

type AllocationResponse struct {
	TableID string `json:"table_id"`
	Seats   int    `json:"seats"`
}

type BookingResponse struct {
	ID          string               `json:"id" example:"550e8400-e29b-41d4-a716-446655440002"`
	EventID     string               `json:"event_id"`
	Requester   string               `json:"requester"`
	Allocations []AllocationResponse `json:"allocations"`
	Seats       int                  `json:"seats"`
	TotalAmount int                  `json:"total_amount" example:"6000"`
	Status      string               `json:"status" example:"reserved"`
	ExpiresAt   *string              `json:"expires_at,omitempty"`
	ConfirmedAt *string              `json:"confirmed_at,omitempty"`
	PaidAt      *string              `json:"paid_at,omitempty"`
	TicketRef   string               `json:"ticket_ref,omitempty"`
	CreatedAt   string               `json:"created_at"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toBookingResponse(b *booking.Booking) *BookingResponse {
	resp := &BookingResponse{
		ID:          b.ID,
		EventID:     b.EventID,
		Requester:   b.Requester,
		Allocations: make([]AllocationResponse, len(b.Allocations)),
		Seats:       b.Seats(),
		TotalAmount: b.TotalAmount,
		Status:      string(b.Status),
		ExpiresAt:   formatTime(b.ExpiresAt),
		ConfirmedAt: formatTime(b.ConfirmedAt),
		PaidAt:      formatTime(b.PaidAt),
		TicketRef:   b.TicketRef,
		CreatedAt:   b.CreatedAt.Format(time.RFC3339),
	}
	for i, a := range b.Allocations {
		resp.Allocations[i] = AllocationResponse{TableID: a.TableID, Seats: a.Seats}
	}
	return resp
}

func toBookingResponses(bookings []*booking.Booking) []*BookingResponse {
	responses := make([]*BookingResponse, len(bookings))
	for i, b := range bookings {
		responses[i] = toBookingResponse(b)
	}
	return responses
}

func requester(c echo.Context) (string, error) {
	r := strings.TrimSpace(c.Request().Header.Get(middleware.HeaderRequester))
	if r == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "X-Requester ヘッダーが必要です")
	}
	return r, nil
}

// Create godoc
// @Summary 予約を作成
// @Description 指定テーブルの座席をまとめて仮押さえします。1テーブルでも不足すれば何も確保しません
// @Tags bookings
// @Accept json
// @Produce json
// @Param X-Requester header string true "予約者ID"
// @Param Idempotency-Key header string false "冪等性キー"
// @Param request body CreateBookingRequest true "予約情報"
// @Success 201 {object} BookingResponse
// @Failure 400 {object} api.ErrorResponse "空席不足"
// @Failure 409 {object} api.ErrorResponse "混雑"
// @Router /bookings [post]
func (h *BookingHandler) Create(c echo.Context) error {
	who, err := requester(c)
	if err != nil {
		return err
	}

	var req CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return api.NewValidationError("リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = c.Request().Header.Get(middleware.HeaderIdempotencyKey)
	}
	allocations := make([]booking.Allocation, len(req.Allocations))
	for i, a := range req.Allocations {
		allocations[i] = booking.Allocation{TableID: a.TableID, Seats: a.Seats}
	}

	b, err := h.bookingService.CreateBooking(c.Request().Context(), application.CreateBookingInput{
		EventID:        req.EventID,
		Requester:      who,
		Allocations:    allocations,
		IdempotencyKey: key,
		HoldDuration:   time.Duration(req.HoldSeconds) * time.Second,
	})
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toBookingResponse(b))
}

// GetByID godoc
// @Summary 予約を取得
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Param X-Requester header string true "予約者ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /bookings/{id} [get]
func (h *BookingHandler) GetByID(c echo.Context) error {
	b, err := h.ownedBooking(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// ownedBooking は X-Requester の予約者が持つ予約を返す。
// 他人の予約は存在を明かさないよう 404 にする
func (h *BookingHandler) ownedBooking(c echo.Context) (*booking.Booking, error) {
	who, err := requester(c)
	if err != nil {
		return nil, err
	}
	b, err := h.bookingService.GetBooking(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, api.ToHTTPError(err)
	}
	if b.Requester != who {
		return nil, api.ToHTTPError(booking.ErrBookingNotFound)
	}
	return b, nil
}

// ListMine godoc
// @Summary 自分の予約一覧を取得
// @Tags bookings
// @Produce json
// @Param X-Requester header string true "予約者ID"
// @Success 200 {array} BookingResponse
// @Router /bookings [get]
func (h *BookingHandler) ListMine(c echo.Context) error {
	who, err := requester(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	bookings, err := h.bookingService.ListRequesterBookings(c.Request().Context(), who, limit, offset)
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponses(bookings))
}

// ListByEvent godoc
// @Summary イベントの予約一覧を取得
// @Tags bookings
// @Produce json
// @Param id path string true "イベントID"
// @Param status query string false "状態（カンマ区切り）"
// @Success 200 {array} BookingResponse
// @Router /events/{id}/bookings [get]
func (h *BookingHandler) ListByEvent(c echo.Context) error {
	var statuses []booking.Status
	if raw := c.QueryParam("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := booking.Status(strings.TrimSpace(s))
			if !st.IsValid() {
				return api.NewValidationError("不明な予約状態です: " + string(st))
			}
			statuses = append(statuses, st)
		}
	}

	bookings, err := h.bookingService.ListEventBookings(c.Request().Context(), c.Param("id"), statuses)
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponses(bookings))
}

// Cancel godoc
// @Summary 予約を取り消す
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Param X-Requester header string true "予約者ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} api.ErrorResponse "他人の予約"
// @Failure 409 {object} api.ErrorResponse "終了済み"
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c echo.Context) error {
	if _, err := h.ownedBooking(c); err != nil {
		return err
	}
	return h.transition(c, h.bookingService.CancelBooking)
}

// Confirm godoc
// @Summary 予約を確認待ちにする
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Param X-Requester header string true "予約者ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} api.ErrorResponse "他人の予約"
// @Failure 409 {object} api.ErrorResponse "期限切れ、または不正な遷移"
// @Router /bookings/{id}/confirm [post]
func (h *BookingHandler) Confirm(c echo.Context) error {
	if _, err := h.ownedBooking(c); err != nil {
		return err
	}
	return h.transition(c, h.bookingService.ConfirmBooking)
}

// Pay godoc
// @Summary 決済を確定する（主催者）
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 409 {object} api.ErrorResponse "決済済み、または不正な遷移"
// @Router /bookings/{id}/pay [post]
func (h *BookingHandler) Pay(c echo.Context) error {
	return h.transition(c, h.bookingService.ConfirmPayment)
}

func (h *BookingHandler) transition(c echo.Context, fn func(ctx context.Context, id string) (*booking.Booking, error)) error {
	b, err := fn(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}
