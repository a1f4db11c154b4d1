package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-table-reservation/internal/api"
	"github.com/sanosuguru/go-table-reservation/internal/api/middleware"
	"github.com/sanosuguru/go-table-reservation/internal/application"
	"github.com/sanosuguru/go-table-reservation/internal/domain/event"
)

type EventHandler struct {
	eventService EventServiceInterface
}

func NewEventHandler(eventService EventServiceInterface) *EventHandler {
	return &EventHandler{eventService: eventService}
}

type TableRequest struct {
	Number     int     `json:"number" validate:"required,gt=0" example:"1"`
	SeatsTotal int     `json:"seats_total" validate:"required,gt=0" example:"6"`
	Price      int     `json:"price" validate:"gte=0" example:"3000"`
	Shape      string  `json:"shape" validate:"omitempty,oneof=round rect" example:"round"`
	X          float64 `json:"x" example:"120.5"`
	Y          float64 `json:"y" example:"80"`
}

type CreateEventRequest struct {
	Name          string         `json:"name" validate:"required" example:"ジャズナイト"`
	Description   string         `json:"description" example:"生演奏とディナー"`
	Venue         string         `json:"venue" example:"ブルーホール"`
	CoverImageURL string         `json:"cover_image_url" validate:"omitempty,url" example:"https://cdn.example.com/floor.png"`
	StartAt       time.Time      `json:"start_at" validate:"required" example:"2026-12-31T18:00:00+09:00"`
	EndAt         time.Time      `json:"end_at" validate:"required" example:"2026-12-31T21:00:00+09:00"`
	Tables        []TableRequest `json:"tables" validate:"dive"`
}

type TablePatchRequest struct {
	ID          string   `json:"id" validate:"required"`
	Number      *int     `json:"number,omitempty" validate:"omitempty,gt=0"`
	SeatsTotal  *int     `json:"seats_total,omitempty" validate:"omitempty,gt=0"`
	Price       *int     `json:"price,omitempty" validate:"omitempty,gte=0"`
	Shape       *string  `json:"shape,omitempty" validate:"omitempty,oneof=round rect"`
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	IsAvailable *bool    `json:"is_available,omitempty"`
}

// UpdateEventRequest は部分更新。省略したフィールドは変更しない
type UpdateEventRequest struct {
	Name           *string             `json:"name,omitempty"`
	Description    *string             `json:"description,omitempty"`
	Venue          *string             `json:"venue,omitempty"`
	CoverImageURL  *string             `json:"cover_image_url,omitempty"`
	StartAt        *time.Time          `json:"start_at,omitempty"`
	EndAt          *time.Time          `json:"end_at,omitempty"`
	AddTables      []TableRequest      `json:"add_tables,omitempty" validate:"dive"`
	RemoveTableIDs []string            `json:"remove_table_ids,omitempty"`
	UpdateTables   []TablePatchRequest `json:"update_tables,omitempty" validate:"dive"`
}

type TableResponse struct {
	ID             string  `json:"id"`
	Number         int     `json:"number"`
	SeatsTotal     int     `json:"seats_total"`
	SeatsAvailable int     `json:"seats_available"`
	Price          int     `json:"price"`
	IsAvailable    bool    `json:"is_available"`
	Shape          string  `json:"shape"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
}

type EventResponse struct {
	ID            string          `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	OrganizerID   string          `json:"organizer_id"`
	Name          string          `json:"name" example:"ジャズナイト"`
	Description   string          `json:"description"`
	Venue         string          `json:"venue"`
	CoverImageURL string          `json:"cover_image_url,omitempty"`
	StartAt       string          `json:"start_at" example:"2026-12-31T18:00:00+09:00"`
	EndAt         string          `json:"end_at" example:"2026-12-31T21:00:00+09:00"`
	Status        string          `json:"status" example:"draft"`
	PublishedAt   *string         `json:"published_at,omitempty"`
	Tables        []TableResponse `json:"tables"`
	Version       int             `json:"version"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

type AvailabilityResponse struct {
	EventID string         `json:"event_id"`
	Tables  map[string]int `json:"tables"`
}

func toEventResponse(e *event.Event) *EventResponse {
	resp := &EventResponse{
		ID:            e.ID,
		OrganizerID:   e.OrganizerID,
		Name:          e.Name,
		Description:   e.Description,
		Venue:         e.Venue,
		CoverImageURL: e.CoverImageURL,
		StartAt:       e.StartAt.Format(time.RFC3339),
		EndAt:         e.EndAt.Format(time.RFC3339),
		Status:        string(e.Status),
		Tables:        make([]TableResponse, len(e.Tables)),
		Version:       e.Version,
		CreatedAt:     e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     e.UpdatedAt.Format(time.RFC3339),
	}
	if e.PublishedAt != nil {
		s := e.PublishedAt.Format(time.RFC3339)
		resp.PublishedAt = &s
	}
	for i, t := range e.Tables {
		resp.Tables[i] = TableResponse{
			ID:             t.ID,
			Number:         t.Number,
			SeatsTotal:     t.SeatsTotal,
			SeatsAvailable: t.SeatsAvailable,
			Price:          t.Price,
			IsAvailable:    t.IsAvailable,
			Shape:          string(t.Shape),
			X:              t.Position.X,
			Y:              t.Position.Y,
		}
	}
	return resp
}

func toTableSpecs(reqs []TableRequest) []event.TableSpec {
	specs := make([]event.TableSpec, len(reqs))
	for i, r := range reqs {
		specs[i] = event.TableSpec{
			Number:     r.Number,
			SeatsTotal: r.SeatsTotal,
			Price:      r.Price,
			Shape:      event.Shape(r.Shape),
			Position:   event.Position{X: r.X, Y: r.Y},
		}
	}
	return specs
}

func (r *UpdateEventRequest) toPatch() event.Patch {
	p := event.Patch{
		Name:           r.Name,
		Description:    r.Description,
		Venue:          r.Venue,
		CoverImageURL:  r.CoverImageURL,
		StartAt:        r.StartAt,
		EndAt:          r.EndAt,
		AddTables:      toTableSpecs(r.AddTables),
		RemoveTableIDs: r.RemoveTableIDs,
	}
	for _, tp := range r.UpdateTables {
		patch := event.TablePatch{
			ID:          tp.ID,
			Number:      tp.Number,
			SeatsTotal:  tp.SeatsTotal,
			Price:       tp.Price,
			IsAvailable: tp.IsAvailable,
		}
		if tp.Shape != nil {
			shape := event.Shape(*tp.Shape)
			patch.Shape = &shape
		}
		// 座標は両方そろった場合のみ変更とみなす
		if tp.X != nil && tp.Y != nil {
			patch.Position = &event.Position{X: *tp.X, Y: *tp.Y}
		}
		p.UpdateTables = append(p.UpdateTables, patch)
	}
	return p
}

// Create godoc
// @Summary イベントを作成
// @Description 下書き状態のイベントをテーブルごと作成します
// @Tags events
// @Accept json
// @Produce json
// @Param request body CreateEventRequest true "イベント情報"
// @Success 201 {object} EventResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /events [post]
func (h *EventHandler) Create(c echo.Context) error {
	var req CreateEventRequest
	if err := c.Bind(&req); err != nil {
		return api.NewValidationError("リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	e, err := h.eventService.CreateEvent(c.Request().Context(), application.CreateEventInput{
		OrganizerID:   middleware.OrganizerID(c),
		Name:          req.Name,
		Description:   req.Description,
		Venue:         req.Venue,
		CoverImageURL: req.CoverImageURL,
		StartAt:       req.StartAt,
		EndAt:         req.EndAt,
		Tables:        toTableSpecs(req.Tables),
	})
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toEventResponse(e))
}

// GetByID godoc
// @Summary イベントを取得
// @Tags events
// @Produce json
// @Param id path string true "イベントID"
// @Success 200 {object} EventResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /events/{id} [get]
func (h *EventHandler) GetByID(c echo.Context) error {
	e, err := h.eventService.GetEvent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}

// List godoc
// @Summary イベント一覧を取得
// @Tags events
// @Produce json
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} EventResponse
// @Router /events [get]
func (h *EventHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	events, err := h.eventService.ListEvents(c.Request().Context(), limit, offset)
	if err != nil {
		return api.ToHTTPError(err)
	}

	responses := make([]*EventResponse, len(events))
	for i, e := range events {
		responses[i] = toEventResponse(e)
	}
	return c.JSON(http.StatusOK, responses)
}

// Availability godoc
// @Summary テーブル別の空席数を取得
// @Tags events
// @Produce json
// @Param id path string true "イベントID"
// @Success 200 {object} AvailabilityResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /events/{id}/availability [get]
func (h *EventHandler) Availability(c echo.Context) error {
	id := c.Param("id")
	available, err := h.eventService.GetAvailability(c.Request().Context(), id)
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{EventID: id, Tables: available})
}

// Update godoc
// @Summary イベントを部分更新
// @Description 公開中はテーブルの is_available のみ変更できます
// @Tags events
// @Accept json
// @Produce json
// @Param id path string true "イベントID"
// @Param request body UpdateEventRequest true "変更内容"
// @Success 200 {object} EventResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "公開中の構成変更"
// @Router /events/{id} [patch]
func (h *EventHandler) Update(c echo.Context) error {
	var req UpdateEventRequest
	if err := c.Bind(&req); err != nil {
		return api.NewValidationError("リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	e, err := h.eventService.UpdateEvent(c.Request().Context(), c.Param("id"), req.toPatch())
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}

// Publish godoc
// @Summary イベントを公開
// @Tags events
// @Produce json
// @Param id path string true "イベントID"
// @Success 200 {object} EventResponse
// @Failure 409 {object} api.ErrorResponse "公開済み、またはテーブル・カバー画像なし"
// @Router /events/{id}/publish [post]
func (h *EventHandler) Publish(c echo.Context) error {
	e, err := h.eventService.Publish(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}

// Archive godoc
// @Summary イベントをアーカイブ
// @Tags events
// @Produce json
// @Param id path string true "イベントID"
// @Success 200 {object} EventResponse
// @Router /events/{id}/archive [post]
func (h *EventHandler) Archive(c echo.Context) error {
	e, err := h.eventService.Archive(c.Request().Context(), c.Param("id"))
	if err != nil {
		return api.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}
