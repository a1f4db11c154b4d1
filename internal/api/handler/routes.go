package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-table-reservation/internal/api/middleware"
)

// Handlers はルーティングに登録するハンドラー一式
type Handlers struct {
	Health  *HealthHandler
	Event   *EventHandler
	Booking *BookingHandler
	Admin   *AdminHandler
}

// Register はルートを登録する。主催者向けと管理向けの操作はJWTで保護する
func Register(e *echo.Echo, h Handlers, jwtSecret string) {
	e.GET("/health", h.Health.Check)
	e.GET("/ready", h.Health.Ready)

	v1 := e.Group("/api/v1")
	organizer := middleware.JWTAuth(jwtSecret, middleware.RoleOrganizer, middleware.RoleAdmin)
	admin := middleware.JWTAuth(jwtSecret, middleware.RoleAdmin)

	events := v1.Group("/events")
	events.GET("", h.Event.List)
	events.GET("/:id", h.Event.GetByID)
	events.GET("/:id/availability", h.Event.Availability)
	events.POST("", h.Event.Create, organizer)
	events.PATCH("/:id", h.Event.Update, organizer)
	events.POST("/:id/publish", h.Event.Publish, organizer)
	events.POST("/:id/archive", h.Event.Archive, organizer)
	events.GET("/:id/bookings", h.Booking.ListByEvent, organizer)

	bookings := v1.Group("/bookings")
	bookings.POST("", h.Booking.Create)
	bookings.GET("", h.Booking.ListMine)
	bookings.GET("/:id", h.Booking.GetByID)
	bookings.POST("/:id/cancel", h.Booking.Cancel)
	bookings.POST("/:id/confirm", h.Booking.Confirm)
	bookings.POST("/:id/pay", h.Booking.Pay, organizer)

	adm := v1.Group("/admin", admin)
	adm.POST("/reconcile", h.Admin.ReconcileAll)
	adm.POST("/events/:id/reconcile", h.Admin.ReconcileEvent)
}
