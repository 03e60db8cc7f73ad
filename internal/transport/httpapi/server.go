package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/Leganyst/clinic-scheduling/internal/propagation"
	"github.com/Leganyst/clinic-scheduling/internal/service"
)

// WatchSource — подписка на перепроекции (реализует propagation.Propagator).
type WatchSource interface {
	Watch(ctx context.Context, providerID uuid.UUID, date time.Time) (*propagation.Watcher, error)
}

type Deps struct {
	Schedules    *service.ScheduleService
	Availability *service.AvailabilityService
	Booking      *service.BookingService
	Audit        *service.AuditService
	Watch        WatchSource
	Auth         AuthOptions
	Logger       zerolog.Logger
}

type handlers struct {
	schedules    *service.ScheduleService
	availability *service.AvailabilityService
	booking      *service.BookingService
	audit        *service.AuditService
	watch        WatchSource
	log          zerolog.Logger
}

// NewServer собирает echo с маршрутами API.
func NewServer(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = ErrorHandler(d.Logger)

	e.Use(middleware.RequestID())
	e.Use(RequestLogger(d.Logger))
	e.Use(middleware.Recover())

	h := &handlers{
		schedules:    d.Schedules,
		availability: d.Availability,
		booking:      d.Booking,
		audit:        d.Audit,
		watch:        d.Watch,
		log:          d.Logger,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api/v1", Authenticate(d.Auth))

	manage := RequireRole(service.RoleProvider, service.RoleStaff)

	api.GET("/providers/:id/schedule", h.getSchedule)
	api.PUT("/providers/:id/schedule", h.putSchedule, manage)
	api.GET("/providers/:id/availability", h.getAvailability)
	api.GET("/providers/:id/availability/watch", h.watchAvailability)
	api.GET("/providers/:id/appointments", h.listProviderAppointments, manage)

	api.POST("/appointments", h.book, RequireRole(service.RolePatient, service.RoleStaff))
	api.GET("/appointments/:id", h.getAppointment)
	api.PATCH("/appointments/:id", h.updateAppointment, manage)
	api.DELETE("/appointments/:id", h.deleteAppointment, RequireRole(service.RoleAdmin))

	api.GET("/patients/:id/appointments", h.listPatientAppointments)

	api.GET("/appointments/:id/events", h.appointmentHistory)
	api.GET("/providers/:id/events", h.providerEvents, manage)
	api.GET("/users/:id/notifications", h.userNotifications)
	api.GET("/outbox", h.pendingNotifications, RequireRole(service.RoleAdmin))
	api.POST("/outbox/:id/delivered", h.markDelivered, RequireRole(service.RoleAdmin))

	return e
}
