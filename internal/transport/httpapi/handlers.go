package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Leganyst/clinic-scheduling/internal/calendar"
	"github.com/Leganyst/clinic-scheduling/internal/model"
	"github.com/Leganyst/clinic-scheduling/internal/service"
)

func uuidParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a uuid", service.ErrValidation, name)
	}
	return id, nil
}

func (h *handlers) dateQuery(c echo.Context) (time.Time, error) {
	raw := c.QueryParam("date")
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: date is required (YYYY-MM-DD)", service.ErrValidation)
	}
	d, err := calendar.ParseDate(raw, h.availability.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	return d, nil
}

func intQuery(c echo.Context, name string) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return n
}

func (h *handlers) getSchedule(c echo.Context) error {
	providerID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	rows, err := h.schedules.GetSchedule(c.Request().Context(), providerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toScheduleResponse(providerID.String(), rows))
}

func (h *handlers) putSchedule(c echo.Context) error {
	providerID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	actor := ActorFrom(c)
	if !actor.CanManageProvider(providerID) {
		return service.ErrForbidden
	}

	var req putScheduleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	week := make([]calendar.DaySchedule, 0, len(req.Days))
	for i, d := range req.Days {
		start, err := calendar.ParseClock(d.StartTime)
		if err != nil {
			return fmt.Errorf("%w: days[%d].start_time: %v", service.ErrValidation, i, err)
		}
		end, err := calendar.ParseClock(d.EndTime)
		if err != nil {
			return fmt.Errorf("%w: days[%d].end_time: %v", service.ErrValidation, i, err)
		}
		week = append(week, calendar.DaySchedule{
			Weekday:      time.Weekday(d.DayOfWeek),
			Start:        start,
			End:          end,
			SlotDuration: time.Duration(d.SlotDurationMinutes) * time.Minute,
		})
	}

	rows, err := h.schedules.SetSchedule(c.Request().Context(), actor.ID, providerID, week)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toScheduleResponse(providerID.String(), rows))
}

func (h *handlers) getAvailability(c echo.Context) error {
	providerID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	date, err := h.dateQuery(c)
	if err != nil {
		return err
	}

	p, err := h.availability.Availability(c.Request().Context(), providerID, date)
	if err != nil {
		return err
	}
	availableOnly, _ := strconv.ParseBool(c.QueryParam("available_only"))
	return c.JSON(http.StatusOK, toProjectionResponse(p, availableOnly))
}

func (h *handlers) book(c echo.Context) error {
	actor := ActorFrom(c)

	var req bookRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	providerID := uuid.MustParse(req.ProviderID)
	patientID := actor.ID
	if req.PatientID != "" {
		patientID = uuid.MustParse(req.PatientID)
	} else if actor.Role != service.RolePatient {
		return fmt.Errorf("%w: patient_id is required", service.ErrValidation)
	}
	if !actor.CanBookFor(patientID) {
		return fmt.Errorf("%w: cannot book for another patient", service.ErrForbidden)
	}

	ctx := c.Request().Context()
	duration := time.Duration(req.DurationMinutes) * time.Minute
	if actor.Role == service.RolePatient {
		// Пациент записывается только в слот сетки; длительность берётся из расписания.
		slot, err := h.gridSlot(ctx, providerID, req.StartTime)
		if err != nil {
			return err
		}
		if req.DurationMinutes != 0 && duration != slot.End.Sub(slot.Start) {
			return fmt.Errorf("%w: duration_minutes must match the slot duration (%d)",
				service.ErrValidation, int(slot.End.Sub(slot.Start)/time.Minute))
		}
		duration = slot.End.Sub(slot.Start)
	} else if req.DurationMinutes == 0 {
		start := req.StartTime.In(h.availability.Location())
		row, err := h.schedules.ScheduleForDay(ctx, providerID, start.Weekday())
		if err != nil {
			return err
		}
		if row != nil {
			duration = row.SlotDurationValue()
		}
	}

	a, err := h.booking.Book(ctx, service.BookingRequest{
		PatientID:  patientID,
		ProviderID: providerID,
		StartTime:  req.StartTime,
		Duration:   duration,
		Reason:     req.Reason,
		ActorID:    actor.ID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toAppointmentResponse(a, h.availability.Location()))
}

// gridSlot ищет слот расписания, начинающийся ровно в start. Занятость не
// проверяется: это делает Book под блокировкой.
func (h *handlers) gridSlot(ctx context.Context, providerID uuid.UUID, start time.Time) (calendar.Slot, error) {
	p, err := h.availability.Availability(ctx, providerID, start.In(h.availability.Location()))
	if err != nil {
		return calendar.Slot{}, err
	}
	for _, s := range p.Slots {
		if s.Start.Equal(start) {
			return s.Slot, nil
		}
	}
	return calendar.Slot{}, fmt.Errorf("%w: start_time is not a slot of the provider's schedule", service.ErrValidation)
}

func (h *handlers) getAppointment(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	a, err := h.booking.Get(c.Request().Context(), ActorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAppointmentResponse(a, h.availability.Location()))
}

func (h *handlers) updateAppointment(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	var req updateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	var upd service.AppointmentUpdate
	if req.ProviderID != nil {
		pid := uuid.MustParse(*req.ProviderID)
		upd.ProviderID = &pid
	}
	if req.StartTime != nil {
		upd.StartTime = req.StartTime
	}
	if req.Status != nil {
		st := model.AppointmentStatus(*req.Status)
		upd.Status = &st
	}

	a, err := h.booking.Update(c.Request().Context(), ActorFrom(c), id, upd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAppointmentResponse(a, h.availability.Location()))
}

func (h *handlers) deleteAppointment(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.booking.Delete(c.Request().Context(), ActorFrom(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) listPatientAppointments(c echo.Context) error {
	patientID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	page, err := h.booking.ListForPatient(
		c.Request().Context(),
		ActorFrom(c),
		patientID,
		intQuery(c, "page"),
		intQuery(c, "page_size"),
	)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, calendar.Page[appointmentResponse]{
		Items:    toAppointmentList(page.Items, h.availability.Location()),
		Page:     page.Page,
		PageSize: page.PageSize,
		HasNext:  page.HasNext,
		HasPrev:  page.HasPrev,
		Total:    page.Total,
	})
}

func (h *handlers) listProviderAppointments(c echo.Context) error {
	providerID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	date, err := h.dateQuery(c)
	if err != nil {
		return err
	}
	items, err := h.booking.ListForProviderDay(c.Request().Context(), ActorFrom(c), providerID, date)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAppointmentList(items, h.availability.Location()))
}
