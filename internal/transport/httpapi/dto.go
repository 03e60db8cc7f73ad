package httpapi

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/clinic-scheduling/internal/calendar"
	"github.com/Leganyst/clinic-scheduling/internal/model"
)

type scheduleDay struct {
	DayOfWeek           int    `json:"day_of_week" validate:"min=0,max=6"`
	StartTime           string `json:"start_time" validate:"required"`
	EndTime             string `json:"end_time" validate:"required"`
	SlotDurationMinutes int    `json:"slot_duration_minutes"`
}

type putScheduleRequest struct {
	Days []scheduleDay `json:"days" validate:"dive"`
}

type scheduleResponse struct {
	ProviderID string        `json:"provider_id"`
	Days       []scheduleDay `json:"days"`
}

func toScheduleResponse(providerID string, rows []model.ProviderSchedule) scheduleResponse {
	days := make([]scheduleDay, 0, len(rows))
	for _, r := range rows {
		d := r.DaySchedule()
		days = append(days, scheduleDay{
			DayOfWeek:           r.DayOfWeek,
			StartTime:           d.Start.String(),
			EndTime:             d.End.String(),
			SlotDurationMinutes: r.SlotDuration,
		})
	}
	return scheduleResponse{ProviderID: providerID, Days: days}
}

type slotResponse struct {
	Time      string    `json:"time"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

type projectionResponse struct {
	ProviderID  string         `json:"provider_id"`
	Date        string         `json:"date"`
	Mode        string         `json:"match_mode"`
	Slots       []slotResponse `json:"slots"`
	GeneratedAt time.Time      `json:"generated_at"`
}

func toProjectionResponse(p *calendar.DayProjection, availableOnly bool) projectionResponse {
	slots := make([]slotResponse, 0, len(p.Slots))
	for _, s := range p.Slots {
		if availableOnly && !s.Available {
			continue
		}
		slots = append(slots, slotResponse{
			Time:      s.Time.String(),
			Start:     s.Start,
			End:       s.End,
			Available: s.Available,
		})
	}
	return projectionResponse{
		ProviderID:  p.Key.ProviderID.String(),
		Date:        p.Key.Date,
		Mode:        string(p.Mode),
		Slots:       slots,
		GeneratedAt: p.GeneratedAt,
	}
}

type bookRequest struct {
	// Пустой для пациента — записывает себя.
	PatientID  string    `json:"patient_id" validate:"omitempty,uuid"`
	ProviderID string    `json:"provider_id" validate:"required,uuid"`
	StartTime  time.Time `json:"start_time" validate:"required"`
	// Пустой — длительность слота из расписания провайдера.
	DurationMinutes int    `json:"duration_minutes"`
	Reason          string `json:"reason" validate:"max=2000"`
}

type updateRequest struct {
	ProviderID *string    `json:"provider_id" validate:"omitempty,uuid"`
	StartTime  *time.Time `json:"start_time"`
	Status     *string    `json:"status" validate:"omitempty,oneof=pending confirmed completed cancelled"`
}

type appointmentResponse struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patient_id"`
	ProviderID string    `json:"provider_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *model.Appointment, loc *time.Location) appointmentResponse {
	return appointmentResponse{
		ID:         a.ID.String(),
		PatientID:  a.PatientID.String(),
		ProviderID: a.ProviderID.String(),
		StartTime:  a.StartTime.In(loc),
		EndTime:    a.EndTime.In(loc),
		Status:     string(a.Status),
		Reason:     a.Reason,
		CreatedAt:  a.CreatedAt.UTC(),
		UpdatedAt:  a.UpdatedAt.UTC(),
	}
}

func toAppointmentList(items []model.Appointment, loc *time.Location) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(items))
	for i := range items {
		out = append(out, toAppointmentResponse(&items[i], loc))
	}
	return out
}

type eventResponse struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	ActorID       *string   `json:"actor_id,omitempty"`
	AppointmentID *string   `json:"appointment_id,omitempty"`
	ProviderID    *string   `json:"provider_id,omitempty"`
	Details       string    `json:"details,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func optionalID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func toEventList(items []model.Event) []eventResponse {
	out := make([]eventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, eventResponse{
			ID:            e.ID.String(),
			Type:          string(e.EventType),
			ActorID:       optionalID(e.ActorID),
			AppointmentID: optionalID(e.AppointmentID),
			ProviderID:    optionalID(e.ProviderID),
			Details:       e.Details,
			CreatedAt:     e.CreatedAt.UTC(),
		})
	}
	return out
}

type notificationResponse struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Meta        json.RawMessage `json:"meta,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
}

func toNotificationList(items []model.Notification) []notificationResponse {
	out := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, notificationResponse{
			ID:          n.ID.String(),
			UserID:      n.UserID.String(),
			Type:        string(n.Type),
			Title:       n.Title,
			Message:     n.Message,
			Meta:        json.RawMessage(n.Meta),
			CreatedAt:   n.CreatedAt.UTC(),
			DeliveredAt: n.DeliveredAt,
		})
	}
	return out
}
