package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Leganyst/clinic-scheduling/internal/calendar"
	"github.com/Leganyst/clinic-scheduling/internal/model"
	"github.com/Leganyst/clinic-scheduling/internal/propagation"
	"github.com/Leganyst/clinic-scheduling/internal/repository"
)

// BookingRequest — запрос пациента (или персонала от его имени) на запись.
type BookingRequest struct {
	PatientID  uuid.UUID
	ProviderID uuid.UUID
	StartTime  time.Time
	Duration   time.Duration
	Reason     string
	// Кто создаёт запись; для аудита.
	ActorID uuid.UUID
}

// AppointmentUpdate — правка записи персоналом. nil — поле не меняется.
type AppointmentUpdate struct {
	ProviderID *uuid.UUID
	StartTime  *time.Time
	Status     *model.AppointmentStatus
}

type BookingOptions struct {
	Location *time.Location
	Mode     calendar.MatchMode
}

type BookingService struct {
	repo      repository.AppointmentRepository
	notifier  Notifier
	publisher ChangePublisher
	loc       *time.Location
	guard     repository.SlotGuard
	log       zerolog.Logger
}

func NewBookingService(
	repo repository.AppointmentRepository,
	notifier Notifier,
	publisher ChangePublisher,
	opts BookingOptions,
	log zerolog.Logger,
) *BookingService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &BookingService{
		repo:      repo,
		notifier:  notifier,
		publisher: publisher,
		loc:       opts.Location,
		guard:     repository.SlotGuard{Overlap: opts.Mode != calendar.MatchExact},
		log:       log,
	}
}

// Book создаёт запись в статусе pending. Проверки по порядку:
//   - у пациента нет активной записи;
//   - интервал корректен (длительность > 0);
//   - слот провайдера свободен.
//
// Вставка условная и идёт одной транзакцией, поэтому из конкурирующих
// запросов на один слот проходит ровно один.
func (s *BookingService) Book(ctx context.Context, req BookingRequest) (*model.Appointment, error) {
	if req.PatientID == uuid.Nil || req.ProviderID == uuid.Nil {
		return nil, validationError("patient_id and provider_id are required")
	}

	active, err := s.repo.FindActiveByPatient(ctx, req.PatientID)
	if err != nil {
		return nil, storageError("find active appointment", err)
	}
	if active != nil {
		return nil, ErrActiveAppointmentExists
	}

	tr, err := calendar.NewTimeRange(req.StartTime, req.Duration)
	if err != nil {
		return nil, ErrInvalidTimeRange
	}

	a := &model.Appointment{
		PatientID:  req.PatientID,
		ProviderID: req.ProviderID,
		StartTime:  tr.Start,
		EndTime:    tr.End,
		Status:     model.AppointmentStatusPending,
		Reason:     strings.TrimSpace(req.Reason),
	}

	ev := &model.Event{
		EventType:  model.EventTypeAppointmentCreated,
		ProviderID: &a.ProviderID,
		Details:    "start " + tr.Start.UTC().Format(time.RFC3339),
	}
	if req.ActorID != uuid.Nil {
		ev.ActorID = &req.ActorID
	}

	if err := s.repo.CreateChecked(ctx, a, s.guard, ev); err != nil {
		return nil, s.mapWriteError("create appointment", err)
	}

	s.log.Info().
		Str("appointment_id", a.ID.String()).
		Str("patient_id", a.PatientID.String()).
		Str("provider_id", a.ProviderID.String()).
		Time("start", a.StartTime).
		Msg("appointment booked")

	s.publish(ctx, s.change(a))
	return a, nil
}

func (s *BookingService) mapWriteError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrPatientBusy):
		return ErrActiveAppointmentExists
	case errors.Is(err, repository.ErrSlotOccupied):
		return ErrSlotUnavailable
	case errors.Is(err, repository.ErrStaleAppointment):
		return fmt.Errorf("%w: appointment changed concurrently, reload and retry", ErrInvalidTransition)
	case isNotFound(err):
		return ErrAppointmentNotFound
	default:
		return storageError(op, err)
	}
}

// allowedTransitions — куда можно перейти из активного статуса.
var allowedTransitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusPending: {
		model.AppointmentStatusPending,
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusCompleted,
	},
	model.AppointmentStatusConfirmed: {
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusCompleted,
	},
}

func canTransition(from, to model.AppointmentStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Update меняет провайдера, время и/или статус записи. Длительность
// сохраняется: новый end = новый start + исходная длительность.
func (s *BookingService) Update(ctx context.Context, actor Actor, id uuid.UUID, upd AppointmentUpdate) (*model.Appointment, error) {
	if err := ValidateActor(actor); err != nil {
		return nil, err
	}
	if !actor.CanManageAppointments() {
		return nil, fmt.Errorf("%w: role %s cannot modify appointments", ErrForbidden, actor.Role)
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, validationError("unknown status %q", *upd.Status)
	}
	if upd.ProviderID != nil && *upd.ProviderID == uuid.Nil {
		return nil, validationError("provider_id must not be empty")
	}
	if upd.StartTime != nil && upd.StartTime.IsZero() {
		return nil, validationError("start_time must not be empty")
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAppointmentNotFound
		}
		return nil, storageError("get appointment", err)
	}
	if !actor.CanManageProvider(current.ProviderID) {
		return nil, fmt.Errorf("%w: appointment belongs to another provider", ErrForbidden)
	}
	if current.Status.Terminal() {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, current.Status)
	}

	next := *current
	if upd.ProviderID != nil {
		next.ProviderID = *upd.ProviderID
	}
	if upd.StartTime != nil {
		next.StartTime = upd.StartTime.UTC()
		next.EndTime = next.StartTime.Add(current.Duration())
	}
	if upd.Status != nil {
		if !canTransition(current.Status, *upd.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, *upd.Status)
		}
		next.Status = *upd.Status
	}

	timeChanged := !next.StartTime.Equal(current.StartTime)
	providerChanged := next.ProviderID != current.ProviderID
	statusChanged := next.Status != current.Status
	if !timeChanged && !providerChanged && !statusChanged {
		return current, nil
	}

	ev := &model.Event{
		EventType:  model.EventTypeAppointmentUpdated,
		ActorID:    &actor.ID,
		ProviderID: &next.ProviderID,
		Details:    describeUpdate(current, &next),
	}
	if next.Status == model.AppointmentStatusCancelled {
		ev.EventType = model.EventTypeAppointmentCancelled
	}

	recheck := next.Status.Active() && (timeChanged || providerChanged)
	if err := s.repo.UpdateChecked(ctx, current, &next, recheck, s.guard, ev); err != nil {
		return nil, s.mapWriteError("update appointment", err)
	}

	s.log.Info().
		Str("appointment_id", next.ID.String()).
		Str("actor_id", actor.ID.String()).
		Str("status", string(next.Status)).
		Bool("rescheduled", timeChanged).
		Bool("reassigned", providerChanged).
		Msg("appointment updated")

	s.notifyPatient(ctx, current, &next)

	s.publish(ctx, s.change(current))
	if timeChanged || providerChanged {
		s.publish(ctx, s.change(&next))
	}

	return &next, nil
}

func describeUpdate(before, after *model.Appointment) string {
	var parts []string
	if before.Status != after.Status {
		parts = append(parts, fmt.Sprintf("status %s->%s", before.Status, after.Status))
	}
	if !before.StartTime.Equal(after.StartTime) {
		parts = append(parts, fmt.Sprintf("start %s->%s",
			before.StartTime.UTC().Format(time.RFC3339), after.StartTime.UTC().Format(time.RFC3339)))
	}
	if before.ProviderID != after.ProviderID {
		parts = append(parts, fmt.Sprintf("provider %s->%s", before.ProviderID, after.ProviderID))
	}
	return strings.Join(parts, "; ")
}

// notifyPatient: подтверждение, отмена, перенос (если запись не отменена).
// Ошибка уведомления не откатывает уже сохранённую правку.
func (s *BookingService) notifyPatient(ctx context.Context, before, after *model.Appointment) {
	when := calendar.FormatRangeForUser(calendar.TimeRange{Start: after.StartTime, End: after.EndTime}, s.loc)

	var out []Notification
	if after.Status != before.Status {
		switch after.Status {
		case model.AppointmentStatusConfirmed:
			out = append(out, Notification{
				Title:   "Appointment confirmed",
				Message: "Your appointment on " + when + " has been confirmed.",
				Type:    model.NotificationTypeAppointmentConfirmed,
			})
		case model.AppointmentStatusCancelled:
			out = append(out, Notification{
				Title:   "Appointment cancelled",
				Message: "Your appointment on " + when + " has been cancelled.",
				Type:    model.NotificationTypeAppointmentCancelled,
			})
		}
	}
	if !after.StartTime.Equal(before.StartTime) && after.Status != model.AppointmentStatusCancelled {
		out = append(out, Notification{
			Title:   "Appointment rescheduled",
			Message: "Your appointment has been moved to " + when + ".",
			Type:    model.NotificationTypeAppointmentRescheduled,
		})
	}

	for _, n := range out {
		n.UserID = after.PatientID
		n.AppointmentID = after.ID
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.log.Error().Err(err).
				Str("appointment_id", after.ID.String()).
				Str("type", string(n.Type)).
				Msg("notify patient")
		}
	}
}

// Delete удаляет запись. Только администратор.
func (s *BookingService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	if err := ValidateActor(actor); err != nil {
		return err
	}
	if actor.Role != RoleAdmin {
		return fmt.Errorf("%w: only admin can delete appointments", ErrForbidden)
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return ErrAppointmentNotFound
		}
		return storageError("get appointment", err)
	}

	ev := &model.Event{
		EventType:     model.EventTypeAppointmentDeleted,
		ActorID:       &actor.ID,
		AppointmentID: &current.ID,
		ProviderID:    &current.ProviderID,
		Details:       "status " + string(current.Status),
	}
	if err := s.repo.Delete(ctx, id, ev); err != nil {
		return s.mapWriteError("delete appointment", err)
	}

	s.log.Info().Str("appointment_id", id.String()).Str("actor_id", actor.ID.String()).Msg("appointment deleted")
	s.publish(ctx, s.change(current))
	return nil
}

// Get возвращает запись, если актору можно её видеть.
func (s *BookingService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*model.Appointment, error) {
	if err := ValidateActor(actor); err != nil {
		return nil, err
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAppointmentNotFound
		}
		return nil, storageError("get appointment", err)
	}
	if !actor.CanView(a.PatientID, a.ProviderID) {
		return nil, ErrForbidden
	}
	return a, nil
}

// ListForPatient — история записей пациента, новые сверху.
func (s *BookingService) ListForPatient(
	ctx context.Context,
	actor Actor,
	patientID uuid.UUID,
	page, pageSize int,
) (calendar.Page[model.Appointment], error) {
	if err := ValidateActor(actor); err != nil {
		return calendar.Page[model.Appointment]{}, err
	}
	if actor.Role == RolePatient && actor.ID != patientID {
		return calendar.Page[model.Appointment]{}, ErrForbidden
	}

	limit, offset, page := calendar.PageBounds(page, pageSize)
	items, total, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return calendar.Page[model.Appointment]{}, storageError("list patient appointments", err)
	}
	return calendar.NewPage(items, page, limit, int(total)), nil
}

// ListForProviderDay — все записи провайдера на дату клиники, включая неактивные.
func (s *BookingService) ListForProviderDay(
	ctx context.Context,
	actor Actor,
	providerID uuid.UUID,
	date time.Time,
) ([]model.Appointment, error) {
	if err := ValidateActor(actor); err != nil {
		return nil, err
	}
	if !actor.CanManageProvider(providerID) {
		return nil, ErrForbidden
	}

	y, m, d := date.Date()
	window := calendar.DayWindow(time.Date(y, m, d, 0, 0, 0, 0, s.loc))
	items, err := s.repo.ListByProviderRange(ctx, providerID, window.Start, window.End, false)
	if err != nil {
		return nil, storageError("list provider appointments", err)
	}
	return items, nil
}

func (s *BookingService) change(a *model.Appointment) propagation.Change {
	return propagation.RangeChange(a.ProviderID, a.StartTime, a.EndTime, s.loc)
}

// publish не возвращает ошибку: запись уже сохранена, а локальная
// инвалидация выполняется до обращения к мосту.
func (s *BookingService) publish(ctx context.Context, c propagation.Change) {
	if err := s.publisher.Publish(ctx, c); err != nil {
		s.log.Warn().Err(err).Str("provider_id", c.ProviderID.String()).Msg("publish appointment change")
	}
}
