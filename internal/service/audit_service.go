package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Leganyst/clinic-scheduling/internal/model"
	"github.com/Leganyst/clinic-scheduling/internal/repository"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 500
)

// AuditService отдаёт журнал событий и outbox уведомлений.
type AuditService struct {
	appointments  repository.AppointmentRepository
	events        repository.EventRepository
	notifications repository.NotificationRepository
	log           zerolog.Logger
}

func NewAuditService(
	appointments repository.AppointmentRepository,
	events repository.EventRepository,
	notifications repository.NotificationRepository,
	log zerolog.Logger,
) *AuditService {
	return &AuditService{
		appointments:  appointments,
		events:        events,
		notifications: notifications,
		log:           log,
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultFeedLimit
	case limit > maxFeedLimit:
		return maxFeedLimit
	}
	return limit
}

// AppointmentHistory — события записи в хронологическом порядке.
// Видна тем же, кому видна сама запись.
func (s *AuditService) AppointmentHistory(ctx context.Context, actor Actor, appointmentID uuid.UUID) ([]model.Event, error) {
	if err := ValidateActor(actor); err != nil {
		return nil, err
	}

	a, err := s.appointments.GetByID(ctx, appointmentID)
	switch {
	case isNotFound(err):
		// Удалённая запись остаётся в журнале; её историю видит только персонал.
		if actor.Role != RoleStaff && actor.Role != RoleAdmin {
			return nil, ErrAppointmentNotFound
		}
	case err != nil:
		return nil, storageError("get appointment", err)
	case !actor.CanView(a.PatientID, a.ProviderID):
		return nil, ErrForbidden
	}

	events, err := s.events.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, storageError("list appointment events", err)
	}
	if a == nil && len(events) == 0 {
		return nil, ErrAppointmentNotFound
	}
	return events, nil
}

// ProviderEvents — последние события по провайдеру (записи и расписание).
func (s *AuditService) ProviderEvents(ctx context.Context, actor Actor, providerID uuid.UUID, limit int) ([]model.Event, error) {
	if err := ValidateActor(actor); err != nil {
		return nil, err
	}
	if !actor.CanManageProvider(providerID) {
		return nil, ErrForbidden
	}
	events, err := s.events.ListByProvider(ctx, providerID, clampLimit(limit))
	if err != nil {
		return nil, storageError("list provider events", err)
	}
	return events, nil
}

// UserNotifications — уведомления пользователя, новые сверху.
func (s *AuditService) UserNotifications(ctx context.Context, actor Actor, userID uuid.UUID, limit int) ([]model.Notification, error) {
	if err := ValidateActor(actor); err != nil {
		return nil, err
	}
	if actor.ID != userID && actor.Role != RoleStaff && actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	items, err := s.notifications.ListByUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, storageError("list notifications", err)
	}
	return items, nil
}

// PendingNotifications — ещё не доставленные уведомления, старые сверху.
// Читает внешний сервис доставки.
func (s *AuditService) PendingNotifications(ctx context.Context, actor Actor, limit int) ([]model.Notification, error) {
	if err := ValidateActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: only admin can read the outbox", ErrForbidden)
	}
	items, err := s.notifications.ListPending(ctx, clampLimit(limit))
	if err != nil {
		return nil, storageError("list pending notifications", err)
	}
	return items, nil
}

// MarkNotificationDelivered отмечает доставку уведомления.
func (s *AuditService) MarkNotificationDelivered(ctx context.Context, actor Actor, id uuid.UUID) error {
	if err := ValidateActor(actor); err != nil {
		return err
	}
	if actor.Role != RoleAdmin {
		return fmt.Errorf("%w: only admin can acknowledge the outbox", ErrForbidden)
	}
	if err := s.notifications.MarkDelivered(ctx, id, time.Now().UTC()); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: notification", ErrNotFound)
		}
		return storageError("mark notification delivered", err)
	}
	s.log.Debug().Str("notification_id", id.String()).Msg("notification delivered")
	return nil
}
