package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/Leganyst/clinic-scheduling/internal/calendar"
	"github.com/Leganyst/clinic-scheduling/internal/model"
	"github.com/Leganyst/clinic-scheduling/internal/propagation"
	"github.com/Leganyst/clinic-scheduling/internal/repository"
)

type ScheduleService struct {
	repo      repository.ScheduleRepository
	publisher ChangePublisher
	log       zerolog.Logger
}

func NewScheduleService(repo repository.ScheduleRepository, publisher ChangePublisher, log zerolog.Logger) *ScheduleService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &ScheduleService{repo: repo, publisher: publisher, log: log}
}

// GetSchedule возвращает недельное расписание провайдера по дням недели.
func (s *ScheduleService) GetSchedule(ctx context.Context, providerID uuid.UUID) ([]model.ProviderSchedule, error) {
	if providerID == uuid.Nil {
		return nil, validationError("provider_id is required")
	}
	rows, err := s.repo.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, storageError("list schedule", err)
	}
	return rows, nil
}

// ScheduleForDay возвращает строку на день недели; отсутствие строки — не ошибка.
func (s *ScheduleService) ScheduleForDay(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) (*model.ProviderSchedule, error) {
	row, err := s.repo.GetForWeekday(ctx, providerID, int(weekday))
	if err != nil {
		return nil, storageError("get schedule for weekday", err)
	}
	return row, nil
}

// validateWeek проверяет набор строк целиком до записи.
func validateWeek(rows []calendar.DaySchedule) error {
	seen := make(map[time.Weekday]struct{}, len(rows))
	var problems []string

	for i, r := range rows {
		switch {
		case r.Weekday < time.Sunday || r.Weekday > time.Saturday:
			problems = append(problems, fmt.Sprintf("row %d: day_of_week %d out of range 0-6", i, int(r.Weekday)))
		case !r.Start.Valid() || !r.End.Valid():
			problems = append(problems, fmt.Sprintf("row %d: time of day out of range", i))
		case r.Start >= r.End:
			problems = append(problems, fmt.Sprintf("row %d: start_time %s must be before end_time %s", i, r.Start, r.End))
		case r.SlotDuration <= 0:
			problems = append(problems, fmt.Sprintf("row %d: slot_duration must be positive", i))
		case r.SlotDuration%time.Minute != 0:
			problems = append(problems, fmt.Sprintf("row %d: slot_duration must be whole minutes", i))
		}

		if _, dup := seen[r.Weekday]; dup {
			problems = append(problems, fmt.Sprintf("row %d: duplicate day_of_week %d", i, int(r.Weekday)))
		}
		seen[r.Weekday] = struct{}{}
	}

	if len(problems) > 0 {
		return validationError("%s", strings.Join(problems, "; "))
	}
	return nil
}

// SetSchedule целиком заменяет недельное расписание. При ошибке валидации
// ничего не пишется. После замены все наблюдаемые даты провайдера
// перепроецируются.
func (s *ScheduleService) SetSchedule(
	ctx context.Context,
	actorID uuid.UUID,
	providerID uuid.UUID,
	week []calendar.DaySchedule,
) ([]model.ProviderSchedule, error) {
	if providerID == uuid.Nil {
		return nil, validationError("provider_id is required")
	}
	if err := validateWeek(week); err != nil {
		return nil, err
	}

	rows := make([]model.ProviderSchedule, 0, len(week))
	for _, d := range week {
		rows = append(rows, model.ProviderSchedule{
			ProviderID:   providerID,
			DayOfWeek:    int(d.Weekday),
			StartTime:    datatypes.Time(d.Start),
			EndTime:      datatypes.Time(d.End),
			SlotDuration: int(d.SlotDuration / time.Minute),
		})
	}

	ev := &model.Event{
		EventType:  model.EventTypeScheduleReplaced,
		ProviderID: &providerID,
		Details:    fmt.Sprintf("%d day(s)", len(rows)),
	}
	if actorID != uuid.Nil {
		ev.ActorID = &actorID
	}

	if err := s.repo.Replace(ctx, providerID, rows, ev); err != nil {
		return nil, storageError("replace schedule", err)
	}

	s.log.Info().
		Str("provider_id", providerID.String()).
		Int("days", len(rows)).
		Msg("schedule replaced")

	if err := s.publisher.Publish(ctx, propagation.ProviderChange(providerID)); err != nil {
		s.log.Warn().Err(err).Str("provider_id", providerID.String()).Msg("publish schedule change")
	}

	return s.GetSchedule(ctx, providerID)
}
