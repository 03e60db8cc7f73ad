package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Leganyst/clinic-scheduling/internal/cache"
	"github.com/Leganyst/clinic-scheduling/internal/calendar"
	"github.com/Leganyst/clinic-scheduling/internal/model"
	"github.com/Leganyst/clinic-scheduling/internal/propagation"
	"github.com/Leganyst/clinic-scheduling/internal/repository"
)

type AvailabilityOptions struct {
	Location *time.Location
	Mode     calendar.MatchMode
	// nil — без кэша.
	Cache *cache.LRU[calendar.DayKey, *calendar.DayProjection]
	Now   func() time.Time
}

// AvailabilityService строит проекцию доступности провайдера на дату.
type AvailabilityService struct {
	schedules    repository.ScheduleRepository
	appointments repository.AppointmentRepository
	cache        *cache.LRU[calendar.DayKey, *calendar.DayProjection]
	loc          *time.Location
	mode         calendar.MatchMode
	now          func() time.Time
	log          zerolog.Logger

	// Растёт при каждой инвалидации. Проекция, посчитанная на фоне
	// инвалидации, в кэш не кладётся.
	epoch   atomic.Uint64
	cacheMu sync.Mutex
}

func NewAvailabilityService(
	schedules repository.ScheduleRepository,
	appointments repository.AppointmentRepository,
	opts AvailabilityOptions,
	log zerolog.Logger,
) *AvailabilityService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Mode == "" {
		opts.Mode = calendar.MatchOverlap
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AvailabilityService{
		schedules:    schedules,
		appointments: appointments,
		cache:        opts.Cache,
		loc:          opts.Location,
		mode:         opts.Mode,
		now:          opts.Now,
		log:          log,
	}
}

func (s *AvailabilityService) Location() *time.Location { return s.loc }

func (s *AvailabilityService) Mode() calendar.MatchMode { return s.mode }

// Day переносит календарную дату date в пояс клиники.
func (s *AvailabilityService) Day(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// Availability возвращает проекцию на дату: все слоты расписания, занятые
// с Available = false. Нет расписания на этот день — пустой список.
func (s *AvailabilityService) Availability(ctx context.Context, providerID uuid.UUID, date time.Time) (*calendar.DayProjection, error) {
	if providerID == uuid.Nil {
		return nil, validationError("provider_id is required")
	}
	key := calendar.NewDayKey(providerID, s.Day(date))
	if p, ok := s.cache.Get(key); ok {
		return p, nil
	}
	return s.ProjectDay(ctx, key)
}

// ProjectDay строит проекцию заново и обновляет кэш.
func (s *AvailabilityService) ProjectDay(ctx context.Context, key calendar.DayKey) (*calendar.DayProjection, error) {
	day, err := key.Day(s.loc)
	if err != nil {
		return nil, validationError("%v", err)
	}

	epoch := s.epoch.Load()

	row, err := s.schedules.GetForWeekday(ctx, key.ProviderID, int(day.Weekday()))
	if err != nil {
		return nil, storageError("get schedule for weekday", err)
	}

	proj := &calendar.DayProjection{
		Key:         key,
		Mode:        s.mode,
		Slots:       []calendar.SlotAvailability{},
		GeneratedAt: s.now().UTC(),
	}

	if row != nil {
		slots := calendar.GenerateSlots(row.DaySchedule(), day)

		window := calendar.DayWindow(day)
		appts, err := s.appointments.ListByProviderRange(ctx, key.ProviderID, window.Start, window.End, true)
		if err != nil {
			return nil, storageError("list appointments", err)
		}

		proj.Slots = calendar.Project(slots, toBookings(appts), s.mode)
	}

	s.cacheMu.Lock()
	if s.epoch.Load() == epoch {
		s.cache.Add(key, proj)
	}
	s.cacheMu.Unlock()
	return proj, nil
}

// Invalidate сбрасывает кэш для ключей, затронутых изменением.
func (s *AvailabilityService) Invalidate(c propagation.Change) {
	s.cacheMu.Lock()
	s.epoch.Add(1)
	n := s.cache.RemoveFunc(c.Matches)
	s.cacheMu.Unlock()
	if n > 0 {
		s.log.Debug().Str("provider_id", c.ProviderID.String()).Int("keys", n).Msg("projection cache invalidated")
	}
}

func toBookings(appts []model.Appointment) []calendar.Booking {
	out := make([]calendar.Booking, 0, len(appts))
	for _, a := range appts {
		out = append(out, calendar.Booking{
			Start:  a.StartTime,
			End:    a.EndTime,
			Active: a.Status.Active(),
		})
	}
	return out
}
