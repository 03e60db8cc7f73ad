package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/Leganyst/clinic-scheduling/internal/calendar"
	"github.com/Leganyst/clinic-scheduling/internal/db"
	"github.com/Leganyst/clinic-scheduling/internal/model"
	"github.com/Leganyst/clinic-scheduling/internal/propagation"
	"github.com/Leganyst/clinic-scheduling/internal/repository"
)

// Клиника в UTC+3 без перевода часов.
var clinicLoc = time.FixedZone("clinic", 3*60*60)

// 2025-01-06 — понедельник.
var monday = time.Date(2025, 1, 6, 0, 0, 0, 0, clinicLoc)

func at(hour, min int) time.Time {
	return time.Date(2025, 1, 6, hour, min, 0, 0, clinicLoc)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) types() []model.NotificationType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.NotificationType, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Type)
	}
	return out
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}

// recordingPublisher запоминает изменения и, как Propagator, сразу
// инвалидирует кэш.
type recordingPublisher struct {
	mu          sync.Mutex
	changes     []propagation.Change
	invalidator propagation.Invalidator
}

func (r *recordingPublisher) Publish(_ context.Context, c propagation.Change) error {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	inv := r.invalidator
	r.mu.Unlock()
	if inv != nil {
		inv.Invalidate(c)
	}
	return nil
}

func (r *recordingPublisher) all() []propagation.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]propagation.Change(nil), r.changes...)
}

func (r *recordingPublisher) reset() {
	r.mu.Lock()
	r.changes = nil
	r.mu.Unlock()
}

type fixture struct {
	db           *gorm.DB
	schedules    *ScheduleService
	availability *AvailabilityService
	booking      *BookingService
	notifier     *recordingNotifier
	publisher    *recordingPublisher
}

func newFixture(t *testing.T, mode calendar.MatchMode) *fixture {
	t.Helper()

	gdb, err := db.NewInMemory()
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := model.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := zerolog.Nop()
	scheduleRepo := repository.NewGormScheduleRepository(gdb)
	appointmentRepo := repository.NewGormAppointmentRepository(gdb)

	f := &fixture{
		db:        gdb,
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
	}
	f.schedules = NewScheduleService(scheduleRepo, f.publisher, log)
	f.availability = NewAvailabilityService(scheduleRepo, appointmentRepo, AvailabilityOptions{
		Location: clinicLoc,
		Mode:     mode,
	}, log)
	f.booking = NewBookingService(appointmentRepo, f.notifier, f.publisher, BookingOptions{
		Location: clinicLoc,
		Mode:     mode,
	}, log)
	f.publisher.invalidator = f.availability
	return f
}

// mondaySchedule: понедельник 09:00–17:00, слоты по 30 минут.
func (f *fixture) mondaySchedule(t *testing.T, providerID uuid.UUID, slot time.Duration) {
	t.Helper()
	_, err := f.schedules.SetSchedule(context.Background(), uuid.Nil, providerID, []calendar.DaySchedule{{
		Weekday:      time.Monday,
		Start:        calendar.NewClock(9, 0),
		End:          calendar.NewClock(17, 0),
		SlotDuration: slot,
	}})
	if err != nil {
		t.Fatalf("SetSchedule: %v", err)
	}
}

func (f *fixture) book(t *testing.T, patient, provider uuid.UUID, start time.Time, d time.Duration) *model.Appointment {
	t.Helper()
	a, err := f.booking.Book(context.Background(), BookingRequest{
		PatientID:  patient,
		ProviderID: provider,
		StartTime:  start,
		Duration:   d,
	})
	if err != nil {
		t.Fatalf("Book %s: %v", start.Format("15:04"), err)
	}
	return a
}

func unavailable(p *calendar.DayProjection) []string {
	var out []string
	for _, s := range p.Slots {
		if !s.Available {
			out = append(out, s.Time.String())
		}
	}
	return out
}

func staff() Actor { return Actor{ID: uuid.New(), Role: RoleStaff} }
