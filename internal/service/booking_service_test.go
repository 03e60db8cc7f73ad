package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Leganyst/clinic-scheduling/internal/calendar"
	"github.com/Leganyst/clinic-scheduling/internal/model"
	"github.com/Leganyst/clinic-scheduling/internal/repository"
)

func TestBook_CreatesPendingWithFrozenEnd(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	patient, provider := uuid.New(), uuid.New()

	a, err := f.booking.Book(context.Background(), BookingRequest{
		PatientID:  patient,
		ProviderID: provider,
		StartTime:  at(10, 30),
		Duration:   30 * time.Minute,
		Reason:     "  checkup ",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if a.Status != model.AppointmentStatusPending {
		t.Fatalf("expected pending, got %s", a.Status)
	}
	if !a.EndTime.Equal(at(11, 0)) {
		t.Fatalf("expected end 11:00, got %v", a.EndTime.In(clinicLoc))
	}
	if a.Reason != "checkup" {
		t.Fatalf("expected trimmed reason, got %q", a.Reason)
	}

	var events []model.Event
	if err := f.db.Where("appointment_id = ?", a.ID).Find(&events).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 1 || events[0].EventType != model.EventTypeAppointmentCreated {
		t.Fatalf("expected created event, got %+v", events)
	}

	changes := f.publisher.all()
	if len(changes) == 0 || !slices.Contains(changes[len(changes)-1].Dates, "2025-01-06") {
		t.Fatalf("expected change for 2025-01-06, got %+v", changes)
	}
}

func TestBook_ActivePatientCheckedFirst(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	ctx := context.Background()
	patient, provider := uuid.New(), uuid.New()
	f.book(t, patient, provider, at(10, 30), 30*time.Minute)

	_, err := f.booking.Book(ctx, BookingRequest{
		PatientID:  patient,
		ProviderID: uuid.New(),
		StartTime:  at(12, 0),
		Duration:   30 * time.Minute,
	})
	if !errors.Is(err, ErrActiveAppointmentExists) || !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("expected ErrActiveAppointmentExists, got %v", err)
	}

	// Некорректный интервал у занятого пациента всё равно даёт ошибку пациента.
	_, err = f.booking.Book(ctx, BookingRequest{
		PatientID:  patient,
		ProviderID: provider,
		StartTime:  at(12, 0),
		Duration:   0,
	})
	if !errors.Is(err, ErrActiveAppointmentExists) {
		t.Fatalf("expected patient precondition before range check, got %v", err)
	}
}

func TestBook_InvalidRange(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	ctx := context.Background()

	for _, d := range []time.Duration{0, -30 * time.Minute} {
		_, err := f.booking.Book(ctx, BookingRequest{
			PatientID:  uuid.New(),
			ProviderID: uuid.New(),
			StartTime:  at(10, 0),
			Duration:   d,
		})
		if !errors.Is(err, ErrInvalidTimeRange) || !errors.Is(err, ErrValidation) {
			t.Fatalf("duration %v: expected ErrInvalidTimeRange, got %v", d, err)
		}
	}

	var n int64
	f.db.Model(&model.Appointment{}).Count(&n)
	if n != 0 {
		t.Fatalf("failed bookings must leave no rows, found %d", n)
	}
}

func TestBook_MissingIDs(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	_, err := f.booking.Book(context.Background(), BookingRequest{StartTime: at(10, 0), Duration: time.Minute})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestBook_SlotTaken(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	ctx := context.Background()
	provider := uuid.New()
	f.book(t, uuid.New(), provider, at(10, 30), 30*time.Minute)

	_, err := f.booking.Book(ctx, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: provider,
		StartTime:  at(10, 30),
		Duration:   30 * time.Minute,
	})
	if !errors.Is(err, ErrSlotUnavailable) || !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}

	// Пересечение со сдвигом тоже отклоняется в режиме overlap.
	_, err = f.booking.Book(ctx, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: provider,
		StartTime:  at(10, 45),
		Duration:   30 * time.Minute,
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected overlapping booking to fail, got %v", err)
	}
}

func TestBook_AfterCancelPatientCanBookAgain(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	ctx := context.Background()
	patient, provider := uuid.New(), uuid.New()
	a := f.book(t, patient, provider, at(10, 30), 30*time.Minute)

	cancelled := model.AppointmentStatusCancelled
	if _, err := f.booking.Update(ctx, staff(), a.ID, AppointmentUpdate{Status: &cancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	again := f.book(t, patient, provider, at(10, 30), 30*time.Minute)
	if again.ID == a.ID {
		t.Fatalf("expected a new appointment")
	}
}

func TestBook_ConcurrentSameSlotExactlyOneWins(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	provider := uuid.New()
	const n = 12

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		loses   int
		unknown []error
	)
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.booking.Book(context.Background(), BookingRequest{
				PatientID:  uuid.New(),
				ProviderID: provider,
				StartTime:  at(10, 30),
				Duration:   30 * time.Minute,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrSlotUnavailable):
				loses++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(unknown) > 0 {
		t.Fatalf("unexpected errors: %v", unknown)
	}
	if wins != 1 || loses != n-1 {
		t.Fatalf("expected exactly one winner, got wins=%d loses=%d", wins, loses)
	}

	var active int64
	f.db.Model(&model.Appointment{}).Where("provider_id = ? AND status IN ?", provider, model.ActiveStatuses).Count(&active)
	if active != 1 {
		t.Fatalf("expected one active appointment, got %d", active)
	}
}

func TestBook_ConcurrentSamePatientExactlyOneWins(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	patient := uuid.New()
	const n = 8

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.booking.Book(context.Background(), BookingRequest{
				PatientID:  patient,
				ProviderID: uuid.New(),
				StartTime:  at(9+i, 0),
				Duration:   30 * time.Minute,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if !errors.Is(err, ErrActiveAppointmentExists) {
				errs = append(errs, err)
			}
		}(i)
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if wins != 1 {
		t.Fatalf("expected exactly one booking for the patient, got %d", wins)
	}
}

func TestUpdate_Authority(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	ctx := context.Background()
	patient, provider := uuid.New(), uuid.New()
	a := f.book(t, patient, provider, at(10, 30), 30*time.Minute)
	confirmed := model.AppointmentStatusConfirmed

	cases := []struct {
		name  string
		actor Actor
	}{
		{"patient", Actor{ID: patient, Role: RolePatient}},
		{"other provider", Actor{ID: uuid.New(), Role: RoleProvider}},
		{"empty id", Actor{Role: RoleStaff}},
		{"unknown role", Actor{ID: uuid.New(), Role: "guest"}},
	}
	for _, tc := range cases {
		if _, err := f.booking.Update(ctx, tc.actor, a.ID, AppointmentUpdate{Status: &confirmed}); !errors.Is(err, ErrForbidden) {
			t.Fatalf("%s: expected ErrForbidden, got %v", tc.name, err)
		}
	}

	own := Actor{ID: provider, Role: RoleProvider}
	got, err := f.booking.Update(ctx, own, a.ID, AppointmentUpdate{Status: &confirmed})
	if err != nil {
		t.Fatalf("provider confirm: %v", err)
	}
	if got.Status != model.AppointmentStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", got.Status)
	}

	if _, err := f.booking.Update(ctx, staff(), uuid.New(), AppointmentUpdate{Status: &confirmed}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_NotificationsAndTransitions(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	ctx := context.Background()
	patient, provider := uuid.New(), uuid.New()
	a := f.book(t, patient, provider, at(10, 30), 30*time.Minute)

	confirmed := model.AppointmentStatusConfirmed
	pending := model.AppointmentStatusPending
	cancelled := model.AppointmentStatusCancelled
	completed := model.AppointmentStatusCompleted

	if _, err := f.booking.Update(ctx, staff(), a.ID, AppointmentUpdate{Status: &confirmed}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got := f.notifier.types(); !slices.Equal(got, []model.NotificationType{model.NotificationTypeAppointmentConfirmed}) {
		t.Fatalf("expected confirmed notification, got %v", got)
	}
	if f.notifier.sent[0].UserID != patient || f.notifier.sent[0].AppointmentID != a.ID {
		t.Fatalf("notification must target the patient and reference the appointment")
	}
	f.notifier.reset()

	if _, err := f.booking.Update(ctx, staff(), a.ID, AppointmentUpdate{Status: &pending}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("confirmed->pending: expected ErrInvalidTransition, got %v", err)
	}

	bogus := model.AppointmentStatus("lost")
	if _, err := f.booking.Update(ctx, staff(), a.ID, AppointmentUpdate{Status: &bogus}); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown status: expected ErrValidation, got %v", err)
	}

	// Перенос без смены статуса.
	newStart := at(14, 0)
	moved, err := f.booking.Update(ctx, staff(), a.ID, AppointmentUpdate{StartTime: &newStart})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if !moved.EndTime.Equal(at(14, 30)) {
		t.Fatalf("expected original 30m duration to be kept, got end %v", moved.EndTime.In(clinicLoc))
	}
	if got := f.notifier.types(); !slices.Equal(got, []model.NotificationType{model.NotificationTypeAppointmentRescheduled}) {
		t.Fatalf("expected rescheduled notification, got %v", got)
	}
	f.notifier.reset()

	// Отмена с переносом: только уведомление об отмене.
	later := at(15, 0)
	if _, err := f.booking.Update(ctx, staff(), a.ID, AppointmentUpdate{Status: &cancelled, StartTime: &later}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := f.notifier.types(); !slices.Equal(got, []model.NotificationType{model.NotificationTypeAppointmentCancelled}) {
		t.Fatalf("expected only cancelled notification, got %v", got)
	}

	for _, st := range []*model.AppointmentStatus{&confirmed, &completed, &cancelled} {
		if _, err := f.booking.Update(ctx, staff(), a.ID, AppointmentUpdate{Status: st}); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("terminal -> %s: expected ErrInvalidTransition, got %v", *st, err)
		}
	}
}

func TestUpdate_DurationFrozenAcrossScheduleChange(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	ctx := context.Background()
	provider := uuid.New()
	f.mondaySchedule(t, provider, time.Hour)
	a := f.book(t, uuid.New(), provider, at(10, 0), time.Hour)

	f.mondaySchedule(t, provider, 15*time.Minute)

	newStart := at(13, 0)
	moved, err := f.booking.Update(ctx, staff(), a.ID, AppointmentUpdate{StartTime: &newStart})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if moved.Duration() != time.Hour {
		t.Fatalf("expected 1h duration, got %v", moved.Duration())
	}

	p, err := f.availability.Availability(ctx, provider, monday)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	want := []string{"13:00", "13:15", "13:30", "13:45"}
	if got := unavailable(p); !slices.Equal(got, want) {
		t.Fatalf("unavailable = %v, want %v", got, want)
	}
}

func TestUpdate_RescheduleOntoTakenSlot(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	ctx := context.Background()
	provider := uuid.New()
	a := f.book(t, uuid.New(), provider, at(10, 0), 30*time.Minute)
	f.book(t, uuid.New(), provider, at(11, 0), 30*time.Minute)

	target := at(11, 0)
	if _, err := f.booking.Update(ctx, staff(), a.ID, AppointmentUpdate{StartTime: &target}); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}

	// Переназначение на свободного провайдера с тем же временем проходит.
	other := uuid.New()
	moved, err := f.booking.Update(ctx, staff(), a.ID, AppointmentUpdate{StartTime: &target, ProviderID: &other})
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if moved.ProviderID != other {
		t.Fatalf("expected provider to change")
	}
}

func TestUpdate_PublishesOldAndNewKeys(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	ctx := context.Background()
	provider, other := uuid.New(), uuid.New()
	a := f.book(t, uuid.New(), provider, at(10, 0), 30*time.Minute)
	f.publisher.reset()

	nextDay := at(10, 0).AddDate(0, 0, 1)
	if _, err := f.booking.Update(ctx, staff(), a.ID, AppointmentUpdate{StartTime: &nextDay, ProviderID: &other}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	changes := f.publisher.all()
	if len(changes) != 2 {
		t.Fatalf("expected two changes, got %+v", changes)
	}
	oldKey := calendar.DayKey{ProviderID: provider, Date: "2025-01-06"}
	newKey := calendar.DayKey{ProviderID: other, Date: "2025-01-07"}
	if !changes[0].Matches(oldKey) || !changes[1].Matches(newKey) {
		t.Fatalf("unexpected changes %+v", changes)
	}
}

func TestUpdate_NoopReturnsCurrent(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	a := f.book(t, uuid.New(), uuid.New(), at(10, 0), 30*time.Minute)
	f.publisher.reset()

	got, err := f.booking.Update(context.Background(), staff(), a.ID, AppointmentUpdate{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.ID != a.ID || len(f.publisher.all()) != 0 || len(f.notifier.types()) != 0 {
		t.Fatalf("empty update must not write, notify or publish")
	}
}

func TestDelete_AdminOnly(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	ctx := context.Background()
	provider := uuid.New()
	f.mondaySchedule(t, provider, 30*time.Minute)
	a := f.book(t, uuid.New(), provider, at(10, 30), 30*time.Minute)

	if err := f.booking.Delete(ctx, staff(), a.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("staff delete: expected ErrForbidden, got %v", err)
	}

	admin := Actor{ID: uuid.New(), Role: RoleAdmin}
	if err := f.booking.Delete(ctx, admin, a.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if err := f.booking.Delete(ctx, admin, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}

	p, err := f.availability.Availability(ctx, provider, monday)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if got := unavailable(p); len(got) != 0 {
		t.Fatalf("deleted appointment must free its slot, got %v", got)
	}

	var events []model.Event
	f.db.Where("appointment_id = ? AND event_type = ?", a.ID, model.EventTypeAppointmentDeleted).Find(&events)
	if len(events) != 1 {
		t.Fatalf("expected delete event, got %d", len(events))
	}
}

func TestReads_Permissions(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	ctx := context.Background()
	patient, provider := uuid.New(), uuid.New()
	a := f.book(t, patient, provider, at(10, 0), 30*time.Minute)

	if _, err := f.booking.Get(ctx, Actor{ID: patient, Role: RolePatient}, a.ID); err != nil {
		t.Fatalf("patient get own: %v", err)
	}
	if _, err := f.booking.Get(ctx, Actor{ID: uuid.New(), Role: RolePatient}, a.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign patient: expected ErrForbidden, got %v", err)
	}
	if _, err := f.booking.Get(ctx, Actor{ID: provider, Role: RoleProvider}, a.ID); err != nil {
		t.Fatalf("provider get own: %v", err)
	}
	if _, err := f.booking.Get(ctx, staff(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing: expected ErrNotFound, got %v", err)
	}

	if _, err := f.booking.ListForPatient(ctx, Actor{ID: uuid.New(), Role: RolePatient}, patient, 1, 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign list: expected ErrForbidden, got %v", err)
	}
	page, err := f.booking.ListForPatient(ctx, Actor{ID: patient, Role: RolePatient}, patient, 0, 0)
	if err != nil {
		t.Fatalf("ListForPatient: %v", err)
	}
	if page.Total != 1 || page.Page != 1 || page.PageSize != calendar.DefaultPageSize || page.HasNext {
		t.Fatalf("unexpected page %+v", page)
	}

	if _, err := f.booking.ListForProviderDay(ctx, Actor{ID: patient, Role: RolePatient}, provider, monday); !errors.Is(err, ErrForbidden) {
		t.Fatalf("patient provider list: expected ErrForbidden, got %v", err)
	}
	items, err := f.booking.ListForProviderDay(ctx, Actor{ID: provider, Role: RoleProvider}, provider, monday)
	if err != nil || len(items) != 1 {
		t.Fatalf("ListForProviderDay = %d, %v", len(items), err)
	}
}

// interleavingRepo выполняет hook сразу после чтения записи, до её записи.
type interleavingRepo struct {
	repository.AppointmentRepository
	once sync.Once
	hook func()
}

func (r *interleavingRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	a, err := r.AppointmentRepository.GetByID(ctx, id)
	r.once.Do(r.hook)
	return a, err
}

func TestUpdate_ConcurrentCancelIsNotOverwritten(t *testing.T) {
	f := newFixture(t, calendar.MatchOverlap)
	ctx := context.Background()
	patient, provider := uuid.New(), uuid.New()
	a := f.book(t, patient, provider, at(10, 0), 30*time.Minute)

	cancelled := model.AppointmentStatusCancelled
	confirmed := model.AppointmentStatusConfirmed

	racing := &interleavingRepo{
		AppointmentRepository: repository.NewGormAppointmentRepository(f.db),
		hook: func() {
			if _, err := f.booking.Update(ctx, staff(), a.ID, AppointmentUpdate{Status: &cancelled}); err != nil {
				t.Errorf("concurrent cancel: %v", err)
			}
		},
	}
	confirming := NewBookingService(racing, f.notifier, f.publisher, BookingOptions{
		Location: clinicLoc,
		Mode:     calendar.MatchOverlap,
	}, zerolog.Nop())

	_, err := confirming.Update(ctx, staff(), a.ID, AppointmentUpdate{Status: &confirmed})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for outdated confirm, got %v", err)
	}

	got, err := f.booking.Get(ctx, staff(), a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.AppointmentStatusCancelled {
		t.Fatalf("cancelled appointment was overwritten to %s", got.Status)
	}
	if types := f.notifier.types(); !slices.Equal(types, []model.NotificationType{model.NotificationTypeAppointmentCancelled}) {
		t.Fatalf("expected only the cancel notification, got %v", types)
	}
}
