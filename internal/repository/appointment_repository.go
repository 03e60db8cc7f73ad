package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/clinic-scheduling/internal/db"
	"github.com/Leganyst/clinic-scheduling/internal/model"
)

var (
	// У пациента уже есть активная запись.
	ErrPatientBusy = errors.New("patient already has an active appointment")
	// Слот провайдера занят активной записью.
	ErrSlotOccupied = errors.New("provider slot is occupied")
	// Запись изменили после чтения: статус, провайдер или время уже другие.
	ErrStaleAppointment = errors.New("appointment changed concurrently")
)

// SlotGuard задаёт, как проверять занятость слота при записи.
type SlotGuard struct {
	// Overlap = true — конфликтом считается любое пересечение интервалов,
	// иначе только совпадение времени начала.
	Overlap bool
}

type AppointmentRepository interface {
	// Создать запись, если пациент свободен и слот не занят. Событие аудита
	// пишется в той же транзакции.
	CreateChecked(ctx context.Context, a *model.Appointment, guard SlotGuard, ev *model.Event) error
	// Получить запись по ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	// Сохранить изменения записи, если она всё ещё совпадает с прочитанной
	// версии from; при активном статусе повторно проверяется слот.
	UpdateChecked(ctx context.Context, from, a *model.Appointment, recheckSlot bool, guard SlotGuard, ev *model.Event) error
	// Удалить запись.
	Delete(ctx context.Context, id uuid.UUID, ev *model.Event) error
	// Активная запись пациента или nil.
	FindActiveByPatient(ctx context.Context, patientID uuid.UUID) (*model.Appointment, error)
	// Записи провайдера, пересекающие [from, to).
	ListByProviderRange(ctx context.Context, providerID uuid.UUID, from, to time.Time, activeOnly bool) ([]model.Appointment, error)
	// Записи пациента с пагинацией, новые сверху.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]model.Appointment, int64, error)
}

// Реализация на GORM.
type GormAppointmentRepository struct {
	db *gorm.DB
}

func NewGormAppointmentRepository(db *gorm.DB) *GormAppointmentRepository {
	return &GormAppointmentRepository{db: db}
}

func normalize(a *model.Appointment) {
	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()
}

// lockProvider сериализует проверки слотов одного провайдера в PostgreSQL.
// Уникальный индекс ловит только совпадение начала; пересечения с другим
// началом без блокировки могут проскочить при READ COMMITTED. SQLite
// пишет через одно соединение и в блокировке не нуждается.
func lockProvider(tx *gorm.DB, providerID uuid.UUID) error {
	if !db.IsPostgres(tx) {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", providerID.String()).Error
}

func patientBusy(tx *gorm.DB, patientID, exclude uuid.UUID) (bool, error) {
	var n int64
	q := tx.Model(&model.Appointment{}).
		Where("patient_id = ?", patientID).
		Where("status IN ?", model.ActiveStatuses)
	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func slotOccupied(tx *gorm.DB, a *model.Appointment, guard SlotGuard) (bool, error) {
	var n int64
	q := tx.Model(&model.Appointment{}).
		Where("provider_id = ?", a.ProviderID).
		Where("status IN ?", model.ActiveStatuses)
	if guard.Overlap {
		q = q.Where("start_time < ? AND end_time > ?", a.EndTime, a.StartTime)
	} else {
		q = q.Where("start_time = ?", a.StartTime)
	}
	if a.ID != uuid.Nil {
		q = q.Where("id <> ?", a.ID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// classify переводит нарушение частичного уникального индекса в доменную ошибку.
// Драйверы с TranslateError теряют имя индекса, поэтому причина
// определяется повторной проверкой уже после отката транзакции.
func (r *GormAppointmentRepository) classify(ctx context.Context, a *model.Appointment, err error) error {
	if !db.IsUniqueViolation(err) {
		return err
	}
	busy, checkErr := patientBusy(r.db.WithContext(ctx), a.PatientID, a.ID)
	if checkErr == nil && busy {
		return ErrPatientBusy
	}
	return ErrSlotOccupied
}

func (r *GormAppointmentRepository) CreateChecked(
	ctx context.Context,
	a *model.Appointment,
	guard SlotGuard,
	ev *model.Event,
) error {
	normalize(a)
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockProvider(tx, a.ProviderID); err != nil {
			return err
		}

		busy, err := patientBusy(tx, a.PatientID, uuid.Nil)
		if err != nil {
			return err
		}
		if busy {
			return ErrPatientBusy
		}

		occupied, err := slotOccupied(tx, a, guard)
		if err != nil {
			return err
		}
		if occupied {
			return ErrSlotOccupied
		}

		if err := tx.Create(a).Error; err != nil {
			return err
		}
		if ev != nil {
			ev.AppointmentID = &a.ID
			return tx.Create(ev).Error
		}
		return nil
	})
	return r.classify(ctx, a, err)
}

func (r *GormAppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var a model.Appointment
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormAppointmentRepository) UpdateChecked(
	ctx context.Context,
	from, a *model.Appointment,
	recheckSlot bool,
	guard SlotGuard,
	ev *model.Event,
) error {
	normalize(a)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if recheckSlot && a.Status.Active() {
			if err := lockProvider(tx, a.ProviderID); err != nil {
				return err
			}
			occupied, err := slotOccupied(tx, a, guard)
			if err != nil {
				return err
			}
			if occupied {
				return ErrSlotOccupied
			}
		}

		// Условие на прочитанное состояние: параллельная отмена между
		// чтением и записью не должна быть перезаписана.
		res := tx.Model(&model.Appointment{}).
			Where("id = ?", a.ID).
			Where("status = ? AND provider_id = ? AND start_time = ?", from.Status, from.ProviderID, from.StartTime.UTC()).
			Updates(map[string]any{
				"provider_id": a.ProviderID,
				"start_time":  a.StartTime,
				"end_time":    a.EndTime,
				"status":      a.Status,
				"updated_at":  time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&model.Appointment{}).Where("id = ?", a.ID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return gorm.ErrRecordNotFound
			}
			return ErrStaleAppointment
		}
		if ev != nil {
			ev.AppointmentID = &a.ID
			return tx.Create(ev).Error
		}
		return nil
	})
	return r.classify(ctx, a, err)
}

func (r *GormAppointmentRepository) Delete(ctx context.Context, id uuid.UUID, ev *model.Event) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.Appointment{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if ev != nil {
			return tx.Create(ev).Error
		}
		return nil
	})
}

func (r *GormAppointmentRepository) FindActiveByPatient(ctx context.Context, patientID uuid.UUID) (*model.Appointment, error) {
	var a model.Appointment
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Where("status IN ?", model.ActiveStatuses).
		Order("start_time ASC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormAppointmentRepository) ListByProviderRange(
	ctx context.Context,
	providerID uuid.UUID,
	from, to time.Time,
	activeOnly bool,
) ([]model.Appointment, error) {
	var appointments []model.Appointment
	q := r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("provider_id = ?", providerID).
		Where("start_time < ? AND end_time > ?", to.UTC(), from.UTC())

	if activeOnly {
		q = q.Where("status IN ?", model.ActiveStatuses)
	}

	if err := q.Order("start_time ASC").Find(&appointments).Error; err != nil {
		return nil, err
	}
	return appointments, nil
}

func (r *GormAppointmentRepository) ListByPatient(
	ctx context.Context,
	patientID uuid.UUID,
	limit, offset int,
) ([]model.Appointment, int64, error) {
	var (
		appointments []model.Appointment
		total        int64
	)

	q := r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("patient_id = ?", patientID)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	if err := q.Order("start_time DESC").Find(&appointments).Error; err != nil {
		return nil, 0, err
	}

	return appointments, total, nil
}
