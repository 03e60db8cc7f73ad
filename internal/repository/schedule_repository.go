package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/clinic-scheduling/internal/model"
)

type ScheduleRepository interface {
	// ListByProvider возвращает недельное расписание провайдера, по дням недели.
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]model.ProviderSchedule, error)
	// GetForWeekday возвращает строку на день недели или nil, если провайдер не работает.
	GetForWeekday(ctx context.Context, providerID uuid.UUID, weekday int) (*model.ProviderSchedule, error)
	// Replace целиком заменяет недельное расписание провайдера.
	Replace(ctx context.Context, providerID uuid.UUID, rows []model.ProviderSchedule, ev *model.Event) error
}

type GormScheduleRepository struct {
	db *gorm.DB
}

func NewGormScheduleRepository(db *gorm.DB) *GormScheduleRepository {
	return &GormScheduleRepository{db: db}
}

func (r *GormScheduleRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]model.ProviderSchedule, error) {
	var schedules []model.ProviderSchedule
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("day_of_week ASC").
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *GormScheduleRepository) GetForWeekday(ctx context.Context, providerID uuid.UUID, weekday int) (*model.ProviderSchedule, error) {
	var s model.ProviderSchedule
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND day_of_week = ?", providerID, weekday).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormScheduleRepository) Replace(
	ctx context.Context,
	providerID uuid.UUID,
	rows []model.ProviderSchedule,
	ev *model.Event,
) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Удалённые дни исчезают физически, без soft-delete.
		if err := tx.Where("provider_id = ?", providerID).Delete(&model.ProviderSchedule{}).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			for i := range rows {
				rows[i].ProviderID = providerID
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		if ev != nil {
			return tx.Create(ev).Error
		}
		return nil
	})
}
