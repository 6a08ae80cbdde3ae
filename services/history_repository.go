package services

import (
	"context"
	"fmt"
	"time"

	"appointment-duration-api/models"
	"appointment-duration-api/predictor"

	"gorm.io/gorm"
)

// HistoryRepository reads training rows from the appointment_history table.
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Dataset loads every appointment completed at or after since (all of them
// when since is zero).
func (r *HistoryRepository) Dataset(ctx context.Context, since time.Time) (predictor.Dataset, error) {
	query := r.db.WithContext(ctx).Model(&models.AppointmentHistory{}).Order("completed_at ASC")
	if !since.IsZero() {
		query = query.Where("completed_at >= ?", since)
	}

	var rows []models.AppointmentHistory
	if err := query.Find(&rows).Error; err != nil {
		return predictor.Dataset{}, fmt.Errorf("query appointment history: %w", err)
	}
	records := make([]predictor.Record, len(rows))
	for i, row := range rows {
		records[i] = row.Record()
	}
	return predictor.NewDataset(records), nil
}

// ModelRunRepository stores the retrain audit log.
type ModelRunRepository struct {
	db *gorm.DB
}

func NewModelRunRepository(db *gorm.DB) *ModelRunRepository {
	return &ModelRunRepository{db: db}
}

func (r *ModelRunRepository) Create(ctx context.Context, run *models.ModelRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("insert model run: %w", err)
	}
	return nil
}

// List returns up to limit runs started before the cursor, newest first.
func (r *ModelRunRepository) List(ctx context.Context, limit int, before *time.Time) ([]models.ModelRun, error) {
	query := r.db.WithContext(ctx).Model(&models.ModelRun{}).Order("started_at DESC").Limit(limit)
	if before != nil {
		query = query.Where("started_at < ?", *before)
	}
	var runs []models.ModelRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("query model runs: %w", err)
	}
	return runs, nil
}
