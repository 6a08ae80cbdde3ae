package models

import "time"

// Model run statuses.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// ModelRun is one entry of the retrain audit log.
type ModelRun struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	StartedAt    time.Time `gorm:"column:started_at;index" json:"started_at"`
	FinishedAt   time.Time `gorm:"column:finished_at" json:"finished_at"`
	Source       string    `gorm:"column:source" json:"source"`
	Status       string    `gorm:"column:status" json:"status"`
	ModelVersion string    `gorm:"column:model_version" json:"model_version,omitempty"`
	MAE          *float64  `gorm:"column:mae" json:"mae,omitempty"`
	R2           *float64  `gorm:"column:r2" json:"r2,omitempty"`
	SampleSize   int       `gorm:"column:sample_size" json:"sample_size"`
	Error        string    `gorm:"column:error" json:"error,omitempty"`
	RequestedBy  string    `gorm:"column:requested_by" json:"requested_by,omitempty"`
}

func (ModelRun) TableName() string { return "model_runs" }
