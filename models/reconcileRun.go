package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/safnco/sweeping-backend/config"
)

// ReconcileRun records one reconciliation pass over a scope, including how
// it ended. Chunk timeouts never fail a run; they surface here as counts.
type ReconcileRun struct {
	ID          uint   `gorm:"primary_key" json:"id"`
	Brand       string `gorm:"index;size:100" json:"brand"`
	Batch       string `gorm:"index;size:20" json:"batch"`
	Status      string `gorm:"size:20;not null" json:"status"`
	TriggeredBy string `gorm:"size:20" json:"triggered_by"`
	Force       bool   `json:"force"`

	OrdersExamined  int `json:"orders_examined"`
	OrdersUpdated   int `json:"orders_updated"`
	ExternalMatches int `json:"external_matches"`
	ChunksTimedOut  int `json:"chunks_timed_out"`

	StatsJSON []byte `gorm:"type:json" json:"stats"`

	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	DurationMs int64      `json:"duration_ms"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateReconcileRun(ctx context.Context, brand string, batch string, triggeredBy string, force bool) (*ReconcileRun, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}

	run := ReconcileRun{
		Brand:       brand,
		Batch:       batch,
		Status:      ReconcileRunStatusQueued,
		TriggeredBy: triggeredBy,
		Force:       force,
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func GetReconcileRun(ctx context.Context, id uint) (*ReconcileRun, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}
	var run ReconcileRun
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (run *ReconcileRun) MarkRunning(ctx context.Context, startedAt time.Time) error {
	db := config.GetDB()
	if db == nil {
		return errors.New("db is nil")
	}
	return db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":     ReconcileRunStatusRunning,
		"started_at": startedAt,
	}).Error
}

func (run *ReconcileRun) Finish(ctx context.Context, status string, examined, updated, matches, timedOut int, finishedAt time.Time) error {
	db := config.GetDB()
	if db == nil {
		return errors.New("db is nil")
	}

	var durationMs int64
	if run.StartedAt != nil {
		durationMs = finishedAt.Sub(*run.StartedAt).Milliseconds()
	}

	stats, _ := json.Marshal(map[string]int{
		"orders_examined":  examined,
		"orders_updated":   updated,
		"external_matches": matches,
		"chunks_timed_out": timedOut,
	})

	return db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":           status,
		"orders_examined":  examined,
		"orders_updated":   updated,
		"external_matches": matches,
		"chunks_timed_out": timedOut,
		"stats_json":       stats,
		"finished_at":      finishedAt,
		"duration_ms":      durationMs,
	}).Error
}

func ListReconcileRuns(ctx context.Context, limit int) ([]ReconcileRun, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []ReconcileRun
	if err := db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
