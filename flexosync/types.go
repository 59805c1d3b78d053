package flexosync

import (
	"time"

	"github.com/safnco/sweeping-backend/models"
)

// Scope names the slice of uploaded orders one reconciliation pass works on.
// Brand is required; Batch narrows the pass to a single upload batch.
type Scope struct {
	Brand string
	Batch string
}

func (s Scope) key() string {
	if s.Batch == "" {
		return s.Brand
	}
	return s.Brand + ":" + s.Batch
}

// Options tunes one reconciliation pass.
type Options struct {
	// Force re-checks orders already marked Interface. Their Flexo fields
	// may be refreshed but the interface status is never reverted.
	Force bool
	// TriggeredBy records who started the pass (manual, schedule, system).
	TriggeredBy string
}

// Result summarizes one completed reconciliation pass.
type Result struct {
	OrdersExamined      int `json:"ordersExamined"`
	UpdatedCount        int `json:"updatedCount"`
	ExternalMatchesSeen int `json:"totalExternalMatchesSeen"`
	ChunksTimedOut      int `json:"chunksTimedOut"`
	ChunksFailed        int `json:"chunksFailed"`
}

type TriggerReconcileRequest struct {
	Brand string `json:"brand" binding:"required"`
	Batch string `json:"batch"`
	Force bool   `json:"force"`
}

// ReconcilePubSubPayload is the message body queued for asynchronous runs.
type ReconcilePubSubPayload struct {
	RunId uint   `json:"runId"`
	Brand string `json:"brand"`
	Batch string `json:"batch"`
	Force bool   `json:"force"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type ReconcileRunResponse struct {
	ID              uint       `json:"id"`
	Brand           string     `json:"brand"`
	Batch           string     `json:"batch,omitempty"`
	Status          string     `json:"status"`
	TriggeredBy     string     `json:"triggeredBy"`
	Force           bool       `json:"force"`
	OrdersExamined  int        `json:"ordersExamined"`
	OrdersUpdated   int        `json:"ordersUpdated"`
	ExternalMatches int        `json:"externalMatches"`
	ChunksTimedOut  int        `json:"chunksTimedOut"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
	DurationMs      int64      `json:"durationMs"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func toRunResponse(run *models.ReconcileRun) ReconcileRunResponse {
	return ReconcileRunResponse{
		ID:              run.ID,
		Brand:           run.Brand,
		Batch:           run.Batch,
		Status:          run.Status,
		TriggeredBy:     run.TriggeredBy,
		Force:           run.Force,
		OrdersExamined:  run.OrdersExamined,
		OrdersUpdated:   run.OrdersUpdated,
		ExternalMatches: run.ExternalMatches,
		ChunksTimedOut:  run.ChunksTimedOut,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		DurationMs:      run.DurationMs,
		CreatedAt:       run.CreatedAt,
	}
}
