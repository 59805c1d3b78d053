package flexosync

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/safnco/sweeping-backend/config"
	"github.com/safnco/sweeping-backend/models"
	"github.com/safnco/sweeping-backend/utils"
	"github.com/sirupsen/logrus"
)

const moduleName = "flexosync"

// ChunkSize is how many order numbers go into one Flexo query. Tuned well
// below the maxQueryParams ceiling; raising it past the ceiling turns the
// guard in FetchOrders into a panic.
const ChunkSize = 100

const reconcileLockType = "flexo-reconcile"

var (
	// ErrExternalUnavailable means Flexo did not answer the initial ping.
	// The run aborts before writing anything.
	ErrExternalUnavailable = errors.New("flexo is unavailable")
	// ErrReconcileInProgress means another pass already holds the scope.
	// Concurrent requests are rejected, not queued.
	ErrReconcileInProgress = errors.New("reconciliation already in progress for this scope")
)

// catalog is the engine's only write path into uploaded orders. Ingestion
// owns every other column; the engine touches interface status and the
// Flexo-reported fields, nothing else.
type catalog interface {
	UnresolvedOrderNumbers(ctx context.Context, brand string, batch string, includeInterfaced bool) ([]string, error)
	MarkOrderInterfaced(ctx context.Context, orderNumber string, res models.FlexoResult) (bool, error)
}

type dbCatalog struct{}

func (dbCatalog) UnresolvedOrderNumbers(ctx context.Context, brand string, batch string, includeInterfaced bool) ([]string, error) {
	return models.UnresolvedOrderNumbers(ctx, brand, batch, includeInterfaced)
}

func (dbCatalog) MarkOrderInterfaced(ctx context.Context, orderNumber string, res models.FlexoResult) (bool, error) {
	db := config.GetDB()
	if db == nil {
		return false, errors.New("db is nil")
	}
	return models.MarkOrderInterfaced(ctx, db, orderNumber, res)
}

// Engine runs reconciliation passes against Flexo. One engine serves the
// whole process; per-scope exclusion is enforced both in-process and, when
// Redis is up, across instances.
type Engine struct {
	store        Store
	catalog      catalog
	logger       *logrus.Logger
	chunkTimeout time.Duration
	lockTTL      time.Duration

	mu     sync.Mutex
	active map[string]bool
}

func NewEngine(store Store) *Engine {
	return &Engine{
		store:        store,
		catalog:      dbCatalog{},
		logger:       config.GetLogger(),
		chunkTimeout: chunkTimeoutFromEnv(),
		lockTTL:      10 * time.Minute,
		active:       map[string]bool{},
	}
}

func chunkTimeoutFromEnv() time.Duration {
	if v := os.Getenv("FLEXO_CHUNK_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 30 * time.Second
}

func (e *Engine) tryAcquire(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[key] {
		return false
	}
	e.active[key] = true
	return true
}

func (e *Engine) release(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, key)
}

// Reconcile runs one pass over the scope. When run is non-nil its status
// lifecycle (queued, running, success/partial/failed) is persisted as the
// pass progresses. A chunk timeout is recoverable and only counted; Flexo
// being down entirely fails the run with zero writes.
func (e *Engine) Reconcile(ctx context.Context, run *models.ReconcileRun, scope Scope, opts Options) (Result, error) {
	key := scope.key()
	if !e.tryAcquire(key) {
		return Result{}, ErrReconcileInProgress
	}
	defer e.release(key)

	if config.GetRedisLock() != nil {
		lock, err := utils.ObtainScopeLock(ctx, reconcileLockType, key, e.lockTTL, moduleName, "Reconcile")
		if errors.Is(err, utils.ErrScopeLocked) {
			return Result{}, ErrReconcileInProgress
		} else if err != nil {
			e.failRun(run)
			return Result{}, err
		}
		defer lock.Release(context.Background())
	}

	startedAt := time.Now()
	if run != nil {
		if err := run.MarkRunning(ctx, startedAt); err != nil {
			config.LogError(e.logger, moduleName, "Reconcile", "Error marking run as running", run.ID, err)
		}
	}

	if err := e.store.Ping(ctx); err != nil {
		config.LogError(e.logger, moduleName, "Reconcile", "Flexo unreachable, aborting before any write", key, err)
		e.failRun(run)
		return Result{}, ErrExternalUnavailable
	}

	orderNumbers, err := e.catalog.UnresolvedOrderNumbers(ctx, scope.Brand, scope.Batch, opts.Force)
	if err != nil {
		e.failRun(run)
		return Result{}, err
	}
	// Order numbers are unique in the catalog, but a duplicate would double
	// a chunk's parameter count, so dedupe before chunking.
	orderNumbers = utils.UniqueSlice(orderNumbers)

	res := Result{OrdersExamined: len(orderNumbers)}
	chunks := buildChunks(orderNumbers, ChunkSize)

	e.logger.WithFields(logrus.Fields{
		"scope":          key,
		"force":          opts.Force,
		"ordersExamined": res.OrdersExamined,
		"chunks":         len(chunks),
	}).Info("Starting Flexo reconciliation pass")

	for i, chunk := range chunks {
		// Cancellation is honored between chunks; a chunk already in
		// flight is abandoned, never interrupted mid-merge.
		if ctx.Err() != nil {
			config.LogError(e.logger, moduleName, "Reconcile", "Run canceled between chunks", key, ctx.Err())
			break
		}

		records, timedOut, err := e.fetchChunk(ctx, chunk)
		if timedOut {
			res.ChunksTimedOut++
			e.logger.WithFields(logrus.Fields{
				"scope": key,
				"chunk": i,
				"size":  len(chunk),
			}).Warn("Flexo chunk timed out, skipping to next chunk")
			continue
		}
		if err != nil {
			res.ChunksFailed++
			config.LogError(e.logger, moduleName, "Reconcile", "Flexo chunk query failed", key, err)
			continue
		}

		res.ExternalMatchesSeen += len(records)
		for _, rec := range records {
			updated, err := e.catalog.MarkOrderInterfaced(ctx, rec.OrderNumber, models.FlexoResult{
				OrderNumberFlexo: rec.FlexoOrderID,
				OrderStatusFlexo: rec.FlexoStatus,
				ItemIdFlexo:      rec.FlexoItemIds,
			})
			if err != nil {
				config.LogError(e.logger, moduleName, "Reconcile", "Error merging Flexo result", rec.OrderNumber, err)
				continue
			}
			if updated {
				res.UpdatedCount++
			}
		}
	}

	status := models.ReconcileRunStatusSuccess
	if res.ChunksTimedOut > 0 || res.ChunksFailed > 0 || ctx.Err() != nil {
		status = models.ReconcileRunStatusPartial
	}
	finishedAt := time.Now()
	if run != nil {
		if err := run.Finish(ctx, status, res.OrdersExamined, res.UpdatedCount, res.ExternalMatchesSeen, res.ChunksTimedOut, finishedAt); err != nil {
			config.LogError(e.logger, moduleName, "Reconcile", "Error finishing run record", run.ID, err)
		}
	}

	e.logger.WithFields(logrus.Fields{
		"scope":           key,
		"status":          status,
		"ordersExamined":  res.OrdersExamined,
		"ordersUpdated":   res.UpdatedCount,
		"externalMatches": res.ExternalMatchesSeen,
		"chunksTimedOut":  res.ChunksTimedOut,
		"durationMs":      finishedAt.Sub(startedAt).Milliseconds(),
	}).Info("Finished Flexo reconciliation pass")

	return res, nil
}

func (e *Engine) failRun(run *models.ReconcileRun) {
	if run == nil {
		return
	}
	// The run record must reflect the failure even when the caller's
	// context is already canceled.
	if err := run.Finish(context.Background(), models.ReconcileRunStatusFailed, 0, 0, 0, 0, time.Now()); err != nil {
		config.LogError(e.logger, moduleName, "failRun", "Error marking run as failed", run.ID, err)
	}
}

// fetchChunk queries Flexo for one chunk, giving up after the chunk timeout.
// A slow query is abandoned, not interrupted: the result channel is buffered
// so the late goroutine can still send and exit.
func (e *Engine) fetchChunk(ctx context.Context, chunk []string) ([]OrderRecord, bool, error) {
	type outcome struct {
		records []OrderRecord
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		records, err := e.store.FetchOrders(ctx, chunk)
		done <- outcome{records, err}
	}()

	timer := time.NewTimer(e.chunkTimeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.records, false, out.err
	case <-timer.C:
		return nil, true, nil
	case <-ctx.Done():
		return nil, true, nil
	}
}

func buildChunks(orderNumbers []string, size int) [][]string {
	if size <= 0 {
		size = ChunkSize
	}
	var chunks [][]string
	for start := 0; start < len(orderNumbers); start += size {
		end := start + size
		if end > len(orderNumbers) {
			end = len(orderNumbers)
		}
		chunks = append(chunks, orderNumbers[start:end])
	}
	return chunks
}
