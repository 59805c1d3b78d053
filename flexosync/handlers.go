package flexosync

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/safnco/sweeping-backend/config"
	"github.com/safnco/sweeping-backend/models"
	"github.com/safnco/sweeping-backend/utils"
	"gorm.io/gorm"
)

// TriggerHandler starts a reconciliation pass. With FLEXO_SYNC_ASYNC the run
// is queued on Pub/Sub for the sync service; otherwise it executes inline
// and the response carries the final counts.
func TriggerHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerReconcileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var ve validator.ValidationErrors
			if errors.As(err, &ve) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		req.Brand = strings.TrimSpace(req.Brand)
		req.Batch = strings.TrimSpace(req.Batch)
		if req.Brand == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "brand is required"})
			return
		}

		triggeredBy := models.ReconcileTriggeredManual
		ctx := c.Request.Context()

		run, err := models.CreateReconcileRun(ctx, req.Brand, req.Batch, triggeredBy, req.Force)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if envBoolDefault("FLEXO_SYNC_ASYNC", false) {
			if err := PublishReconcileRun(ctx, ReconcilePubSubPayload{
				RunId: run.ID,
				Brand: run.Brand,
				Batch: run.Batch,
				Force: run.Force,
			}); err != nil {
				config.LogError(config.GetLogger(), moduleName, "TriggerHandler", "Error publishing queued run", run.ID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not queue reconciliation"})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"id": run.ID, "status": run.Status})
			return
		}

		result, err := engine.Reconcile(ctx, run, Scope{Brand: req.Brand, Batch: req.Batch}, Options{
			Force:       req.Force,
			TriggeredBy: triggeredBy,
		})
		switch {
		case errors.Is(err, ErrReconcileInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		case errors.Is(err, ErrExternalUnavailable):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "id": run.ID})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"id": run.ID, "result": result})
	}
}

// RunDetailHandler returns one run record by id.
func RunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		run, err := models.GetReconcileRun(c.Request.Context(), uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, toRunResponse(run))
	}
}

// HistoryHandler lists recent runs, newest first.
func HistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		runs, err := models.ListReconcileRuns(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]ReconcileRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, toRunResponse(&run))
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}
