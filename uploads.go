package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safnco/sweeping-backend/config"
	"github.com/safnco/sweeping-backend/flexosync"
	"github.com/safnco/sweeping-backend/ingestion"
	"github.com/safnco/sweeping-backend/models"
	"github.com/safnco/sweeping-backend/utils"
	"github.com/sirupsen/logrus"
)

const maxUploadSizeBytes int64 = 20 * 1024 * 1024

type uploadResponse struct {
	Brand        string           `json:"brand"`
	SalesChannel string           `json:"salesChannel"`
	Date         string           `json:"date"`
	Batch        string           `json:"batch"`
	RowsDecoded  int              `json:"rowsDecoded"`
	Orders       int              `json:"orders"`
	Inserted     int              `json:"inserted"`
	Updated      int              `json:"updated"`
	RowErrors    []uploadRowError `json:"rowErrors,omitempty"`
}

type uploadRowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// uploadHandler ingests one marketplace export. The filename carries the
// batch identity (BRAND-CHANNEL-DATE-BATCH); the body is the spreadsheet.
// Bad rows are reported back, never silently dropped, and never abort the
// rest of the file.
func uploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		ctx := c.Request.Context()

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 20MB limit"})
			return
		}

		batch, err := ingestion.ParseBatchFilename(fileHeader.Filename)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		f, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}

		rows, rowErrs, err := ingestion.DecodeRows(bytes.NewReader(data), batch.Format, batch.SalesChannel, ingestion.DefaultSKUColumns())
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}

		pic, _ := utils.GetUserNameFromContext(ctx)
		remarks := strings.TrimSpace(c.PostForm("remarks"))

		orders := ingestion.AggregateRows(rows, batch, pic, remarks, time.Now())

		uploadBatch, err := models.FindOrCreateUploadBatch(ctx, config.GetDB(), batch.Brand, batch.SalesChannel, batch.DateToken, batch.BatchNumber, batch.Filename)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		counts, err := models.SaveAggregatedOrders(ctx, uploadBatch, orders)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		// Archival is best-effort: the rows are already persisted, losing
		// the raw file costs us nothing but an audit copy.
		if utils.ArchivalEnabled() {
			objectName := fmt.Sprintf("uploads/%s/%s_%s", batch.Brand, utils.GenerateUniqueFilename(), batch.Filename)
			contentType := "text/csv"
			if batch.Format == ingestion.FormatXLSX {
				contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
			}
			if err := utils.UploadBytesToGCS(ctx, objectName, data, contentType); err != nil {
				config.LogError(logger, "uploads.go", "uploadHandler", "Error archiving upload to GCS", objectName, err)
			}
		}

		if strings.EqualFold(strings.TrimSpace(os.Getenv("FLEXO_SYNC_AUTO_TRIGGER")), "true") {
			if run, err := models.CreateReconcileRun(ctx, batch.Brand, batch.BatchNumber, models.ReconcileTriggeredSystem, false); err != nil {
				config.LogError(logger, "uploads.go", "uploadHandler", "Error creating auto-triggered run", batch.Brand, err)
			} else if err := flexosync.PublishReconcileRun(ctx, flexosync.ReconcilePubSubPayload{
				RunId: run.ID,
				Brand: run.Brand,
				Batch: run.Batch,
			}); err != nil {
				config.LogError(logger, "uploads.go", "uploadHandler", "Error publishing auto-triggered run", run.ID, err)
			}
		}

		logger.WithFields(logrus.Fields{
			"brand":        batch.Brand,
			"salesChannel": batch.SalesChannel,
			"batch":        batch.BatchNumber,
			"rowsDecoded":  len(rows),
			"orders":       len(orders),
			"inserted":     counts.Inserted,
			"updated":      counts.Updated,
			"rowErrors":    len(rowErrs),
			"pic":          pic,
		}).Info("Upload ingested")

		resp := uploadResponse{
			Brand:        batch.Brand,
			SalesChannel: batch.SalesChannel,
			Date:         batch.DateToken,
			Batch:        batch.BatchNumber,
			RowsDecoded:  len(rows),
			Orders:       len(orders),
			Inserted:     counts.Inserted,
			Updated:      counts.Updated,
		}
		for _, re := range rowErrs {
			resp.RowErrors = append(resp.RowErrors, uploadRowError{Row: re.Row, Reason: re.Reason})
		}
		c.JSON(http.StatusOK, resp)
	}
}

func listOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.OrderFilter{
			Brand:           strings.TrimSpace(c.Query("brand")),
			Batch:           strings.TrimSpace(c.Query("batch")),
			Marketplace:     strings.TrimSpace(c.Query("marketplace")),
			InterfaceStatus: strings.TrimSpace(c.Query("interfaceStatus")),
			Limit:           50,
		}
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
				filter.Limit = n
			}
		}
		if v := strings.TrimSpace(c.Query("offset")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				filter.Offset = n
			}
		}

		orders, total, err := models.ListOrders(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": orders, "total": total})
	}
}

// comparisonSummaryHandler reports match/mismatch counts for uploads in a
// date window, grouped by the five comparison buckets.
func comparisonSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		from := now.AddDate(0, 0, -30)
		to := now

		if v := strings.TrimSpace(c.Query("from")); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date, expected YYYY-MM-DD"})
				return
			}
			from = t
		}
		if v := strings.TrimSpace(c.Query("to")); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date, expected YYYY-MM-DD"})
				return
			}
			// Inclusive through the end of the day.
			to = t.Add(24*time.Hour - time.Nanosecond)
		}

		rows, err := models.ComparisonSummary(c.Request.Context(), from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rows})
	}
}
