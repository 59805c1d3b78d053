package ingestion

import (
	"strings"
	"time"

	"github.com/safnco/sweeping-backend/models"
)

// AggregateRows folds decoded rows into one canonical order per distinct
// order number, in a single pass. Scalar fields take the first non-blank
// value seen for the order; SKUs are collected in row encounter order and
// comma-joined. The join is deliberately NOT sorted: the persisted ItemId
// mirrors the source file so it reads naturally next to the raw export,
// while comparison normalizes independently at read time.
func AggregateRows(rows []Row, batch BatchName, pic string, remarks string, uploadedAt time.Time) []models.CanonicalOrder {
	grouped := make(map[string]int, len(rows))
	orders := make([]models.CanonicalOrder, 0, len(rows))
	skus := make(map[string][]string)

	for _, row := range rows {
		idx, seen := grouped[row.OrderNumber]
		if !seen {
			orders = append(orders, models.CanonicalOrder{
				OrderNumber:     row.OrderNumber,
				Marketplace:     batch.SalesChannel,
				Brand:           batch.Brand,
				Batch:           batch.BatchNumber,
				PIC:             pic,
				Remarks:         remarks,
				UploadDate:      uploadedAt,
				InterfaceStatus: models.InterfaceStatusNotYetInterface,
			})
			idx = len(orders) - 1
			grouped[row.OrderNumber] = idx
		}

		order := &orders[idx]
		if order.OrderStatus == "" {
			order.OrderStatus = row.OrderStatus
		}
		if order.AWB == "" {
			order.AWB = row.AWB
		}
		if order.Transporter == "" {
			order.Transporter = row.Transporter
		}
		if order.OrderDate == "" {
			order.OrderDate = row.OrderDate
		}
		if order.SLA == "" {
			order.SLA = row.SLA
		}
		if row.SKU != "" {
			skus[row.OrderNumber] = append(skus[row.OrderNumber], row.SKU)
		}
	}

	for i := range orders {
		orders[i].ItemId = strings.Join(skus[orders[i].OrderNumber], ",")
	}

	return orders
}
