package models

import (
	"context"
	"errors"
	"time"

	"github.com/safnco/sweeping-backend/config"
	"gorm.io/gorm"
)

// CanonicalOrder is the single persisted record for one marketplace order
// after multi-item aggregation. It carries two disjoint field sets with one
// write authority each: the ingestion fields (owned by SaveAggregatedOrders)
// and the Flexo fields (owned by MarkOrderInterfaced). Keeping the two
// update paths separate is what lets a re-upload refresh an order without
// clobbering reconciliation progress.
type CanonicalOrder struct {
	ID          uint   `gorm:"primary_key" json:"id"`
	OrderNumber string `gorm:"uniqueIndex;size:100;not null" json:"order_number"`
	Marketplace string `gorm:"index;size:50" json:"marketplace"`
	Brand       string `gorm:"index;size:100" json:"brand"`
	OrderStatus string `gorm:"size:100" json:"order_status"`
	AWB         string `gorm:"size:100" json:"awb"`
	Transporter string `gorm:"size:100" json:"transporter"`
	// OrderDate and SLA are kept as the raw cell values; formats vary per
	// marketplace export and are only displayed, never computed on.
	OrderDate  string    `gorm:"size:50" json:"order_date"`
	SLA        string    `gorm:"size:50" json:"sla"`
	Batch      string    `gorm:"index;size:20" json:"batch"`
	BatchID    uint      `gorm:"index" json:"batch_id"`
	PIC        string    `gorm:"size:100" json:"pic"`
	UploadDate time.Time `gorm:"index" json:"upload_date"`
	Remarks    string    `gorm:"type:text" json:"remarks"`

	InterfaceStatus string `gorm:"index;size:30;not null" json:"interface_status"`

	// ItemId is the comma-joined SKU list from the uploaded file, in row
	// encounter order. Set at ingestion time, never touched by reconciliation.
	ItemId string `gorm:"type:text" json:"item_id"`

	// Flexo-owned fields, written only by the reconciliation engine.
	ItemIdFlexo      string `gorm:"type:text" json:"item_id_flexo"`
	OrderNumberFlexo string `gorm:"size:100" json:"order_number_flexo"`
	OrderStatusFlexo string `gorm:"size:100" json:"order_status_flexo"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CanonicalOrder) TableName() string {
	return "uploaded_orders"
}

// ingestionFieldValues is the full set of columns the Canonical Writer may
// overwrite on re-upload. Flexo-owned columns must never appear here.
func (o *CanonicalOrder) ingestionFieldValues() map[string]interface{} {
	return map[string]interface{}{
		"marketplace":  o.Marketplace,
		"brand":        o.Brand,
		"order_status": o.OrderStatus,
		"awb":          o.AWB,
		"transporter":  o.Transporter,
		"order_date":   o.OrderDate,
		"sla":          o.SLA,
		"batch":        o.Batch,
		"batch_id":     o.BatchID,
		"pic":          o.PIC,
		"upload_date":  o.UploadDate,
		"remarks":      o.Remarks,
		"item_id":      o.ItemId,
	}
}

type WriteCounts struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Rejected int `json:"rejected"`
}

// SaveAggregatedOrders persists one batch's aggregated orders in a single
// transaction. Existing orders (by order number) get their ingestion fields
// overwritten; new ones are inserted as Not Yet Interface. Any failure rolls
// the whole batch back so a partially written upload can never exist.
func SaveAggregatedOrders(ctx context.Context, batch *UploadBatch, orders []CanonicalOrder) (WriteCounts, error) {
	var counts WriteCounts
	db := config.GetDB()
	if db == nil {
		return counts, errors.New("db is nil")
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return counts, tx.Error
	}

	for i := range orders {
		order := &orders[i]
		order.BatchID = batch.ID

		var existing CanonicalOrder
		err := tx.Where("order_number = ?", order.OrderNumber).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			order.InterfaceStatus = InterfaceStatusNotYetInterface
			if err := tx.Create(order).Error; err != nil {
				tx.Rollback()
				return WriteCounts{}, err
			}
			counts.Inserted++
			continue
		}
		if err != nil {
			tx.Rollback()
			return WriteCounts{}, err
		}

		if err := tx.Model(&CanonicalOrder{}).
			Where("id = ?", existing.ID).
			Updates(order.ingestionFieldValues()).Error; err != nil {
			tx.Rollback()
			return WriteCounts{}, err
		}
		counts.Updated++
	}

	if err := tx.Commit().Error; err != nil {
		return WriteCounts{}, err
	}
	return counts, nil
}

// FlexoResult is what the external system reports for one matched order.
type FlexoResult struct {
	OrderNumberFlexo string
	OrderStatusFlexo string
	ItemIdFlexo      string
}

// MarkOrderInterfaced is the reconciliation engine's only write path into
// uploaded_orders. It sets the Flexo fields and flips InterfaceStatus to
// Interface; it can never move an order the other way.
func MarkOrderInterfaced(ctx context.Context, db *gorm.DB, orderNumber string, res FlexoResult) (bool, error) {
	result := db.WithContext(ctx).Model(&CanonicalOrder{}).
		Where("order_number = ?", orderNumber).
		Where(
			// Skip the write when nothing changed so idempotent re-runs
			// report zero updates.
			"interface_status <> ? OR order_number_flexo <> ? OR order_status_flexo <> ? OR item_id_flexo <> ?",
			InterfaceStatusInterface, res.OrderNumberFlexo, res.OrderStatusFlexo, res.ItemIdFlexo,
		).
		Updates(map[string]interface{}{
			"interface_status":   InterfaceStatusInterface,
			"order_number_flexo": res.OrderNumberFlexo,
			"order_status_flexo": res.OrderStatusFlexo,
			"item_id_flexo":      res.ItemIdFlexo,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UnresolvedOrderNumbers lists order numbers still awaiting reconciliation,
// optionally scoped to one brand and/or batch. When includeInterfaced is
// true (forced re-check) already-Interfaced orders are included as well;
// their status still only ever moves forward.
func UnresolvedOrderNumbers(ctx context.Context, brand string, batch string, includeInterfaced bool) ([]string, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}

	query := db.WithContext(ctx).Model(&CanonicalOrder{})
	if !includeInterfaced {
		query = query.Where("interface_status = ?", InterfaceStatusNotYetInterface)
	}
	if brand != "" {
		query = query.Where("brand = ?", brand)
	}
	if batch != "" {
		query = query.Where("batch = ?", batch)
	}

	var orderNumbers []string
	if err := query.Order("id").Pluck("order_number", &orderNumbers).Error; err != nil {
		return nil, err
	}
	return orderNumbers, nil
}

// OrderFilter narrows ListOrders for the reporting surface.
type OrderFilter struct {
	Brand           string
	Batch           string
	Marketplace     string
	InterfaceStatus string
	Limit           int
	Offset          int
}

func ListOrders(ctx context.Context, filter OrderFilter) ([]CanonicalOrder, int64, error) {
	db := config.GetDB()
	if db == nil {
		return nil, 0, errors.New("db is nil")
	}

	query := db.WithContext(ctx).Model(&CanonicalOrder{})
	if filter.Brand != "" {
		query = query.Where("brand = ?", filter.Brand)
	}
	if filter.Batch != "" {
		query = query.Where("batch = ?", filter.Batch)
	}
	if filter.Marketplace != "" {
		query = query.Where("marketplace = ?", filter.Marketplace)
	}
	if filter.InterfaceStatus != "" {
		query = query.Where("interface_status = ?", filter.InterfaceStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var orders []CanonicalOrder
	if err := query.Order("upload_date DESC, id DESC").
		Limit(limit).Offset(filter.Offset).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
