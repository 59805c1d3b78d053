package flexosync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/safnco/sweeping-backend/config"
	"gorm.io/gorm"
)

// maxQueryParams is the hard ceiling the Flexo query layer enforces on IN
// clauses. Chunks are built far smaller (see ChunkSize); a chunk reaching
// this ceiling means the chunk builder is broken.
const maxQueryParams = 1000

// OrderRecord is what Flexo reports for one matched order number. Order
// numbers absent from Flexo are simply not returned.
type OrderRecord struct {
	OrderNumber  string `gorm:"column:order_number"`
	FlexoOrderID string `gorm:"column:flexo_order_id"`
	FlexoStatus  string `gorm:"column:flexo_status"`
	FlexoItemIds string `gorm:"column:flexo_item_ids"`
}

// Store is the narrow query surface of the Flexo system of record.
type Store interface {
	// Ping reports whether Flexo is reachable at all. A Ping failure at the
	// start of a run aborts it with ErrExternalUnavailable before any write.
	Ping(ctx context.Context) error
	// FetchOrders returns Flexo's record for every order number it knows,
	// including Flexo's own comma-joined multi-item SKU aggregation.
	FetchOrders(ctx context.Context, orderNumbers []string) ([]OrderRecord, error)
}

type dbStore struct{}

// NewDBStore returns the production Store backed by the Flexo database
// handle (FLEXO_DB_* env).
func NewDBStore() Store {
	return &dbStore{}
}

func (s *dbStore) handle() (*gorm.DB, error) {
	db := config.GetFlexoDB()
	if db == nil {
		// The startup connect may have failed while Flexo was down;
		// re-attempt once per run instead of staying dead forever.
		if err := config.ConnectFlexoDatabase(); err != nil {
			return nil, err
		}
		db = config.GetFlexoDB()
	}
	if db == nil {
		return nil, errors.New("flexo db is nil")
	}
	return db, nil
}

func (s *dbStore) Ping(ctx context.Context) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

func (s *dbStore) FetchOrders(ctx context.Context, orderNumbers []string) ([]OrderRecord, error) {
	if len(orderNumbers) > maxQueryParams {
		panic(fmt.Sprintf("flexo chunk of %d order numbers exceeds the %d parameter ceiling", len(orderNumbers), maxQueryParams))
	}
	if len(orderNumbers) == 0 {
		return nil, nil
	}

	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	headersTable := tableFromEnv("FLEXO_ORDERS_TABLE", "sales_order_headers")
	itemsTable := tableFromEnv("FLEXO_ITEMS_TABLE", "sales_order_items")

	// The query shape is fixed and narrow: one row per matched web order,
	// with Flexo's item list aggregated in line sequence.
	query := fmt.Sprintf(`
		SELECT h.web_order_number AS order_number,
		       h.order_number     AS flexo_order_id,
		       h.order_status     AS flexo_status,
		       COALESCE(GROUP_CONCAT(i.item_id ORDER BY i.line_seq SEPARATOR ','), '') AS flexo_item_ids
		FROM %s h
		LEFT JOIN %s i ON i.header_id = h.id
		WHERE h.web_order_number IN ?
		GROUP BY h.id, h.web_order_number, h.order_number, h.order_status`,
		headersTable, itemsTable)

	var records []OrderRecord
	if err := db.WithContext(ctx).Raw(query, orderNumbers).Scan(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func tableFromEnv(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
