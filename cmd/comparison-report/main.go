// comparison-report exports the SKU comparison for a brand and date window
// to an Excel workbook, one sheet of per-status counts and one sheet listing
// every order that isn't a clean match.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//     go run ./cmd/comparison-report -brand ACME -from 2025-01-01 -to 2025-01-31 -out report.xlsx
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/safnco/sweeping-backend/config"
	"github.com/safnco/sweeping-backend/models"
	"github.com/xuri/excelize/v2"
)

func main() {
	brand := flag.String("brand", "", "brand to report on (empty = all brands)")
	fromArg := flag.String("from", "", "window start, YYYY-MM-DD (default 30 days ago)")
	toArg := flag.String("to", "", "window end, YYYY-MM-DD (default today)")
	out := flag.String("out", "comparison-report.xlsx", "output workbook path")
	flag.Parse()

	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now
	if *fromArg != "" {
		t, err := time.Parse("2006-01-02", *fromArg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -from: %v\n", err)
			os.Exit(2)
		}
		from = t
	}
	if *toArg != "" {
		t, err := time.Parse("2006-01-02", *toArg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -to: %v\n", err)
			os.Exit(2)
		}
		to = t.Add(24*time.Hour - time.Nanosecond)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	const pageSize = 500
	var orders []models.CanonicalOrder
	var total int64
	for offset := 0; ; offset += pageSize {
		page, count, err := models.ListOrders(ctx, models.OrderFilter{Brand: *brand, Limit: pageSize, Offset: offset})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list orders: %v\n", err)
			os.Exit(1)
		}
		total = count
		orders = append(orders, page...)
		if len(page) < pageSize {
			break
		}
	}

	tally := map[models.ComparisonStatus]int{}
	var flagged []models.CanonicalOrder
	for _, o := range orders {
		if o.UploadDate.Before(from) || o.UploadDate.After(to) {
			continue
		}
		status := o.Comparison()
		tally[status]++
		if status != models.ComparisonMatch {
			flagged = append(flagged, o)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	summarySheet := f.GetSheetName(0)
	if err := f.SetSheetName(summarySheet, "Summary"); err != nil {
		fatal(err)
	}
	summaryHeader := []interface{}{"Status", "Count"}
	if err := f.SetSheetRow("Summary", "A1", &summaryHeader); err != nil {
		fatal(err)
	}
	rowIdx := 2
	for _, status := range []models.ComparisonStatus{
		models.ComparisonMatch, models.ComparisonMismatch, models.ComparisonItemMissing,
		models.ComparisonItemDifferent, models.ComparisonBothMissing,
	} {
		row := []interface{}{string(status), tally[status]}
		if err := f.SetSheetRow("Summary", fmt.Sprintf("A%d", rowIdx), &row); err != nil {
			fatal(err)
		}
		rowIdx++
	}

	if _, err := f.NewSheet("Flagged Orders"); err != nil {
		fatal(err)
	}
	flaggedHeader := []interface{}{
		"Order Number", "Brand", "Marketplace", "Batch", "Interface Status",
		"Item Id", "Item Id Flexo", "Order Number Flexo", "Comparison",
	}
	if err := f.SetSheetRow("Flagged Orders", "A1", &flaggedHeader); err != nil {
		fatal(err)
	}
	for i, o := range flagged {
		row := []interface{}{
			o.OrderNumber, o.Brand, o.Marketplace, o.Batch, o.InterfaceStatus,
			o.ItemId, o.ItemIdFlexo, o.OrderNumberFlexo, string(o.Comparison()),
		}
		if err := f.SetSheetRow("Flagged Orders", fmt.Sprintf("A%d", i+2), &row); err != nil {
			fatal(err)
		}
	}

	if err := f.SaveAs(*out); err != nil {
		fatal(err)
	}

	fmt.Printf("wrote %s (%d orders scanned, %d flagged, %d total in scope)\n", *out, len(orders), len(flagged), total)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "failed to build workbook: %v\n", err)
	os.Exit(1)
}
