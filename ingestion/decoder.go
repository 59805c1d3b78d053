package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Standard columns every marketplace export carries. Only the order number
// is required; the rest default to blank when a row omits them.
const (
	columnOrderNumber = "order number"
	columnOrderStatus = "order status"
	columnAWB         = "awb"
	columnTransporter = "transporter"
	columnOrderDate   = "order date"
	columnSLA         = "sla"
)

// Row is one decoded line item before aggregation.
type Row struct {
	OrderNumber string
	OrderStatus string
	AWB         string
	Transporter string
	OrderDate   string
	SLA         string
	// SKU is blank for marketplaces with no mapped SKU column and for rows
	// whose SKU cell is empty.
	SKU string
}

// DecodeRows reads a tabular upload into row records. Both encodings decode
// to the same shape; the marketplace picks which column (if any) SKUs come
// from. Malformed rows are collected as RowErrors and skipped — a single bad
// row never aborts the batch. The returned error is reserved for files that
// cannot be processed at all (unreadable, or missing the order number
// column).
func DecodeRows(r io.Reader, format FileFormat, marketplace string, table SKUColumnTable) ([]Row, []RowError, error) {
	var records [][]string
	var err error

	switch format {
	case FormatXLSX:
		records, err = readXLSX(r)
	case FormatCSV:
		records, err = readCSV(r)
	default:
		return nil, nil, fmt.Errorf("unsupported file format %q", format)
	}
	if err != nil {
		return nil, nil, err
	}

	if len(records) == 0 {
		return nil, nil, fmt.Errorf("file has no header row")
	}

	header := headerIndex(records[0])
	orderNumberIdx, ok := header[columnOrderNumber]
	if !ok {
		return nil, nil, fmt.Errorf("required column %q not found", "Order Number")
	}

	var rowErrors []RowError

	skuIdx := -1
	if skuColumn, mapped := table.Column(marketplace); mapped {
		if idx, ok := header[strings.ToLower(strings.TrimSpace(skuColumn))]; ok {
			skuIdx = idx
		} else {
			// The marketplace should carry SKUs but this export doesn't;
			// report it once and decode the batch without SKUs.
			rowErrors = append(rowErrors, RowError{
				Row:    1,
				Reason: fmt.Sprintf("sku column %q not found for marketplace %s", skuColumn, marketplace),
			})
		}
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		rowNumber := i + 2 // 1-based, after the header

		orderNumber := strings.TrimSpace(cell(record, orderNumberIdx))
		if orderNumber == "" {
			rowErrors = append(rowErrors, RowError{Row: rowNumber, Reason: "missing order number"})
			continue
		}

		row := Row{
			OrderNumber: orderNumber,
			OrderStatus: strings.TrimSpace(cellByName(record, header, columnOrderStatus)),
			AWB:         strings.TrimSpace(cellByName(record, header, columnAWB)),
			Transporter: strings.TrimSpace(cellByName(record, header, columnTransporter)),
			OrderDate:   strings.TrimSpace(cellByName(record, header, columnOrderDate)),
			SLA:         strings.TrimSpace(cellByName(record, header, columnSLA)),
		}
		if skuIdx >= 0 {
			row.SKU = strings.TrimSpace(cell(record, skuIdx))
		}
		rows = append(rows, row)
	}

	return rows, rowErrors, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("unable to read sheet: %v", err)
	}
	return records, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	// Marketplace exports are often ragged; pad/validate per cell instead.
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unable to read csv: %v", err)
	}
	return records, nil
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, exists := index[name]; !exists {
			index[name] = i
		}
	}
	return index
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func cellByName(record []string, header map[string]int, name string) string {
	idx, ok := header[name]
	if !ok {
		return ""
	}
	return cell(record, idx)
}
