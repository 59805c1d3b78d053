package ingestion

import "strings"

// SKUColumnTable maps a marketplace (sales channel) to the header of the
// column its exports carry SKUs in. It is an explicit immutable value passed
// into the decoder, never ambient state, so concurrent ingestions and tests
// cannot observe cross-run mutation. Marketplaces without an entry
// (e.g. Tokopedia) have no SKU column at all.
type SKUColumnTable struct {
	columns map[string]string
}

func NewSKUColumnTable(columns map[string]string) SKUColumnTable {
	copied := make(map[string]string, len(columns))
	for marketplace, column := range columns {
		copied[strings.ToLower(strings.TrimSpace(marketplace))] = column
	}
	return SKUColumnTable{columns: copied}
}

// Column returns the SKU column header for a marketplace, or ok=false when
// the marketplace ships no SKU column.
func (t SKUColumnTable) Column(marketplace string) (string, bool) {
	column, ok := t.columns[strings.ToLower(strings.TrimSpace(marketplace))]
	return column, ok
}

// DefaultSKUColumns is the production mapping.
func DefaultSKUColumns() SKUColumnTable {
	return NewSKUColumnTable(map[string]string{
		"tiktok":    "Seller SKU",
		"shopee":    "Nomor Referensi SKU",
		"lazada":    "sellerSku",
		"blibli":    "Merchant SKU",
		"ginee":     "SKU",
		"desty":     "SKU Marketplace",
		"jubelio":   "SKU",
		// Tokopedia exports have no SKU column; deliberately absent.
	})
}
