package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/safnco/sweeping-backend/config"
)

// NormalizeSKUList canonicalizes a comma-separated SKU list: split, trim,
// drop empty tokens, sort, rejoin. Two lists holding the same SKUs in a
// different order normalize to the same string, which is what keeps
// reordered multi-item orders from being reported as false mismatches.
func NormalizeSKUList(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	parts := strings.Split(s, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tokens = append(tokens, p)
	}
	sort.Strings(tokens)
	return strings.Join(tokens, ",")
}

// ClassifyItemIds compares the uploaded SKU list against the Flexo one.
func ClassifyItemIds(itemId string, itemIdFlexo string) ComparisonStatus {
	hasLocal := strings.TrimSpace(itemId) != ""
	hasFlexo := strings.TrimSpace(itemIdFlexo) != ""

	switch {
	case hasLocal && hasFlexo:
		if NormalizeSKUList(itemId) == NormalizeSKUList(itemIdFlexo) {
			return ComparisonMatch
		}
		return ComparisonMismatch
	case !hasLocal && hasFlexo:
		return ComparisonItemMissing
	case hasLocal && !hasFlexo:
		return ComparisonItemDifferent
	default:
		return ComparisonBothMissing
	}
}

// Comparison returns the on-read classification for this order.
func (o *CanonicalOrder) Comparison() ComparisonStatus {
	return ClassifyItemIds(o.ItemId, o.ItemIdFlexo)
}

type ComparisonSummaryRow struct {
	Status ComparisonStatus `json:"status"`
	Count  int64            `json:"count"`
}

const comparisonSummaryCacheTTL = 5 * time.Minute

// ComparisonSummary counts orders per comparison status for the given
// upload-date window. Classification needs SKU normalization, which the
// database cannot do, so the pairs are classified here; the result is
// cached briefly in redis since the reporting layer polls it.
func ComparisonSummary(ctx context.Context, from time.Time, to time.Time) ([]ComparisonSummaryRow, error) {
	cacheKey := fmt.Sprintf("ComparisonSummary:%s:%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	var cached []ComparisonSummaryRow
	if ok, err := config.GetRedisObject(cacheKey, &cached); err == nil && ok {
		return cached, nil
	}

	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}

	type skuPair struct {
		ItemId      string
		ItemIdFlexo string
	}
	var pairs []skuPair
	if err := db.WithContext(ctx).Model(&CanonicalOrder{}).
		Select("item_id", "item_id_flexo").
		Where("upload_date >= ? AND upload_date <= ?", from, to).
		Find(&pairs).Error; err != nil {
		return nil, err
	}

	tally := map[ComparisonStatus]int64{}
	for _, p := range pairs {
		tally[ClassifyItemIds(p.ItemId, p.ItemIdFlexo)]++
	}

	rows := make([]ComparisonSummaryRow, 0, len(tally))
	for _, status := range []ComparisonStatus{
		ComparisonMatch, ComparisonMismatch, ComparisonItemMissing, ComparisonItemDifferent, ComparisonBothMissing,
	} {
		if count, ok := tally[status]; ok {
			rows = append(rows, ComparisonSummaryRow{Status: status, Count: count})
		}
	}

	_ = config.SetRedisObject(cacheKey, rows, comparisonSummaryCacheTTL)
	return rows, nil
}
