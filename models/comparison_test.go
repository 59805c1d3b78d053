package models

import "testing"

func TestNormalizeSKUList(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"", ""},
		{"   ", ""},
		{"A", "A"},
		{"B,A", "A,B"},
		{" B , A ", "A,B"},
		{"A,,B", "A,B"},
		{"A,B,A", "A,A,B"}, // duplicates are kept, only ordered
	}
	for _, tc := range cases {
		if got := NormalizeSKUList(tc.in); got != tc.expected {
			t.Fatalf("NormalizeSKUList(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}

func TestNormalizeSKUList_Idempotent(t *testing.T) {
	in := " C ,A, B,,D "
	once := NormalizeSKUList(in)
	if twice := NormalizeSKUList(once); twice != once {
		t.Fatalf("normalization not idempotent: %q -> %q", once, twice)
	}
}

func TestClassifyItemIds(t *testing.T) {
	cases := []struct {
		itemId      string
		itemIdFlexo string
		expected    ComparisonStatus
	}{
		{"A,B", "A,B", ComparisonMatch},
		{"B,A", "A,B", ComparisonMatch}, // order never matters
		{" A , B ", "B,A", ComparisonMatch},
		{"A,B", "A,C", ComparisonMismatch},
		{"A", "A,B", ComparisonMismatch},
		{"", "A", ComparisonItemMissing},
		{"A", "", ComparisonItemDifferent},
		{"", "", ComparisonBothMissing},
		{"  ", "  ", ComparisonBothMissing},
	}
	for _, tc := range cases {
		if got := ClassifyItemIds(tc.itemId, tc.itemIdFlexo); got != tc.expected {
			t.Fatalf("ClassifyItemIds(%q, %q) expected %q, got %q", tc.itemId, tc.itemIdFlexo, tc.expected, got)
		}
	}
}

func TestCanonicalOrderComparison(t *testing.T) {
	order := CanonicalOrder{ItemId: "SKU2,SKU1", ItemIdFlexo: "SKU1,SKU2"}
	if got := order.Comparison(); got != ComparisonMatch {
		t.Fatalf("expected Match, got %q", got)
	}
}
