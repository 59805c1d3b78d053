package ingestion

import (
	"testing"
	"time"

	"github.com/safnco/sweeping-backend/models"
)

func testBatch() BatchName {
	return BatchName{
		Brand:        "ACME",
		SalesChannel: "TIKTOK",
		DateToken:    "28",
		BatchNumber:  "4",
		Format:       FormatCSV,
		Filename:     "ACME-TIKTOK-28-4.csv",
	}
}

func TestAggregateRows_GroupsMultiItemOrders(t *testing.T) {
	rows := []Row{
		{OrderNumber: "ORD1", OrderStatus: "Shipped", AWB: "AWB1", SKU: "X"},
		{OrderNumber: "ORD1", OrderStatus: "Shipped", AWB: "AWB1", SKU: "Y"},
		{OrderNumber: "ORD2", OrderStatus: "Packed", SKU: "Z"},
	}

	uploadedAt := time.Date(2025, 1, 28, 10, 0, 0, 0, time.UTC)
	orders := AggregateRows(rows, testBatch(), "dina", "first sweep", uploadedAt)

	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}

	ord1 := orders[0]
	if ord1.OrderNumber != "ORD1" {
		t.Fatalf("expected ORD1 first, got %s", ord1.OrderNumber)
	}
	// SKUs join in encounter order, not sorted.
	if ord1.ItemId != "X,Y" {
		t.Fatalf("expected ItemId X,Y, got %q", ord1.ItemId)
	}
	if ord1.Marketplace != "TIKTOK" || ord1.Brand != "ACME" || ord1.Batch != "4" {
		t.Fatalf("batch metadata not attached: %+v", ord1)
	}
	if ord1.PIC != "dina" || ord1.Remarks != "first sweep" {
		t.Fatalf("pic/remarks not attached: %+v", ord1)
	}
	if !ord1.UploadDate.Equal(uploadedAt) {
		t.Fatalf("upload date not attached: %v", ord1.UploadDate)
	}
	if ord1.InterfaceStatus != models.InterfaceStatusNotYetInterface {
		t.Fatalf("new orders must start Not Yet Interface, got %q", ord1.InterfaceStatus)
	}

	if orders[1].OrderNumber != "ORD2" || orders[1].ItemId != "Z" {
		t.Fatalf("unexpected second order: %+v", orders[1])
	}
}

func TestAggregateRows_EncounterOrderIsPreserved(t *testing.T) {
	rows := []Row{
		{OrderNumber: "ORD9", SKU: "B"},
		{OrderNumber: "ORD1", SKU: "A"},
		{OrderNumber: "ORD9", SKU: "A"},
	}
	orders := AggregateRows(rows, testBatch(), "", "", time.Now())

	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].OrderNumber != "ORD9" || orders[1].OrderNumber != "ORD1" {
		t.Fatalf("first-occurrence order not preserved: %s, %s", orders[0].OrderNumber, orders[1].OrderNumber)
	}
	if orders[0].ItemId != "B,A" {
		t.Fatalf("expected unsorted join B,A, got %q", orders[0].ItemId)
	}
}

func TestAggregateRows_FirstNonBlankScalarWins(t *testing.T) {
	rows := []Row{
		{OrderNumber: "ORD1", OrderStatus: "", AWB: ""},
		{OrderNumber: "ORD1", OrderStatus: "Shipped", AWB: "AWB1"},
		{OrderNumber: "ORD1", OrderStatus: "Delivered", AWB: "AWB2"},
	}
	orders := AggregateRows(rows, testBatch(), "", "", time.Now())

	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	if orders[0].OrderStatus != "Shipped" || orders[0].AWB != "AWB1" {
		t.Fatalf("expected first non-blank values to win, got %+v", orders[0])
	}
}

func TestAggregateRows_BlankSKUsAreDropped(t *testing.T) {
	rows := []Row{
		{OrderNumber: "ORD1", SKU: "A"},
		{OrderNumber: "ORD1", SKU: ""},
		{OrderNumber: "ORD1", SKU: "B"},
	}
	orders := AggregateRows(rows, testBatch(), "", "", time.Now())
	if orders[0].ItemId != "A,B" {
		t.Fatalf("expected A,B, got %q", orders[0].ItemId)
	}
}
