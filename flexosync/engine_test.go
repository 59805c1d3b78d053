package flexosync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/safnco/sweeping-backend/config"
	"github.com/safnco/sweeping-backend/models"
)

type fakeStore struct {
	pingErr error
	// any chunk containing this order number stalls past the chunk timeout
	slowOn string
	// any chunk containing this order number fails with a query error
	failOn string

	mu      sync.Mutex
	calls   [][]string
	records map[string]OrderRecord
}

func (s *fakeStore) Ping(ctx context.Context) error {
	return s.pingErr
}

func (s *fakeStore) FetchOrders(ctx context.Context, orderNumbers []string) ([]OrderRecord, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]string(nil), orderNumbers...))
	s.mu.Unlock()

	for _, n := range orderNumbers {
		if n == s.slowOn {
			time.Sleep(500 * time.Millisecond)
		}
		if n == s.failOn {
			return nil, errors.New("flexo query failed")
		}
	}

	var out []OrderRecord
	for _, n := range orderNumbers {
		if rec, ok := s.records[n]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakeCatalog struct {
	orders []string

	mu     sync.Mutex
	marked map[string]models.FlexoResult
}

func (c *fakeCatalog) UnresolvedOrderNumbers(ctx context.Context, brand string, batch string, includeInterfaced bool) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, n := range c.orders {
		if _, done := c.marked[n]; done && !includeInterfaced {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (c *fakeCatalog) MarkOrderInterfaced(ctx context.Context, orderNumber string, res models.FlexoResult) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.marked[orderNumber]; ok && prev == res {
		return false, nil
	}
	c.marked[orderNumber] = res
	return true, nil
}

func (c *fakeCatalog) markedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.marked)
}

func orderNumbers(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("ORD%04d", i))
	}
	return out
}

func storeKnowingAll(orders []string) *fakeStore {
	records := make(map[string]OrderRecord, len(orders))
	for _, n := range orders {
		records[n] = OrderRecord{
			OrderNumber:  n,
			FlexoOrderID: "FLX-" + n,
			FlexoStatus:  "Completed",
			FlexoItemIds: "SKU-1,SKU-2",
		}
	}
	return &fakeStore{records: records}
}

func newTestEngine(store Store, cat catalog, chunkTimeout time.Duration) *Engine {
	return &Engine{
		store:        store,
		catalog:      cat,
		logger:       config.GetLogger(),
		chunkTimeout: chunkTimeout,
		lockTTL:      time.Minute,
		active:       map[string]bool{},
	}
}

func TestReconcile_ChunksAndMergesAllOrders(t *testing.T) {
	orders := orderNumbers(250)
	store := storeKnowingAll(orders)
	cat := &fakeCatalog{orders: orders, marked: map[string]models.FlexoResult{}}
	engine := newTestEngine(store, cat, time.Second)

	res, err := engine.Reconcile(context.Background(), nil, Scope{Brand: "ACME"}, Options{})
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	if store.callCount() != 3 {
		t.Fatalf("expected 3 chunks for 250 orders, got %d", store.callCount())
	}
	if got := len(store.calls[0]); got != 100 {
		t.Fatalf("expected first chunk of 100, got %d", got)
	}
	if got := len(store.calls[2]); got != 50 {
		t.Fatalf("expected last chunk of 50, got %d", got)
	}
	if res.OrdersExamined != 250 || res.UpdatedCount != 250 || res.ExternalMatchesSeen != 250 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.ChunksTimedOut != 0 {
		t.Fatalf("expected no timeouts, got %d", res.ChunksTimedOut)
	}
	for _, n := range orders {
		rec, ok := cat.marked[n]
		if !ok {
			t.Fatalf("order %s not marked", n)
		}
		if rec.OrderNumberFlexo != "FLX-"+n || !strings.Contains(rec.ItemIdFlexo, "SKU-1") {
			t.Fatalf("order %s merged badly: %+v", n, rec)
		}
	}
}

func TestReconcile_ChunkTimeoutSkipsOnlyThatChunk(t *testing.T) {
	orders := orderNumbers(250)
	store := storeKnowingAll(orders)
	store.slowOn = orders[100] // stalls the second chunk
	cat := &fakeCatalog{orders: orders, marked: map[string]models.FlexoResult{}}
	engine := newTestEngine(store, cat, 50*time.Millisecond)

	res, err := engine.Reconcile(context.Background(), nil, Scope{Brand: "ACME"}, Options{})
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	if res.ChunksTimedOut != 1 {
		t.Fatalf("expected 1 timed-out chunk, got %d", res.ChunksTimedOut)
	}
	// Chunks 1 and 3 still resolve their orders.
	if res.UpdatedCount != 150 {
		t.Fatalf("expected 150 updates, got %d", res.UpdatedCount)
	}
	if store.callCount() != 3 {
		t.Fatalf("later chunks must still run; got %d calls", store.callCount())
	}
}

func TestReconcile_ChunkQueryErrorSkipsOnlyThatChunk(t *testing.T) {
	orders := orderNumbers(250)
	store := storeKnowingAll(orders)
	store.failOn = orders[0] // fails the first chunk
	cat := &fakeCatalog{orders: orders, marked: map[string]models.FlexoResult{}}
	engine := newTestEngine(store, cat, time.Second)

	res, err := engine.Reconcile(context.Background(), nil, Scope{Brand: "ACME"}, Options{})
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if res.ChunksFailed != 1 {
		t.Fatalf("expected 1 failed chunk, got %d", res.ChunksFailed)
	}
	if res.UpdatedCount != 150 {
		t.Fatalf("expected 150 updates, got %d", res.UpdatedCount)
	}
}

func TestReconcile_ExternalUnavailableWritesNothing(t *testing.T) {
	orders := orderNumbers(10)
	store := storeKnowingAll(orders)
	store.pingErr = errors.New("connection refused")
	cat := &fakeCatalog{orders: orders, marked: map[string]models.FlexoResult{}}
	engine := newTestEngine(store, cat, time.Second)

	_, err := engine.Reconcile(context.Background(), nil, Scope{Brand: "ACME"}, Options{})
	if !errors.Is(err, ErrExternalUnavailable) {
		t.Fatalf("expected ErrExternalUnavailable, got %v", err)
	}
	if cat.markedCount() != 0 {
		t.Fatalf("expected zero writes, got %d", cat.markedCount())
	}
	if store.callCount() != 0 {
		t.Fatalf("expected no chunk queries after failed ping, got %d", store.callCount())
	}
}

func TestReconcile_SecondRunIsIdempotent(t *testing.T) {
	orders := orderNumbers(30)
	store := storeKnowingAll(orders)
	cat := &fakeCatalog{orders: orders, marked: map[string]models.FlexoResult{}}
	engine := newTestEngine(store, cat, time.Second)

	first, err := engine.Reconcile(context.Background(), nil, Scope{Brand: "ACME"}, Options{})
	if err != nil {
		t.Fatalf("first Reconcile error: %v", err)
	}
	if first.UpdatedCount != 30 {
		t.Fatalf("expected 30 updates on first run, got %d", first.UpdatedCount)
	}

	// Interfaced orders drop out of scope, so nothing is examined again.
	second, err := engine.Reconcile(context.Background(), nil, Scope{Brand: "ACME"}, Options{})
	if err != nil {
		t.Fatalf("second Reconcile error: %v", err)
	}
	if second.OrdersExamined != 0 || second.UpdatedCount != 0 {
		t.Fatalf("expected idempotent second run, got %+v", second)
	}

	// Force re-examines them but Flexo reports the same data, so the
	// changed-check keeps the update count at zero.
	forced, err := engine.Reconcile(context.Background(), nil, Scope{Brand: "ACME"}, Options{Force: true})
	if err != nil {
		t.Fatalf("forced Reconcile error: %v", err)
	}
	if forced.OrdersExamined != 30 || forced.UpdatedCount != 0 {
		t.Fatalf("expected forced run with zero updates, got %+v", forced)
	}
}

func TestReconcile_RejectsConcurrentScope(t *testing.T) {
	orders := orderNumbers(5)
	store := storeKnowingAll(orders)
	cat := &fakeCatalog{orders: orders, marked: map[string]models.FlexoResult{}}
	engine := newTestEngine(store, cat, time.Second)

	scope := Scope{Brand: "ACME", Batch: "4"}
	if !engine.tryAcquire(scope.key()) {
		t.Fatal("could not acquire scope for test setup")
	}
	defer engine.release(scope.key())

	_, err := engine.Reconcile(context.Background(), nil, scope, Options{})
	if !errors.Is(err, ErrReconcileInProgress) {
		t.Fatalf("expected ErrReconcileInProgress, got %v", err)
	}

	// A different scope is unaffected.
	if _, err := engine.Reconcile(context.Background(), nil, Scope{Brand: "OTHER"}, Options{}); err != nil {
		t.Fatalf("different scope should run, got %v", err)
	}
}

func TestReconcile_CancellationStopsBetweenChunks(t *testing.T) {
	orders := orderNumbers(250)
	store := storeKnowingAll(orders)
	cat := &fakeCatalog{orders: orders, marked: map[string]models.FlexoResult{}}
	engine := newTestEngine(store, cat, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := engine.Reconcile(ctx, nil, Scope{Brand: "ACME"}, Options{})
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if res.UpdatedCount != 0 {
		t.Fatalf("expected no chunk to run under canceled context, got %d updates", res.UpdatedCount)
	}
}

func TestBuildChunks(t *testing.T) {
	cases := []struct {
		total    int
		size     int
		expected []int
	}{
		{0, 100, nil},
		{1, 100, []int{1}},
		{100, 100, []int{100}},
		{101, 100, []int{100, 1}},
		{250, 100, []int{100, 100, 50}},
	}
	for _, tc := range cases {
		chunks := buildChunks(orderNumbers(tc.total), tc.size)
		if len(chunks) != len(tc.expected) {
			t.Fatalf("buildChunks(%d, %d) expected %d chunks, got %d", tc.total, tc.size, len(tc.expected), len(chunks))
		}
		for i, want := range tc.expected {
			if len(chunks[i]) != want {
				t.Fatalf("buildChunks(%d, %d) chunk %d expected len %d, got %d", tc.total, tc.size, i, want, len(chunks[i]))
			}
		}
	}
}

func TestFetchOrders_PanicsPastParameterCeiling(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for oversized chunk")
		}
	}()
	_, _ = NewDBStore().FetchOrders(context.Background(), orderNumbers(maxQueryParams+1))
}
