package stock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/store/memory"
)

type fakeRealtime struct {
	mu      sync.Mutex
	values  map[string]int
	fail    bool
	adjusts int
	sets    int
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{values: map[string]int{}}
}

func (f *fakeRealtime) Adjust(_ context.Context, productID string, delta, seed int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errors.New("realtime down")
	}
	f.adjusts++
	current, ok := f.values[productID]
	if !ok {
		current = seed
	}
	next := current + delta
	if next < 0 {
		return 0, store.ErrInsufficientStock
	}
	f.values[productID] = next
	return next, nil
}

func (f *fakeRealtime) Set(_ context.Context, productID string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("realtime down")
	}
	f.sets++
	f.values[productID] = qty
	return nil
}

func (f *fakeRealtime) value(productID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[productID]
}

type recordingNotifier struct {
	events []int
}

func (r *recordingNotifier) StockUpdated(_ context.Context, _ string, stok int) error {
	r.events = append(r.events, stok)
	return nil
}

func seedProduct(t *testing.T, repo *memory.Store, stok int) string {
	t.Helper()
	p, err := repo.CreateProduct(context.Background(), domain.Product{
		ID: "brg-test", Kode: "TST-001", Name: "Teh Botol", HargaJual: 5000, Stok: stok,
		Status: domain.ProductStatusPublished,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p.ID
}

func TestAdjustGoesThroughRealtime(t *testing.T) {
	repo := memory.New()
	id := seedProduct(t, repo, 10)
	rt := newFakeRealtime()
	notifier := &recordingNotifier{}
	ledger := NewLedger(repo, rt, notifier)

	qty, err := ledger.Adjust(context.Background(), id, -3)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if qty != 7 {
		t.Fatalf("qty = %d, want 7", qty)
	}
	if rt.adjusts != 1 {
		t.Fatalf("realtime adjusts = %d, want 1", rt.adjusts)
	}
	p, _ := repo.GetProduct(context.Background(), id)
	if p.Stok != 7 {
		t.Fatalf("primary stock = %d, want 7", p.Stok)
	}
	if len(notifier.events) != 1 || notifier.events[0] != 7 {
		t.Fatalf("notifier events = %v", notifier.events)
	}
}

func TestAdjustUnderflowRejected(t *testing.T) {
	repo := memory.New()
	id := seedProduct(t, repo, 2)
	ledger := NewLedger(repo, newFakeRealtime(), nil)

	if _, err := ledger.Adjust(context.Background(), id, -5); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	p, _ := repo.GetProduct(context.Background(), id)
	if p.Stok != 2 {
		t.Fatalf("primary stock mutated: %d", p.Stok)
	}
}

func TestAdjustFallsBackWhenRealtimeDown(t *testing.T) {
	repo := memory.New()
	id := seedProduct(t, repo, 10)
	rt := newFakeRealtime()
	rt.fail = true
	ledger := NewLedger(repo, rt, nil)

	qty, err := ledger.Adjust(context.Background(), id, -4)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if qty != 6 {
		t.Fatalf("qty = %d, want 6", qty)
	}
	p, _ := repo.GetProduct(context.Background(), id)
	if p.Stok != 6 {
		t.Fatalf("primary stock = %d, want 6", p.Stok)
	}
}

func TestAdjustWithoutRealtime(t *testing.T) {
	repo := memory.New()
	id := seedProduct(t, repo, 10)
	ledger := NewLedger(repo, nil, nil)

	qty, err := ledger.Adjust(context.Background(), id, 5)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if qty != 15 {
		t.Fatalf("qty = %d, want 15", qty)
	}
}

func TestAdjustUnknownProduct(t *testing.T) {
	ledger := NewLedger(memory.New(), newFakeRealtime(), nil)
	if _, err := ledger.Adjust(context.Background(), "brg-nope", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSetOverwritesBothStores(t *testing.T) {
	repo := memory.New()
	id := seedProduct(t, repo, 10)
	rt := newFakeRealtime()
	ledger := NewLedger(repo, rt, nil)

	if _, err := ledger.Set(context.Background(), id, 42); err != nil {
		t.Fatalf("set: %v", err)
	}
	p, _ := repo.GetProduct(context.Background(), id)
	if p.Stok != 42 {
		t.Fatalf("primary stock = %d, want 42", p.Stok)
	}
	if rt.values[id] != 42 {
		t.Fatalf("realtime stock = %d, want 42", rt.values[id])
	}
	if _, err := ledger.Set(context.Background(), id, -1); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("negative set err = %v, want ErrInsufficientStock", err)
	}
}

type brokenMirrorRepo struct {
	*memory.Store
}

func (r brokenMirrorRepo) SetStock(context.Context, string, int) error {
	return errors.New("primary down")
}

func TestAdjustSurvivesFailedMirrorSync(t *testing.T) {
	repo := memory.New()
	id := seedProduct(t, repo, 10)
	rt := newFakeRealtime()
	notifier := &recordingNotifier{}
	ledger := NewLedger(brokenMirrorRepo{repo}, rt, notifier)

	qty, err := ledger.Adjust(context.Background(), id, -3)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if qty != 7 {
		t.Fatalf("qty = %d, want 7", qty)
	}
	if rt.value(id) != 7 {
		t.Fatalf("realtime stock = %d, want 7", rt.value(id))
	}
	// The mirror is stale until the next successful sync; the mutation
	// itself must still report the committed quantity.
	p, _ := repo.GetProduct(context.Background(), id)
	if p.Stok != 10 {
		t.Fatalf("primary stock = %d, want 10", p.Stok)
	}
	if len(notifier.events) != 1 || notifier.events[0] != 7 {
		t.Fatalf("notifier events = %v", notifier.events)
	}
}

func TestConcurrentAdjustsLoseNoUpdates(t *testing.T) {
	repo := memory.New()
	id := seedProduct(t, repo, 100)
	rt := newFakeRealtime()
	ledger := NewLedger(repo, rt, nil)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Adjust(context.Background(), id, -2); err != nil {
				t.Errorf("decrement: %v", err)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Adjust(context.Background(), id, 1); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	// 100 - 30*2 + 10*1 = 50 regardless of interleaving. The primary
	// mirror is last-write-wins and not asserted here.
	if got := rt.value(id); got != 50 {
		t.Fatalf("realtime stock = %d, want 50", got)
	}
}
