package usecase

import (
	"errors"
	"sync"
	"testing"
	"time"

	"portfolio-sync/internal/domain"
	"portfolio-sync/internal/repository"
)

type fakeOrdersAPI struct {
	mu    sync.Mutex
	calls int
	batch *domain.OrdersBatch
	err   error
	block chan struct{} // when set, FetchOpenOrders waits on it
}

func (f *fakeOrdersAPI) FetchOpenOrders(userID string) (*domain.OrdersBatch, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return f.batch, f.err
}

func (f *fakeOrdersAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestPoller(api *fakeOrdersAPI, userID string) (*OrdersPoller, domain.RecordStore) {
	store := repository.NewMemoryStore()
	poller := NewOrdersPoller(store, api, userID)
	poller.debounce = 20 * time.Millisecond
	return poller, store
}

func linkExchange(t *testing.T, store domain.RecordStore, id, userID string) {
	t.Helper()

	ex := domain.LinkedExchange{
		ID:           id,
		UserID:       userID,
		ExchangeType: "binance",
		ExchangeName: "exchange-" + id,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if _, err := store.Save(domain.CollectionLinkedExchanges, ex.Record()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

// syncResultWithTokens builds a balance state whose content hash varies with
// the token counts.
func syncResultWithTokens(counts map[string]int) *domain.SyncResult {
	balances := make(map[string]domain.ExchangeBalance, len(counts))
	for id, n := range counts {
		tokens := make([]domain.TokenBalance, n)
		balances[id] = domain.ExchangeBalance{ExchangeID: id, Tokens: tokens}
	}
	return &domain.SyncResult{Balances: balances, SyncedAt: time.Now()}
}

func waitForCalls(t *testing.T, api *fakeOrdersAPI, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for api.callCount() < want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d fetches, got %d", want, api.callCount())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPollerDebouncesBurst(t *testing.T) {
	api := &fakeOrdersAPI{batch: &domain.OrdersBatch{}}
	poller, store := newTestPoller(api, "u1")
	defer poller.Close()
	linkExchange(t, store, "e1", "u1")

	// A burst of distinct state changes inside the window collapses into
	// one fetch.
	for i := 1; i <= 5; i++ {
		poller.OnBalanceUpdate(syncResultWithTokens(map[string]int{"e1": i}))
	}

	waitForCalls(t, api, 1)
	time.Sleep(5 * poller.debounce)
	if got := api.callCount(); got != 1 {
		t.Fatalf("expected one debounced fetch, got %d", got)
	}
}

func TestPollerHashShortCircuit(t *testing.T) {
	api := &fakeOrdersAPI{batch: &domain.OrdersBatch{}}
	poller, store := newTestPoller(api, "u1")
	defer poller.Close()
	linkExchange(t, store, "e1", "u1")

	state := syncResultWithTokens(map[string]int{"e1": 2})
	poller.OnBalanceUpdate(state)
	waitForCalls(t, api, 1)

	// The same fingerprint again must not arm another fetch.
	poller.OnBalanceUpdate(syncResultWithTokens(map[string]int{"e1": 2}))
	time.Sleep(5 * poller.debounce)
	if got := api.callCount(); got != 1 {
		t.Fatalf("unchanged state must not refetch, got %d", got)
	}
}

func TestPollerForceBypassesDebounce(t *testing.T) {
	api := &fakeOrdersAPI{batch: &domain.OrdersBatch{}}
	poller, store := newTestPoller(api, "u1")
	defer poller.Close()
	linkExchange(t, store, "e1", "u1")

	poller.debounce = time.Second
	poller.OnBalanceUpdate(syncResultWithTokens(map[string]int{"e1": 1}))

	// The debounce window is open; a forced refresh must not wait it out.
	results := poller.Refresh()
	if results == nil {
		t.Fatal("expected the forced refresh to fetch immediately")
	}
	if got := api.callCount(); got != 1 {
		t.Fatalf("expected one immediate fetch, got %d", got)
	}
}

func TestPollerDropsOverlappingFetch(t *testing.T) {
	api := &fakeOrdersAPI{batch: &domain.OrdersBatch{}, block: make(chan struct{})}
	poller, store := newTestPoller(api, "u1")
	defer poller.Close()
	linkExchange(t, store, "e1", "u1")

	done := make(chan []domain.OrderFetchResult, 1)
	go func() { done <- poller.Refresh() }()

	waitForCalls(t, api, 1)

	// A second call while one runs is dropped, not queued.
	if dropped := poller.Refresh(); dropped != nil {
		t.Fatal("expected the overlapping refresh to be dropped")
	}

	close(api.block)
	if first := <-done; first == nil {
		t.Fatal("expected the original refresh to complete")
	}
	if got := api.callCount(); got != 1 {
		t.Fatalf("expected one fetch, got %d", got)
	}
}

func TestPollerResultCompleteness(t *testing.T) {
	api := &fakeOrdersAPI{batch: &domain.OrdersBatch{
		Orders: []domain.OpenOrder{
			{ID: "o1", ExchangeID: "e1", Symbol: "BTC/USDT", Side: "buy"},
			{ID: "o2", ExchangeID: "e1", Symbol: "ETH/USDT", Side: "sell"},
		},
		Errors: map[string]string{"e2": "exchange timeout"},
	}}
	poller, store := newTestPoller(api, "u1")
	defer poller.Close()
	linkExchange(t, store, "e1", "u1")
	linkExchange(t, store, "e2", "u1")
	linkExchange(t, store, "e3", "u1")

	results := poller.Refresh()
	if len(results) != 3 {
		t.Fatalf("expected one entry per linked exchange, got %d", len(results))
	}

	byID := make(map[string]domain.OrderFetchResult, len(results))
	for _, res := range results {
		byID[res.ExchangeID] = res
	}

	if res := byID["e1"]; !res.Success || res.OrdersCount != 2 {
		t.Fatalf("unexpected e1 result: %+v", res)
	}
	if res := byID["e2"]; res.Success || res.Error != "exchange timeout" {
		t.Fatalf("expected a failed partition for e2, got %+v", res)
	}
	// Zero open orders is a success, distinguishable from a failure.
	if res := byID["e3"]; !res.Success || res.OrdersCount != 0 {
		t.Fatalf("unexpected e3 result: %+v", res)
	}
}

func TestPollerFetchErrorMarksAllExchanges(t *testing.T) {
	api := &fakeOrdersAPI{err: errors.New("network down")}
	poller, store := newTestPoller(api, "u1")
	defer poller.Close()
	linkExchange(t, store, "e1", "u1")
	linkExchange(t, store, "e2", "u1")

	results := poller.Refresh()
	if len(results) != 2 {
		t.Fatalf("expected one entry per exchange even on failure, got %d", len(results))
	}
	for _, res := range results {
		if res.Success || res.Error == "" {
			t.Fatalf("expected a failed entry, got %+v", res)
		}
	}
}

func TestPollerIgnoresTriggersAfterClose(t *testing.T) {
	api := &fakeOrdersAPI{batch: &domain.OrdersBatch{}}
	poller, store := newTestPoller(api, "u1")
	linkExchange(t, store, "e1", "u1")

	poller.Close()

	poller.OnBalanceUpdate(syncResultWithTokens(map[string]int{"e1": 1}))
	time.Sleep(5 * poller.debounce)
	if api.callCount() != 0 {
		t.Fatal("a torn-down poller must not fetch")
	}
	if poller.Refresh() != nil {
		t.Fatal("a torn-down poller must drop forced refreshes")
	}
}

func TestPartitionOrdersMatchesLegacyExchangeField(t *testing.T) {
	grouped := PartitionOrders([]domain.OpenOrder{
		{ID: "o1", ExchangeID: "e1"},
		{ID: "o2", Exchange: "kraken"}, // legacy payload without exchange_id
		{ID: "o3", ExchangeID: "e1"},
	})

	if len(grouped["e1"]) != 2 {
		t.Fatalf("expected 2 orders for e1, got %d", len(grouped["e1"]))
	}
	if len(grouped["kraken"]) != 1 {
		t.Fatalf("expected the legacy order under its exchange name, got %v", grouped)
	}
}
