package usecase

import (
	"fmt"
	"hash/fnv"
	"log"
	"sort"
	"sync"
	"time"

	"portfolio-sync/internal/domain"
)

const defaultDebounce = 500 * time.Millisecond

// OrdersFetcher is the remote open-orders endpoint at its interface.
type OrdersFetcher interface {
	FetchOpenOrders(userID string) (*domain.OrdersBatch, error)
}

// OrdersPoller converts reactive balance-state changes into one debounced,
// batched open-orders fetch, then fans the results back out grouped by
// exchange. Redundant triggers are filtered by a cheap content hash; a burst
// of real changes collapses into a single fetch after the debounce window.
type OrdersPoller struct {
	store domain.RecordStore
	api   OrdersFetcher

	debounce time.Duration

	mu          sync.Mutex
	userID      string
	lastHash    uint64
	timer       *time.Timer
	fetching    bool
	alive       bool
	latest      []domain.OpenOrder
	lastResults []domain.OrderFetchResult
}

func NewOrdersPoller(store domain.RecordStore, api OrdersFetcher, userID string) *OrdersPoller {
	return &OrdersPoller{
		store:    store,
		api:      api,
		debounce: defaultDebounce,
		userID:   userID,
		alive:    true,
	}
}

// SetUser rebinds the poller to a session user.
func (p *OrdersPoller) SetUser(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userID = userID
}

// OnBalanceUpdate is the reactive trigger. When the balance state actually
// changed (by content hash), it re-arms the debounce timer; a pending timer
// from an earlier trigger is cancelled first.
func (p *OrdersPoller) OnBalanceUpdate(result *domain.SyncResult) {
	if result == nil {
		return
	}
	hash := balanceHash(result)

	p.mu.Lock()
	if !p.alive {
		p.mu.Unlock()
		return
	}
	if hash == p.lastHash {
		p.mu.Unlock()
		return
	}
	p.lastHash = hash

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.debounce, func() {
		// Network calls are never cancelled mid-flight; a torn-down poller
		// is detected here and in fetch before any shared state is touched.
		if p.isAlive() {
			p.fetch()
		}
	})
	p.mu.Unlock()
}

// Refresh is the manual force path: it bypasses both the content-hash
// short-circuit and the debounce and fetches immediately. The concurrency
// guard still applies — a refresh during a running fetch is dropped.
func (p *OrdersPoller) Refresh() []domain.OrderFetchResult {
	return p.fetch()
}

// Close marks the poller torn down and cancels any pending debounce timer.
func (p *OrdersPoller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.alive = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Latest returns the most recent in-memory order batch.
func (p *OrdersPoller) Latest() []domain.OpenOrder {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.OpenOrder, len(p.latest))
	copy(out, p.latest)
	return out
}

// LastResults returns the per-exchange outcomes of the most recent fetch.
func (p *OrdersPoller) LastResults() []domain.OrderFetchResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.OrderFetchResult, len(p.lastResults))
	copy(out, p.lastResults)
	return out
}

func (p *OrdersPoller) isAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// fetch issues one batched call for all exchanges. A call arriving while one
// is running is dropped, not queued — the next reactive trigger re-requests
// current state anyway.
func (p *OrdersPoller) fetch() []domain.OrderFetchResult {
	p.mu.Lock()
	if !p.alive || p.fetching {
		p.mu.Unlock()
		return nil
	}
	p.fetching = true
	userID := p.userID
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.fetching = false
		p.mu.Unlock()
	}()

	batch, err := p.api.FetchOpenOrders(userID)
	if err != nil {
		log.Printf("orders: fetch failed: %v", err)
	}

	linked := p.store.Query(domain.CollectionLinkedExchanges, func(rec domain.Record) bool {
		uid, _ := rec["userId"].(string)
		return uid == userID
	})

	results := buildResults(linked, batch, err)

	p.mu.Lock()
	if p.alive {
		if batch != nil {
			p.latest = batch.Orders
		}
		p.lastResults = results
	}
	p.mu.Unlock()

	return results
}

// buildResults emits exactly one entry per linked exchange, so callers can
// tell "zero open orders" apart from "fetch failed for this exchange".
func buildResults(linked []domain.Record, batch *domain.OrdersBatch, fetchErr error) []domain.OrderFetchResult {
	var grouped map[string][]domain.OpenOrder
	if batch != nil {
		grouped = PartitionOrders(batch.Orders)
	}

	results := make([]domain.OrderFetchResult, 0, len(linked))
	for _, rec := range linked {
		ex := domain.LinkedExchangeFromRecord(rec)
		res := domain.OrderFetchResult{
			ExchangeID:   ex.ID,
			ExchangeName: ex.ExchangeName,
		}

		switch {
		case fetchErr != nil:
			res.Error = fetchErr.Error()
		case batch != nil && batch.Errors[ex.ID] != "":
			res.Error = batch.Errors[ex.ID]
		default:
			res.Success = true
			res.OrdersCount = len(grouped[ex.ID]) + len(grouped[ex.ExchangeName])
		}
		results = append(results, res)
	}
	return results
}

// PartitionOrders groups a flat order list by exchange. Orders carry both the
// canonical exchange_id and the legacy exchange name; whichever is set wins.
func PartitionOrders(orders []domain.OpenOrder) map[string][]domain.OpenOrder {
	grouped := make(map[string][]domain.OpenOrder)
	for _, o := range orders {
		key := o.ExchangeID
		if key == "" {
			key = o.Exchange
		}
		grouped[key] = append(grouped[key], o)
	}
	return grouped
}

// balanceHash fingerprints {exchangeId, tokenCount} across all exchanges,
// order-insensitively. Enough to detect a meaningful change without a deep
// comparison of balance payloads.
func balanceHash(result *domain.SyncResult) uint64 {
	keys := make([]string, 0, len(result.Balances))
	for id := range result.Balances {
		keys = append(keys, id)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	for _, id := range keys {
		fmt.Fprintf(h, "%s:%d;", id, len(result.Balances[id].Tokens))
	}
	return h.Sum64()
}
