package usecase

import (
	"errors"
	"log"
	"sync"
	"time"

	"portfolio-sync/internal/domain"
	"portfolio-sync/internal/infrastructure/aggregator"
	"portfolio-sync/internal/infrastructure/secrets"
)

const (
	defaultSyncInterval = 5 * time.Minute
	defaultRetryBackoff = 30 * time.Second
	defaultGroupSize    = 3
)

// BalanceFetcher is the remote aggregation endpoint at its interface.
type BalanceFetcher interface {
	FetchBalances(batch []domain.ExchangeKeys) (*domain.SyncResult, error)
	FetchExchangeBalance(keys domain.ExchangeKeys) (*domain.ExchangeBalance, error)
}

// syncCall is one in-flight sync shared by every caller that arrives while it
// runs. result and err are written once, before done is closed.
type syncCall struct {
	done   chan struct{}
	result *domain.SyncResult
	err    error
}

// SyncEngine periodically resolves the user's stored exchange credentials
// into a normalized balance state. Constructed once per login session and
// injected where needed; at most one sync is in flight at any time, and
// concurrent callers share the pending call's outcome instead of issuing a
// duplicate remote request.
type SyncEngine struct {
	store  domain.RecordStore
	cipher *secrets.Cipher
	api    BalanceFetcher

	onResult func(*domain.SyncResult)

	interval     time.Duration
	retryBackoff time.Duration
	groupSize    int

	mu           sync.Mutex
	userID       string
	inflight     *syncCall
	stop         chan struct{}
	started      bool
	stopped      bool
	retryPending bool
}

func NewSyncEngine(store domain.RecordStore, cipher *secrets.Cipher, api BalanceFetcher) *SyncEngine {
	return &SyncEngine{
		store:        store,
		cipher:       cipher,
		api:          api,
		interval:     defaultSyncInterval,
		retryBackoff: defaultRetryBackoff,
		groupSize:    defaultGroupSize,
	}
}

// OnResult registers the hook that republishes each successful sync (orders
// poller, push notifier). Set during wiring, before Start.
func (e *SyncEngine) OnResult(fn func(*domain.SyncResult)) {
	e.onResult = fn
}

// Start performs one immediate sync and arms the periodic timer. Calling it
// on a running engine is a no-op.
func (e *SyncEngine) Start(userID string) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.stopped = false
	e.userID = userID
	stop := make(chan struct{})
	e.stop = stop
	e.mu.Unlock()

	go e.run(userID, stop)
}

func (e *SyncEngine) run(userID string, stop chan struct{}) {
	if _, err := e.SyncNow(userID); err != nil {
		log.Printf("sync: initial sync failed: %v", err)
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := e.SyncNow(userID); err != nil {
				log.Printf("sync: periodic sync failed: %v", err)
			}
		case <-stop:
			return
		}
	}
}

// Stop cancels the periodic timer and clears session state. Idempotent.
func (e *SyncEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
	e.started = false
	e.stopped = true
	e.userID = ""
}

// SyncNow runs one sync for userID (or the session user when empty). If a
// sync is already in flight, the caller attaches to it and observes the
// identical outcome — exactly one remote call per in-flight window. Returns
// (nil, nil) when there is no user id or no decryptable credential.
func (e *SyncEngine) SyncNow(userID string) (*domain.SyncResult, error) {
	e.mu.Lock()
	if call := e.inflight; call != nil {
		e.mu.Unlock()
		<-call.done
		return call.result, call.err
	}
	if userID == "" {
		userID = e.userID
	}
	if userID == "" {
		e.mu.Unlock()
		return nil, nil
	}
	call := &syncCall{done: make(chan struct{})}
	e.inflight = call
	e.mu.Unlock()

	result, err := e.doSync(userID)

	call.result, call.err = result, err

	// Clear the slot unconditionally so a settled call can never block the
	// next request behind a stale reference.
	e.mu.Lock()
	e.inflight = nil
	e.mu.Unlock()
	close(call.done)

	if err != nil && !errors.Is(err, aggregator.ErrUnauthorized) {
		// Transient failure: one fire-and-forget retry after a fixed
		// backoff. A 401 means bad credentials, which retrying cannot fix.
		e.scheduleRetry(userID)
	}

	return result, err
}

func (e *SyncEngine) doSync(userID string) (*domain.SyncResult, error) {
	exchanges := e.activeExchanges(userID)

	batch, synced := e.decryptBatch(exchanges)
	if len(batch) == 0 {
		return nil, nil
	}

	result, err := e.api.FetchBalances(batch)
	if err != nil {
		return nil, err
	}
	result.SyncedAt = time.Now()

	e.publish(userID, result, synced)
	return result, nil
}

func (e *SyncEngine) activeExchanges(userID string) []domain.LinkedExchange {
	recs := e.store.Query(domain.CollectionLinkedExchanges, func(rec domain.Record) bool {
		active, _ := rec["isActive"].(bool)
		uid, _ := rec["userId"].(string)
		return active && uid == userID
	})

	out := make([]domain.LinkedExchange, 0, len(recs))
	for _, rec := range recs {
		out = append(out, domain.LinkedExchangeFromRecord(rec))
	}
	return out
}

// decryptBatch resolves stored credentials into plaintext keys. A failed
// decrypt excludes only that exchange from the batch; the sync goes on with
// the rest.
func (e *SyncEngine) decryptBatch(exchanges []domain.LinkedExchange) ([]domain.ExchangeKeys, []domain.LinkedExchange) {
	var batch []domain.ExchangeKeys
	var synced []domain.LinkedExchange

	for _, ex := range exchanges {
		keys, err := e.decryptKeys(ex)
		if err != nil {
			log.Printf("sync: skipping exchange %s (%s): %v", ex.ExchangeName, ex.ID, err)
			continue
		}
		batch = append(batch, keys)
		synced = append(synced, ex)
	}
	return batch, synced
}

func (e *SyncEngine) decryptKeys(ex domain.LinkedExchange) (domain.ExchangeKeys, error) {
	apiKey, err := e.cipher.Decrypt(ex.APIKeyEnc)
	if err != nil {
		return domain.ExchangeKeys{}, err
	}
	apiSecret, err := e.cipher.Decrypt(ex.APISecretEnc)
	if err != nil {
		return domain.ExchangeKeys{}, err
	}

	keys := domain.ExchangeKeys{
		ExchangeID: ex.ID,
		CCXTID:     ex.ExchangeType,
		Name:       ex.ExchangeName,
		APIKey:     apiKey,
		APISecret:  apiSecret,
	}
	if ex.APIPassphraseEnc != "" {
		passphrase, err := e.cipher.Decrypt(ex.APIPassphraseEnc)
		if err != nil {
			return domain.ExchangeKeys{}, err
		}
		keys.Passphrase = passphrase
	}
	return keys, nil
}

// publish republishes a successful sync: snapshots are upserted per exchange
// and stale ones removed afterwards, so a concurrent reader never observes
// the transient empty set a delete-all-then-insert-all pass would expose.
func (e *SyncEngine) publish(userID string, result *domain.SyncResult, synced []domain.LinkedExchange) {
	stamp := result.SyncedAt.Format(time.RFC3339)

	seen := make(map[string]bool, len(result.Balances))
	var totalUsd float64
	for id, bal := range result.Balances {
		seen[id] = true
		totalUsd += bal.TotalUsd

		rec := domain.Record{
			"id":           id,
			"userId":       userID,
			"exchangeId":   id,
			"exchangeName": bal.ExchangeName,
			"totalUsd":     bal.TotalUsd,
			"tokenCount":   len(bal.Tokens),
			"tokens":       bal.Tokens,
			"syncedAt":     stamp,
		}
		if bal.Error != "" {
			rec["error"] = bal.Error
		}
		if _, err := e.store.Save(domain.CollectionBalanceSnapshots, rec); err != nil {
			log.Printf("sync: saving snapshot for %s failed: %v", id, err)
		}
	}

	for _, rec := range e.store.FindAll(domain.CollectionBalanceSnapshots) {
		if !seen[rec.ID()] {
			if _, err := e.store.Delete(domain.CollectionBalanceSnapshots, rec.ID()); err != nil {
				log.Printf("sync: pruning snapshot %s failed: %v", rec.ID(), err)
			}
		}
	}

	if _, err := e.store.Save(domain.CollectionBalanceHistory, domain.Record{
		"userId":        userID,
		"syncedAt":      stamp,
		"exchangeCount": len(result.Balances),
		"totalUsd":      totalUsd,
	}); err != nil {
		log.Printf("sync: appending history failed: %v", err)
	}

	for _, ex := range synced {
		_, err := e.store.Update(domain.CollectionLinkedExchanges, ex.ID, map[string]any{
			"lastSyncAt": stamp,
			"updatedAt":  stamp,
		})
		if err != nil {
			log.Printf("sync: stamping lastSyncAt on %s failed: %v", ex.ID, err)
		}
	}

	if e.onResult != nil {
		e.onResult(result)
	}
}

func (e *SyncEngine) scheduleRetry(userID string) {
	e.mu.Lock()
	if e.retryPending || e.stopped {
		e.mu.Unlock()
		return
	}
	e.retryPending = true
	e.mu.Unlock()

	time.AfterFunc(e.retryBackoff, func() {
		e.mu.Lock()
		e.retryPending = false
		stopped := e.stopped
		e.mu.Unlock()
		if stopped {
			return
		}
		if _, err := e.SyncNow(userID); err != nil {
			log.Printf("sync: retry failed: %v", err)
		}
	})
}

// SyncEach fetches balances exchange-by-exchange in groups of three, bounding
// the number of simultaneous outbound requests. Each group joins completely
// even when some of its requests fail, and every linked exchange yields
// exactly one result entry.
func (e *SyncEngine) SyncEach(userID string) []domain.ExchangeSyncResult {
	if userID == "" {
		e.mu.Lock()
		userID = e.userID
		e.mu.Unlock()
	}
	if userID == "" {
		return nil
	}

	exchanges := e.activeExchanges(userID)

	var results []domain.ExchangeSyncResult
	var entries []domain.ExchangeKeys

	for _, ex := range exchanges {
		keys, err := e.decryptKeys(ex)
		if err != nil {
			log.Printf("sync: skipping exchange %s (%s): %v", ex.ExchangeName, ex.ID, err)
			results = append(results, domain.ExchangeSyncResult{
				ExchangeID:   ex.ID,
				ExchangeName: ex.ExchangeName,
				Success:      false,
				Error:        err.Error(),
			})
			continue
		}
		entries = append(entries, keys)
	}

	var mu sync.Mutex
	for start := 0; start < len(entries); start += e.groupSize {
		end := start + e.groupSize
		if end > len(entries) {
			end = len(entries)
		}

		var wg sync.WaitGroup
		for _, keys := range entries[start:end] {
			wg.Add(1)
			go func(keys domain.ExchangeKeys) {
				defer wg.Done()

				bal, err := e.api.FetchExchangeBalance(keys)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					results = append(results, domain.ExchangeSyncResult{
						ExchangeID:   keys.ExchangeID,
						ExchangeName: keys.Name,
						Success:      false,
						Error:        err.Error(),
					})
					return
				}
				results = append(results, domain.ExchangeSyncResult{
					ExchangeID:   keys.ExchangeID,
					ExchangeName: keys.Name,
					Balance:      bal,
					Success:      true,
				})
			}(keys)
		}
		wg.Wait()
	}

	return results
}
