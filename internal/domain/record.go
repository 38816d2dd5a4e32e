package domain

// Collection names used by the storage layer. Case-sensitive; a collection
// exists implicitly from the first write.
const (
	CollectionLinkedExchanges  = "linked_exchanges"
	CollectionBalanceSnapshots = "balance_snapshots"
	CollectionBalanceHistory   = "balance_history"
	CollectionOrders           = "orders"
	CollectionPositions        = "positions"
	CollectionStrategies       = "strategies"
	CollectionNotifications    = "notifications"
	CollectionWatchlist        = "watchlist"
	CollectionPriceAlerts      = "price_alerts"
)

// Record is an identified document with arbitrary fields. The "id" field holds
// the record identifier; the storage layer never interprets its structure.
type Record map[string]any

// ID returns the record identifier, or "" when unset.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Clone returns a shallow copy so callers and the store never share a map.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RecordStore is the uniform CRUD contract over a named collection of records.
// Both storage engines implement it; call sites never know which one is active.
//
// Reads degrade: any I/O failure is logged inside the engine and surfaces as a
// nil/empty result. Writes propagate their error so callers can retry or
// surface it. Each operation is atomic at single-record granularity only.
type RecordStore interface {
	// Save inserts or fully replaces a record, assigning an identifier when
	// the caller omitted one. The returned record carries the resolved id.
	Save(collection string, rec Record) (Record, error)

	// FindByID returns nil when the record is absent.
	FindByID(collection, id string) Record

	// FindAll returns every record in the collection, order unspecified.
	FindAll(collection string) []Record

	// Update merges fields into an existing record and returns the merged
	// record, or nil when no record with that id exists.
	Update(collection, id string, fields map[string]any) (Record, error)

	// Delete reports whether a record was removed.
	Delete(collection, id string) (bool, error)

	// Query runs a full-scan filter over the collection. The contract only
	// promises filter correctness, not index-backed performance.
	Query(collection string, match func(Record) bool) []Record

	// ClearCollection removes every record in the collection.
	ClearCollection(collection string) error

	// Engine names the active backend, for diagnostics only.
	Engine() string
}
