package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"portfolio-sync/internal/domain"
	"portfolio-sync/internal/infrastructure/aggregator"
	"portfolio-sync/internal/usecase"
)

// SyncHandler exposes the sync session and the orders poller: session
// start/stop, manual refresh, and reads of the synchronized state.
type SyncHandler struct {
	engine *usecase.SyncEngine
	poller *usecase.OrdersPoller
	store  domain.RecordStore
}

func NewSyncHandler(engine *usecase.SyncEngine, poller *usecase.OrdersPoller, store domain.RecordStore) *SyncHandler {
	return &SyncHandler{engine: engine, poller: poller, store: store}
}

// StartSession handles POST /api/sync/start
func (h *SyncHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "Missing userId", http.StatusBadRequest)
		return
	}

	h.poller.SetUser(req.UserID)
	h.engine.Start(req.UserID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Sync session started",
	})
}

// StopSession handles POST /api/sync/stop
func (h *SyncHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.engine.Stop()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Sync session stopped",
	})
}

// Refresh handles POST /api/sync/refresh?userId=xxx — the manual refresh
// button. If a sync is already running the caller shares its outcome.
func (h *SyncHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.engine.SyncNow(r.URL.Query().Get("userId"))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, aggregator.ErrUnauthorized) {
			status = http.StatusUnauthorized
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if result == nil {
		json.NewEncoder(w).Encode(map[string]string{
			"message": "Nothing to sync",
		})
		return
	}
	json.NewEncoder(w).Encode(result)
}

// RefreshEach handles POST /api/sync/refresh-each?userId=xxx — the grouped
// per-exchange path.
func (h *SyncHandler) RefreshEach(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	results := h.engine.SyncEach(r.URL.Query().Get("userId"))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// GetBalances handles GET /api/balances — the latest snapshots.
func (h *SyncHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshots := h.store.FindAll(domain.CollectionBalanceSnapshots)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshots)
}

// GetOrders handles GET /api/orders. With ?refresh=true it forces a fetch,
// bypassing the debounce; otherwise it serves the latest in-memory batch.
func (h *SyncHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	results := h.poller.LastResults()
	if r.URL.Query().Get("refresh") == "true" {
		if forced := h.poller.Refresh(); forced != nil {
			results = forced
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"orders":  usecase.PartitionOrders(h.poller.Latest()),
		"results": results,
	})
}
