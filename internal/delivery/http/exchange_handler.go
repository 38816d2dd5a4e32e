package http

import (
	"encoding/json"
	"net/http"
	"time"

	"portfolio-sync/internal/domain"
	"portfolio-sync/internal/infrastructure/secrets"
)

// ExchangeHandler manages linked-exchange credentials: link, list, toggle,
// unlink. Key material is encrypted before it reaches the store and is never
// echoed back; responses only report which secret fields are present.
type ExchangeHandler struct {
	store  domain.RecordStore
	cipher *secrets.Cipher
}

func NewExchangeHandler(store domain.RecordStore, cipher *secrets.Cipher) *ExchangeHandler {
	return &ExchangeHandler{store: store, cipher: cipher}
}

// Handle dispatches /api/exchanges by method: POST links, GET lists,
// DELETE unlinks.
func (h *ExchangeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.LinkExchange(w, r)
	case http.MethodGet:
		h.ListExchanges(w, r)
	case http.MethodDelete:
		h.UnlinkExchange(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// LinkExchange handles POST /api/exchanges
func (h *ExchangeHandler) LinkExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		UserID        string `json:"userId"`
		ExchangeType  string `json:"exchangeType"`
		ExchangeName  string `json:"exchangeName"`
		APIKey        string `json:"apiKey"`
		APISecret     string `json:"apiSecret"`
		APIPassphrase string `json:"apiPassphrase"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.ExchangeType == "" || req.APIKey == "" || req.APISecret == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	if req.ExchangeName == "" {
		req.ExchangeName = req.ExchangeType
	}

	keyEnc, err := h.cipher.Encrypt(req.APIKey)
	if err != nil {
		http.Error(w, "Failed to encrypt credentials", http.StatusInternalServerError)
		return
	}
	secretEnc, err := h.cipher.Encrypt(req.APISecret)
	if err != nil {
		http.Error(w, "Failed to encrypt credentials", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	ex := domain.LinkedExchange{
		UserID:       req.UserID,
		ExchangeType: req.ExchangeType,
		ExchangeName: req.ExchangeName,
		APIKeyEnc:    keyEnc,
		APISecretEnc: secretEnc,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.APIPassphrase != "" {
		passEnc, err := h.cipher.Encrypt(req.APIPassphrase)
		if err != nil {
			http.Error(w, "Failed to encrypt credentials", http.StatusInternalServerError)
			return
		}
		ex.APIPassphraseEnc = passEnc
	}

	saved, err := h.store.Save(domain.CollectionLinkedExchanges, ex.Record())
	if err != nil {
		http.Error(w, "Failed to save exchange", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":           saved.ID(),
		"exchangeName": ex.ExchangeName,
		"message":      "Exchange linked successfully",
	})
}

// ListExchanges handles GET /api/exchanges?userId=xxx
func (h *ExchangeHandler) ListExchanges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "Missing userId", http.StatusBadRequest)
		return
	}

	recs := h.store.Query(domain.CollectionLinkedExchanges, func(rec domain.Record) bool {
		uid, _ := rec["userId"].(string)
		return uid == userID
	})

	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		ex := domain.LinkedExchangeFromRecord(rec)
		entry := map[string]any{
			"id":               ex.ID,
			"exchangeType":     ex.ExchangeType,
			"exchangeName":     ex.ExchangeName,
			"isActive":         ex.IsActive,
			"hasApiKey":        ex.APIKeyEnc != "",
			"hasApiSecret":     ex.APISecretEnc != "",
			"hasApiPassphrase": ex.APIPassphraseEnc != "",
			"createdAt":        ex.CreatedAt,
		}
		if !ex.LastSyncAt.IsZero() {
			entry["lastSyncAt"] = ex.LastSyncAt
		}
		out = append(out, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// ToggleExchange handles PUT /api/exchanges/toggle?id=xxx
func (h *ExchangeHandler) ToggleExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id", http.StatusBadRequest)
		return
	}

	var req struct {
		IsActive bool `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.store.Update(domain.CollectionLinkedExchanges, id, map[string]any{
		"isActive":  req.IsActive,
		"updatedAt": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "Failed to update exchange", http.StatusInternalServerError)
		return
	}
	if updated == nil {
		http.Error(w, "Exchange not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":       id,
		"isActive": req.IsActive,
	})
}

// UnlinkExchange handles DELETE /api/exchanges?id=xxx
func (h *ExchangeHandler) UnlinkExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id", http.StatusBadRequest)
		return
	}

	removed, err := h.store.Delete(domain.CollectionLinkedExchanges, id)
	if err != nil {
		http.Error(w, "Failed to unlink exchange", http.StatusInternalServerError)
		return
	}
	if !removed {
		http.Error(w, "Exchange not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Exchange unlinked successfully",
	})
}
