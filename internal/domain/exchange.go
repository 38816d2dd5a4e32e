package domain

import "time"

// LinkedExchange is a user's stored exchange connection. The API key material
// is AES-GCM encrypted at rest; only the sync engine decrypts it, and only
// transiently for a remote call.
type LinkedExchange struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	ExchangeType     string    `json:"exchangeType"` // ccxt exchange id, e.g. "binance"
	ExchangeName     string    `json:"exchangeName"`
	APIKeyEnc        string    `json:"apiKeyEnc"`
	APISecretEnc     string    `json:"apiSecretEnc"`
	APIPassphraseEnc string    `json:"apiPassphraseEnc,omitempty"`
	IsActive         bool      `json:"isActive"`
	LastSyncAt       time.Time `json:"lastSyncAt,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// ExchangeKeys is one decrypted credential entry of the batch submitted to the
// remote aggregation endpoint. Never persisted.
type ExchangeKeys struct {
	ExchangeID string `json:"exchangeId"`
	CCXTID     string `json:"ccxtId"`
	Name       string `json:"name"`
	APIKey     string `json:"apiKey"`
	APISecret  string `json:"apiSecret"`
	Passphrase string `json:"passphrase,omitempty"`
}

// Record translates the exchange into the uniform storage shape.
func (e LinkedExchange) Record() Record {
	rec := Record{
		"id":           e.ID,
		"userId":       e.UserID,
		"exchangeType": e.ExchangeType,
		"exchangeName": e.ExchangeName,
		"apiKeyEnc":    e.APIKeyEnc,
		"apiSecretEnc": e.APISecretEnc,
		"isActive":     e.IsActive,
		"createdAt":    e.CreatedAt.Format(time.RFC3339),
		"updatedAt":    e.UpdatedAt.Format(time.RFC3339),
	}
	if e.APIPassphraseEnc != "" {
		rec["apiPassphraseEnc"] = e.APIPassphraseEnc
	}
	if !e.LastSyncAt.IsZero() {
		rec["lastSyncAt"] = e.LastSyncAt.Format(time.RFC3339)
	}
	return rec
}

// LinkedExchangeFromRecord rebuilds the typed form from a stored record.
// Unknown or missing fields come back as zero values.
func LinkedExchangeFromRecord(rec Record) LinkedExchange {
	e := LinkedExchange{
		ID:               recString(rec, "id"),
		UserID:           recString(rec, "userId"),
		ExchangeType:     recString(rec, "exchangeType"),
		ExchangeName:     recString(rec, "exchangeName"),
		APIKeyEnc:        recString(rec, "apiKeyEnc"),
		APISecretEnc:     recString(rec, "apiSecretEnc"),
		APIPassphraseEnc: recString(rec, "apiPassphraseEnc"),
	}
	e.IsActive, _ = rec["isActive"].(bool)
	e.LastSyncAt = recTime(rec, "lastSyncAt")
	e.CreatedAt = recTime(rec, "createdAt")
	e.UpdatedAt = recTime(rec, "updatedAt")
	return e
}

func recString(rec Record, key string) string {
	s, _ := rec[key].(string)
	return s
}

func recTime(rec Record, key string) time.Time {
	s, _ := rec[key].(string)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
