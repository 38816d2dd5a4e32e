package domain

import "time"

// TokenBalance is a single asset balance inside one exchange account.
type TokenBalance struct {
	Symbol   string  `json:"symbol"`
	Amount   float64 `json:"amount"`
	UsdValue float64 `json:"usdValue"`
}

// ExchangeBalance is the normalized balance payload for one exchange, as
// returned by the aggregation endpoint. Error is set when the aggregator
// could not reach that exchange; the entry is still present.
type ExchangeBalance struct {
	ExchangeID   string         `json:"exchangeId"`
	ExchangeName string         `json:"exchangeName"`
	Tokens       []TokenBalance `json:"tokens"`
	TotalUsd     float64        `json:"totalUsd"`
	Error        string         `json:"error,omitempty"`
}

// SyncResult is one completed balance sync across all linked exchanges,
// keyed by exchange id.
type SyncResult struct {
	Balances map[string]ExchangeBalance `json:"balances"`
	SyncedAt time.Time                  `json:"syncedAt"`
}

// ExchangeSyncResult reports the outcome of a per-exchange balance fetch on
// the grouped path. Exactly one is emitted per linked exchange, success or not.
type ExchangeSyncResult struct {
	ExchangeID   string           `json:"exchangeId"`
	ExchangeName string           `json:"exchangeName"`
	Balance      *ExchangeBalance `json:"balance,omitempty"`
	Success      bool             `json:"success"`
	Error        string           `json:"error,omitempty"`
}
