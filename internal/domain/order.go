package domain

// OpenOrder is one open order as reported by the remote orders endpoint.
// Orders are never persisted beyond the current in-memory batch. ExchangeID
// is the canonical link key; Exchange is the legacy name field older backend
// versions populate instead, so consumers must match on either.
type OpenOrder struct {
	ID         string  `json:"id"`
	ExchangeID string  `json:"exchange_id"`
	Exchange   string  `json:"exchange"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"` // buy/sell
	Type       string  `json:"type"` // limit/market/stop
	Price      float64 `json:"price"`
	Amount     float64 `json:"amount"`
	Filled     float64 `json:"filled"`
	Remaining  float64 `json:"remaining"`
	Status     string  `json:"status"`
	Timestamp  int64   `json:"timestamp"`
	Cost       float64 `json:"cost,omitempty"`
}

// OrdersBatch is the full response of one open-orders fetch: the flat order
// list plus any per-exchange errors the backend hit while collecting it.
type OrdersBatch struct {
	Orders []OpenOrder       `json:"orders"`
	Errors map[string]string `json:"errors,omitempty"` // keyed by exchange id
}

// OrderFetchResult is the per-exchange outcome of one batched orders fetch.
// A zero OrdersCount with Success true means the exchange genuinely has no
// open orders; Success false means its partition failed.
type OrderFetchResult struct {
	ExchangeID   string `json:"exchangeId"`
	ExchangeName string `json:"exchangeName"`
	OrdersCount  int    `json:"ordersCount"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}
