package aggregator

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"portfolio-sync/internal/domain"
)

func TestFetchBalancesSubmitsBatchInOneRequest(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.URL.Path != "/api/v1/balances/aggregate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req struct {
			Exchanges []domain.ExchangeKeys `json:"exchanges"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode failed: %v", err)
		}
		if len(req.Exchanges) != 2 {
			t.Errorf("expected 2 entries, got %d", len(req.Exchanges))
		}
		if req.Exchanges[0].Passphrase != "" {
			t.Errorf("unexpected passphrase for entry without one")
		}

		json.NewEncoder(w).Encode(domain.SyncResult{
			Balances: map[string]domain.ExchangeBalance{
				"e1": {ExchangeID: "e1", TotalUsd: 1200},
				"e2": {ExchangeID: "e2", Error: "exchange maintenance"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.FetchBalances([]domain.ExchangeKeys{
		{ExchangeID: "e1", CCXTID: "binance", APIKey: "k1", APISecret: "s1"},
		{ExchangeID: "e2", CCXTID: "kucoin", APIKey: "k2", APISecret: "s2", Passphrase: "p2"},
	})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if requests != 1 {
		t.Fatalf("expected a single request, got %d", requests)
	}
	if result.Balances["e1"].TotalUsd != 1200 {
		t.Fatalf("unexpected balance: %+v", result.Balances["e1"])
	}
	// A per-exchange failure comes back as an entry, not an error.
	if result.Balances["e2"].Error == "" {
		t.Fatal("expected the failed exchange entry to carry its error")
	}
}

func TestFetchBalancesMapsUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchBalances([]domain.ExchangeKeys{{ExchangeID: "e1"}})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestFetchBalancesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchBalances(nil)
	if err == nil {
		t.Fatal("expected an error on 502")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Fatal("a non-401 failure must not look like an auth failure")
	}
}

func TestFetchOpenOrdersParsesBothExchangeFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/orders/open" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("userId"); got != "u1" {
			t.Errorf("unexpected userId %q", got)
		}

		w.Write([]byte(`{
			"orders": [
				{"id": "o1", "exchange_id": "e1", "symbol": "BTC/USDT", "side": "buy", "price": 64000, "amount": 0.5},
				{"id": "o2", "exchange": "kraken", "symbol": "ETH/USDT", "side": "sell", "price": 2600, "amount": 2}
			],
			"errors": {"e9": "exchange timeout"}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	batch, err := client.FetchOpenOrders("u1")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(batch.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(batch.Orders))
	}
	if batch.Orders[0].ExchangeID != "e1" {
		t.Fatalf("expected canonical exchange_id, got %q", batch.Orders[0].ExchangeID)
	}
	if batch.Orders[1].Exchange != "kraken" {
		t.Fatalf("expected legacy exchange field, got %q", batch.Orders[1].Exchange)
	}
	if batch.Errors["e9"] != "exchange timeout" {
		t.Fatalf("expected per-exchange errors, got %v", batch.Errors)
	}
}

func TestFetchExchangeBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/balances/exchange" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(domain.ExchangeBalance{ExchangeID: "e1", TotalUsd: 42})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	bal, err := client.FetchExchangeBalance(domain.ExchangeKeys{ExchangeID: "e1"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if bal.TotalUsd != 42 {
		t.Fatalf("unexpected balance: %+v", bal)
	}
}
