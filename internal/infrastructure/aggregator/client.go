package aggregator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"portfolio-sync/internal/domain"
)

// ErrUnauthorized marks an HTTP 401 from the backend. A 401 means the stored
// credentials are bad, so the sync engine must not retry on it.
var ErrUnauthorized = fmt.Errorf("aggregator: unauthorized")

// Client talks to the remote aggregation backend: one endpoint that resolves
// a batch of exchange credentials into normalized balances, and one that
// returns all of a user's open orders in a flat list. Timeouts come from the
// underlying http.Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// FetchBalances submits the decrypted credential batch in a single request
// and returns the normalized result keyed by exchange.
func (c *Client) FetchBalances(batch []domain.ExchangeKeys) (*domain.SyncResult, error) {
	body, err := json.Marshal(map[string]any{"exchanges": batch})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Post(c.baseURL+"/api/v1/balances/aggregate", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result domain.SyncResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchExchangeBalance resolves a single exchange's balance. Used by the
// grouped per-exchange path when an aggregated call is not wanted.
func (c *Client) FetchExchangeBalance(keys domain.ExchangeKeys) (*domain.ExchangeBalance, error) {
	body, err := json.Marshal(keys)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Post(c.baseURL+"/api/v1/balances/exchange", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var balance domain.ExchangeBalance
	if err := json.NewDecoder(resp.Body).Decode(&balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// FetchOpenOrders returns every open order across the user's linked
// exchanges, plus any per-exchange errors the backend hit collecting them.
func (c *Client) FetchOpenOrders(userID string) (*domain.OrdersBatch, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/api/v1/orders/open?userId=" + url.QueryEscape(userID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var batch domain.OrdersBatch
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("aggregator API error: %d", resp.StatusCode)
	}
	return nil
}
