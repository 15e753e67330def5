package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hoddukzoa12/openclaw/pkg/money"
)

// ErrTxNotFound is returned when the chain has no record of the reference.
var ErrTxNotFound = errors.New("transaction not found")

// TokenTransfer is one token transfer event observed in a transaction.
type TokenTransfer struct {
	Token  string
	From   string
	To     string
	Amount money.Micros
}

// Receipt is the settled outcome of an on-chain transaction.
type Receipt struct {
	TxRef     string
	Success   bool
	Transfers []TokenTransfer
}

// ChainReader fetches transaction outcomes from the payment network. The
// underlying RPC access is an external capability; this interface is its
// documented contract.
type ChainReader interface {
	// TransactionReceipt returns the receipt for txRef, or ErrTxNotFound.
	TransactionReceipt(ctx context.Context, txRef string) (*Receipt, error)
}

// IndexerClient reads receipts from a chain indexer's HTTP API.
type IndexerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewIndexerClient creates a receipt reader for the given indexer base URL.
func NewIndexerClient(baseURL string) *IndexerClient {
	return &IndexerClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type indexerTransfer struct {
	Token  string `json:"token"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type indexerReceipt struct {
	TxRef     string            `json:"txRef"`
	Success   bool              `json:"success"`
	Transfers []indexerTransfer `json:"transfers"`
}

func (c *IndexerClient) TransactionReceipt(ctx context.Context, txRef string) (*Receipt, error) {
	endpoint := fmt.Sprintf("%s/v1/transactions/%s", c.baseURL, url.PathEscape(txRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build receipt request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chain indexer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTxNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chain indexer returned status %d", resp.StatusCode)
	}

	var raw indexerReceipt
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}

	receipt := &Receipt{
		TxRef:   raw.TxRef,
		Success: raw.Success,
	}
	for _, t := range raw.Transfers {
		// Amounts arrive as base-unit integer strings; for a 6-decimal token
		// one base unit is one micro-dollar.
		units, err := strconv.ParseInt(t.Amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid transfer amount %q: %w", t.Amount, err)
		}
		amount := money.Micros(units)
		receipt.Transfers = append(receipt.Transfers, TokenTransfer{
			Token:  t.Token,
			From:   t.From,
			To:     t.To,
			Amount: amount,
		})
	}
	return receipt, nil
}
