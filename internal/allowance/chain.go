package allowance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hoddukzoa12/openclaw/pkg/money"
)

// OnChainAllowance is the allowance recorded on chain for an owner. Absent
// allowances are reported with a zero amount.
type OnChainAllowance struct {
	Amount    money.Micros
	ExpiresAt time.Time
}

// Reader exposes the on-chain allowance state for the configured token and
// spender. It is an external capability consumed through this contract; the
// stored authorization record is only a cache of what the reader reports.
type Reader interface {
	// Allowance returns the live allowance for owner.
	Allowance(ctx context.Context, owner string) (*OnChainAllowance, error)

	// TokenApproved reports whether owner has approved the payment token to
	// the delegation contract at all.
	TokenApproved(ctx context.Context, owner string) (bool, error)
}

// HTTPReader reads allowance state from a chain indexer's HTTP API for a
// fixed token and spender.
type HTTPReader struct {
	baseURL    string
	token      string
	spender    string
	httpClient *http.Client
}

// NewHTTPReader creates an allowance reader against the given indexer.
func NewHTTPReader(baseURL, token, spender string) *HTTPReader {
	return &HTTPReader{
		baseURL: baseURL,
		token:   token,
		spender: spender,
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

type allowanceResponse struct {
	Amount        string `json:"amount"`
	ExpiresAt     int64  `json:"expiresAt"`
	TokenApproved bool   `json:"tokenApproved"`
}

func (r *HTTPReader) fetch(ctx context.Context, owner string) (*allowanceResponse, error) {
	endpoint := fmt.Sprintf("%s/v1/allowances/%s?token=%s&spender=%s",
		r.baseURL,
		url.PathEscape(owner),
		url.QueryEscape(r.token),
		url.QueryEscape(r.spender),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build allowance request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chain indexer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chain indexer returned status %d", resp.StatusCode)
	}

	var out allowanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode allowance response: %w", err)
	}
	return &out, nil
}

func (r *HTTPReader) Allowance(ctx context.Context, owner string) (*OnChainAllowance, error) {
	raw, err := r.fetch(ctx, owner)
	if err != nil {
		return nil, err
	}

	var amount money.Micros
	if raw.Amount != "" {
		units, err := parseAtomic(raw.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid allowance amount %q: %w", raw.Amount, err)
		}
		amount = units
	}

	out := &OnChainAllowance{Amount: amount}
	if raw.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(raw.ExpiresAt, 0)
	}
	return out, nil
}

func (r *HTTPReader) TokenApproved(ctx context.Context, owner string) (bool, error) {
	raw, err := r.fetch(ctx, owner)
	if err != nil {
		return false, err
	}
	return raw.TokenApproved, nil
}

func parseAtomic(s string) (money.Micros, error) {
	units, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return money.Micros(units), nil
}
