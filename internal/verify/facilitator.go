package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// VerifyRequest is the payload sent to the external facilitator.
type VerifyRequest struct {
	Proof   string `json:"proof"`
	Network string `json:"network"`
	PayTo   string `json:"payTo"`
	Amount  string `json:"amount"`
}

// VerifyResponse is the facilitator's verdict on a settlement proof.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
	TxRef         string `json:"txRef,omitempty"`
}

// FacilitatorClient verifies settlement proofs against the payment network.
type FacilitatorClient interface {
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error)
}

// HTTPFacilitator talks to a facilitator's verify endpoint over HTTPS.
// Calls are bounded by the client timeout; a timeout is a verification
// failure, never retried here.
type HTTPFacilitator struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPFacilitator creates a facilitator client for the given base URL.
func NewHTTPFacilitator(baseURL string) *HTTPFacilitator {
	return &HTTPFacilitator{
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

// Verify submits the proof and returns the facilitator's verdict.
func (f *HTTPFacilitator) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode verify request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build verify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("facilitator unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("facilitator returned status %d", resp.StatusCode)
	}

	var out VerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode facilitator response: %w", err)
	}
	return &out, nil
}
