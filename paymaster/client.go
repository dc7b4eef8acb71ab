// Package paymaster talks to the gas sponsorship service that underwrites
// zero-gas-price settlement transactions on BSC.
package paymaster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds a single sponsorship validation round trip.
const DefaultTimeout = 10 * time.Second

// Client validates transactions against a sponsorship policy before they are
// broadcast with gas price zero.
type Client struct {
	sponsorURL string
	policyID   uuid.UUID
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a paymaster client for the given sponsor endpoint and
// policy.
func NewClient(sponsorURL string, policyID uuid.UUID, opts ...Option) *Client {
	c := &Client{
		sponsorURL: sponsorURL,
		policyID:   policyID,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SponsorRequest describes the transaction the facilitator wants sponsored.
type SponsorRequest struct {
	RequestID string `json:"requestId"`
	PolicyID  string `json:"policyId"`
	ChainID   int64  `json:"chainId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Data      string `json:"data"`
	GasPrice  string `json:"gasPrice"`
}

// SponsorDecision is the paymaster's verdict.
type SponsorDecision struct {
	Sponsorable bool   `json:"sponsorable"`
	Reason      string `json:"reason,omitempty"`
}

// Validate asks the paymaster whether the transaction is covered by the
// policy. A declined transaction is not an error; callers fall back to
// paying gas themselves.
func (c *Client) Validate(ctx context.Context, req SponsorRequest) (*SponsorDecision, error) {
	if req.PolicyID == "" {
		req.PolicyID = c.policyID.String()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sponsor request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sponsorURL+"/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create sponsor request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sponsor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sponsor request failed with status %d", resp.StatusCode)
	}

	var decision SponsorDecision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return nil, fmt.Errorf("failed to decode sponsor response: %w", err)
	}
	return &decision, nil
}
