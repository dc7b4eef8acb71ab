// Package facilitatorclient implements x402.FacilitatorClient over HTTP.
package facilitatorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	x402 "github.com/aeon-xyz/x402-go"
)

const (
	// DefaultFacilitatorURL is the default facilitator service endpoint.
	DefaultFacilitatorURL = "https://facilitator.aeon.xyz"

	headerContentType   = "Content-Type"
	mimeApplicationJSON = "application/json"

	authHeaderVerify    = "verify"
	authHeaderSettle    = "settle"
	authHeaderSupported = "supported"

	defaultTimeout = 60 * time.Second
)

// Config configures a FacilitatorClient.
type Config struct {
	URL     string
	Timeout time.Duration

	// BearerToken, when set, is sent as an Authorization header on every
	// request. CreateAuthHeaders takes precedence when both are set.
	BearerToken string

	// CreateAuthHeaders returns per-action header maps keyed by "verify",
	// "settle" and "supported".
	CreateAuthHeaders func() (map[string]map[string]string, error)
}

// FacilitatorClient talks to a remote facilitator's verify, settle and
// supported endpoints.
type FacilitatorClient struct {
	url               string
	httpClient        *http.Client
	bearerToken       string
	createAuthHeaders func() (map[string]map[string]string, error)
}

// NewFacilitatorClient creates a facilitator client. A nil config uses the
// default URL without authentication.
func NewFacilitatorClient(config *Config) *FacilitatorClient {
	if config == nil {
		config = &Config{}
	}
	url := config.URL
	if url == "" {
		url = DefaultFacilitatorURL
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &FacilitatorClient{
		url:               url,
		httpClient:        &http.Client{Timeout: timeout},
		bearerToken:       config.BearerToken,
		createAuthHeaders: config.CreateAuthHeaders,
	}
}

// Verify sends a payment verification request to the facilitator.
func (c *FacilitatorClient) Verify(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (*x402.VerifyResponse, error) {
	var verifyResp x402.VerifyResponse
	err := c.post(ctx, "/verify", authHeaderVerify, x402.VerifyRequest{
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	}, &verifyResp)
	if err != nil {
		return nil, err
	}
	return &verifyResp, nil
}

// Settle sends a payment settlement request to the facilitator.
func (c *FacilitatorClient) Settle(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (*x402.SettleResponse, error) {
	var settleResp x402.SettleResponse
	err := c.post(ctx, "/settle", authHeaderSettle, x402.SettleRequest{
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	}, &settleResp)
	if err != nil {
		return nil, err
	}
	return &settleResp, nil
}

// Supported retrieves the payment kinds the facilitator can handle.
func (c *FacilitatorClient) Supported(ctx context.Context) (*x402.SupportedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supported request: %w", err)
	}
	req.Header.Set(headerContentType, mimeApplicationJSON)
	if err := c.addAuthHeader(req, authHeaderSupported); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send supported request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get supported payment kinds: %s", resp.Status)
	}

	var supportedResp x402.SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&supportedResp); err != nil {
		return nil, fmt.Errorf("failed to decode supported response: %w", err)
	}
	return &supportedResp, nil
}

func (c *FacilitatorClient) post(ctx context.Context, path, action string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(headerContentType, mimeApplicationJSON)
	if err := c.addAuthHeader(req, action); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("facilitator %s failed: %s", action, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	return nil
}

func (c *FacilitatorClient) addAuthHeader(req *http.Request, action string) error {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	if c.createAuthHeaders == nil {
		return nil
	}

	headers, err := c.createAuthHeaders()
	if err != nil {
		return fmt.Errorf("create auth headers: %w", err)
	}
	for key, value := range headers[action] {
		req.Header.Set(key, value)
	}
	return nil
}
