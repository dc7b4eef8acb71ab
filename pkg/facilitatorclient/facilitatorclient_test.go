package facilitatorclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	x402 "github.com/aeon-xyz/x402-go"
)

func testPayload() x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: 2,
		Payload:     map[string]interface{}{"signature": "0xaa"},
		Accepted: x402.PaymentRequirements{
			Scheme:  "exact",
			Network: "eip155:8453",
		},
	}
}

func testRequirements() x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:  "exact",
		Network: "eip155:8453",
		Asset:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		PayTo:   "0x2EC8A9A227c2bD64F20eC400a16DE1F8d2E53628",
		Amount:  "1000",
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req x402.VerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode verify request: %v", err)
		}
		if req.PaymentRequirements.Amount != "1000" {
			t.Errorf("requirements lost in transit: %+v", req.PaymentRequirements)
		}
		json.NewEncoder(w).Encode(x402.VerifyResponse{
			IsValid: true,
			Payer:   "0x34B78542283C26FE993EDF97AD90E1889e1AF510",
		})
	}))
	defer server.Close()

	client := NewFacilitatorClient(&Config{URL: server.URL})
	resp, err := client.Verify(context.Background(), testPayload(), testRequirements())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IsValid {
		t.Fatal("expected valid verification")
	}
	if resp.Payer != "0x34B78542283C26FE993EDF97AD90E1889e1AF510" {
		t.Fatalf("payer lost: %s", resp.Payer)
	}
}

func TestSettleRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/settle" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(x402.SettleResponse{
			Success:     true,
			Transaction: "0x5f1e2c8d",
			Network:     "eip155:8453",
		})
	}))
	defer server.Close()

	client := NewFacilitatorClient(&Config{URL: server.URL})
	resp, err := client.Settle(context.Background(), testPayload(), testRequirements())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success || resp.Transaction != "0x5f1e2c8d" {
		t.Fatalf("unexpected settlement: %+v", resp)
	}
}

func TestSupportedUsesGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/supported" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(x402.SupportedResponse{
			Kinds: []x402.SupportedKind{{X402Version: 2, Scheme: "exact", Network: "eip155:8453"}},
		})
	}))
	defer server.Close()

	client := NewFacilitatorClient(&Config{URL: server.URL})
	resp, err := client.Supported(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Kinds) != 1 || resp.Kinds[0].Scheme != "exact" {
		t.Fatalf("unexpected kinds: %+v", resp.Kinds)
	}
}

func TestBearerTokenSent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sekrit" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(x402.VerifyResponse{IsValid: true})
	}))
	defer server.Close()

	client := NewFacilitatorClient(&Config{URL: server.URL, BearerToken: "sekrit"})
	if _, err := client.Verify(context.Background(), testPayload(), testRequirements()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateAuthHeadersPerAction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "verify-key" {
			t.Errorf("per-action header missing, got %q", r.Header.Get("X-Api-Key"))
		}
		json.NewEncoder(w).Encode(x402.VerifyResponse{IsValid: true})
	}))
	defer server.Close()

	client := NewFacilitatorClient(&Config{
		URL: server.URL,
		CreateAuthHeaders: func() (map[string]map[string]string, error) {
			return map[string]map[string]string{
				"verify": {"X-Api-Key": "verify-key"},
				"settle": {"X-Api-Key": "settle-key"},
			}, nil
		},
	})
	if _, err := client.Verify(context.Background(), testPayload(), testRequirements()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNon200IsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewFacilitatorClient(&Config{URL: server.URL})
	if _, err := client.Verify(context.Background(), testPayload(), testRequirements()); err == nil {
		t.Fatal("expected error on 401")
	}
	if _, err := client.Supported(context.Background()); err == nil {
		t.Fatal("expected error on 401 supported")
	}
}

func TestDefaultURL(t *testing.T) {
	client := NewFacilitatorClient(nil)
	if client.url != DefaultFacilitatorURL {
		t.Fatalf("nil config must use the default URL, got %s", client.url)
	}
}
