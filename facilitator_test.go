package x402

import (
	"context"
	"testing"
)

type mockSchemeNetworkFacilitator struct {
	scheme  string
	signers []string
	verify  func(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error)
	settle  func(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettleResponse, error)
}

func (m *mockSchemeNetworkFacilitator) Scheme() string {
	return m.scheme
}

func (m *mockSchemeNetworkFacilitator) CaipFamily() string {
	return "eip155:*"
}

func (m *mockSchemeNetworkFacilitator) GetExtra(network Network) map[string]interface{} {
	return nil
}

func (m *mockSchemeNetworkFacilitator) GetSigners(network Network) []string {
	return m.signers
}

func (m *mockSchemeNetworkFacilitator) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error) {
	if m.verify != nil {
		return m.verify(ctx, payload, requirements)
	}
	return &VerifyResponse{IsValid: true, Payer: "0xmockpayer"}, nil
}

func (m *mockSchemeNetworkFacilitator) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettleResponse, error) {
	if m.settle != nil {
		return m.settle(ctx, payload, requirements)
	}
	return &SettleResponse{
		Success:     true,
		Transaction: "0xmocktx",
		Payer:       "0xmockpayer",
		Network:     requirements.Network,
	}, nil
}

func validPayload(scheme string, network Network) PaymentPayload {
	return PaymentPayload{
		X402Version: 2,
		Payload:     map[string]interface{}{"authorization": map[string]interface{}{}},
		Accepted:    PaymentRequirements{Scheme: scheme, Network: network},
	}
}

func TestFacilitatorRegisterAndVerify(t *testing.T) {
	facilitator := NewFacilitator()
	facilitator.Register("eip155:56", &mockSchemeNetworkFacilitator{scheme: "exact"})

	resp, err := facilitator.Verify(context.Background(),
		validPayload("exact", "eip155:56"),
		PaymentRequirements{Scheme: "exact", Network: "eip155:56"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IsValid {
		t.Fatalf("expected valid, got reason %s", resp.InvalidReason)
	}
}

func TestFacilitatorWildcardRouting(t *testing.T) {
	facilitator := NewFacilitator()
	facilitator.Register("eip155:*", &mockSchemeNetworkFacilitator{scheme: "exact"})

	resp, err := facilitator.Verify(context.Background(),
		validPayload("exact", "eip155:8453"),
		PaymentRequirements{Scheme: "exact", Network: "eip155:8453"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IsValid {
		t.Fatal("expected wildcard registration to serve eip155:8453")
	}
}

func TestFacilitatorUnsupportedScheme(t *testing.T) {
	facilitator := NewFacilitator()
	facilitator.Register("eip155:56", &mockSchemeNetworkFacilitator{scheme: "exact"})

	resp, err := facilitator.Verify(context.Background(),
		validPayload("other", "eip155:56"),
		PaymentRequirements{Scheme: "other", Network: "eip155:56"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.IsValid {
		t.Fatal("expected invalid result")
	}
	if resp.InvalidReason != ReasonUnsupportedScheme {
		t.Fatalf("expected %s, got %s", ReasonUnsupportedScheme, resp.InvalidReason)
	}
}

func TestFacilitatorVersionGuard(t *testing.T) {
	facilitator := NewFacilitator()
	facilitator.Register("eip155:56", &mockSchemeNetworkFacilitator{scheme: "exact"})

	payload := validPayload("exact", "eip155:56")
	payload.X402Version = 3

	resp, err := facilitator.Verify(context.Background(), payload,
		PaymentRequirements{Scheme: "exact", Network: "eip155:56"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.InvalidReason != ReasonInvalidX402Version {
		t.Fatalf("expected %s, got %s", ReasonInvalidX402Version, resp.InvalidReason)
	}
}

func TestFacilitatorSettleUnroutable(t *testing.T) {
	facilitator := NewFacilitator()

	resp, err := facilitator.Settle(context.Background(),
		validPayload("exact", "eip155:56"),
		PaymentRequirements{Scheme: "exact", Network: "eip155:56"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Success {
		t.Fatal("expected settle failure")
	}
	if resp.ErrorReason != ReasonUnsupportedScheme {
		t.Fatalf("expected %s, got %s", ReasonUnsupportedScheme, resp.ErrorReason)
	}
}

func TestFacilitatorSupported(t *testing.T) {
	facilitator := NewFacilitator()
	facilitator.Register("eip155:56", &mockSchemeNetworkFacilitator{scheme: "exact"})
	facilitator.Register("eip155:8453", &mockSchemeNetworkFacilitator{scheme: "exact"})

	resp, err := facilitator.Supported(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Kinds) != 2 {
		t.Fatalf("expected 2 kinds, got %d", len(resp.Kinds))
	}
	for _, kind := range resp.Kinds {
		if kind.Scheme != "exact" {
			t.Fatalf("unexpected scheme %s", kind.Scheme)
		}
	}
}
