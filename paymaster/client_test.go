package paymaster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestValidateSponsorable(t *testing.T) {
	policy := uuid.New()
	var received SponsorRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/validate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %s", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(SponsorDecision{Sponsorable: true})
	}))
	defer server.Close()

	client := NewClient(server.URL, policy)
	decision, err := client.Validate(context.Background(), SponsorRequest{
		RequestID: "req-1",
		ChainID:   56,
		From:      "0x34B78542283C26FE993EDF97AD90E1889e1AF510",
		To:        "0x555e3311a9893c9B17444C1Ff0d88192a57Ef13e",
		Data:      "0xdeadbeef",
		GasPrice:  "0",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Sponsorable {
		t.Fatal("expected sponsorable decision")
	}
	if received.PolicyID != policy.String() {
		t.Fatalf("policy not injected: %q", received.PolicyID)
	}
	if received.GasPrice != "0" {
		t.Fatalf("gas price not forwarded: %q", received.GasPrice)
	}
}

func TestValidateDeclinedIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SponsorDecision{Sponsorable: false, Reason: "policy exhausted"})
	}))
	defer server.Close()

	client := NewClient(server.URL, uuid.New())
	decision, err := client.Validate(context.Background(), SponsorRequest{RequestID: "req-2"})
	if err != nil {
		t.Fatalf("declined sponsorship must not error: %v", err)
	}
	if decision.Sponsorable {
		t.Fatal("expected a declined decision")
	}
	if decision.Reason != "policy exhausted" {
		t.Fatalf("reason lost: %q", decision.Reason)
	}
}

func TestValidateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, uuid.New())
	if _, err := client.Validate(context.Background(), SponsorRequest{}); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestValidateUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", uuid.New())
	if _, err := client.Validate(context.Background(), SponsorRequest{}); err == nil {
		t.Fatal("expected error for unreachable sponsor")
	}
}
