package gin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	x402 "github.com/aeon-xyz/x402-go"
)

type fakeFacilitator struct {
	verifyResp  *x402.VerifyResponse
	verifyErr   error
	settleResp  *x402.SettleResponse
	settleErr   error
	verifyCalls int
	settleCalls int
}

func (f *fakeFacilitator) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if f.verifyResp != nil {
		return f.verifyResp, nil
	}
	return &x402.VerifyResponse{IsValid: true, Payer: "0x34B78542283C26FE993EDF97AD90E1889e1AF510"}, nil
}

func (f *fakeFacilitator) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	f.settleCalls++
	if f.settleErr != nil {
		return nil, f.settleErr
	}
	if f.settleResp != nil {
		return f.settleResp, nil
	}
	return &x402.SettleResponse{
		Success:     true,
		Transaction: "0x5f1e2c8d",
		Network:     requirements.Network,
		Payer:       "0x34B78542283C26FE993EDF97AD90E1889e1AF510",
	}, nil
}

func (f *fakeFacilitator) Supported(ctx context.Context) (*x402.SupportedResponse, error) {
	return &x402.SupportedResponse{}, nil
}

func premiumRoutes() []Route {
	return []Route{
		MustRoute(http.MethodGet, "/premium/.*", RouteConfig{
			Accepts: []x402.PaymentRequirements{{
				Scheme:  "exact",
				Network: "eip155:8453",
				Asset:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
				PayTo:   "0x2ec8a9a227c2bd64f20ec400a16de1f8d2e53628",
				Amount:  "1000",
			}},
			Description: "premium content",
		}),
	}
}

func newTestRouter(facilitator x402.FacilitatorClient, routes []Route, opts ...Option) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(PaymentMiddleware(routes, facilitator, opts...))
	router.GET("/free", func(c *gin.Context) {
		c.String(http.StatusOK, "free content")
	})
	router.GET("/premium/report", func(c *gin.Context) {
		c.String(http.StatusOK, "paid content")
	})
	router.GET("/premium/broken", func(c *gin.Context) {
		c.String(http.StatusBadGateway, "upstream down")
	})
	return router
}

func paymentHeader(t *testing.T) string {
	t.Helper()
	encoded, err := x402.EncodePaymentPayload(x402.PaymentPayload{
		X402Version: 2,
		Payload:     map[string]interface{}{"signature": "0xaa"},
		Accepted: x402.PaymentRequirements{
			Scheme:  "exact",
			Network: "eip155:8453",
		},
	})
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}
	return encoded
}

func TestUnmatchedRoutePassesThrough(t *testing.T) {
	facilitator := &fakeFacilitator{}
	router := newTestRouter(facilitator, premiumRoutes())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/free", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "free content" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if facilitator.verifyCalls != 0 {
		t.Fatal("unmatched route must not hit the facilitator")
	}
}

func TestMissingPaymentReturns402JSON(t *testing.T) {
	router := newTestRouter(&fakeFacilitator{}, premiumRoutes(),
		WithResourceRootURL("https://api.example.com"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/premium/report", nil))

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", w.Code)
	}
	if w.Header().Get("payment-required") == "" {
		t.Fatal("missing payment-required header")
	}

	var body struct {
		Error       string                     `json:"error"`
		Accepts     []x402.PaymentRequirements `json:"accepts"`
		X402Version int                        `json:"x402Version"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid 402 body: %v", err)
	}
	if body.X402Version != x402.ProtocolVersion {
		t.Fatalf("wrong version %d", body.X402Version)
	}
	if len(body.Accepts) != 1 {
		t.Fatalf("expected one requirement, got %d", len(body.Accepts))
	}
	if body.Accepts[0].Resource != "https://api.example.com/premium/report" {
		t.Fatalf("resource not filled: %s", body.Accepts[0].Resource)
	}
	if body.Accepts[0].PayTo != "0x2EC8A9A227c2bD64F20eC400a16DE1F8d2E53628" {
		t.Fatalf("payTo not checksummed: %s", body.Accepts[0].PayTo)
	}
}

func TestBrowserGetsPaywallHTML(t *testing.T) {
	router := newTestRouter(&fakeFacilitator{}, premiumRoutes())

	req := httptest.NewRequest(http.MethodGet, "/premium/report", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("expected HTML paywall, got %s", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "window.x402") {
		t.Fatal("paywall page is missing the embedded payment context")
	}
}

func TestMalformedPaymentHeader(t *testing.T) {
	router := newTestRouter(&fakeFacilitator{}, premiumRoutes())

	req := httptest.NewRequest(http.MethodGet, "/premium/report", nil)
	req.Header.Set("X-PAYMENT", "not base64!!!")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", w.Code)
	}
}

func TestNoMatchingRequirements(t *testing.T) {
	router := newTestRouter(&fakeFacilitator{}, premiumRoutes())

	encoded, err := x402.EncodePaymentPayload(x402.PaymentPayload{
		X402Version: 2,
		Payload:     map[string]interface{}{},
		Accepted:    x402.PaymentRequirements{Scheme: "exact", Network: "eip155:1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/premium/report", nil)
	req.Header.Set("X-PAYMENT", encoded)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Unable to find matching payment requirements") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestVerifyRejectionIncludesPayer(t *testing.T) {
	facilitator := &fakeFacilitator{
		verifyResp: &x402.VerifyResponse{
			IsValid:       false,
			InvalidReason: "insufficient_funds",
			Payer:         "0x34B78542283C26FE993EDF97AD90E1889e1AF510",
		},
	}
	router := newTestRouter(facilitator, premiumRoutes())

	req := httptest.NewRequest(http.MethodGet, "/premium/report", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "insufficient_funds" {
		t.Fatalf("reason lost: %v", body["error"])
	}
	if body["payer"] != "0x34B78542283C26FE993EDF97AD90E1889e1AF510" {
		t.Fatalf("payer lost: %v", body["payer"])
	}
	if facilitator.settleCalls != 0 {
		t.Fatal("invalid payment must not settle")
	}
}

func TestHappyPathSettlesAndSetsResponseHeader(t *testing.T) {
	facilitator := &fakeFacilitator{}
	router := newTestRouter(facilitator, premiumRoutes())

	req := httptest.NewRequest(http.MethodGet, "/premium/report", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "paid content" {
		t.Fatalf("downstream body lost: %s", w.Body.String())
	}
	if facilitator.verifyCalls != 1 || facilitator.settleCalls != 1 {
		t.Fatalf("verify=%d settle=%d", facilitator.verifyCalls, facilitator.settleCalls)
	}

	settled, err := x402.DecodeSettleResponse(w.Header().Get("X-PAYMENT-RESPONSE"))
	if err != nil {
		t.Fatalf("invalid settlement header: %v", err)
	}
	if !settled.Success || settled.Transaction != "0x5f1e2c8d" {
		t.Fatalf("unexpected settlement: %+v", settled)
	}
}

func TestPaymentSignatureHeaderAccepted(t *testing.T) {
	facilitator := &fakeFacilitator{}
	router := newTestRouter(facilitator, premiumRoutes())

	req := httptest.NewRequest(http.MethodGet, "/premium/report", nil)
	req.Header.Set("payment-signature", paymentHeader(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if facilitator.settleCalls != 1 {
		t.Fatal("v2 header name must work like X-PAYMENT")
	}
}

func TestDownstreamErrorSkipsSettlement(t *testing.T) {
	facilitator := &fakeFacilitator{}
	router := newTestRouter(facilitator, premiumRoutes())

	req := httptest.NewRequest(http.MethodGet, "/premium/broken", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if facilitator.settleCalls != 0 {
		t.Fatal("failed downstream response must not be charged")
	}
	if w.Header().Get("X-PAYMENT-RESPONSE") != "" {
		t.Fatal("no settlement header without settlement")
	}
}

func TestSettlementFailureReplacesResponse(t *testing.T) {
	facilitator := &fakeFacilitator{
		settleResp: &x402.SettleResponse{
			Success:     false,
			ErrorReason: "nonce_used",
			Payer:       "0x34B78542283C26FE993EDF97AD90E1889e1AF510",
		},
	}
	router := newTestRouter(facilitator, premiumRoutes())

	req := httptest.NewRequest(http.MethodGet, "/premium/report", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 on settle failure, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "paid content") {
		t.Fatal("downstream body must not leak when settlement fails")
	}
}

func TestVerifyTransportErrorIs500(t *testing.T) {
	facilitator := &fakeFacilitator{verifyErr: errors.New("facilitator unreachable")}
	router := newTestRouter(facilitator, premiumRoutes())

	req := httptest.NewRequest(http.MethodGet, "/premium/report", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestPriceShorthandSynthesizesRequirements(t *testing.T) {
	routes := []Route{
		MustRoute(http.MethodGet, "/priced", RouteConfig{
			Price:   "$0.01",
			Network: "eip155:8453",
			PayTo:   "0x2EC8A9A227c2bD64F20eC400a16DE1F8d2E53628",
		}),
	}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(PaymentMiddleware(routes, &fakeFacilitator{}))
	router.GET("/priced", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/priced", nil))

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", w.Code)
	}
	var body struct {
		Accepts []x402.PaymentRequirements `json:"accepts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Accepts) != 1 {
		t.Fatalf("expected one synthesized requirement, got %d", len(body.Accepts))
	}
	// 0.01 USDC at 6 decimals.
	if body.Accepts[0].Amount != "10000" {
		t.Fatalf("wrong atomic amount: %s", body.Accepts[0].Amount)
	}
	if body.Accepts[0].Asset == "" {
		t.Fatal("default asset not filled")
	}
}
