// Package service exposes a registry of scheme mechanisms as the facilitator
// HTTP API: POST /verify, /settle and /supported.
package service

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	x402 "github.com/aeon-xyz/x402-go"
	x402http "github.com/aeon-xyz/x402-go/http"
)

// Service wraps a facilitator registry with HTTP handlers, optional Bearer
// auth, settlement idempotency and Prometheus metrics.
type Service struct {
	facilitator   *x402.Facilitator
	bearerToken   string
	store         SettlementStore
	settlementTTL time.Duration
	metrics       *metrics
	logger        *log.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithBearerToken requires an Authorization: Bearer header on every endpoint.
func WithBearerToken(token string) ServiceOption {
	return func(s *Service) { s.bearerToken = token }
}

// WithSettlementStore replaces the in-memory idempotency store.
func WithSettlementStore(store SettlementStore) ServiceOption {
	return func(s *Service) { s.store = store }
}

// WithSettlementTTL overrides how long settlement results are replayed.
func WithSettlementTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.settlementTTL = ttl }
}

// WithServiceLogger overrides the service logger.
func WithServiceLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates the facilitator HTTP service.
func NewService(facilitator *x402.Facilitator, opts ...ServiceOption) *Service {
	s := &Service{
		facilitator:   facilitator,
		store:         NewMemoryStore(),
		settlementTTL: DefaultSettlementTTL,
		metrics:       newMetrics(),
		logger:        log.New(os.Stderr, "[facilitator] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with all facilitator endpoints.
func (s *Service) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	authed := router.Group("/", s.authMiddleware())
	authed.POST("/verify", s.handleVerify)
	authed.POST("/settle", s.handleSettle)
	authed.POST("/supported", s.handleSupported)
	authed.GET("/supported", s.handleSupported)

	return router
}

// Run starts the service on the given address.
func (s *Service) Run(addr string) error {
	return s.Router().Run(addr)
}

func (s *Service) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.bearerToken == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.bearerToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid bearer token"})
			return
		}
		c.Next()
	}
}

func (s *Service) handleVerify(c *gin.Context) {
	started := time.Now()

	var req x402.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"isValid":       false,
			"invalidReason": x402.ReasonInvalidPayload,
			"error":         err.Error(),
		})
		return
	}

	if err := validateWirePayload(req.PaymentPayload); err != nil {
		c.JSON(http.StatusBadRequest, x402.VerifyResponse{
			IsValid:       false,
			InvalidReason: x402.ReasonInvalidPayload,
		})
		return
	}

	resp, err := s.facilitator.Verify(c.Request.Context(), req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		s.logger.Printf("verify error: %v", err)
		c.JSON(http.StatusInternalServerError, x402.VerifyResponse{
			IsValid:       false,
			InvalidReason: x402.ReasonUnexpectedVerifyError,
		})
		return
	}

	s.metrics.observeVerify(string(req.PaymentRequirements.Network), resp.IsValid, time.Since(started))

	if !resp.IsValid {
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Service) handleSettle(c *gin.Context) {
	started := time.Now()

	var req x402.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":     false,
			"errorReason": x402.ReasonInvalidPayload,
			"error":       err.Error(),
		})
		return
	}

	if err := validateWirePayload(req.PaymentPayload); err != nil {
		c.JSON(http.StatusBadRequest, x402.SettleResponse{
			Success:     false,
			ErrorReason: x402.ReasonInvalidPayload,
			Network:     req.PaymentRequirements.Network,
		})
		return
	}

	// Duplicate settle requests replay the original receipt.
	key := settlementKey(req.PaymentPayload)
	if key != "" {
		if cached, ok, err := s.store.Get(c.Request.Context(), key); err != nil {
			s.logger.Printf("settlement store read failed: %v", err)
		} else if ok {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	resp, err := s.facilitator.Settle(c.Request.Context(), req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		s.logger.Printf("settle error: %v", err)
		c.JSON(http.StatusInternalServerError, x402.SettleResponse{
			Success:     false,
			ErrorReason: x402.ReasonUnexpectedSettleError,
			Network:     req.PaymentRequirements.Network,
		})
		return
	}

	s.metrics.observeSettle(string(req.PaymentRequirements.Network), resp.Success, time.Since(started))

	if resp.Success && key != "" {
		if err := s.store.Put(c.Request.Context(), key, *resp, s.settlementTTL); err != nil {
			s.logger.Printf("settlement store write failed: %v", err)
		}
	}

	if !resp.Success {
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Service) handleSupported(c *gin.Context) {
	resp, err := s.facilitator.Supported(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// validateWirePayload runs the JSON-schema check on the raw payload document.
func validateWirePayload(payload x402.PaymentPayload) error {
	doc, err := json.Marshal(map[string]interface{}{
		"x402Version": payload.X402Version,
		"payload":     payload.Payload,
	})
	if err != nil {
		return err
	}
	return x402http.ValidatePayloadJSON(doc)
}

// settlementKey derives the idempotency key from the payer and authorization
// nonce; the pair is unique per signed authorization.
func settlementKey(payload x402.PaymentPayload) string {
	auth, ok := payload.Payload["authorization"].(map[string]interface{})
	if !ok {
		return ""
	}
	from, _ := auth["from"].(string)
	nonce, _ := auth["nonce"].(string)
	if from == "" || nonce == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", strings.ToLower(from), strings.ToLower(nonce))
}
