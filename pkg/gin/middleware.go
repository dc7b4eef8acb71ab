// Package gin provides the resource-server payment middleware.
package gin

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	x402 "github.com/aeon-xyz/x402-go"
	x402http "github.com/aeon-xyz/x402-go/http"
	"github.com/aeon-xyz/x402-go/mechanisms/evm"
)

const (
	headerPayment          = "X-PAYMENT"
	headerPaymentResponse  = "X-PAYMENT-RESPONSE"
	headerPaymentSignature = "payment-signature"
	headerPaymentRequired  = "payment-required"
)

// RouteConfig describes the payment gate for one route pattern.
type RouteConfig struct {
	// Accepts lists the requirement templates offered in the 402 response.
	// Resource and payTo normalization happens per request.
	Accepts []x402.PaymentRequirements

	// Price is a shorthand used when Accepts is empty: a human-readable
	// amount (e.g. "0.01") charged in the network's default asset.
	Price   string
	Network x402.Network
	PayTo   string

	Description string
	MimeType    string
}

// Route binds an HTTP method and path pattern to a payment gate.
type Route struct {
	Method  string
	Pattern *regexp.Regexp
	Config  RouteConfig
}

// NewRoute compiles a route entry. The pattern is anchored to the full path.
func NewRoute(method, pathPattern string, config RouteConfig) (Route, error) {
	if !strings.HasPrefix(pathPattern, "^") {
		pathPattern = "^" + pathPattern
	}
	if !strings.HasSuffix(pathPattern, "$") {
		pathPattern = pathPattern + "$"
	}
	re, err := regexp.Compile(pathPattern)
	if err != nil {
		return Route{}, fmt.Errorf("invalid route pattern %q: %w", pathPattern, err)
	}
	return Route{Method: strings.ToUpper(method), Pattern: re, Config: config}, nil
}

// MustRoute is NewRoute for static route tables.
func MustRoute(method, pathPattern string, config RouteConfig) Route {
	route, err := NewRoute(method, pathPattern, config)
	if err != nil {
		panic(err)
	}
	return route
}

// MiddlewareOptions configures the payment middleware.
type MiddlewareOptions struct {
	ResourceRootURL   string
	CustomPaywallHTML string
	Logger            *log.Logger
}

// Option configures MiddlewareOptions.
type Option func(*MiddlewareOptions)

// WithResourceRootURL sets the base URL prepended to the request path when a
// requirement template has no resource of its own.
func WithResourceRootURL(rootURL string) Option {
	return func(o *MiddlewareOptions) { o.ResourceRootURL = strings.TrimSuffix(rootURL, "/") }
}

// WithCustomPaywallHTML replaces the default browser paywall page.
func WithCustomPaywallHTML(html string) Option {
	return func(o *MiddlewareOptions) { o.CustomPaywallHTML = html }
}

// WithMiddlewareLogger overrides the middleware logger.
func WithMiddlewareLogger(logger *log.Logger) Option {
	return func(o *MiddlewareOptions) { o.Logger = logger }
}

// PaymentMiddleware gates the configured routes behind the x402 protocol,
// delegating verification and settlement to the facilitator.
func PaymentMiddleware(routes []Route, facilitator x402.FacilitatorClient, opts ...Option) gin.HandlerFunc {
	options := &MiddlewareOptions{
		Logger: log.New(os.Stderr, "[x402] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(options)
	}

	return func(c *gin.Context) {
		route := matchRoute(routes, c.Request.Method, c.Request.URL.Path)
		if route == nil {
			c.Next()
			return
		}

		accepts, err := effectiveRequirements(route.Config, options, c)
		if err != nil {
			options.Logger.Printf("bad route config for %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       err.Error(),
				"x402Version": x402.ProtocolVersion,
			})
			return
		}

		header := c.GetHeader(headerPayment)
		if header == "" {
			header = c.GetHeader(headerPaymentSignature)
		}
		if header == "" {
			respondPaymentRequired(c, options, accepts, "payment header is required")
			return
		}

		payload, err := x402.DecodePaymentPayload(header)
		if err != nil {
			respond402JSON(c, accepts, err.Error(), "")
			return
		}

		selected := x402.MatchRequirements(accepts, payload)
		if selected == nil {
			respond402JSON(c, accepts, "Unable to find matching payment requirements", "")
			return
		}

		verifyResp, err := facilitator.Verify(c.Request.Context(), payload, *selected)
		if err != nil {
			options.Logger.Printf("verify failed: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       err.Error(),
				"x402Version": payload.X402Version,
			})
			return
		}
		if !verifyResp.IsValid {
			respond402JSON(c, accepts, verifyResp.InvalidReason, verifyResp.Payer)
			return
		}

		// Capture the downstream response so settlement can still replace it.
		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &strings.Builder{},
			statusCode:     http.StatusOK,
		}
		c.Writer = writer

		c.Next()

		c.Writer = writer.ResponseWriter

		if c.IsAborted() || writer.statusCode >= http.StatusBadRequest {
			// Downstream refused the request; nothing to settle.
			writer.flush(c)
			return
		}

		settleResp, err := facilitator.Settle(context.WithoutCancel(c.Request.Context()), payload, *selected)
		if err != nil {
			options.Logger.Printf("settle failed: %v", err)
			respond402JSON(c, accepts, err.Error(), verifyResp.Payer)
			return
		}
		if !settleResp.Success {
			respond402JSON(c, accepts, settleResp.ErrorReason, settleResp.Payer)
			return
		}

		encoded, err := x402.EncodeSettleResponse(*settleResp)
		if err != nil {
			options.Logger.Printf("settle header encoding failed: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       err.Error(),
				"x402Version": payload.X402Version,
			})
			return
		}

		c.Header(headerPaymentResponse, encoded)
		writer.flush(c)
	}
}

func matchRoute(routes []Route, method, path string) *Route {
	for i := range routes {
		route := &routes[i]
		if route.Method != "" && route.Method != strings.ToUpper(method) {
			continue
		}
		if route.Pattern.MatchString(path) {
			return route
		}
	}
	return nil
}

// effectiveRequirements materializes the route's templates for this request:
// resource filled from the request URL, payTo checksummed, price shorthand
// expanded against the network's default asset.
func effectiveRequirements(config RouteConfig, options *MiddlewareOptions, c *gin.Context) ([]x402.PaymentRequirements, error) {
	accepts := config.Accepts
	if len(accepts) == 0 {
		synthesized, err := synthesizeFromPrice(config)
		if err != nil {
			return nil, err
		}
		accepts = []x402.PaymentRequirements{synthesized}
	}

	resourceURL := options.ResourceRootURL + c.Request.URL.Path

	out := make([]x402.PaymentRequirements, len(accepts))
	for i, req := range accepts {
		if req.Resource == "" {
			req.Resource = resourceURL
		}
		req.PayTo = evm.ChecksumAddress(req.PayTo)
		if req.Description == "" {
			req.Description = config.Description
		}
		if req.MimeType == "" {
			req.MimeType = config.MimeType
		}
		out[i] = req
	}
	return out, nil
}

// synthesizeFromPrice expands the Price shorthand into a full requirement
// using the network's default asset.
func synthesizeFromPrice(config RouteConfig) (x402.PaymentRequirements, error) {
	if config.Price == "" || config.Network == "" || config.PayTo == "" {
		return x402.PaymentRequirements{}, fmt.Errorf("route config needs either accepts or price, network and payTo")
	}

	networkStr := string(config.Network)
	netCfg, ok := evm.GetNetworkConfig(networkStr)
	if !ok {
		return x402.PaymentRequirements{}, fmt.Errorf("unsupported network: %s", config.Network)
	}
	asset := netCfg.DefaultAsset

	amount, ok := new(big.Float).SetPrec(256).SetString(strings.TrimPrefix(config.Price, "$"))
	if !ok {
		return x402.PaymentRequirements{}, fmt.Errorf("invalid price: %s", config.Price)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(asset.Decimals)), nil)
	atomic, _ := new(big.Float).Mul(amount, new(big.Float).SetPrec(256).SetInt(scale)).Int(nil)

	return x402.PaymentRequirements{
		Scheme:            evm.SchemeExact,
		Network:           config.Network,
		Asset:             asset.Address,
		PayTo:             config.PayTo,
		Amount:            atomic.String(),
		MaxTimeoutSeconds: 60,
		Description:       config.Description,
		MimeType:          config.MimeType,
		Extra: map[string]interface{}{
			"name":    asset.Name,
			"version": asset.Version,
		},
	}, nil
}

// respondPaymentRequired answers a paymentless request: HTML paywall for
// browsers, JSON (plus the v2 payment-required header) for everything else.
func respondPaymentRequired(c *gin.Context, options *MiddlewareOptions, accepts []x402.PaymentRequirements, errMsg string) {
	required := x402.PaymentRequired{
		X402Version: x402.ProtocolVersion,
		Error:       errMsg,
		Accepts:     accepts,
	}
	if len(accepts) > 0 {
		required.Resource = &x402.ResourceInfo{
			URL:         accepts[0].Resource,
			Description: accepts[0].Description,
			MimeType:    accepts[0].MimeType,
		}
	}

	if encoded, err := x402.EncodePaymentRequired(required); err == nil {
		c.Header(headerPaymentRequired, encoded)
	}

	if isWebBrowser(c) {
		html := options.CustomPaywallHTML
		if html == "" {
			rendered, err := x402http.RenderPaywall(required)
			if err != nil {
				options.Logger.Printf("paywall render failed: %v", err)
				rendered = "<html><body>Payment Required</body></html>"
			}
			html = rendered
		}
		c.Abort()
		c.Data(http.StatusPaymentRequired, "text/html; charset=utf-8", []byte(html))
		return
	}

	c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
		"error":       errMsg,
		"accepts":     accepts,
		"x402Version": x402.ProtocolVersion,
	})
}

func respond402JSON(c *gin.Context, accepts []x402.PaymentRequirements, errMsg, payer string) {
	body := gin.H{
		"error":       errMsg,
		"accepts":     accepts,
		"x402Version": x402.ProtocolVersion,
	}
	if payer != "" {
		body["payer"] = payer
	}
	c.AbortWithStatusJSON(http.StatusPaymentRequired, body)
}

func isWebBrowser(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html") &&
		strings.Contains(c.GetHeader("User-Agent"), "Mozilla")
}

// responseWriter captures the downstream response so the settlement header
// can be added, or the whole response replaced, after the handler runs.
type responseWriter struct {
	gin.ResponseWriter
	body       *strings.Builder
	statusCode int
	written    bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	w.body.Write(b)
	return len(b), nil
}

func (w *responseWriter) WriteString(s string) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.WriteString(s)
}

func (w *responseWriter) flush(c *gin.Context) {
	c.Writer.WriteHeader(w.statusCode)
	c.Writer.Write([]byte(w.body.String()))
}
