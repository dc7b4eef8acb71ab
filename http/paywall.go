// Package x402http carries the HTTP-facing helpers shared by the middleware
// and the facilitator service: the browser paywall page and wire-payload
// schema validation.
package x402http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"

	x402 "github.com/aeon-xyz/x402-go"
)

var paywallTemplate = template.Must(template.New("paywall").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Payment Required</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 0;
         display: flex; min-height: 100vh; align-items: center; justify-content: center;
         background: #f6f7f9; color: #1a1d21; }
  .card { background: #fff; border-radius: 12px; padding: 40px 48px; max-width: 480px;
          box-shadow: 0 4px 24px rgba(0,0,0,.08); }
  h1 { margin: 0 0 8px; font-size: 22px; }
  p  { margin: 0 0 20px; color: #555b63; line-height: 1.5; }
  .amount { font-size: 28px; font-weight: 600; margin-bottom: 4px; }
  .detail { font-size: 13px; color: #8a9099; word-break: break-all; }
</style>
</head>
<body>
<div class="card">
  <h1>Payment Required</h1>
  <p>{{.Description}}</p>
  {{range .Accepts}}<div class="amount">{{.DisplayAmount}}</div>
  <div class="detail">network {{.Network}} &middot; pay to {{.PayTo}}</div>
  {{end}}
</div>
<script>
  window.x402 = JSON.parse({{.RequirementsJSON}});
</script>
</body>
</html>
`))

type paywallAccept struct {
	DisplayAmount string
	Network       string
	PayTo         string
}

type paywallData struct {
	Description      string
	Accepts          []paywallAccept
	RequirementsJSON string
}

// RenderPaywall produces the browser-facing 402 page with the payment
// requirements injected as JSON for wallet extensions to pick up.
func RenderPaywall(required x402.PaymentRequired) (string, error) {
	raw, err := json.Marshal(required)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment required: %w", err)
	}

	data := paywallData{
		Description:      "Access to this resource requires payment.",
		RequirementsJSON: string(raw),
	}
	if required.Resource != nil && required.Resource.Description != "" {
		data.Description = required.Resource.Description
	}
	for _, req := range required.Accepts {
		display := req.AmountRequired
		if display == "" {
			display = req.Amount
		}
		if display == "" {
			display = req.MaxAmountRequired
		}
		data.Accepts = append(data.Accepts, paywallAccept{
			DisplayAmount: display,
			Network:       string(req.Network),
			PayTo:         req.PayTo,
		})
	}

	var buf bytes.Buffer
	if err := paywallTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render paywall: %w", err)
	}
	return buf.String(), nil
}
