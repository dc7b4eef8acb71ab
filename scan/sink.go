// Package scan ships settlement telemetry to the scan indexer. Delivery is
// fire and forget: a full queue drops records rather than blocking the
// settlement path.
package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// DefaultURL is the scan indexer ingestion endpoint.
const DefaultURL = "https://x402-scan-api.aeon.xyz/api/scan/manager/createTransaction"

const (
	defaultQueueSize   = 64
	defaultSendTimeout = 10 * time.Second
)

// Record is one settled transaction as reported to the indexer. It carries
// the full authorization alongside the requirement amount so the indexer can
// reconcile the transfer without another chain read.
type Record struct {
	Network     string `json:"network"`
	Asset       string `json:"asset"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
	Amount      string `json:"amount,omitempty"`
	Transaction string `json:"transaction"`
	Resource    string `json:"resource,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// Sink buffers records on a bounded channel and delivers them from a single
// background worker.
type Sink struct {
	url        string
	httpClient *http.Client
	logger     *log.Logger

	queue     chan Record
	closeOnce sync.Once
	done      chan struct{}
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithSinkHTTPClient overrides the underlying HTTP client.
func WithSinkHTTPClient(httpClient *http.Client) SinkOption {
	return func(s *Sink) { s.httpClient = httpClient }
}

// WithQueueSize overrides the bounded queue capacity.
func WithQueueSize(size int) SinkOption {
	return func(s *Sink) { s.queue = make(chan Record, size) }
}

// WithSinkLogger overrides the sink logger.
func WithSinkLogger(logger *log.Logger) SinkOption {
	return func(s *Sink) { s.logger = logger }
}

// NewSink creates a sink delivering to the given URL (DefaultURL when empty)
// and starts its worker.
func NewSink(url string, opts ...SinkOption) *Sink {
	if url == "" {
		url = DefaultURL
	}
	s := &Sink{
		url:        url,
		httpClient: &http.Client{Timeout: defaultSendTimeout},
		logger:     log.New(os.Stderr, "[scan] ", log.LstdFlags),
		queue:      make(chan Record, defaultQueueSize),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Enqueue submits a record for delivery. It never blocks; when the queue is
// full the record is dropped and counted in the log.
func (s *Sink) Enqueue(rec Record) {
	select {
	case s.queue <- rec:
	default:
		s.logger.Printf("queue full, dropping record for tx %s", rec.Transaction)
	}
}

// Close stops the worker after draining queued records.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
		<-s.done
	})
}

func (s *Sink) run() {
	defer close(s.done)
	for rec := range s.queue {
		s.deliver(rec)
	}
}

func (s *Sink) deliver(rec Record) {
	body, err := json.Marshal(rec)
	if err != nil {
		s.logger.Printf("failed to marshal record for tx %s: %v", rec.Transaction, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		s.logger.Printf("failed to create scan request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Printf("scan delivery failed for tx %s: %v", rec.Transaction, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		s.logger.Printf("scan delivery rejected for tx %s: status %d", rec.Transaction, resp.StatusCode)
	}
}
