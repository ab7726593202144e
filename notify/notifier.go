// Package notify delivers alerts and audit batches to external HTTP
// endpoints, guarding each endpoint with its own circuit breaker.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"argus/core"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sourceName identifies this service in outbound payloads.
const sourceName = "security-auditor"

// alertPayload is the body posted for each dispatched alert.
type alertPayload struct {
	Event     *core.SecurityEvent `json:"event"`
	Timestamp time.Time           `json:"timestamp"`
	Source    string              `json:"source"`
}

// flushPayload is the body posted for each audit batch.
type flushPayload struct {
	Events    []*core.SecurityEvent `json:"events"`
	Timestamp time.Time             `json:"timestamp"`
	BatchID   string                `json:"batchId"`
}

// Notifier posts alerts and audit batches to the configured endpoints. It
// implements audit.AlertSink. Endpoint failures trip a per-endpoint
// circuit breaker so a dead receiver stops consuming the timeout budget.
type Notifier struct {
	alertURL string
	auditURL string
	client   *http.Client
	logger   *zap.SugaredLogger

	cbMutex         sync.RWMutex
	circuitBreakers map[string]*core.CircuitBreaker
}

// NewNotifier creates a notifier for the given endpoints. Either URL may
// be empty, in which case the corresponding delivery is skipped. A zero
// timeout falls back to core.HTTPClientTimeout.
func NewNotifier(alertURL, auditURL string, timeout time.Duration, logger *zap.SugaredLogger) *Notifier {
	if timeout <= 0 {
		timeout = core.HTTPClientTimeout
	}
	return &Notifier{
		alertURL: alertURL,
		auditURL: auditURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
		logger:          logger,
		circuitBreakers: make(map[string]*core.CircuitBreaker),
	}
}

// DispatchAlert posts a single alert-worthy event to the alert endpoint.
func (n *Notifier) DispatchAlert(ctx context.Context, e *core.SecurityEvent) error {
	if n.alertURL == "" {
		return nil
	}
	payload := alertPayload{
		Event:     e,
		Timestamp: time.Now().UTC(),
		Source:    sourceName,
	}
	return n.post(ctx, n.alertURL, payload)
}

// FlushEvents posts a batch of retained events to the audit-log endpoint.
func (n *Notifier) FlushEvents(ctx context.Context, events []*core.SecurityEvent) error {
	if n.auditURL == "" || len(events) == 0 {
		return nil
	}
	payload := flushPayload{
		Events:    events,
		Timestamp: time.Now().UTC(),
		BatchID:   uuid.New().String(),
	}
	return n.post(ctx, n.auditURL, payload)
}

func (n *Notifier) post(ctx context.Context, url string, payload interface{}) error {
	cb := n.getOrCreateCircuitBreaker(url)
	if err := cb.Allow(); err != nil {
		return fmt.Errorf("request to %s rejected: %w", url, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		cb.RecordFailure()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", sourceName)

	resp, err := n.client.Do(req)
	if err != nil {
		cb.RecordFailure()
		return fmt.Errorf("failed to POST to %s: %w", url, err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cb.RecordFailure()
		return fmt.Errorf("endpoint %s returned status %d", url, resp.StatusCode)
	}

	cb.RecordSuccess()
	return nil
}

// getOrCreateCircuitBreaker returns the breaker for an endpoint, creating
// it on first use.
func (n *Notifier) getOrCreateCircuitBreaker(url string) *core.CircuitBreaker {
	n.cbMutex.RLock()
	cb, exists := n.circuitBreakers[url]
	n.cbMutex.RUnlock()
	if exists {
		return cb
	}

	n.cbMutex.Lock()
	defer n.cbMutex.Unlock()
	if cb, exists = n.circuitBreakers[url]; exists {
		return cb
	}
	cb = core.MustNewCircuitBreaker(core.DefaultCircuitBreakerConfig())
	n.circuitBreakers[url] = cb
	return cb
}
