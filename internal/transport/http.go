package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sweeney/pulse-relay/internal/logic"
)

// maxResponseBytes bounds how much of a collector response is read.
const maxResponseBytes = 64 << 10

// HTTPTransport talks to the collector's JSON API.
type HTTPTransport struct {
	client    *http.Client
	baseURL   string
	connected atomic.Bool
}

// NewHTTPTransport creates a transport for the collector at baseURL
// (e.g. "http://collector.local/api"). timeout bounds each request.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Announce posts the device's hardware address to /device_connected.
func (t *HTTPTransport) Announce(ctx context.Context, deviceAddress string) error {
	body, err := json.Marshal(AnnouncePayload{MACAddress: deviceAddress})
	if err != nil {
		return fmt.Errorf("format announce: %w", err)
	}
	_, err = t.post(ctx, "announce", "/device_connected", body)
	return err
}

// AcquireRunID posts to /runs and returns the id in the response.
func (t *HTTPTransport) AcquireRunID(ctx context.Context) (string, error) {
	resp, err := t.post(ctx, "acquire run", "/runs", nil)
	if err != nil {
		return "", err
	}
	return ParseRunID(resp)
}

// SubmitBatch posts the batch to /run/{id}/datapoints.
func (t *HTTPTransport) SubmitBatch(ctx context.Context, runID string, batch logic.Batch) error {
	body, err := FormatDatapoints(batch)
	if err != nil {
		return fmt.Errorf("format datapoints: %w", err)
	}
	_, err = t.post(ctx, "submit batch", "/run/"+url.PathEscape(runID)+"/datapoints", body)
	return err
}

// FinalizeRun posts to /runs/{id}/run_summaries.
func (t *HTTPTransport) FinalizeRun(ctx context.Context, runID string) error {
	_, err := t.post(ctx, "finalize run", "/runs/"+url.PathEscape(runID)+"/run_summaries", nil)
	return err
}

// IsConnected reports whether the last request reached the collector.
func (t *HTTPTransport) IsConnected() bool {
	return t.connected.Load()
}

func (t *HTTPTransport) post(ctx context.Context, op, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.connected.Store(false)
		return nil, fmt.Errorf("transport: %s: %w", op, err)
	}
	defer resp.Body.Close()
	t.connected.Store(true)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("transport: %s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode}
	}
	return data, nil
}
