package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/examsmart/examsmart-backend/internal/metrics"
	"github.com/rs/zerolog"
)

const maxResponseBytes = 1 << 20

type endpoint struct {
	source Source
	url    string
}

// HTTPClient calls a primary detection service and, on any failure, a
// fallback service with the same payload. No retries beyond that.
type HTTPClient struct {
	endpoints []endpoint
	timeout   time.Duration
	http      *http.Client
	log       zerolog.Logger
}

// NewHTTPClient creates a detection client from base URLs; "/detect" is appended.
func NewHTTPClient(cfg config.DetectionConfig, log zerolog.Logger) *HTTPClient {
	c := &HTTPClient{
		timeout: cfg.Timeout,
		http:    &http.Client{},
		log:     log.With().Str("component", "detection_client").Logger(),
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if cfg.PrimaryURL != "" {
		c.endpoints = append(c.endpoints, endpoint{SourcePrimary, cfg.PrimaryURL})
	}
	if cfg.FallbackURL != "" && cfg.FallbackURL != cfg.PrimaryURL {
		c.endpoints = append(c.endpoints, endpoint{SourceFallback, cfg.FallbackURL})
	}
	return c
}

// Classify tries each endpoint once in order and falls back to DefaultResult.
func (c *HTTPClient) Classify(ctx context.Context, text string) Result {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return DefaultResult()
	}

	for _, ep := range c.endpoints {
		res, err := c.call(ctx, ep.url+"/detect", body)
		if err != nil {
			metrics.DetectionRequests.WithLabelValues(string(ep.source), "error").Inc()
			c.log.Warn().Err(err).Str("source", string(ep.source)).Msg("Detection request failed")
			continue
		}
		res.Source = ep.source
		metrics.DetectionRequests.WithLabelValues(string(ep.source), outcome(res)).Inc()
		return res
	}

	metrics.DetectionRequests.WithLabelValues(string(SourceDefault), "human").Inc()
	c.log.Warn().Msg("All detection services unavailable, treating answer as human-written")
	return DefaultResult()
}

func (c *HTTPClient) call(ctx context.Context, url string, body []byte) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("detection service returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read detection response: %w", err)
	}
	return decodeResponse(raw)
}

// Ping checks the primary service's health endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	if len(c.endpoints) == 0 {
		return fmt.Errorf("no detection endpoint configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints[0].url+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("detection health returned %d", resp.StatusCode)
	}
	return nil
}

func outcome(r Result) string {
	if r.IsMachineGenerated {
		return "machine"
	}
	return "human"
}
