// Package sink forwards run snapshots to the downstream market API.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aristath/carmarket/internal/domain"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds one POST.
const DefaultTimeout = 15 * time.Second

// Config configures the sink.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Client posts snapshots. With an empty URL every call is a no-op.
type Client struct {
	url    string
	token  string
	client *http.Client
	log    zerolog.Logger
}

// NewClient creates a sink client.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		url:    cfg.URL,
		token:  cfg.Token,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With().Str("client", "market-api").Logger(),
	}
}

// Enabled reports whether a URL is configured.
func (c *Client) Enabled() bool {
	return c.url != ""
}

// Post sends snap as JSON. Non-2xx responses are errors.
func (c *Client) Post(ctx context.Context, snap domain.Snapshot) error {
	if !c.Enabled() {
		c.log.Debug().Msg("MARKET_API_URL not set, skipping POST")
		return nil
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s failed: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("POST %s returned status %d: %s", c.url, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.log.Info().
		Str("run_id", snap.RunID).
		Int("vehicles", snap.VehicleCount).
		Int("status", resp.StatusCode).
		Msg("Posted snapshot")
	return nil
}
