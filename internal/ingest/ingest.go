// Package ingest is the client for the Ingest Gateway, which upserts crawled
// content by URL.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"newswire/internal/config"
	"newswire/internal/constants"
	"newswire/internal/logger"
	"newswire/internal/secrets"
	"newswire/pkg/errors"
	"newswire/pkg/models"
)

type submitResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type Client struct {
	baseURL string
	client  *http.Client
	secret  secrets.Provider
	logger  logger.Logger
}

func NewClient(cfg config.IngestConfig, secret secrets.Provider, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultIngestTimeout
	}
	return &Client{
		baseURL: cfg.URL,
		client:  &http.Client{Timeout: timeout},
		secret:  secret,
		logger:  log,
	}
}

// Submit posts the payload to the gateway. Rejections are retryable: the
// upsert-by-URL contract makes resubmission safe.
func (c *Client) Submit(ctx context.Context, payload models.IngestPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal ingest payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/contents", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.secret.CrawlerSecret()
	if err != nil {
		return fmt.Errorf("failed to resolve crawler secret: %w", err)
	}
	req.Header.Set(constants.AuthHeader, constants.AuthBearerPrefix+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.ErrIngestRejected.WithCause(err).WithDetail("url", payload.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errors.ErrIngestRejected.
			WithCause(fmt.Errorf("ingest gateway returned status %d", resp.StatusCode)).
			WithDetail("url", payload.URL)
	}

	var decoded submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return errors.ErrIngestRejected.WithCause(err).WithDetail("url", payload.URL)
	}
	if !decoded.OK {
		return errors.ErrIngestRejected.
			WithCause(fmt.Errorf("ingest gateway rejected payload: %s", decoded.Error)).
			WithDetail("url", payload.URL)
	}

	return nil
}
