// Package analyzer is the client for the external content analysis service.
// Analysis is mandatory: there is no degraded ingest without it, so a failure
// here fails the whole processing attempt.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"newswire/internal/config"
	"newswire/internal/constants"
	"newswire/internal/logger"
	"newswire/pkg/circuitbreaker"
	"newswire/pkg/errors"
	"newswire/pkg/models"
)

// Request is the payload sent for analysis.
type Request struct {
	Title          string `json:"title"`
	Content        string `json:"content"`
	SourceName     string `json:"sourceName"`
	SourceCategory string `json:"sourceCategory"`
}

type analyzeResponse struct {
	OK     bool                   `json:"ok"`
	Error  string                 `json:"error"`
	Result *models.AnalysisResult `json:"result"`
}

// Client calls the analysis service behind a circuit breaker. No internal
// retry; the outer message retry loop owns backoff.
type Client struct {
	baseURL string
	client  *http.Client
	cb      *circuitbreaker.Wrapper
	logger  logger.Logger
}

func NewClient(cfg config.AnalyzerConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultAnalyzerTimeout
	}

	c := &Client{
		baseURL: cfg.URL,
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}

	if cbCfg.Enabled {
		breaker := circuitbreaker.DefaultConfig("analyzer")
		if cbCfg.MaxRequests > 0 {
			breaker.MaxRequests = cbCfg.MaxRequests
		}
		if cbCfg.Interval > 0 {
			breaker.Interval = cbCfg.Interval
		}
		if cbCfg.Timeout > 0 {
			breaker.Timeout = cbCfg.Timeout
		}
		c.cb = circuitbreaker.NewWrapper(breaker)
	}

	return c
}

// Analyze submits the item content and returns the enrichment. Any failure
// comes back wrapped in ErrAnalysisFailed.
func (c *Client) Analyze(ctx context.Context, req Request) (*models.AnalysisResult, error) {
	if c.cb == nil {
		result, err := c.analyze(ctx, req)
		if err != nil {
			return nil, errors.ErrAnalysisFailed.WithCause(err)
		}
		return result, nil
	}

	result, err := c.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return c.analyze(ctx, req)
	})
	c.cb.RecordRequest(err == nil)
	if err != nil {
		if c.cb.IsOpen() {
			c.logger.WarnwCtx(ctx, "Analyzer circuit breaker is open",
				"error", err,
			)
		}
		return nil, errors.ErrAnalysisFailed.WithCause(err)
	}

	analysis, ok := result.(*models.AnalysisResult)
	if !ok {
		return nil, errors.ErrAnalysisFailed.WithCause(fmt.Errorf("unexpected result type %T", result))
	}
	return analysis, nil
}

func (c *Client) analyze(ctx context.Context, req Request) (*models.AnalysisResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create analyze request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("analyzer returned status %d", resp.StatusCode)
	}

	var decoded analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode analyze response: %w", err)
	}
	if !decoded.OK || decoded.Result == nil {
		if decoded.Error != "" {
			return nil, fmt.Errorf("analyzer rejected content: %s", decoded.Error)
		}
		return nil, fmt.Errorf("analyzer returned empty result")
	}

	return decoded.Result, nil
}
