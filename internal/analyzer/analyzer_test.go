package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newswire/internal/config"
	"newswire/internal/logger"
	"newswire/pkg/errors"
	"newswire/pkg/models"
)

func newTestClient(url string) *Client {
	return NewClient(
		config.AnalyzerConfig{URL: url, Timeout: 2 * time.Second},
		config.CircuitBreakerConfig{},
		logger.NopLogger(),
	)
}

func TestAnalyzeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/analyze", r.URL.Path)

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Go 1.25 Released", req.Title)
		assert.Equal(t, "Example Blog", req.SourceName)

		_ = json.NewEncoder(w).Encode(analyzeResponse{
			OK: true,
			Result: &models.AnalysisResult{
				Summary:    "A release summary.",
				OneLine:    "Go 1.25 is out.",
				Category:   "technology",
				Tags:       []string{"go", "release"},
				Importance: 7,
				Sentiment:  "positive",
				Language:   "en",
			},
		})
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Analyze(context.Background(), Request{
		Title:          "Go 1.25 Released",
		Content:        "release notes body",
		SourceName:     "Example Blog",
		SourceCategory: "technology",
	})
	require.NoError(t, err)
	assert.Equal(t, "Go 1.25 is out.", result.OneLine)
	assert.Equal(t, []string{"go", "release"}, result.Tags)
}

func TestAnalyzeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(analyzeResponse{OK: false, Error: "content too short"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Analyze(context.Background(), Request{Title: "x", Content: "y"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAnalysisFailed))
	assert.Contains(t, err.Error(), "content too short")
}

func TestAnalyzeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Analyze(context.Background(), Request{Title: "x", Content: "y"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAnalysisFailed))
}

func TestAnalyzeCircuitBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(
		config.AnalyzerConfig{URL: srv.URL, Timeout: time.Second},
		config.CircuitBreakerConfig{Enabled: true, MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute},
		logger.NopLogger(),
	)

	for i := 0; i < 5; i++ {
		_, err := c.Analyze(context.Background(), Request{Title: "x", Content: "y"})
		require.Error(t, err)
	}
	assert.True(t, c.cb.IsOpen())
}

func TestAnalyzeContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(analyzeResponse{OK: true, Result: &models.AnalysisResult{}})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv.URL).Analyze(ctx, Request{Title: "x", Content: "y"})
	assert.Error(t, err)
}
