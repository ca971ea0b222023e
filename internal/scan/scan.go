// Package scan calls an external image recognition service to propose
// medication details from a photo of a label or pill bottle. Results are
// untrusted suggestions; the registry re-validates everything on save.
package scan

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gmsas95/dosewise-cli/internal/config"
	apperrors "github.com/gmsas95/dosewise-cli/internal/errors"
	"github.com/gmsas95/dosewise-cli/internal/medication"
	"github.com/gmsas95/dosewise-cli/internal/metrics"
)

// Client wraps the recognition HTTP API with a circuit breaker and a
// request rate limiter. The breaker keeps a flapping remote from blocking
// every scan attempt on a full timeout.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]medication.Guess]
	limiter *rate.Limiter
	logger  *zap.Logger
}

type scanRequest struct {
	Image string `json:"image"`
}

type scanResponse struct {
	Guesses []medication.Guess `json:"guesses"`
}

// NewClient creates a recognition client from config.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.Scan.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[[]medication.Guess](gobreaker.Settings{
		Name:        "scan-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Scan breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	var limiter *rate.Limiter
	if cfg.Scan.RPM > 0 {
		rps := float64(cfg.Scan.RPM) / 60.0
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &Client{
		baseURL: cfg.Scan.BaseURL,
		apiKey:  cfg.Scan.APIKey,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
		limiter: limiter,
		logger:  logger,
	}
}

// Recognize submits an image and returns proposed medication records,
// best guess first.
func (c *Client) Recognize(ctx context.Context, image []byte) ([]medication.Guess, error) {
	if c.baseURL == "" {
		return nil, apperrors.ErrScanUnavailable
	}
	if len(image) == 0 {
		return nil, apperrors.Validation("image must not be empty")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			metrics.ScanRequests.WithLabelValues("rate_limited").Inc()
			return nil, apperrors.Wrap(err, apperrors.ErrScanUnavailable.Code, "scan rate limit wait aborted")
		}
	}

	guesses, err := c.breaker.Execute(func() ([]medication.Guess, error) {
		return c.doRecognize(ctx, image)
	})
	if err != nil {
		metrics.ScanRequests.WithLabelValues("error").Inc()
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, apperrors.Wrap(err, apperrors.ErrScanUnavailable.Code, "scan service circuit open")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrScanUnavailable.Code, "scan request failed")
	}

	metrics.ScanRequests.WithLabelValues("ok").Inc()
	c.logger.Info("Scan completed", zap.Int("guesses", len(guesses)))
	return guesses, nil
}

func (c *Client) doRecognize(ctx context.Context, image []byte) ([]medication.Guess, error) {
	payload, err := json.Marshal(scanRequest{
		Image: base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/recognize", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scan api returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed scanResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse scan response: %w", err)
	}
	return parsed.Guesses, nil
}
