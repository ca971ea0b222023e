package scan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/dosewise-cli/internal/config"
	apperrors "github.com/gmsas95/dosewise-cli/internal/errors"
	"github.com/gmsas95/dosewise-cli/internal/medication"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.Scan.BaseURL = server.URL
	cfg.Scan.APIKey = "test-key"
	cfg.Scan.Timeout = 5
	return NewClient(cfg, zap.NewNop())
}

func TestRecognize(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/recognize", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req scanRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Image)

		json.NewEncoder(w).Encode(scanResponse{Guesses: []medication.Guess{
			{Name: "Aspirin", Dosage: "100mg", Form: "tablet", Confidence: 0.92},
		}})
	})

	guesses, err := c.Recognize(context.Background(), []byte("fake-image-bytes"))
	require.NoError(t, err)
	require.Len(t, guesses, 1)
	assert.Equal(t, "Aspirin", guesses[0].Name)
	assert.InDelta(t, 0.92, guesses[0].Confidence, 0.001)
}

func TestRecognize_EmptyImage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.Recognize(context.Background(), nil)
	assert.True(t, apperrors.IsValidation(err))
}

func TestRecognize_NoBaseURL(t *testing.T) {
	cfg := &config.Config{}
	c := NewClient(cfg, zap.NewNop())
	_, err := c.Recognize(context.Background(), []byte("img"))
	assert.Equal(t, apperrors.ErrScanUnavailable.Code, apperrors.GetCode(err))
}

func TestRecognize_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := c.Recognize(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrScanUnavailable.Code, apperrors.GetCode(err))
}

func TestRecognize_BreakerOpensAfterFailures(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Recognize(ctx, []byte("img"))
		require.Error(t, err)
	}

	// Breaker is open now; the request never reaches the server.
	_, err := c.Recognize(ctx, []byte("img"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrScanUnavailable.Code, apperrors.GetCode(err))
}
