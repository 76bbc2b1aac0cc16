package tatr_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/config"
	"folio/internal/domain"
	"folio/internal/inference"
	"folio/internal/inference/tatr"
)

func newTestClient(serverURL string) *tatr.Client {
	cfg := &config.InferenceProviderConfig{
		Provider:    "tatr",
		APIKey:      "test-key",
		TimeoutSecs: 5,
	}
	return tatr.NewClientWithEndpoint(cfg, serverURL)
}

func images(n int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		out[i] = image.NewRGBA(image.Rect(0, 0, 4, 3))
	}
	return out
}

func TestClient_Detect_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			Images    []string `json:"images"`
			Threshold float64  `json:"threshold"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 0.9, req.Threshold)
		if assert.Len(t, req.Images, 2) {
			raw, err := base64.StdEncoding.DecodeString(req.Images[0])
			assert.NoError(t, err)
			img, err := png.Decode(bytes.NewReader(raw))
			if assert.NoError(t, err) {
				assert.Equal(t, 4, img.Bounds().Dx())
			}
		}

		_, _ = w.Write([]byte(`{"results":[
			{"labels":[0],"scores":[0.97],"boxes":[[10,20,110,220]]},
			{"labels":[],"scores":[],"boxes":[]}
		]}`))
	}))
	defer server.Close()

	out, err := newTestClient(server.URL).Detect(context.Background(), images(2), 0.9)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Len(t, out[0], 1)
	assert.Equal(t, domain.BBox{X0: 10, Y0: 20, X1: 110, Y1: 220}, out[0][0].BBox)
	assert.Equal(t, 0.97, out[0][0].Score)
	assert.Empty(t, out[1])
}

func TestClient_Recognize_MapsLabels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recognize", r.URL.Path)
		_, _ = w.Write([]byte(`{"results":[
			{"labels":[0,2,5],"scores":[0.99,0.8,0.77],"boxes":[[0,0,50,50],[0,0,50,10],[0,10,50,20]]}
		]}`))
	}))
	defer server.Close()

	out, err := newTestClient(server.URL+"/").Recognize(context.Background(), images(1), 0.75)
	require.NoError(t, err)
	require.Len(t, out[0], 3)
	assert.Equal(t, domain.PartTable, out[0][0].Label)
	assert.Equal(t, domain.PartRow, out[0][1].Label)
	assert.Equal(t, domain.PartSpanningCell, out[0][2].Label)
}

func TestClient_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"busy"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Detect(context.Background(), images(1), 0.9)

	var rlErr *inference.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "tatr", rlErr.Provider)
	assert.Equal(t, 12*time.Second, rlErr.RetryAfter)
}

func TestClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("model not loaded"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Detect(context.Background(), images(1), 0.9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestClient_ResultCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Detect(context.Background(), images(2), 0.9)
	assert.ErrorContains(t, err, "0 results for 2 images")
}

func TestClient_RaggedResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"labels":[0,1],"scores":[0.9],"boxes":[[0,0,1,1]]}]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Recognize(context.Background(), images(1), 0.75)
	assert.ErrorContains(t, err, "2 labels, 1 scores, 1 boxes")
}

func TestClient_EmptyBatchSkipsServer(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	out, err := newTestClient(server.URL).Detect(context.Background(), nil, 0.9)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.False(t, called)
}

func TestProviderIsRegistered(t *testing.T) {
	c, err := inference.New(&config.InferenceProviderConfig{Provider: "tatr", Endpoint: "http://localhost:1"})
	require.NoError(t, err)
	assert.IsType(t, &tatr.Client{}, c)

	_, err = inference.New(&config.InferenceProviderConfig{Provider: "tatr"})
	assert.ErrorContains(t, err, "endpoint is required")
}
