// Package tatr is an inference client for a Table Transformer model server.
//
// The server exposes POST /detect and POST /recognize. Both take a batch of
// base64 PNG images and a confidence threshold and answer with one
// post-processed result per image: parallel label, score and box lists with
// boxes as [x0, y0, x1, y1] pixels.
package tatr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"folio/internal/config"
	"folio/internal/domain"
	"folio/internal/inference"
	"folio/internal/port"
)

const provider = "tatr"

func init() {
	inference.RegisterProvider(provider, func(cfg *config.InferenceProviderConfig) (inference.Client, error) {
		return NewClient(cfg)
	})
}

// Client implements port.TableDetector and port.StructureRecognizer over HTTP.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewClient creates a client from a provider config.
func NewClient(cfg *config.InferenceProviderConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("tatr: endpoint is required")
	}
	return NewClientWithEndpoint(cfg, cfg.Endpoint), nil
}

// NewClientWithEndpoint creates a client pointing at a custom endpoint (for testing).
func NewClientWithEndpoint(cfg *config.InferenceProviderConfig, endpoint string) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		apiKey:   cfg.APIKey,
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

type request struct {
	Images    []string `json:"images"`
	Threshold float64  `json:"threshold"`
}

type result struct {
	Labels []int        `json:"labels"`
	Scores []float64    `json:"scores"`
	Boxes  [][4]float64 `json:"boxes"`
}

type response struct {
	Results []result `json:"results"`
}

// Detect finds tables on page images.
func (c *Client) Detect(ctx context.Context, images []image.Image, threshold float64) ([][]port.Detection, error) {
	results, err := c.call(ctx, "/detect", images, threshold)
	if err != nil {
		return nil, err
	}
	out := make([][]port.Detection, len(results))
	for i, r := range results {
		out[i] = make([]port.Detection, 0, len(r.Labels))
		for j := range r.Labels {
			out[i] = append(out[i], port.Detection{BBox: toBBox(r.Boxes[j]), Score: r.Scores[j]})
		}
	}
	return out, nil
}

// Recognize labels the structure of cropped table regions.
func (c *Client) Recognize(ctx context.Context, regions []image.Image, threshold float64) ([][]port.RecognizedPart, error) {
	results, err := c.call(ctx, "/recognize", regions, threshold)
	if err != nil {
		return nil, err
	}
	out := make([][]port.RecognizedPart, len(results))
	for i, r := range results {
		out[i] = make([]port.RecognizedPart, 0, len(r.Labels))
		for j, l := range r.Labels {
			out[i] = append(out[i], port.RecognizedPart{
				Label: domain.TablePartLabel(l),
				BBox:  toBBox(r.Boxes[j]),
				Score: r.Scores[j],
			})
		}
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, path string, images []image.Image, threshold float64) ([]result, error) {
	if len(images) == 0 {
		return nil, nil
	}
	reqBody := request{Images: make([]string, len(images)), Threshold: threshold}
	for i, img := range images {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding image %d: %w", i, err)
		}
		reqBody.Images[i] = base64.StdEncoding.EncodeToString(buf.Bytes())
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling tatr API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		baseErr := fmt.Errorf("tatr API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 500))
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := inference.ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
			return nil, inference.NewRateLimitError(provider, baseErr, retryAfter)
		}
		return nil, baseErr
	}

	var parsed response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	if len(parsed.Results) != len(images) {
		return nil, fmt.Errorf("tatr returned %d results for %d images", len(parsed.Results), len(images))
	}
	for i, r := range parsed.Results {
		if len(r.Scores) != len(r.Labels) || len(r.Boxes) != len(r.Labels) {
			return nil, fmt.Errorf("tatr result %d: %d labels, %d scores, %d boxes",
				i, len(r.Labels), len(r.Scores), len(r.Boxes))
		}
	}
	return parsed.Results, nil
}

func toBBox(b [4]float64) domain.BBox {
	return domain.BBox{X0: b[0], Y0: b[1], X1: b[2], Y1: b[3]}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
