// Package recognizer is the HTTP client for the external face recognition
// service.
package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 120 * time.Second

// ErrNotConfigured is returned when no recognizer URL is set.
var ErrNotConfigured = errors.New("recognizer URL not configured")

// Client talks to the external recognizer over JSON/HTTP
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new recognizer client. Every request is bounded by
// timeout (120s when zero) in addition to the caller's context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a recognizer URL is set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Recognition is the recognizer's verdict for one photo.
type Recognition struct {
	Identified bool    `json:"identified"`
	IdentityID string  `json:"identityId"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
}

type photoRequest struct {
	PhotoPath string `json:"photo_path"`
}

type registerRequest struct {
	IdentityID string `json:"identityId"`
	PhotoPath  string `json:"photo_path"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// Recognize asks the recognizer to identify the face in the photo at photoPath.
func (c *Client) Recognize(ctx context.Context, photoPath string) (*Recognition, error) {
	body, err := c.postJSON(ctx, "/api/recognize-face", photoRequest{PhotoPath: photoPath})
	if err != nil {
		return nil, err
	}

	var result Recognition
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Identified && result.IdentityID == "" {
		return nil, errors.New("identified response without identity id")
	}
	return &result, nil
}

// ExtractEmbedding computes the face embedding of the photo at photoPath.
func (c *Client) ExtractEmbedding(ctx context.Context, photoPath string) ([]float32, error) {
	body, err := c.postJSON(ctx, "/api/extract-embedding", photoRequest{PhotoPath: photoPath})
	if err != nil {
		return nil, err
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return embResp.Embedding, nil
}

// RegisterEncoding asks the recognizer to store its own encoding of the
// enrolled identity's photo.
func (c *Client) RegisterEncoding(ctx context.Context, identityID, photoPath string) error {
	_, err := c.postJSON(ctx, "/api/register-face-encoding", registerRequest{
		IdentityID: identityID,
		PhotoPath:  photoPath,
	})
	return err
}
