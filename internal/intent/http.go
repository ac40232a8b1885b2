package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// classifyTimeout bounds the external call. The fallback parser covers a
// slow or dead classifier, so a short deadline costs nothing but latency.
const classifyTimeout = 5 * time.Second

// HTTPClassifier calls an external classification endpoint. Only redacted
// text ever leaves the process through this client.
type HTTPClassifier struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPClassifier(url, apiKey string) *HTTPClassifier {
	return &HTTPClassifier{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: classifyTimeout},
	}
}

type classifyRequest struct {
	SchemaVersion int    `json:"schema_version"`
	Text          string `json:"text"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, redactedText string) ([]byte, error) {
	body, err := json.Marshal(classifyRequest{SchemaVersion: SchemaVersion, Text: redactedText})
	if err != nil {
		return nil, fmt.Errorf("intent: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("intent: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("intent: classify call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("intent: classifier status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("intent: read response: %w", err)
	}
	return raw, nil
}
