package whatsapp

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// EvolutionProvider talks to a self-hosted Evolution API instance.
// Evolution authenticates webhooks with a shared apikey header rather than
// a payload HMAC.
type EvolutionProvider struct {
	baseURL  string
	instance string
	apiKey   string
	client   *http.Client
}

func NewEvolution(baseURL, instance, apiKey string) *EvolutionProvider {
	return &EvolutionProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		instance: instance,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (e *EvolutionProvider) VerifySignature(payload []byte, signature string) error {
	if e.apiKey == "" {
		return ErrNoSecret
	}
	if subtle.ConstantTimeCompare([]byte(signature), []byte(e.apiKey)) != 1 {
		return ErrBadSignature
	}
	return nil
}

type evolutionTextMessage struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

func (e *EvolutionProvider) SendText(ctx context.Context, to, text string) error {
	body, err := json.Marshal(evolutionTextMessage{Number: to, Text: text})
	if err != nil {
		return fmt.Errorf("whatsapp: evolution marshal: %w", err)
	}
	url := fmt.Sprintf("%s/message/sendText/%s", e.baseURL, e.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: evolution request: %w", err)
	}
	req.Header.Set("apikey", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: evolution send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &SendError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}
