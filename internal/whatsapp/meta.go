package whatsapp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MetaProvider talks to the WhatsApp Cloud API (graph.facebook.com).
type MetaProvider struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	appSecret     string
	client        *http.Client
}

func NewMeta(baseURL, phoneNumberID, accessToken, appSecret string) *MetaProvider {
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v18.0"
	}
	return &MetaProvider{
		baseURL:       strings.TrimRight(baseURL, "/"),
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		appSecret:     appSecret,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

// VerifySignature checks the X-Hub-Signature-256 header: "sha256=" followed
// by the hex HMAC-SHA-256 of the raw body under the app secret.
func (m *MetaProvider) VerifySignature(payload []byte, signature string) error {
	if m.appSecret == "" {
		return ErrNoSecret
	}
	rest, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(m.appSecret))
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(rest)) {
		return ErrBadSignature
	}
	return nil
}

type metaTextMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

func (m *MetaProvider) SendText(ctx context.Context, to, text string) error {
	msg := metaTextMessage{MessagingProduct: "whatsapp", To: to, Type: "text"}
	msg.Text.Body = text
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("whatsapp: meta marshal: %w", err)
	}
	url := fmt.Sprintf("%s/%s/messages", m.baseURL, m.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: meta request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: meta send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &SendError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}
