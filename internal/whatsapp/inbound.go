package whatsapp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message kinds surfaced to the worker.
const (
	KindText        = "text"
	KindInteractive = "interactive"
	KindMedia       = "media"
	KindUnknown     = "unknown"
)

// TaskPayloadVersion is bumped whenever the task payload shape changes;
// workers reject versions they do not understand.
const TaskPayloadVersion = 1

var ErrNoMessage = errors.New("no_inbound_message")

// Inbound is the normalized provider message. SenderID and Text stay inside
// ingress: SenderID goes to the vault, Text is redacted before the intent
// bridge. Neither crosses into the task payload.
type Inbound struct {
	Provider  string
	MessageID string
	SenderID  string
	Kind      string
	Text      string
}

// TaskPayload is what ingress enqueues for the worker. PII-free by
// construction: the contact is referenced only by hash.
type TaskPayload struct {
	SchemaVersion int    `json:"schema_version"`
	Provider      string `json:"provider"`
	MessageID     string `json:"message_id"`
	PropertyID    string `json:"property_id"`
	CorrelationID string `json:"correlation_id"`
	ContactHash   string `json:"contact_hash"`
	Kind          string `json:"kind"`
	ReceivedAt    string `json:"received_at"`
	// RedactedText is the utterance after identifier masking; the raw text
	// never leaves ingress.
	RedactedText string `json:"redacted_text,omitempty"`
}

// NewTaskPayload builds the worker payload for one inbound message.
// redactedText must already have passed through intent.Redact.
func NewTaskPayload(in *Inbound, propertyID, correlationID, contactHash, redactedText string, receivedAt time.Time) TaskPayload {
	return TaskPayload{
		SchemaVersion: TaskPayloadVersion,
		Provider:      in.Provider,
		MessageID:     in.MessageID,
		PropertyID:    propertyID,
		CorrelationID: correlationID,
		ContactHash:   contactHash,
		Kind:          in.Kind,
		ReceivedAt:    receivedAt.UTC().Format(time.RFC3339),
		RedactedText:  redactedText,
	}
}

// DecodeTaskPayload parses strictly: unknown fields and unknown schema
// versions are rejected rather than half-applied.
func DecodeTaskPayload(raw []byte) (*TaskPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var p TaskPayload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("whatsapp: task payload: %w", err)
	}
	if p.SchemaVersion != TaskPayloadVersion {
		return nil, fmt.Errorf("whatsapp: unsupported task payload version %d", p.SchemaVersion)
	}
	if p.Provider == "" || p.MessageID == "" || p.PropertyID == "" || p.ContactHash == "" {
		return nil, fmt.Errorf("whatsapp: task payload missing required fields")
	}
	return &p, nil
}

// metaWebhook is the subset of the Cloud API webhook shape we consume.
type metaWebhook struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseMeta extracts the first message from a Cloud API webhook. Status-only
// callbacks (deliveries, read receipts) return ErrNoMessage.
func ParseMeta(payload []byte) (*Inbound, error) {
	var wh metaWebhook
	if err := json.Unmarshal(payload, &wh); err != nil {
		return nil, fmt.Errorf("whatsapp: meta payload: %w", err)
	}
	for _, entry := range wh.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.ID == "" || msg.From == "" {
					continue
				}
				return &Inbound{
					Provider:  ChannelMeta,
					MessageID: msg.ID,
					SenderID:  msg.From,
					Kind:      normalizeKind(msg.Type),
					Text:      msg.Text.Body,
				}, nil
			}
		}
	}
	return nil, ErrNoMessage
}

type evolutionWebhook struct {
	Event string `json:"event"`
	Data  struct {
		Key struct {
			RemoteJid string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
			ID        string `json:"id"`
		} `json:"key"`
		Message struct {
			Conversation    string `json:"conversation"`
			ExtendedTextMsg struct {
				Text string `json:"text"`
			} `json:"extendedTextMessage"`
		} `json:"message"`
		MessageType string `json:"messageType"`
	} `json:"data"`
}

// ParseEvolution extracts the message from an Evolution messages.upsert
// event. Echoes of our own sends (fromMe) return ErrNoMessage.
func ParseEvolution(payload []byte) (*Inbound, error) {
	var wh evolutionWebhook
	if err := json.Unmarshal(payload, &wh); err != nil {
		return nil, fmt.Errorf("whatsapp: evolution payload: %w", err)
	}
	if wh.Event != "messages.upsert" || wh.Data.Key.ID == "" || wh.Data.Key.FromMe {
		return nil, ErrNoMessage
	}
	sender := wh.Data.Key.RemoteJid
	if at := strings.IndexByte(sender, '@'); at > 0 {
		sender = sender[:at]
	}
	if sender == "" {
		return nil, ErrNoMessage
	}
	text := wh.Data.Message.Conversation
	if text == "" {
		text = wh.Data.Message.ExtendedTextMsg.Text
	}
	return &Inbound{
		Provider:  ChannelEvolution,
		MessageID: wh.Data.Key.ID,
		SenderID:  sender,
		Kind:      normalizeKind(wh.Data.MessageType),
		Text:      text,
	}, nil
}

func normalizeKind(providerType string) string {
	switch providerType {
	case "text", "conversation", "extendedTextMessage":
		return KindText
	case "interactive", "buttonsResponseMessage", "listResponseMessage":
		return KindInteractive
	case "image", "audio", "video", "document", "sticker",
		"imageMessage", "audioMessage", "videoMessage", "documentMessage", "stickerMessage":
		return KindMedia
	default:
		return KindUnknown
	}
}
