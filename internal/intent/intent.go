// Package intent bridges guest messages to a routing decision. Text is
// redacted before it crosses to the external classifier, the classifier's
// answer is validated against a strict versioned schema, and anything
// malformed falls back to a deterministic pattern parser. The classifier
// proposes; the transactional core decides.
package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// SchemaVersion of the classifier contract.
const SchemaVersion = 1

// Intents the router understands.
const (
	IntentQuoteRequest    = "quote_request"
	IntentCheckoutRequest = "checkout_request"
	IntentCancelRequest   = "cancel_request"
	IntentHumanHandoff    = "human_handoff"
	IntentUnknown         = "unknown"
)

var validIntents = map[string]bool{
	IntentQuoteRequest:    true,
	IntentCheckoutRequest: true,
	IntentCancelRequest:   true,
	IntentHumanHandoff:    true,
	IntentUnknown:         true,
}

// Entities are the normalized slots a message can carry. Dates are ISO
// strings so they survive JSON without timezone drift.
type Entities struct {
	Checkin      string `json:"checkin,omitempty"`
	Checkout     string `json:"checkout,omitempty"`
	AdultCount   int    `json:"adult_count,omitempty"`
	ChildrenAges []int  `json:"children_ages,omitempty"`
}

// Classification is the strict classifier answer.
type Classification struct {
	SchemaVersion int      `json:"schema_version"`
	Intent        string   `json:"intent"`
	Confidence    float64  `json:"confidence"`
	Entities      Entities `json:"entities"`
	Reason        string   `json:"reason,omitempty"`
}

// Classifier is the external model boundary. Implementations receive only
// redacted text.
type Classifier interface {
	Classify(ctx context.Context, redactedText string) ([]byte, error)
}

var errInvalidClassification = errors.New("invalid_classification")

// ParseClassification decodes a classifier response strictly: unknown
// fields, unknown intents, out-of-range confidence, and incoherent slots
// all fail, triggering the deterministic fallback.
func ParseClassification(raw []byte) (*Classification, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var c Classification
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidClassification, err)
	}
	if c.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", errInvalidClassification, c.SchemaVersion)
	}
	if !validIntents[c.Intent] {
		return nil, fmt.Errorf("%w: intent %q", errInvalidClassification, c.Intent)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v", errInvalidClassification, c.Confidence)
	}
	if err := checkSlots(c.Entities); err != nil {
		return nil, err
	}
	return &c, nil
}

func checkSlots(e Entities) error {
	if e.Checkin != "" && e.Checkout != "" && e.Checkout <= e.Checkin {
		return fmt.Errorf("%w: checkout not after checkin", errInvalidClassification)
	}
	if e.AdultCount < 0 || e.AdultCount > 10 {
		return fmt.Errorf("%w: adult_count %d", errInvalidClassification, e.AdultCount)
	}
	for _, age := range e.ChildrenAges {
		if age < 0 || age > 17 {
			return fmt.Errorf("%w: child age %d", errInvalidClassification, age)
		}
	}
	return nil
}

// Classify runs the full bridge: redact, call the classifier, validate, and
// fall back to the pattern parser when the classifier misbehaves. It never
// returns an error for classifier faults; a classification always comes
// back so routing can proceed.
func Classify(ctx context.Context, c Classifier, text string) *Classification {
	redacted := Redact(text)
	if c != nil {
		raw, err := c.Classify(ctx, redacted)
		if err == nil {
			if parsed, perr := ParseClassification(raw); perr == nil {
				return parsed
			}
		}
	}
	return Fallback(redacted)
}
