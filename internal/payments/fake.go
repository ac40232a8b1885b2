package payments

import (
	"context"
	"sync"
)

// FakeProvider scripts gateway behavior for tests.
type FakeProvider struct {
	mu sync.Mutex

	// Events answered by RetrieveEvent, keyed by event id.
	Events map[string]*Event
	// VerifyErr is returned from VerifyWebhook when set.
	VerifyErr error
	// VerifiedID/VerifiedType are returned from VerifyWebhook on success.
	VerifiedID   string
	VerifiedType string

	// Created accumulates checkout sessions in call order.
	Created []CheckoutParams
}

var _ Provider = (*FakeProvider)(nil)

func (f *FakeProvider) VerifyWebhook(payload []byte, signature string) (string, string, error) {
	if f.VerifyErr != nil {
		return "", "", f.VerifyErr
	}
	return f.VerifiedID, f.VerifiedType, nil
}

func (f *FakeProvider) RetrieveEvent(ctx context.Context, eventID string) (*Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.Events[eventID]
	if !ok {
		return nil, ErrEventIncomplete
	}
	return ev, nil
}

func (f *FakeProvider) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Created = append(f.Created, p)
	return &Session{ID: "cs_fake_" + p.HoldID, URL: "https://pay.example/" + p.HoldID}, nil
}
