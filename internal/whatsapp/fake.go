package whatsapp

import (
	"context"
	"sync"
)

// FakeProvider records sends for tests.
type FakeProvider struct {
	mu sync.Mutex

	VerifyErr error
	SendErr   error

	SentTo   []string
	SentText []string
}

var _ Provider = (*FakeProvider)(nil)

func (f *FakeProvider) VerifySignature(payload []byte, signature string) error {
	return f.VerifyErr
}

func (f *FakeProvider) SendText(ctx context.Context, to, text string) error {
	if f.SendErr != nil {
		return f.SendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SentTo = append(f.SentTo, to)
	f.SentText = append(f.SentText, text)
	return nil
}
