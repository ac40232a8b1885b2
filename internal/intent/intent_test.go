package intent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"meu email é ana@example.com", "meu email é [email]"},
		{"liga no 41999990000", "liga no [number]"},
		{"+55 41 99999-0000 por favor", "[number] por favor"},
		{"chegada 10/04/2026 saida 12/04/2026", "chegada 10/04/2026 saida 12/04/2026"},
		{"chegada 2026-04-10", "chegada 2026-04-10"},
		{"veja https://evil.example/track?x=1", "veja [link]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Redact(tt.in), tt.in)
	}
}

func TestParseClassification(t *testing.T) {
	good := []byte(`{"schema_version":1,"intent":"quote_request","confidence":0.92,
		"entities":{"checkin":"2026-04-10","checkout":"2026-04-12","adult_count":2,"children_ages":[5]},
		"reason":"dates and party size present"}`)
	c, err := ParseClassification(good)
	require.NoError(t, err)
	assert.Equal(t, IntentQuoteRequest, c.Intent)
	assert.Equal(t, "2026-04-10", c.Entities.Checkin)

	bad := [][]byte{
		[]byte(`not json`),
		[]byte(`{"schema_version":2,"intent":"quote_request","confidence":0.5}`),
		[]byte(`{"schema_version":1,"intent":"book_now","confidence":0.5}`),
		[]byte(`{"schema_version":1,"intent":"quote_request","confidence":1.5}`),
		[]byte(`{"schema_version":1,"intent":"quote_request","confidence":0.5,"extra":"field"}`),
		[]byte(`{"schema_version":1,"intent":"quote_request","confidence":0.5,
			"entities":{"checkin":"2026-04-12","checkout":"2026-04-10"}}`),
		[]byte(`{"schema_version":1,"intent":"quote_request","confidence":0.5,
			"entities":{"children_ages":[25]}}`),
	}
	for i, raw := range bad {
		_, err := ParseClassification(raw)
		assert.Error(t, err, "case %d", i)
	}
}

func TestFallbackAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	c := FallbackAt("quero reservar de 10/04 a 12/04 para 2 adultos e crianças 5 e 7", now)
	assert.Equal(t, IntentQuoteRequest, c.Intent)
	assert.Equal(t, "2026-04-10", c.Entities.Checkin)
	assert.Equal(t, "2026-04-12", c.Entities.Checkout)
	assert.Equal(t, 2, c.Entities.AdultCount)
	assert.Equal(t, []int{5, 7}, c.Entities.ChildrenAges)

	// Year-less dates already past roll to next year.
	c = FallbackAt("disponibilidade 10/01 a 12/01?", now)
	assert.Equal(t, "2027-01-10", c.Entities.Checkin)
	assert.Equal(t, "2027-01-12", c.Entities.Checkout)

	c = FallbackAt("quero cancelar minha reserva", now)
	assert.Equal(t, IntentCancelRequest, c.Intent)

	c = FallbackAt("como faço o pagamento?", now)
	assert.Equal(t, IntentCheckoutRequest, c.Intent)

	c = FallbackAt("quero falar com um atendente", now)
	assert.Equal(t, IntentHumanHandoff, c.Intent)

	c = FallbackAt("bom dia", now)
	assert.Equal(t, IntentUnknown, c.Intent)
	assert.Equal(t, "pattern_fallback", c.Reason)
}

func TestFallbackAt_RejectsImpossibleDates(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := FallbackAt("chegando 31/02/2026", now)
	assert.Empty(t, c.Entities.Checkin)
}

type scriptedClassifier struct {
	raw []byte
	err error
}

func (s scriptedClassifier) Classify(ctx context.Context, text string) ([]byte, error) {
	return s.raw, s.err
}

func TestClassify_FallsBackOnBadAnswers(t *testing.T) {
	// Valid classifier output wins.
	c := Classify(context.Background(), scriptedClassifier{
		raw: []byte(`{"schema_version":1,"intent":"cancel_request","confidence":0.9}`),
	}, "quero reservar 10/04 a 12/04")
	assert.Equal(t, IntentCancelRequest, c.Intent)

	// Malformed output falls back to patterns.
	c = Classify(context.Background(), scriptedClassifier{raw: []byte(`garbage`)}, "quero reservar 10/04/2026 a 12/04/2026")
	assert.Equal(t, IntentQuoteRequest, c.Intent)
	assert.Equal(t, "pattern_fallback", c.Reason)

	// Classifier errors fall back too.
	c = Classify(context.Background(), scriptedClassifier{err: assert.AnError}, "cancelar")
	assert.Equal(t, IntentCancelRequest, c.Intent)

	// No classifier configured.
	c = Classify(context.Background(), nil, "bom dia")
	assert.Equal(t, IntentUnknown, c.Intent)
}
