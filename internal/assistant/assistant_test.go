package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExtractPrompt(t *testing.T) {
	cases := []struct {
		body    string
		prompt  string
		trigger bool
	}{
		{"hello @Chatraj please help", "hello  please help", true},
		{"@Chatraj", "", true},
		{"@Chatraj and @Chatraj again", " and  again", true},
		{"hello team", "", false},
		{"@chatraj lowercase", "", false},
		{"mail me at chatraj@example.com", "", false},
	}

	for _, tc := range cases {
		prompt, ok := ExtractPrompt(tc.body)
		assert.Equal(t, tc.trigger, ok, tc.body)
		assert.Equal(t, tc.prompt, prompt, tc.body)
	}
}

type scriptedResponder struct {
	calls   int
	err     error
	reply   string
	badKeys map[string]bool
}

func (s *scriptedResponder) Complete(ctx context.Context, prompt, apiKey string) (string, error) {
	s.calls++
	if s.badKeys[apiKey] {
		return "", errors.New("API key not valid")
	}
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func TestBreakerPassesThrough(t *testing.T) {
	next := &scriptedResponder{reply: "42"}
	b := NewBreakerResponder(next, 3, time.Minute, zap.NewNop())

	out, err := b.Complete(context.Background(), "question", "")
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	next := &scriptedResponder{err: errors.New("quota exceeded")}
	b := NewBreakerResponder(next, 2, time.Minute, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := b.Complete(context.Background(), "q", "")
		assert.EqualError(t, err, "quota exceeded")
	}

	_, err := b.Complete(context.Background(), "q", "")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, next.calls)
}

func TestBreakerIsolatesCredentials(t *testing.T) {
	next := &scriptedResponder{reply: "ok", badKeys: map[string]bool{"bad-key": true}}
	b := NewBreakerResponder(next, 2, time.Minute, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := b.Complete(context.Background(), "q", "bad-key")
		assert.EqualError(t, err, "API key not valid")
	}
	_, err := b.Complete(context.Background(), "q", "bad-key")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, gobreaker.StateOpen, b.State("bad-key"))

	out, err := b.Complete(context.Background(), "q", "good-key")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	out, err = b.Complete(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	assert.Equal(t, gobreaker.StateClosed, b.State(""))
	assert.Equal(t, gobreaker.StateClosed, b.State("good-key"))
	assert.Equal(t, 4, next.calls)
}

func TestBreakerNameHidesKey(t *testing.T) {
	assert.Equal(t, "assistant", breakerName(""))
	name := breakerName("AIzaSecretKey")
	assert.NotContains(t, name, "AIzaSecretKey")
	assert.Equal(t, name, breakerName("AIzaSecretKey"))
	assert.NotEqual(t, name, breakerName("other"))
}

func TestGeminiResponderRequiresKey(t *testing.T) {
	_, err := NewGeminiResponder("gemini-2.0-flash", "").Complete(context.Background(), "hi", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
