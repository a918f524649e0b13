package assistant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerResponder stops calling the upstream model after repeated failures
// and fails fast until the cooldown elapses. Each credential gets its own
// breaker, so a caller with a bad key cannot open the circuit for a room
// running on the server key or on another caller's key.
type BreakerResponder struct {
	next     Responder
	failures uint32
	cooldown time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewBreakerResponder(next Responder, failures uint32, cooldown time.Duration, logger *zap.Logger) *BreakerResponder {
	if failures == 0 {
		failures = 1
	}
	return &BreakerResponder{
		next:     next,
		failures: failures,
		cooldown: cooldown,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (b *BreakerResponder) Complete(ctx context.Context, prompt, apiKey string) (string, error) {
	out, err := b.breaker(apiKey).Execute(func() (interface{}, error) {
		return b.next.Complete(ctx, prompt, apiKey)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State reports the breaker state for a credential. An empty key is the
// server key.
func (b *BreakerResponder) State(apiKey string) gobreaker.State {
	return b.breaker(apiKey).State()
}

func (b *BreakerResponder) breaker(apiKey string) *gobreaker.CircuitBreaker {
	name := breakerName(apiKey)

	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[name]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: b.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("assistant breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	b.breakers[name] = cb
	return cb
}

// breakerName never carries the raw key, since names end up in logs.
func breakerName(apiKey string) string {
	if apiKey == "" {
		return "assistant"
	}
	sum := sha256.Sum256([]byte(apiKey))
	return "assistant:" + hex.EncodeToString(sum[:6])
}
