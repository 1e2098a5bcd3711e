package domain

import (
	"context"
	"sync/atomic"
)

type tokenMeterKey struct{}

// TokenMeter tallies the embedding tokens spent serving one request. The
// transport attaches it; whoever embeds on the request's behalf adds to it.
type TokenMeter struct {
	tokens atomic.Int64
	calls  atomic.Int64
}

// WithTokenMeter attaches a fresh meter to ctx.
func WithTokenMeter(ctx context.Context) (context.Context, *TokenMeter) {
	m := &TokenMeter{}
	return context.WithValue(ctx, tokenMeterKey{}, m), m
}

// TokenMeterFrom returns the meter attached to ctx, or nil.
func TokenMeterFrom(ctx context.Context) *TokenMeter {
	m, _ := ctx.Value(tokenMeterKey{}).(*TokenMeter)
	return m
}

// Add records one embedding call. Cache hits count as calls with zero tokens.
// Safe on a nil meter.
func (m *TokenMeter) Add(tokens int) {
	if m == nil {
		return
	}
	m.calls.Add(1)
	m.tokens.Add(int64(tokens))
}

// Tokens is the running total.
func (m *TokenMeter) Tokens() int {
	if m == nil {
		return 0
	}
	return int(m.tokens.Load())
}

// Embedded reports whether anything was embedded.
func (m *TokenMeter) Embedded() bool {
	return m != nil && m.calls.Load() > 0
}
