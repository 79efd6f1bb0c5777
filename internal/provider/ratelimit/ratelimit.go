// Package ratelimit gates upstream quote calls through a token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"metalsync/internal/provider"
)

// Source wraps a provider.Source and waits for a token before every call.
// Waiting respects ctx; a cancelled wait fails only that symbol.
type Source struct {
	P       provider.Source
	Limiter *rate.Limiter
}

// PerMinute builds a limiter allowing n calls per minute with the given
// burst. n <= 0 disables limiting and returns nil.
func PerMinute(n, burst int) *rate.Limiter {
	if n <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), burst)
}

// Wrap returns p unchanged when l is nil.
func Wrap(p provider.Source, l *rate.Limiter) provider.Source {
	if l == nil {
		return p
	}
	return &Source{P: p, Limiter: l}
}

func (s *Source) Name() string { return s.P.Name() }

func (s *Source) FetchQuote(ctx context.Context, symbol provider.Symbol, credential string) (provider.Quote, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return provider.Quote{}, fmt.Errorf("rate limit wait for %s: %w", symbol, err)
		}
	}
	return s.P.FetchQuote(ctx, symbol, credential)
}
