package identify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/hoshi42/phonox/internal/identify/config"
	"github.com/hoshi42/phonox/internal/identify/ierr"
)

// ProviderLimiter is process-wide mutable state: a token bucket plus a
// circuit breaker per external provider (§5: "Rate limiters are the only
// mutable process-wide state"). One ProviderLimiter instance is shared
// across concurrent runs in the host process.
type ProviderLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewProviderLimiter constructs an empty limiter set; providers register
// themselves lazily via Configure.
func NewProviderLimiter() *ProviderLimiter {
	return &ProviderLimiter{
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Configure installs (or replaces) the rate and breaker settings for a
// named provider ("discogs", "musicbrainz", "tavily", "duckduckgo",
// "scraper", "vision", "llm").
func (p *ProviderLimiter) Configure(name string, ratePerSecond float64, burst int, maxConsecutiveFailures uint32, openTimeout time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if burst < 1 {
		burst = 1
	}
	p.limiters[name] = rate.NewLimiter(rate.Limit(ratePerSecond), burst)

	p.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxConsecutiveFailures
		},
	})
}

// Wait blocks until a token is available for provider, bounded by
// maxWait (§4.5: "queued with a bounded wait (default 2s) before failing
// soft"). Returns ierr.ErrProviderTransient if the wait is exhausted.
func (p *ProviderLimiter) Wait(ctx context.Context, provider string, maxWait time.Duration) error {
	p.mu.Lock()
	limiter, ok := p.limiters[provider]
	p.mu.Unlock()
	if !ok {
		return nil // unconfigured providers are unthrottled
	}

	waitCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	if err := limiter.Wait(waitCtx); err != nil {
		return fmt.Errorf("%s: rate limit wait exceeded %v: %w", provider, maxWait, ierr.ErrProviderTransient)
	}
	return nil
}

// Execute runs fn through provider's circuit breaker. When the breaker is
// open it returns ierr.ErrProviderTransient immediately without invoking
// fn, so a persistently failing provider stops accumulating retry latency
// across a run.
func (p *ProviderLimiter) Execute(ctx context.Context, provider string, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	breaker, ok := p.breakers[provider]
	p.mu.Unlock()
	if !ok {
		return fn(ctx)
	}

	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: circuit open: %w", provider, ierr.ErrProviderTransient)
	}
	return err
}

// Health is a diagnostic snapshot of one provider's breaker state
// (SPEC_FULL supplemental feature: ProviderHealth()).
type Health struct {
	Provider string
	State    string
	Counts   gobreaker.Counts
}

// Health returns a snapshot of every configured provider's breaker state.
func (p *ProviderLimiter) Health() []Health {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Health, 0, len(p.breakers))
	for name, b := range p.breakers {
		out = append(out, Health{Provider: name, State: b.State().String(), Counts: b.Counts()})
	}
	return out
}

// NewDefaultProviderLimiter builds a ProviderLimiter with every known
// provider configured from cfg, matching the rates spec.md §4.5/§6
// documents and the breaker tunables SPEC_FULL.md adds. Production callers
// wire this in; tests pass a bare NewProviderLimiter() or nil.
func NewDefaultProviderLimiter(cfg *config.Config) *ProviderLimiter {
	p := NewProviderLimiter()
	b := cfg.Breaker

	p.Configure("vision", cfg.Vision.RateLimitRPS, cfg.Vision.Concurrency, b.MaxConsecutiveFailures, b.OpenTimeout)
	p.Configure("discogs", cfg.Lookup.DiscogsRateLimitRPM/60, 5, b.MaxConsecutiveFailures, b.OpenTimeout)
	p.Configure("musicbrainz", cfg.Lookup.MusicBrainzRateLimitRPS, 1, b.MaxConsecutiveFailures, b.OpenTimeout)
	p.Configure("tavily", 2, 2, b.MaxConsecutiveFailures, b.OpenTimeout)
	p.Configure("duckduckgo", 1, 1, b.MaxConsecutiveFailures, b.OpenTimeout)
	p.Configure("scraper", 3, 3, b.MaxConsecutiveFailures, b.OpenTimeout)
	p.Configure("llm", 5, 5, b.MaxConsecutiveFailures, b.OpenTimeout)
	return p
}

// ProviderHealth is the package-level entry point operators poll for a
// diagnostic snapshot of every provider's breaker state; it tolerates a nil
// limiter (a run without rate limiting configured) by returning nil.
func ProviderHealth(limiter *ProviderLimiter) []Health {
	if limiter == nil {
		return nil
	}
	return limiter.Health()
}
