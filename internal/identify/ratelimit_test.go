package identify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hoshi42/phonox/internal/identify/config"
	"github.com/hoshi42/phonox/internal/identify/ierr"
)

func TestProviderLimiter_WaitPassesThroughUnconfiguredProviders(t *testing.T) {
	p := NewProviderLimiter()
	if err := p.Wait(context.Background(), "unknown", time.Second); err != nil {
		t.Fatalf("want nil error for unconfigured provider, got %v", err)
	}
}

func TestProviderLimiter_ExecutePassesThroughUnconfiguredProviders(t *testing.T) {
	p := NewProviderLimiter()
	called := false
	err := p.Execute(context.Background(), "unknown", func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("want fn invoked with nil error, got called=%v err=%v", called, err)
	}
}

func TestProviderLimiter_ExecuteOpensBreakerAfterConsecutiveFailures(t *testing.T) {
	p := NewProviderLimiter()
	p.Configure("vision", 1000, 10, 2, time.Minute)

	failing := func(ctx context.Context) error { return errors.New("boom") }
	for i := 0; i < 2; i++ {
		if err := p.Execute(context.Background(), "vision", failing); err == nil {
			t.Fatal("want failure propagated")
		}
	}

	err := p.Execute(context.Background(), "vision", func(ctx context.Context) error {
		t.Fatal("breaker should be open; fn must not run")
		return nil
	})
	if !errors.Is(err, ierr.ErrProviderTransient) {
		t.Fatalf("want provider_transient on open breaker, got %v", err)
	}
}

func TestProviderLimiter_HealthReportsEveryConfiguredProvider(t *testing.T) {
	p := NewProviderLimiter()
	p.Configure("discogs", 10, 5, 5, time.Second)
	p.Configure("musicbrainz", 1, 1, 5, time.Second)

	health := p.Health()
	if len(health) != 2 {
		t.Fatalf("want 2 providers reported, got %d", len(health))
	}
}

func TestNewDefaultProviderLimiter_ConfiguresEveryKnownProvider(t *testing.T) {
	p := NewDefaultProviderLimiter(config.Default())
	names := map[string]bool{}
	for _, h := range p.Health() {
		names[h.Provider] = true
	}
	for _, want := range []string{"vision", "discogs", "musicbrainz", "tavily", "duckduckgo", "scraper", "llm"} {
		if !names[want] {
			t.Fatalf("want provider %q configured, got %v", want, names)
		}
	}
}

func TestProviderHealth_NilLimiterReturnsNil(t *testing.T) {
	if h := ProviderHealth(nil); h != nil {
		t.Fatalf("want nil health for nil limiter, got %v", h)
	}
}
