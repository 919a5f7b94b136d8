// Package logging provides category-scoped structured logging for the
// identification & valuation pipeline, built on zap. Each pipeline stage
// gets its own Category so a deployment can tune verbosity per stage
// without touching the others, the same split the teacher used for its own
// subsystems.
package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Category names one pipeline stage (or an ambient concern) for log
// attribution.
type Category string

const (
	CategoryOrchestrator Category = "orchestrator"
	CategoryValidator    Category = "validator"
	CategoryVision       Category = "vision"
	CategoryAggregation  Category = "aggregation"
	CategoryLookup       Category = "lookup"
	CategoryWebSearch    Category = "websearch"
	CategoryValuation    Category = "valuation"
	CategoryGate         Category = "gate"
	CategoryEnhancer     Category = "enhancer"
	CategoryRateLimit    Category = "ratelimit"
	CategoryBoot         Category = "boot"
)

var (
	base  *zap.Logger
	mu    sync.RWMutex
	ready bool
)

// Init installs the process-wide zap core. Safe to call once at startup;
// subsequent calls replace the core (used by tests wanting an observer
// core). If never called, Get falls back to zap.NewNop() so importing
// packages never crash in tests that don't care about logs.
func Init(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	ready = true
}

// Get returns a zap.Logger scoped to category, with run correlation fields
// attachable via With.
func Get(category Category) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if !ready || base == nil {
		return zap.NewNop()
	}
	return base.With(zap.String("stage", string(category)))
}

// ForRun returns a Category-scoped logger additionally tagged with a run
// id, so every log line for a run can be correlated in aggregate log
// storage.
func ForRun(category Category, runID string) *zap.Logger {
	return Get(category).With(zap.String("run_id", runID))
}

// Timer measures an operation's duration and logs it at Stop, mirroring the
// teacher's logging.StartTimer/Stop pattern.
type Timer struct {
	logger *zap.Logger
	op     string
	start  time.Time
}

// StartTimer begins timing an operation under category.
func StartTimer(category Category, op string) *Timer {
	return &Timer{logger: Get(category), op: op, start: time.Now()}
}

// Stop ends the timer and logs the elapsed duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Debug(t.op+" completed", zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithThreshold logs at warn level if elapsed exceeds threshold,
// otherwise at debug level — used to flag slow provider calls without
// spamming logs on the common path.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		t.logger.Warn(t.op+" exceeded threshold", zap.Duration("elapsed", elapsed), zap.Duration("threshold", threshold))
	} else {
		t.logger.Debug(t.op+" completed", zap.Duration("elapsed", elapsed))
	}
	return elapsed
}
