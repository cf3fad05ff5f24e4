package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry of a [FallbackGroup] failed or was
// skipped by its breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures the breaker created for each group entry.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary and zero or more fallbacks of the same type.
// Entries are tried in registration order.
//
// Entries must be added before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as its first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry after the existing ones.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// EntryStatus reports the breaker state of one group entry.
type EntryStatus struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	LastError string `json:"last_error,omitempty"`
}

// Status returns the breaker state of every entry in order.
func (fg *FallbackGroup[T]) Status() []EntryStatus {
	out := make([]EntryStatus, 0, len(fg.entries))
	for _, e := range fg.entries {
		st := EntryStatus{Name: e.name, State: e.breaker.State().String()}
		if err := e.breaker.LastError(); err != nil {
			st.LastError = err.Error()
		}
		out = append(out, st)
	}
	return out
}

// Execute runs fn against each entry until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult runs fn against each entry until one succeeds and returns
// its result. Entries with an open breaker are skipped. When all entries fail
// the returned error wraps [ErrAllFailed] and the last failure.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			if i > 0 {
				slog.Info("fallback provider succeeded", "provider", entry.name)
			}
			return result, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider with open circuit", "provider", entry.name)
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
		if i < len(fg.entries)-1 {
			slog.Warn("provider failed, trying next", "provider", entry.name, "err", err)
		}
	}
	if len(errs) == 0 {
		return zero, fmt.Errorf("%w: %w", ErrAllFailed, ErrCircuitOpen)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errs[len(errs)-1])
}
