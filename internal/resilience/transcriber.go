package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/daymind/pkg/provider/stt"
)

// TranscriberFallback implements [stt.Provider] and [stt.SummaryFetcher] on
// top of a [FallbackGroup] of transcription backends.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Provider]
}

var (
	_ stt.Provider       = (*TranscriberFallback)(nil)
	_ stt.SummaryFetcher = (*TranscriberFallback)(nil)
)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend.
func NewTranscriberFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend, tried after the ones already added.
func (f *TranscriberFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// Status returns the breaker state of every backend.
func (f *TranscriberFallback) Status() []EntryStatus {
	return f.group.Status()
}

// Upload delivers the chunk to the first backend that accepts it.
func (f *TranscriberFallback) Upload(ctx context.Context, path, lang string, meta stt.Metadata) (*stt.Response, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (*stt.Response, error) {
		return p.Upload(ctx, path, lang, meta)
	})
}

// TestConnection probes the backends in order, bypassing their breakers, and
// reports healthy as soon as one answers. A healthy probe closes that
// backend's breaker.
func (f *TranscriberFallback) TestConnection(ctx context.Context) (bool, error) {
	var errs []error
	for _, e := range f.group.entries {
		ok, err := e.value.TestConnection(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
			continue
		}
		if ok {
			if e.breaker.State() != StateClosed {
				e.breaker.Reset()
			}
			return true, nil
		}
	}
	if len(errs) == len(f.group.entries) {
		return false, errors.Join(errs...)
	}
	return false, nil
}

// FetchSummary asks each backend that produces summaries in order. Breakers
// are not consulted since a missing summary is not a backend failure.
func (f *TranscriberFallback) FetchSummary(ctx context.Context, date string) (string, error) {
	var lastErr error
	for _, e := range f.group.entries {
		sf, ok := e.value.(stt.SummaryFetcher)
		if !ok {
			continue
		}
		s, err := sf.FetchSummary(ctx, date)
		if err == nil {
			return s, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		return "", fmt.Errorf("resilience: fetch summary: %w", stt.ErrSummaryUnavailable)
	}
	return "", lastErr
}
