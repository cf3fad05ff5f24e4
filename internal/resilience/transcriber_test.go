package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/daymind/pkg/provider/stt"
	sttmock "github.com/MrWong99/daymind/pkg/provider/stt/mock"
)

// uploadOnly hides the SummaryFetcher side of the mock.
type uploadOnly struct{ stt.Provider }

func TestTranscriberFallback_UploadPrimary(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Response: &stt.Response{Text: "hello"}}
	secondary := &sttmock.Provider{}

	fb := NewTranscriberFallback(primary, "daymind", FallbackConfig{})
	fb.AddFallback("openai", secondary)

	meta := stt.Metadata{SessionStart: "2026-03-01T10:00:00Z"}
	resp, err := fb.Upload(context.Background(), "/tmp/chunk.flac", "de", meta)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("Text = %q", resp.Text)
	}
	calls := primary.Uploads()
	if len(calls) != 1 || calls[0].Lang != "de" || calls[0].Meta.SessionStart != meta.SessionStart {
		t.Errorf("primary calls = %+v", calls)
	}
	if len(secondary.Uploads()) != 0 {
		t.Error("secondary should not be called")
	}
}

func TestTranscriberFallback_UploadFailover(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{UploadErr: &stt.DeliveryError{Provider: "daymind", StatusCode: 503, Msg: "server error (503)"}}
	secondary := &sttmock.Provider{Response: &stt.Response{Text: "from fallback"}}

	fb := NewTranscriberFallback(primary, "daymind", FallbackConfig{})
	fb.AddFallback("whisper", secondary)

	resp, err := fb.Upload(context.Background(), "/tmp/chunk.flac", "auto", stt.Metadata{})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if resp.Text != "from fallback" {
		t.Errorf("Text = %q", resp.Text)
	}
}

func TestTranscriberFallback_UploadAllFailed(t *testing.T) {
	t.Parallel()
	de := &stt.DeliveryError{Provider: "daymind", StatusCode: 401, Err: stt.ErrUnauthorized}
	fb := NewTranscriberFallback(&sttmock.Provider{UploadErr: de}, "daymind", FallbackConfig{})

	_, err := fb.Upload(context.Background(), "/tmp/chunk.flac", "auto", stt.Metadata{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	var got *stt.DeliveryError
	if !errors.As(err, &got) || got.StatusCode != 401 {
		t.Errorf("err = %v, want wrapped DeliveryError", err)
	}
	if !errors.Is(err, stt.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized in chain", err)
	}
}

func TestTranscriberFallback_TestConnection(t *testing.T) {
	t.Parallel()

	t.Run("fallback healthy", func(t *testing.T) {
		t.Parallel()
		primary := &sttmock.Provider{Healthy: false}
		secondary := &sttmock.Provider{Healthy: true}
		fb := NewTranscriberFallback(primary, "p", FallbackConfig{})
		fb.AddFallback("s", secondary)

		ok, err := fb.TestConnection(context.Background())
		if err != nil || !ok {
			t.Errorf("TestConnection = %v, %v; want true, nil", ok, err)
		}
	})

	t.Run("unhealthy", func(t *testing.T) {
		t.Parallel()
		fb := NewTranscriberFallback(&sttmock.Provider{}, "p", FallbackConfig{})
		ok, err := fb.TestConnection(context.Background())
		if err != nil || ok {
			t.Errorf("TestConnection = %v, %v; want false, nil", ok, err)
		}
	})

	t.Run("all errors", func(t *testing.T) {
		t.Parallel()
		fb := NewTranscriberFallback(&sttmock.Provider{TestConnectionErr: stt.ErrMissingAPIKey}, "p", FallbackConfig{})
		fb.AddFallback("s", &sttmock.Provider{TestConnectionErr: stt.ErrMissingServerURL})
		ok, err := fb.TestConnection(context.Background())
		if ok || !errors.Is(err, stt.ErrMissingAPIKey) || !errors.Is(err, stt.ErrMissingServerURL) {
			t.Errorf("TestConnection = %v, %v", ok, err)
		}
	})
}

func TestTranscriberFallback_HealthyProbeClosesBreaker(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{UploadErr: errTest, Healthy: true}
	fb := NewTranscriberFallback(primary, "p", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	_, _ = fb.Upload(context.Background(), "x.flac", "auto", stt.Metadata{})
	if st := fb.Status(); st[0].State != "open" {
		t.Fatalf("state = %q, want open", st[0].State)
	}

	if ok, _ := fb.TestConnection(context.Background()); !ok {
		t.Fatal("expected healthy probe")
	}
	if st := fb.Status(); st[0].State != "closed" {
		t.Errorf("state = %q, want closed after healthy probe", st[0].State)
	}
}

func TestTranscriberFallback_FetchSummary(t *testing.T) {
	t.Parallel()

	t.Run("skips non-fetchers", func(t *testing.T) {
		t.Parallel()
		summary := &sttmock.Provider{Summary: "# Tuesday"}
		fb := NewTranscriberFallback(uploadOnly{&sttmock.Provider{}}, "plain", FallbackConfig{})
		fb.AddFallback("daymind", summary)

		got, err := fb.FetchSummary(context.Background(), "2026-03-03")
		if err != nil || got != "# Tuesday" {
			t.Errorf("FetchSummary = %q, %v", got, err)
		}
		if len(summary.SummaryDates) != 1 || summary.SummaryDates[0] != "2026-03-03" {
			t.Errorf("dates = %v", summary.SummaryDates)
		}
	})

	t.Run("no fetcher", func(t *testing.T) {
		t.Parallel()
		fb := NewTranscriberFallback(uploadOnly{&sttmock.Provider{}}, "plain", FallbackConfig{})
		_, err := fb.FetchSummary(context.Background(), "2026-03-03")
		if !errors.Is(err, stt.ErrSummaryUnavailable) {
			t.Errorf("err = %v, want ErrSummaryUnavailable", err)
		}
	})

	t.Run("unavailable", func(t *testing.T) {
		t.Parallel()
		fb := NewTranscriberFallback(&sttmock.Provider{SummaryErr: stt.ErrSummaryUnavailable}, "p", FallbackConfig{})
		_, err := fb.FetchSummary(context.Background(), "2026-03-03")
		if !errors.Is(err, stt.ErrSummaryUnavailable) {
			t.Errorf("err = %v", err)
		}
	})
}
