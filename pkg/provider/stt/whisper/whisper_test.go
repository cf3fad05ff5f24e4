package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/daymind/pkg/provider/stt"
	"github.com/MrWong99/daymind/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing the provided responseText. It increments *callCount on
// every matched request and records the last language field in *lang.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32, lang *atomic.Value) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		if lang != nil {
			lang.Store(r.FormValue("language"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

func writeChunk(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk_1.flac")
	if err := os.WriteFile(path, []byte("fLaC"), 0o644); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	return path
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	p, err := whisper.New("http://localhost:8080",
		whisper.WithModel("small"),
		whisper.WithTemperature(0.2),
		whisper.WithHTTPClient(http.DefaultClient),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil Provider")
	}
}

// ---- upload -----------------------------------------------------------------

func TestUpload_ReturnsTrimmedText(t *testing.T) {
	var calls atomic.Int32
	var lang atomic.Value
	srv := newMockServer(t, "  hello there \n", &calls, &lang)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	resp, err := p.Upload(context.Background(), writeChunk(t), "", stt.Metadata{})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if resp.Text != "hello there" {
		t.Errorf("Text = %q", resp.Text)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if got, _ := lang.Load().(string); got != "auto" {
		t.Errorf("language = %q, want auto", got)
	}
}

func TestUpload_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	_, err := p.Upload(context.Background(), writeChunk(t), "en", stt.Metadata{})
	var de *stt.DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("want *stt.DeliveryError, got %v", err)
	}
	if de.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", de.StatusCode)
	}
}

func TestUpload_ErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"failed to read audio"}`))
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	_, err := p.Upload(context.Background(), writeChunk(t), "en", stt.Metadata{})
	if err == nil || err.Error() != "whisper: failed to read audio" {
		t.Errorf("got %v", err)
	}
}

func TestUpload_ContextCancelled(t *testing.T) {
	srv := newMockServer(t, "x", nil, nil)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Upload(ctx, writeChunk(t), "", stt.Metadata{}); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestTestConnection(t *testing.T) {
	srv := newMockServer(t, "", nil, nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL + "/")
	ok, err := p.TestConnection(context.Background())
	if err != nil || !ok {
		t.Errorf("TestConnection = %v, %v", ok, err)
	}

	srv.Close()
	if _, err := p.TestConnection(context.Background()); err == nil {
		t.Error("expected error after server shutdown")
	}
}
