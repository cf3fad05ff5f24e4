// Package daymind provides the native DayMind backend client.
//
// Chunks are sent as multipart/form-data to POST {base}/v1/transcribe with the
// audio under "file" and the session metadata as form fields. Every request
// carries the API key in the X-API-Key header. The client also implements
// [stt.SummaryFetcher] against GET {base}/v1/summary.
//
// Server URL and API key may be changed at runtime with SetCredentials; the
// next request picks them up.
//
// Usage:
//
//	p := daymind.New("https://daymind.example", key)
//	resp, err := p.Upload(ctx, "chunk_1700000000000.flac", "auto", meta)
package daymind

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/daymind/pkg/provider/stt"
)

const (
	providerName   = "daymind"
	defaultTimeout = 15 * time.Second
	apiKeyHeader   = "X-API-Key"
)

var (
	_ stt.Provider       = (*Provider)(nil)
	_ stt.SummaryFetcher = (*Provider)(nil)
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default HTTP client (15 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient = &http.Client{Timeout: d}
	}
}

// Provider implements [stt.Provider] for the DayMind backend.
type Provider struct {
	mu        sync.RWMutex
	serverURL string
	apiKey    string

	httpClient *http.Client
}

// New creates a Provider. Empty credentials are accepted; requests fail with
// [stt.ErrMissingServerURL] or [stt.ErrMissingAPIKey] until they are set.
func New(serverURL, apiKey string, opts ...Option) *Provider {
	p := &Provider{
		serverURL:  serverURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetCredentials replaces the server URL and API key.
func (p *Provider) SetCredentials(serverURL, apiKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.serverURL = serverURL
	p.apiKey = apiKey
}

// endpoint returns base+path and the API key, validating both.
func (p *Provider) endpoint(path string) (string, string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.apiKey == "" {
		return "", "", stt.ErrMissingAPIKey
	}
	base := strings.TrimRight(p.serverURL, "/")
	if base == "" {
		return "", "", stt.ErrMissingServerURL
	}
	return base + path, p.apiKey, nil
}

// Upload implements [stt.Provider].
func (p *Provider) Upload(ctx context.Context, path, lang string, meta stt.Metadata) (*stt.Response, error) {
	endpoint, key, err := p.endpoint("/v1/transcribe")
	if err != nil {
		return nil, &stt.DeliveryError{Provider: providerName, Err: err}
	}

	body, contentType, err := buildForm(path, lang, meta)
	if err != nil {
		return nil, &stt.DeliveryError{Provider: providerName, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, &stt.DeliveryError{Provider: providerName, Err: fmt.Errorf("daymind: create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(apiKeyHeader, key)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &stt.DeliveryError{Provider: providerName, Err: fmt.Errorf("daymind: upload: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &stt.DeliveryError{Provider: providerName, StatusCode: resp.StatusCode, Err: stt.ErrUnauthorized}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &stt.DeliveryError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Msg:        fmt.Sprintf("upload failed: %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &stt.DeliveryError{Provider: providerName, StatusCode: resp.StatusCode, Err: fmt.Errorf("daymind: read response: %w", err)}
	}
	var out stt.Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &stt.DeliveryError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Msg:        fmt.Sprintf("invalid response: %v", err),
			Err:        err,
		}
	}
	return &out, nil
}

// TestConnection implements [stt.Provider]. It returns true only when
// GET /healthz answers 200.
func (p *Provider) TestConnection(ctx context.Context) (bool, error) {
	endpoint, key, err := p.endpoint("/healthz")
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("daymind: create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, key)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("daymind: health probe: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

// FetchSummary implements [stt.SummaryFetcher]. An empty date means today
// in UTC.
func (p *Provider) FetchSummary(ctx context.Context, date string) (string, error) {
	if date == "" {
		date = time.Now().UTC().Format(time.DateOnly)
	}
	endpoint, key, err := p.endpoint("/v1/summary")
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+url.Values{"date": {date}}.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("daymind: create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, key)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("daymind: fetch summary: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", stt.ErrSummaryUnavailable
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", fmt.Errorf("summary error: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("daymind: read summary: %w", err)
	}
	var parsed struct {
		SummaryMD string `json:"summary_md"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("daymind: parse summary: %w", err)
	}
	if parsed.SummaryMD != "" {
		return parsed.SummaryMD, nil
	}
	return string(data), nil
}

// buildForm encodes the chunk file and metadata as multipart/form-data.
func buildForm(path, lang string, meta stt.Metadata) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("daymind: open chunk: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", stt.MimeType(path))
	fw, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("daymind: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", fmt.Errorf("daymind: write audio: %w", err)
	}

	fields := [][2]string{
		{"lang", stt.UploadLanguage(lang)},
		{"session_start", meta.SessionStart},
		{"session_end", meta.SessionEnd},
	}
	if len(meta.SpeechSegments) > 0 {
		segs, err := json.Marshal(meta.SpeechSegments)
		if err != nil {
			return nil, "", fmt.Errorf("daymind: encode segments: %w", err)
		}
		fields = append(fields, [2]string{"speech_segments", string(segs)})
	}
	for _, kv := range fields {
		if kv[1] == "" {
			continue
		}
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", fmt.Errorf("daymind: write %s field: %w", kv[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("daymind: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}
