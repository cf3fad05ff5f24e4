// Package whisper provides a transcription provider backed by a self-hosted
// whisper.cpp server.
//
// It posts each chunk file to the server's POST /inference endpoint as
// multipart/form-data and reads the JSON {"text": ...} reply. whisper-server
// must be started with --convert (ffmpeg) to accept FLAC input.
//
// whisper.cpp has no notion of capture sessions, so the returned Response only
// carries Text; the upload worker falls back to the queued metadata for
// timestamps.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithModel("base.en"),
//	)
//	resp, err := p.Upload(ctx, path, "en", meta)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/daymind/pkg/provider/stt"
)

const providerName = "whisper"

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with; this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithTemperature sets the decoding temperature field. Zero (the default)
// omits the field.
func WithTemperature(t float64) Option {
	return func(p *Provider) {
		p.temperature = t
	}
}

// WithHTTPClient replaces the default HTTP client (60 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL   string
	model       string
	temperature float64
	httpClient  *http.Client
}

// New creates a new Provider that talks to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Upload implements stt.Provider. A lang of "auto" or "" is forwarded as
// "auto", which makes whisper.cpp detect the language.
func (p *Provider) Upload(ctx context.Context, path, lang string, _ stt.Metadata) (*stt.Response, error) {
	body, contentType, err := p.buildForm(path, stt.UploadLanguage(lang))
	if err != nil {
		return nil, &stt.DeliveryError{Provider: providerName, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", body)
	if err != nil {
		return nil, &stt.DeliveryError{Provider: providerName, Err: fmt.Errorf("whisper: create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &stt.DeliveryError{Provider: providerName, Err: fmt.Errorf("whisper: http request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &stt.DeliveryError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Msg:        fmt.Sprintf("whisper: server returned HTTP %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &stt.DeliveryError{Provider: providerName, StatusCode: resp.StatusCode, Err: fmt.Errorf("whisper: read response body: %w", err)}
	}

	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &stt.DeliveryError{Provider: providerName, StatusCode: resp.StatusCode, Err: fmt.Errorf("whisper: parse JSON response: %w", err)}
	}
	if result.Error != "" {
		return nil, &stt.DeliveryError{Provider: providerName, StatusCode: resp.StatusCode, Msg: "whisper: " + result.Error}
	}
	return &stt.Response{Text: strings.TrimSpace(result.Text)}, nil
}

// TestConnection implements stt.Provider. whisper-server serves its web page
// at the root path, so any 200 there counts as reachable.
func (p *Provider) TestConnection(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/", nil)
	if err != nil {
		return false, fmt.Errorf("whisper: create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("whisper: health probe: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

// buildForm encodes the chunk file and hint fields as multipart/form-data.
func (p *Provider) buildForm(path, lang string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: open chunk: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	// Primary audio field.
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", stt.MimeType(path))
	fw, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", fmt.Errorf("whisper: write audio data: %w", err)
	}

	// Optional hint fields.
	if err := mw.WriteField("language", lang); err != nil {
		return nil, "", fmt.Errorf("whisper: write language field: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return nil, "", fmt.Errorf("whisper: write response_format field: %w", err)
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return nil, "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if p.temperature != 0 {
		if err := mw.WriteField("temperature", fmt.Sprintf("%.2f", p.temperature)); err != nil {
			return nil, "", fmt.Errorf("whisper: write temperature field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}
