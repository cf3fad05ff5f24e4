// Package openai provides a transcription provider backed by the OpenAI audio
// API (or any server exposing the same /audio/transcriptions endpoint).
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/daymind/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = oai.AudioModelWhisper1

const providerName = "openai"

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	maxRetries   int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the client retries a failed request itself.
// The upload worker already retries with backoff, so the default is 0.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a new OpenAI transcription Provider.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: %w", stt.ErrMissingAPIKey)
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// ModelID returns the configured model.
func (p *Provider) ModelID() string { return p.model }

// Upload implements stt.Provider. The OpenAI API ignores session metadata;
// only the transcript text is returned.
func (p *Provider) Upload(ctx context.Context, path, lang string, _ stt.Metadata) (*stt.Response, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &stt.DeliveryError{Provider: providerName, Err: fmt.Errorf("openai stt: open chunk: %w", err)}
	}
	defer f.Close()

	params := oai.AudioTranscriptionNewParams{
		File:  f,
		Model: p.model,
	}
	if l := stt.UploadLanguage(lang); l != "auto" {
		params.Language = oai.String(l)
	}

	tr, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, deliveryError(err)
	}
	return &stt.Response{Text: strings.TrimSpace(tr.Text)}, nil
}

// TestConnection implements stt.Provider by retrieving the configured model.
func (p *Provider) TestConnection(ctx context.Context) (bool, error) {
	if _, err := p.client.Models.Get(ctx, p.model); err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return false, nil
		}
		return false, fmt.Errorf("openai stt: health probe: %w", err)
	}
	return true, nil
}

// deliveryError maps SDK errors onto stt.DeliveryError.
func deliveryError(err error) error {
	var apiErr *oai.Error
	if !errors.As(err, &apiErr) {
		return &stt.DeliveryError{Provider: providerName, Err: fmt.Errorf("openai stt: transcribe: %w", err)}
	}
	if apiErr.StatusCode == http.StatusUnauthorized {
		return &stt.DeliveryError{Provider: providerName, StatusCode: apiErr.StatusCode, Err: stt.ErrUnauthorized}
	}
	return &stt.DeliveryError{
		Provider:   providerName,
		StatusCode: apiErr.StatusCode,
		Msg:        fmt.Sprintf("upload failed: %d", apiErr.StatusCode),
		Err:        err,
	}
}
