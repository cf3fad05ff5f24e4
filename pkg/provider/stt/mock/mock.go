// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to script upload outcomes and inspect which chunks were
// delivered with which metadata.
//
// Example:
//
//	p := &mock.Provider{
//	    Errs:     []error{errors.New("offline")},
//	    Response: &stt.Response{Text: "hello"},
//	}
//	_, err := p.Upload(ctx, path, "auto", meta) // offline
//	resp, _ := p.Upload(ctx, path, "auto", meta) // hello
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/daymind/pkg/provider/stt"
)

// UploadCall records a single invocation of Provider.Upload.
type UploadCall struct {
	// Path is the chunk file path passed to Upload.
	Path string
	// Lang is the language hint passed to Upload.
	Lang string
	// Meta is the metadata passed to Upload.
	Meta stt.Metadata
}

// Provider is a mock implementation of stt.Provider and stt.SummaryFetcher.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Upload once Errs is exhausted. If nil, an empty
	// Response is returned.
	Response *stt.Response

	// Errs are returned by successive Upload calls before Response is used.
	Errs []error

	// UploadErr, if non-nil, is returned by every Upload call after Errs.
	UploadErr error

	// Healthy is returned by TestConnection.
	Healthy bool

	// TestConnectionErr, if non-nil, is returned by TestConnection.
	TestConnectionErr error

	// Summary and SummaryErr are returned by FetchSummary.
	Summary    string
	SummaryErr error

	// OnUpload, when set, is called with the call index before Upload returns.
	OnUpload func(call int)

	// --- Call records ---

	// UploadCalls records every call to Upload in order.
	UploadCalls []UploadCall

	// TestConnectionCalls counts calls to TestConnection.
	TestConnectionCalls int

	// SummaryDates records the date argument of each FetchSummary call.
	SummaryDates []string
}

// Upload records the call and returns the scripted outcome.
func (p *Provider) Upload(_ context.Context, path, lang string, meta stt.Metadata) (*stt.Response, error) {
	p.mu.Lock()
	p.UploadCalls = append(p.UploadCalls, UploadCall{Path: path, Lang: lang, Meta: meta})
	call := len(p.UploadCalls)
	hook := p.OnUpload

	var (
		resp *stt.Response
		err  error
	)
	switch {
	case len(p.Errs) > 0:
		err = p.Errs[0]
		p.Errs = p.Errs[1:]
	case p.UploadErr != nil:
		err = p.UploadErr
	case p.Response != nil:
		cp := *p.Response
		resp = &cp
	default:
		resp = &stt.Response{}
	}
	p.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return resp, err
}

// TestConnection records the call and returns Healthy, TestConnectionErr.
func (p *Provider) TestConnection(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TestConnectionCalls++
	return p.Healthy, p.TestConnectionErr
}

// FetchSummary records the call and returns Summary, SummaryErr.
func (p *Provider) FetchSummary(_ context.Context, date string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SummaryDates = append(p.SummaryDates, date)
	return p.Summary, p.SummaryErr
}

// Uploads returns a copy of the recorded Upload calls. Thread-safe.
func (p *Provider) Uploads() []UploadCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]UploadCall(nil), p.UploadCalls...)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.UploadCalls = nil
	p.TestConnectionCalls = 0
	p.SummaryDates = nil
}

// Ensure Provider implements the stt interfaces at compile time.
var (
	_ stt.Provider       = (*Provider)(nil)
	_ stt.SummaryFetcher = (*Provider)(nil)
)
