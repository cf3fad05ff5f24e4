// Package stt defines the Provider interface for remote transcription
// backends.
//
// A provider accepts a finished chunk file (FLAC, MP3 or WAV) plus the
// capture-session metadata recorded for it, hands it to a remote service and
// returns the transcript. Delivery is at-least-once: the caller deletes the
// local file only after Upload returns without error.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Provider is the abstraction over any remote transcription backend.
type Provider interface {
	// Upload sends the audio file at path for transcription. lang is a
	// language hint; "auto" or "" lets the backend detect it. The returned
	// error is a [*DeliveryError] when the backend rejected the request.
	Upload(ctx context.Context, path, lang string, meta Metadata) (*Response, error)

	// TestConnection reports whether the backend answers its health probe.
	// A non-nil error means the probe could not be performed at all (missing
	// credentials, unreachable host).
	TestConnection(ctx context.Context) (bool, error)
}

// SummaryFetcher is implemented by backends that produce daily summaries.
type SummaryFetcher interface {
	// FetchSummary returns the markdown summary for date (YYYY-MM-DD). It
	// returns an error wrapping [ErrSummaryUnavailable] when the backend has
	// not produced one yet.
	FetchSummary(ctx context.Context, date string) (string, error)
}
