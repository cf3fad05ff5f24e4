package stt

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Sentinel errors shared by all providers.
var (
	// ErrUnauthorized is wrapped by a DeliveryError when the backend rejects
	// the configured credentials.
	ErrUnauthorized = errors.New("unauthorized: check API key")

	// ErrSummaryUnavailable is returned by FetchSummary for dates without a
	// summary.
	ErrSummaryUnavailable = errors.New("summary not available yet")

	// ErrMissingAPIKey is returned before any request when no key is set.
	ErrMissingAPIKey = errors.New("API key missing")

	// ErrMissingServerURL is returned before any request when no base URL is set.
	ErrMissingServerURL = errors.New("server URL missing")
)

// Segment is one speech span of a chunk. The millisecond offsets are relative
// to the start of the capture window; the UTC fields are ISO-8601 timestamps
// with a Z suffix and may be empty.
type Segment struct {
	StartMs  int    `json:"start_ms"`
	EndMs    int    `json:"end_ms"`
	StartUTC string `json:"start_utc,omitempty"`
	EndUTC   string `json:"end_utc,omitempty"`
}

// Metadata accompanies an uploaded chunk.
type Metadata struct {
	SessionStart   string    `json:"session_start,omitempty"`
	SessionEnd     string    `json:"session_end,omitempty"`
	SpeechSegments []Segment `json:"speech_segments,omitempty"`
}

// Response is the transcription result of a successful upload. Fields other
// than Text are optional echoes of the session metadata.
type Response struct {
	Text           string    `json:"text"`
	SessionStart   string    `json:"session_start,omitempty"`
	SessionEnd     string    `json:"session_end,omitempty"`
	SpeechSegments []Segment `json:"speech_segments,omitempty"`
}

// DeliveryError reports a failed delivery attempt. All delivery errors are
// treated as transient by the upload worker.
type DeliveryError struct {
	// Provider is the name of the backend that failed.
	Provider string

	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int

	// Msg is the operator-facing description.
	Msg string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (e *DeliveryError) Error() string {
	switch {
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("%s: delivery failed", e.Provider)
	}
}

// Unwrap returns the underlying cause.
func (e *DeliveryError) Unwrap() error { return e.Err }

// MimeType returns the upload content type for the file at path, derived from
// its extension.
func MimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return "audio/flac"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "audio/wav"
	}
}

// UploadLanguage normalises a language hint: empty becomes "auto".
func UploadLanguage(lang string) string {
	if strings.TrimSpace(lang) == "" {
		return "auto"
	}
	return lang
}
