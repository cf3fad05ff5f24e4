package vad

// VADEvent represents a voice activity detection result for a single audio frame.
type VADEvent struct {
	// Type is the detection result.
	Type VADEventType

	// Probability is the speech probability score (0.0–1.0). Binary
	// classifiers report 1 for speech and 0 otherwise.
	Probability float64
}

// IsSpeech reports whether the frame was classified as speech.
func (e VADEvent) IsSpeech() bool { return e.Type == VADSpeech }

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSilence indicates no speech detected.
	VADSilence VADEventType = iota

	// VADSpeech indicates the frame contains speech.
	VADSpeech
)

// String implements [fmt.Stringer].
func (t VADEventType) String() string {
	switch t {
	case VADSpeech:
		return "speech"
	case VADSilence:
		return "silence"
	default:
		return "unknown"
	}
}
