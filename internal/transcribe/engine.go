// Package transcribe wraps the speech-to-text engine and normalizes its output.
package transcribe

import "fmt"

// SampleRate is the input rate the engine expects (mono float32).
const SampleRate = 16000

// RawSegment is one engine-native segment: start/end offsets in seconds and the
// text as produced by the engine (encoding not yet validated).
type RawSegment struct {
	Start float64
	End   float64
	Text  string
}

// Engine is a speech-to-text engine. Implementations hold process-wide model
// state: load once, share across jobs, Close at shutdown. Transcribe may be
// called from concurrent jobs; implementations serialize internally if the
// underlying engine requires it.
type Engine interface {
	Transcribe(samples []float32) ([]RawSegment, error)
	Close() error
}

// EngineError marks a retryable inference failure (model load, native decode,
// out of memory).
type EngineError struct {
	Err error
}

func (e *EngineError) Error() string { return fmt.Sprintf("engine: %v", e.Err) }

func (e *EngineError) Unwrap() error { return e.Err }
