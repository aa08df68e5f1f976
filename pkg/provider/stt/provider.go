// Package stt defines the recognizer interfaces for the three speech-to-text
// acquisition paths used by Serin.
//
// Serin treats each voice turn as one finalized audio buffer. The three
// recognizer kinds differ in how they obtain text from that buffer:
//
//   - [OfflineRecognizer] — on-device whisper.cpp inference. Readiness depends
//     on a downloadable language model; callers must check Ready before use.
//   - [CloudRecognizer] — a whisper-compatible REST API. Always attemptable;
//     failures surface as errors rather than availability flips.
//   - [SystemRecognizer] — the platform speech service, consumed as a stream
//     of recognition events rather than a one-shot call.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// Strategy identifies one of the three transcription acquisition paths.
type Strategy string

const (
	StrategyOffline Strategy = "offline"
	StrategyCloud   Strategy = "cloud"
	StrategySystem  Strategy = "system"
)

// IsValid reports whether s is a recognised strategy.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyOffline, StrategyCloud, StrategySystem:
		return true
	}
	return false
}

// Error classes a [SystemRecognizer] session can terminate with. The router
// treats ErrNoService as recoverable (retry on the offline path); the others
// are surfaced to the user directly.
var (
	// ErrNoService means no recognition service is installed or reachable.
	ErrNoService = errors.New("no recognition service available")

	// ErrNoSpeech means the recognizer timed out without detecting speech.
	ErrNoSpeech = errors.New("no speech detected")

	// ErrPermission means microphone or recognizer permission was denied.
	ErrPermission = errors.New("speech recognition permission denied")
)

// OfflineRecognizer is an on-device batch transcription engine.
//
// Readiness is a function of model availability: an engine whose language
// model has not been downloaded must report Ready() == false and
// NeedsModelDownload(lang) == true, and must never block waiting for a
// download inside Transcribe.
type OfflineRecognizer interface {
	// Ready reports whether the engine is loaded and can transcribe now.
	Ready() bool

	// NeedsModelDownload reports whether the model for lang (a BCP-47 code
	// such as "en" or "de") is missing from the local model directory.
	NeedsModelDownload(lang string) bool

	// Transcribe runs batch inference over a finalized WAV-framed audio
	// buffer (16 kHz, mono, 16-bit PCM) and returns the recognised text.
	// An empty result is valid and means no speech was recognised.
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// CloudRecognizer transcribes a finalized audio buffer via a remote
// whisper-compatible API.
type CloudRecognizer interface {
	// Transcribe submits the audio buffer with an optional language hint
	// (empty string = auto-detect). Errors are terminal for the turn; the
	// router never falls back away from a cloud failure because cloud
	// failures are typically credential problems, not availability problems.
	Transcribe(ctx context.Context, audio []byte, languageHint string) (string, error)
}

// EventKind classifies recognition events emitted by a [SystemRecognizer].
type EventKind int

const (
	// EventReadyForSpeech signals the recognizer is listening.
	EventReadyForSpeech EventKind = iota

	// EventPartial carries an interim hypothesis in Event.Text.
	EventPartial

	// EventEndOfSpeech signals the recognizer detected the end of the utterance.
	EventEndOfSpeech

	// EventFinal carries the committed transcript in Event.Text. It is the
	// last non-error event of a successful session.
	EventFinal

	// EventError carries a terminal error in Event.Err. See the Err* sentinel
	// errors in this package for the classes the router distinguishes.
	EventError
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventReadyForSpeech:
		return "ready_for_speech"
	case EventPartial:
		return "partial"
	case EventEndOfSpeech:
		return "end_of_speech"
	case EventFinal:
		return "final"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single recognition event from a [SystemRecognizer] session.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// SystemRecognizer is the platform speech service, exposed as an event stream.
type SystemRecognizer interface {
	// Available reports whether a platform recognition service exists.
	Available() bool

	// StartListening begins a recognition session and returns a read-only
	// event channel. The channel is closed after EventFinal or EventError, or
	// when ctx is cancelled. Exactly one of those terminal events is emitted
	// per session.
	StartListening(ctx context.Context, language string) (<-chan Event, error)

	// Cancel aborts any in-flight session without emitting a final result.
	Cancel()
}
