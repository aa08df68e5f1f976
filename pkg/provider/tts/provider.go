// Package tts defines the text-to-speech playback contract.
//
// The orchestrator only needs three things from TTS: whether it is usable at
// all (Available), a blocking Speak that reads the assistant's reply aloud,
// and a Stop that cuts playback when the user cancels. TTS being unavailable
// is never an error for a turn — the orchestrator silently skips the
// Speaking state.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use; Speak and Stop may be
// called from different goroutines.
type Provider interface {
	// Available reports whether speech synthesis can be attempted now.
	Available() bool

	// Speak synthesises and plays text, blocking until playback finishes,
	// Stop is called, or ctx is cancelled.
	Speak(ctx context.Context, text string) error

	// Stop aborts any in-flight synthesis and playback. Safe to call when
	// nothing is playing.
	Stop()
}
