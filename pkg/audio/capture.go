// Package audio defines the microphone capture contract and the PCM/WAV
// helpers shared by the recognizer providers.
//
// The orchestrator treats capture as an opaque producer of one finalized
// buffer per voice turn: [Capture.Start] begins recording, [Capture.Stop]
// returns the complete utterance as a WAV-framed buffer (16 kHz, mono,
// 16-bit little-endian PCM), and [Capture.Cancel] discards everything.
//
// Platform-specific capture implementations live outside this module; this
// package only fixes the contract and the audio format.
package audio

import "context"

// CaptureFormat is the audio format every capture implementation must
// deliver: what whisper.cpp and the cloud transcription API both expect.
type CaptureFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat is 16 kHz mono 16-bit PCM.
var DefaultFormat = CaptureFormat{SampleRate: 16000, Channels: 1, BitDepth: 16}

// Capture produces one finalized audio buffer per voice turn.
//
// Implementations must be safe for concurrent use. Start/Stop/Cancel are
// serialized by the orchestrator's sequential-turn invariant, but Running may
// be called from any goroutine (the stuck-state recovery probe uses it).
type Capture interface {
	// Start begins recording from the device microphone. It returns an error
	// if recording cannot start (device busy, permission denied). A second
	// Start while recording is an error.
	Start(ctx context.Context) error

	// Stop ends recording and returns the complete utterance, WAV-framed in
	// [DefaultFormat]. Returns an error if nothing was recorded.
	Stop() ([]byte, error)

	// Cancel discards any in-progress recording. Safe to call when idle.
	Cancel()

	// Running reports whether a recording is in progress.
	Running() bool
}
