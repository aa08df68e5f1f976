// Package assistant owns the turn lifecycle: it sequences voice
// capture, transcription, search augmentation, completion streaming and
// speech output behind a single state machine.
package assistant

import "github.com/serin-ai/serin/internal/completion"

// Phase is the current position in the turn lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseListening
	PhaseProcessing
	PhaseSearching
	PhaseResponding
	PhaseSpeaking
	PhaseComplete
	PhaseError
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseProcessing:
		return "processing"
	case PhaseSearching:
		return "searching"
	case PhaseResponding:
		return "responding"
	case PhaseSpeaking:
		return "speaking"
	case PhaseComplete:
		return "complete"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// State is the single source of truth consumed by observers. Reason is
// set only when Phase is PhaseError.
type State struct {
	Phase  Phase
	Reason string
}

// ErrorState builds the error variant.
func ErrorState(reason string) State {
	return State{Phase: PhaseError, Reason: reason}
}

// Observer receives the orchestrator's observable side effects. All
// fields are optional; nil callbacks are skipped. Callbacks are invoked
// synchronously from the turn goroutine and must not block.
type Observer struct {
	// State is called on every state change.
	State func(State)

	// Transcript receives transcript-so-far updates while listening.
	Transcript func(partial string)

	// ResponseDelta receives incremental response text while responding.
	ResponseDelta func(delta string)

	// Actions receives the terminal URL candidates of a turn, which
	// require user confirmation before anything is opened.
	Actions func(completion.PendingAction)
}

func (o Observer) publishState(s State) {
	if o.State != nil {
		o.State(s)
	}
}

func (o Observer) publishTranscript(t string) {
	if o.Transcript != nil {
		o.Transcript(t)
	}
}

func (o Observer) publishDelta(d string) {
	if o.ResponseDelta != nil {
		o.ResponseDelta(d)
	}
}

func (o Observer) publishActions(p completion.PendingAction) {
	if o.Actions != nil && !p.Empty() {
		o.Actions(p)
	}
}
