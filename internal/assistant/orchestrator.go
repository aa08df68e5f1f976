package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/serin-ai/serin/internal/chat"
	"github.com/serin-ai/serin/internal/completion"
	"github.com/serin-ai/serin/internal/observe"
	searchaug "github.com/serin-ai/serin/internal/search"
	"github.com/serin-ai/serin/internal/transcribe"
	"github.com/serin-ai/serin/pkg/audio"
	"github.com/serin-ai/serin/pkg/history"
	"github.com/serin-ai/serin/pkg/provider/stt"
	"github.com/serin-ai/serin/pkg/provider/tts"
	websearch "github.com/serin-ai/serin/pkg/search"
)

// ErrTurnInProgress is returned when a new turn is requested while a
// prior turn occupies a non-terminal state. Cancellation is the only
// operation accepted at any time.
var ErrTurnInProgress = errors.New("assistant: a turn is already in progress")

// Query is one user request, optionally carrying an image.
type Query struct {
	Text        string
	ImageBase64 string
	ImageMIME   string
}

// Orchestrator sequences the assistant pipeline for one session. Turns
// are strictly sequential; Activate and SubmitQuery block for the
// duration of a turn and may be cancelled from any goroutine via
// CancelOperation.
type Orchestrator struct {
	session   *chat.Session
	router    *transcribe.Router
	augmenter *searchaug.Augmenter
	streamer  *completion.Streamer
	capture   audio.Capture
	voice     tts.Provider
	store     history.Store
	observer  Observer
	metrics   *observe.Metrics
	log       *slog.Logger

	autoSend       bool
	speakResponses bool

	mu               sync.Mutex
	state            State
	gen              int
	cancelTurn       context.CancelFunc
	stopCh           chan struct{}
	recognizerActive bool
	staged           string
	historyID        string
}

// OrchestratorConfig wires an [Orchestrator]. Session and Streamer are
// required; everything else is optional and disables the corresponding
// feature when nil.
type OrchestratorConfig struct {
	Session   *chat.Session
	Router    *transcribe.Router
	Augmenter *searchaug.Augmenter
	Streamer  *completion.Streamer
	Capture   audio.Capture
	Voice     tts.Provider
	History   history.Store
	Observer  Observer
	Metrics   *observe.Metrics
	Logger    *slog.Logger

	// AutoSend submits a successful transcription immediately. When
	// false the transcript is staged for manual confirmation.
	AutoSend bool

	// SpeakResponses plays completed responses through the TTS provider.
	SpeakResponses bool
}

// NewOrchestrator creates an [Orchestrator] in the idle state.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Orchestrator{
		session:        cfg.Session,
		router:         cfg.Router,
		augmenter:      cfg.Augmenter,
		streamer:       cfg.Streamer,
		capture:        cfg.Capture,
		voice:          cfg.Voice,
		store:          cfg.History,
		observer:       cfg.Observer,
		metrics:        metrics,
		log:            log,
		autoSend:       cfg.AutoSend,
		speakResponses: cfg.SpeakResponses,
		state:          State{Phase: PhaseIdle},
	}
}

// State returns the current state snapshot.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Staged returns the transcript awaiting manual confirmation, if any.
func (o *Orchestrator) Staged() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.staged
}

// Reconfigure swaps the turn collaborators for a new settings snapshot.
// The session, history store, and observer are kept; nil collaborator
// fields in cfg leave the current ones in place. Rejected while a turn
// is in a non-terminal phase.
func (o *Orchestrator) Reconfigure(cfg OrchestratorConfig) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state.Phase {
	case PhaseIdle, PhaseComplete, PhaseError:
	default:
		return ErrTurnInProgress
	}
	if cfg.Router != nil {
		o.router = cfg.Router
	}
	if cfg.Augmenter != nil {
		o.augmenter = cfg.Augmenter
	}
	if cfg.Streamer != nil {
		o.streamer = cfg.Streamer
	}
	o.autoSend = cfg.AutoSend
	o.speakResponses = cfg.SpeakResponses
	o.log.Info("settings applied",
		"auto_send", o.autoSend,
		"speak_responses", o.speakResponses,
	)
	return nil
}

// Activate runs one voice turn: capture, transcription, and (with
// auto-send enabled) the full query pipeline. It blocks until the turn
// finishes, fails, or is cancelled.
func (o *Orchestrator) Activate(ctx context.Context) error {
	if o.router == nil {
		return errors.New("assistant: no transcription router configured")
	}
	gen, tctx, cancel, err := o.beginTurn(ctx, PhaseListening)
	if err != nil {
		return err
	}
	defer cancel()
	turnDone := o.metrics.TurnStarted(tctx)
	defer turnDone()
	turnStart := time.Now()

	ctx2, span := observe.StartSpan(tctx, "assistant.voice_turn")
	defer span.End()

	text, err := o.listen(ctx2)
	if err != nil {
		return o.failTurn(ctx2, gen, "transcription", err)
	}

	if !o.autoSend {
		o.mu.Lock()
		if o.gen == gen {
			o.staged = text
		}
		o.mu.Unlock()
		o.setTurnState(gen, State{Phase: PhaseIdle})
		return nil
	}
	return o.runQuery(ctx2, gen, Query{Text: text}, turnStart, "voice")
}

// SubmitQuery runs one text turn. It blocks until the turn finishes,
// fails, or is cancelled.
func (o *Orchestrator) SubmitQuery(ctx context.Context, q Query) error {
	if strings.TrimSpace(q.Text) == "" && q.ImageBase64 == "" {
		return errors.New("assistant: empty query")
	}
	gen, tctx, cancel, err := o.beginTurn(ctx, PhaseProcessing)
	if err != nil {
		return err
	}
	defer cancel()
	turnDone := o.metrics.TurnStarted(tctx)
	defer turnDone()

	ctx2, span := observe.StartSpan(tctx, "assistant.text_turn")
	defer span.End()
	return o.runQuery(ctx2, gen, q, time.Now(), "text")
}

// SubmitStaged submits the transcript staged by a non-auto-send voice
// turn.
func (o *Orchestrator) SubmitStaged(ctx context.Context) error {
	o.mu.Lock()
	text := o.staged
	o.staged = ""
	o.mu.Unlock()
	if text == "" {
		return errors.New("assistant: nothing staged")
	}
	return o.SubmitQuery(ctx, Query{Text: text})
}

// StopListening ends audio capture for the current voice turn. A no-op
// when no buffer-based capture is waiting.
func (o *Orchestrator) StopListening() {
	o.mu.Lock()
	ch := o.stopCh
	o.stopCh = nil
	o.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// CancelOperation aborts whatever is in flight and returns to Idle. It
// is always accepted, from any state. Partial output is discarded.
func (o *Orchestrator) CancelOperation() {
	o.mu.Lock()
	o.gen++
	if o.cancelTurn != nil {
		o.cancelTurn()
		o.cancelTurn = nil
	}
	o.stopCh = nil
	o.recognizerActive = false
	o.state = State{Phase: PhaseIdle}
	o.mu.Unlock()

	if o.capture != nil {
		o.capture.Cancel()
	}
	if o.voice != nil {
		o.voice.Stop()
	}
	o.observer.publishState(State{Phase: PhaseIdle})
}

// ClearSession empties the conversation, persisting it first when it
// holds a meaningful exchange (at least two messages) and a history
// store is configured.
func (o *Orchestrator) ClearSession(ctx context.Context) error {
	o.mu.Lock()
	switch o.state.Phase {
	case PhaseIdle, PhaseComplete, PhaseError:
	default:
		o.mu.Unlock()
		return ErrTurnInProgress
	}
	id := o.historyID
	o.historyID = ""
	o.staged = ""
	o.mu.Unlock()

	msgs := o.session.Clear()
	if o.store != nil && len(msgs) >= 2 {
		records := toRecords(msgs)
		var err error
		if id != "" {
			err = o.store.Update(ctx, id, records)
		} else {
			_, err = o.store.Save(ctx, records, "")
		}
		if err != nil {
			return fmt.Errorf("assistant: persist session: %w", err)
		}
	}

	o.setState(State{Phase: PhaseIdle})
	return nil
}

// Resume loads a persisted conversation into the session. Subsequent
// ClearSession calls update the same record instead of creating a new
// one.
func (o *Orchestrator) Resume(ctx context.Context, id string) error {
	o.mu.Lock()
	switch o.state.Phase {
	case PhaseIdle, PhaseComplete, PhaseError:
	default:
		o.mu.Unlock()
		return ErrTurnInProgress
	}
	o.mu.Unlock()

	records, err := o.store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("assistant: resume session: %w", err)
	}

	o.session.Clear()
	for _, r := range records {
		o.session.Append(chat.Message{
			Role:        r.Role,
			Content:     r.Content,
			Timestamp:   r.Timestamp,
			ImageBase64: r.ImageBase64,
		})
	}

	o.mu.Lock()
	o.historyID = id
	o.mu.Unlock()
	o.setState(State{Phase: PhaseIdle})
	return nil
}

// SelfHeal recovers from a wedged Listening state: when neither the
// capture device nor the recognizer reports itself running, the
// transcription callback will never fire, so the orchestrator returns
// to Idle. Reports whether a recovery happened.
func (o *Orchestrator) SelfHeal() bool {
	o.mu.Lock()
	if o.state.Phase != PhaseListening {
		o.mu.Unlock()
		return false
	}
	capturing := o.capture != nil && o.capture.Running()
	if capturing || o.recognizerActive {
		o.mu.Unlock()
		return false
	}
	o.gen++
	if o.cancelTurn != nil {
		o.cancelTurn()
		o.cancelTurn = nil
	}
	o.stopCh = nil
	o.state = State{Phase: PhaseIdle}
	o.mu.Unlock()

	o.log.Warn("listening state wedged with no active capture, recovering to idle")
	o.observer.publishState(State{Phase: PhaseIdle})
	return true
}

// beginTurn claims the orchestrator for a new turn. Errors are not
// sticky: Idle, Complete and Error all accept a new turn.
func (o *Orchestrator) beginTurn(ctx context.Context, phase Phase) (int, context.Context, context.CancelFunc, error) {
	o.mu.Lock()
	switch o.state.Phase {
	case PhaseIdle, PhaseComplete, PhaseError:
	default:
		o.mu.Unlock()
		return 0, nil, nil, ErrTurnInProgress
	}
	o.gen++
	gen := o.gen
	tctx, cancel := context.WithCancel(ctx)
	o.cancelTurn = cancel
	if phase == PhaseListening {
		o.stopCh = make(chan struct{})
	}
	o.state = State{Phase: phase}
	o.mu.Unlock()

	o.observer.publishState(State{Phase: phase})
	return gen, tctx, cancel, nil
}

// listen produces the transcript for one voice turn.
func (o *Orchestrator) listen(ctx context.Context) (string, error) {
	sttStart := time.Now()
	text, strategy, err := o.router.Turn(ctx, o.captureAudio, func(ev stt.Event) {
		switch ev.Kind {
		case stt.EventReadyForSpeech:
			o.setRecognizerActive(true)
		case stt.EventPartial:
			o.observer.publishTranscript(ev.Text)
		case stt.EventEndOfSpeech:
			o.setRecognizerActive(false)
		}
	})
	o.setRecognizerActive(false)
	o.metrics.RecordStage(ctx, o.metrics.TranscriptionDuration, sttStart,
		attribute.String("strategy", string(strategy)))
	if err != nil {
		return "", err
	}
	o.observer.publishTranscript(text)
	o.log.Info("transcription complete", "strategy", string(strategy), "chars", len(text))
	return text, nil
}

// captureAudio records until StopListening or cancellation, then
// returns the finalized buffer.
func (o *Orchestrator) captureAudio(ctx context.Context) ([]byte, error) {
	if o.capture == nil {
		return nil, errors.New("assistant: no audio capture configured")
	}
	o.mu.Lock()
	if o.stopCh == nil {
		o.stopCh = make(chan struct{})
	}
	stop := o.stopCh
	o.mu.Unlock()

	if err := o.capture.Start(ctx); err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}
	select {
	case <-ctx.Done():
		o.capture.Cancel()
		return nil, ctx.Err()
	case <-stop:
		return o.capture.Stop()
	}
}

// runQuery drives Processing → [Searching] → Responding → [Speaking] →
// Complete for one user query.
func (o *Orchestrator) runQuery(ctx context.Context, gen int, q Query, turnStart time.Time, kind string) (err error) {
	o.setTurnState(gen, State{Phase: PhaseProcessing})
	baseLen := o.session.Len()
	o.session.Append(chat.Message{
		Role:        "user",
		Content:     q.Text,
		ImageBase64: q.ImageBase64,
		ImageMIME:   q.ImageMIME,
	})
	defer func() {
		// A cancelled turn must not strand the user message without its
		// answer. Failed turns keep it so the user can retry or edit.
		if errors.Is(err, context.Canceled) && o.session.Len() == baseLen+1 {
			o.session.TruncateTo(baseLen)
		}
	}()

	var (
		turn    completion.Turn
		sources []websearch.Result
	)
	hasImage := q.ImageBase64 != ""
	if o.augmenter != nil && o.augmenter.ShouldSearch(hasImage) {
		o.setTurnState(gen, State{Phase: PhaseSearching})
		searchStart := time.Now()
		aug := o.augmenter.Augment(ctx, q.Text, hasImage)
		o.metrics.RecordStage(ctx, o.metrics.SearchDuration, searchStart)
		if aug.Augmented {
			turn.PromptOverride = aug.Prompt
			sources = aug.Sources
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	o.setTurnState(gen, State{Phase: PhaseResponding})
	llmStart := time.Now()
	res, err := o.streamer.Stream(ctx, turn, o.observer.publishDelta)
	o.metrics.RecordStage(ctx, o.metrics.CompletionDuration, llmStart)
	if err != nil {
		return o.failTurn(ctx, gen, "completion", err)
	}

	if citations := searchaug.CitationList(sources); citations != "" {
		o.observer.publishDelta(citations)
	}
	o.observer.publishActions(res.Pending)

	if o.speakResponses && o.voice != nil && o.voice.Available() {
		o.setTurnState(gen, State{Phase: PhaseSpeaking})
		speakStart := time.Now()
		if err := o.voice.Speak(ctx, completion.StripMarkers(res.Text)); err != nil {
			// Playback failure never fails a turn whose text is already
			// committed and displayed.
			o.log.Warn("speech playback failed", "error", err)
		}
		o.metrics.RecordStage(ctx, o.metrics.SpeakDuration, speakStart)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	o.setTurnState(gen, State{Phase: PhaseComplete})
	o.metrics.RecordTurn(ctx, kind, "ok")
	o.metrics.RecordStage(ctx, o.metrics.TurnDuration, turnStart,
		attribute.String("kind", kind))
	observe.Logger(ctx).Debug("turn complete",
		"kind", kind,
		"chars", len(res.Text),
		"duration", time.Since(turnStart),
	)
	return nil
}

// failTurn moves the turn to the Error state unless it was cancelled,
// in which case CancelOperation already owns the state. A turn with no
// detected speech is not a failure: it returns to Idle so the next
// activation starts clean.
func (o *Orchestrator) failTurn(ctx context.Context, gen int, stage string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, stt.ErrNoSpeech) {
		o.log.Info("no speech detected, returning to idle")
		o.setTurnState(gen, State{Phase: PhaseIdle, Reason: "no speech detected"})
		return err
	}
	o.metrics.RecordTurnError(ctx, stage)
	o.log.Error("turn failed", "stage", stage, "error", err)
	o.setTurnState(gen, ErrorState(err.Error()))
	return err
}

// setTurnState publishes a state change, unless the turn that produced
// it has been cancelled in the meantime.
func (o *Orchestrator) setTurnState(gen int, s State) {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return
	}
	o.state = s
	o.mu.Unlock()
	o.observer.publishState(s)
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.observer.publishState(s)
}

func (o *Orchestrator) setRecognizerActive(active bool) {
	o.mu.Lock()
	o.recognizerActive = active
	o.mu.Unlock()
}

func toRecords(msgs []chat.Message) []history.Record {
	records := make([]history.Record, len(msgs))
	for i, m := range msgs {
		records[i] = history.Record{
			Role:        m.Role,
			Content:     m.Content,
			Timestamp:   m.Timestamp,
			ImageBase64: m.ImageBase64,
		}
	}
	return records
}
