// Package transcribe routes voice turns across the available speech
// recognition backends: the on-device whisper engine, the cloud
// transcription API, and the platform speech service.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/serin-ai/serin/pkg/provider/stt"
)

// Sentinel errors surfaced by strategy selection.
var (
	// ErrNoRecognizer means no recognition path is usable at all.
	ErrNoRecognizer = errors.New("no speech recognizer available")

	// ErrModelDownload means the offline engine was selected but its
	// language model has not been downloaded yet.
	ErrModelDownload = errors.New("offline model download required")
)

// Multilingual is implemented by offline engines that can run a second
// language model over the same audio.
type Multilingual interface {
	SecondaryReady() bool
	TranscribeSecondary(ctx context.Context, audio []byte) (string, error)
}

// AudioFunc lazily produces the finalized capture buffer for one voice
// turn. It is invoked at most once per buffer-based transcription
// attempt, so the microphone is only opened when a buffer path is
// actually taken.
type AudioFunc func(ctx context.Context) ([]byte, error)

// Router selects exactly one acquisition path per voice turn and falls
// back automatically when the preferred path is unavailable.
type Router struct {
	offline      stt.OfflineRecognizer
	cloud        stt.CloudRecognizer
	system       stt.SystemRecognizer
	preferred    stt.Strategy
	language     string
	multilingual bool
	corrector    *Corrector
	log          *slog.Logger
}

// RouterConfig configures a [Router]. Recognizers may be nil when the
// corresponding backend is not installed.
type RouterConfig struct {
	Offline   stt.OfflineRecognizer
	Cloud     stt.CloudRecognizer
	System    stt.SystemRecognizer
	Preferred stt.Strategy

	// Language is the primary recognition language code.
	Language string

	// Multilingual enables the dual-model merge when the offline engine
	// supports it.
	Multilingual bool

	// Corrector is applied to every final transcript. Optional.
	Corrector *Corrector

	Logger *slog.Logger
}

// NewRouter creates a [Router].
func NewRouter(cfg RouterConfig) *Router {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		offline:      cfg.Offline,
		cloud:        cfg.Cloud,
		system:       cfg.System,
		preferred:    cfg.Preferred,
		language:     cfg.Language,
		multilingual: cfg.Multilingual,
		corrector:    cfg.Corrector,
		log:          log,
	}
}

// Select evaluates the decision policy once and returns the strategy to
// use for this turn.
//
// Cloud, when preferred, is always attempted: cloud failures are
// account or key problems, not availability problems, so there is no
// point probing. Offline and system each fall back to the other when
// their own backend is not usable.
func (r *Router) Select() (stt.Strategy, error) {
	offlineReady := r.offline != nil && r.offline.Ready()
	systemUp := r.system != nil && r.system.Available()

	switch r.preferred {
	case stt.StrategyCloud:
		if r.cloud == nil {
			return "", ErrNoRecognizer
		}
		return stt.StrategyCloud, nil
	case stt.StrategyOffline:
		if offlineReady {
			return stt.StrategyOffline, nil
		}
		if systemUp {
			return stt.StrategySystem, nil
		}
	case stt.StrategySystem:
		if systemUp {
			return stt.StrategySystem, nil
		}
		if offlineReady {
			return stt.StrategyOffline, nil
		}
	default:
		return "", fmt.Errorf("unknown strategy %q: %w", r.preferred, ErrNoRecognizer)
	}

	if r.offline != nil && r.offline.NeedsModelDownload(r.language) {
		return "", fmt.Errorf("language %s: %w", r.language, ErrModelDownload)
	}
	return "", ErrNoRecognizer
}

// Turn runs one full voice acquisition. audio provides the finalized
// capture buffer for the offline and cloud paths; the system path
// captures through the platform service and only calls audio when it
// falls back to offline after a service failure. onEvent, when non-nil,
// receives partial transcripts and lifecycle events from the system
// path.
//
// Turn never returns an empty transcript as success.
func (r *Router) Turn(ctx context.Context, audio AudioFunc, onEvent func(stt.Event)) (string, stt.Strategy, error) {
	strategy, err := r.Select()
	if err != nil {
		return "", "", err
	}

	var text string
	switch strategy {
	case stt.StrategySystem:
		text, err = r.runSystem(ctx, audio, onEvent)
		// A service failure mid-turn retries offline without a new
		// activation. Other error classes surface directly.
		if errors.Is(err, stt.ErrNoService) && r.offline != nil && r.offline.Ready() {
			r.log.Warn("system recognizer lost service, retrying offline")
			strategy = stt.StrategyOffline
			text, err = r.runBuffer(ctx, stt.StrategyOffline, audio)
		}
	default:
		text, err = r.runBuffer(ctx, strategy, audio)
	}
	if err != nil {
		return "", strategy, err
	}

	if r.corrector != nil {
		text = r.corrector.Correct(text)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", strategy, stt.ErrNoSpeech
	}
	return text, strategy, nil
}

func (r *Router) runBuffer(ctx context.Context, strategy stt.Strategy, audio AudioFunc) (string, error) {
	buf, err := audio(ctx)
	if err != nil {
		return "", fmt.Errorf("capture audio: %w", err)
	}

	switch strategy {
	case stt.StrategyCloud:
		return r.cloud.Transcribe(ctx, buf, r.language)
	case stt.StrategyOffline:
		return r.runOffline(ctx, buf)
	default:
		return "", fmt.Errorf("strategy %s is not buffer based", strategy)
	}
}

func (r *Router) runOffline(ctx context.Context, buf []byte) (string, error) {
	primary, err := r.offline.Transcribe(ctx, buf)
	if err != nil {
		return "", err
	}
	if !r.multilingual {
		return primary, nil
	}

	ml, ok := r.offline.(Multilingual)
	if !ok || !ml.SecondaryReady() {
		return primary, nil
	}
	secondary, err := ml.TranscribeSecondary(ctx, buf)
	if err != nil {
		// Secondary pass failures never spoil a good primary result.
		r.log.Warn("secondary language pass failed", "error", err)
		return primary, nil
	}
	return mergeMultilingual(primary, secondary), nil
}

// runSystem consumes the platform recognizer's event stream until a
// final transcript or a terminal error arrives.
func (r *Router) runSystem(ctx context.Context, _ AudioFunc, onEvent func(stt.Event)) (string, error) {
	events, err := r.system.StartListening(ctx, r.language)
	if err != nil {
		return "", err
	}

	for {
		select {
		case <-ctx.Done():
			r.system.Cancel()
			return "", ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return "", stt.ErrNoService
			}
			if onEvent != nil {
				onEvent(ev)
			}
			switch ev.Kind {
			case stt.EventFinal:
				return ev.Text, nil
			case stt.EventError:
				return "", ev.Err
			}
		}
	}
}

// mergeMultilingual picks between the primary- and secondary-language
// transcripts of the same audio. A result with more than double the
// word count of the other wins; otherwise the primary language wins.
func mergeMultilingual(primary, secondary string) string {
	p := len(strings.Fields(primary))
	s := len(strings.Fields(secondary))
	switch {
	case s > 2*p:
		return secondary
	case p > 2*s:
		return primary
	default:
		return primary
	}
}
