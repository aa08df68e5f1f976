// Package whisper provides the on-device offline recognizer backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a) and
// headers must be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
//
// Models are per-language ggml files inside a model directory managed by an
// external downloader. The engine never downloads anything itself: a missing
// model simply makes the engine report not-ready so the transcription router
// can decline the offline path with a "download required" message.
//
// When a secondary language is configured and its model is present, the engine
// also satisfies [stt] dual transcription: the same audio is run through the
// secondary model so the router can merge mixed-language utterances.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/serin-ai/serin/pkg/audio"
	"github.com/serin-ai/serin/pkg/provider/stt"
)

// Compile-time assertion that Engine satisfies stt.OfflineRecognizer.
var _ stt.OfflineRecognizer = (*Engine)(nil)

// Engine is a whisper.cpp-backed offline recognizer. Models are loaded once
// and shared; each Transcribe call creates its own whisper context because
// contexts are not safe for concurrent use while models are.
type Engine struct {
	modelDir      string
	primaryLang   string
	secondaryLang string

	mu        sync.Mutex
	primary   whisperlib.Model
	secondary whisperlib.Model
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithSecondaryLanguage enables dual-model transcription for mixed-language
// utterances. The secondary model is loaded lazily; if its file is missing
// the engine silently stays single-language.
func WithSecondaryLanguage(lang string) Option {
	return func(e *Engine) { e.secondaryLang = lang }
}

// New creates an Engine rooted at modelDir for the given primary language.
// A missing model file is not an error: the engine reports Ready() == false
// until the model appears and loads on a later probe.
func New(modelDir, primaryLang string, opts ...Option) (*Engine, error) {
	if modelDir == "" {
		return nil, errors.New("whisper: modelDir must not be empty")
	}
	if primaryLang == "" {
		primaryLang = "en"
	}
	e := &Engine{
		modelDir:    modelDir,
		primaryLang: primaryLang,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// ModelPath returns the expected ggml model file path for lang.
func (e *Engine) ModelPath(lang string) string {
	return filepath.Join(e.modelDir, "ggml-"+lang+".bin")
}

// NeedsModelDownload implements stt.OfflineRecognizer.
func (e *Engine) NeedsModelDownload(lang string) bool {
	_, err := os.Stat(e.ModelPath(lang))
	return err != nil
}

// Ready implements stt.OfflineRecognizer. It probes (and if needed loads) the
// primary model; loading failures are logged and reported as not-ready rather
// than surfaced, so the router falls through to another path.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(&e.primary, e.primaryLang) == nil
}

// SecondaryReady reports whether a secondary language is configured and its
// model is loadable. The router uses this to decide whether dual-model
// transcription is possible.
func (e *Engine) SecondaryReady() bool {
	if e.secondaryLang == "" {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(&e.secondary, e.secondaryLang) == nil
}

// loadLocked loads the model for lang into slot if not already loaded.
// Must be called with e.mu held.
func (e *Engine) loadLocked(slot *whisperlib.Model, lang string) error {
	if *slot != nil {
		return nil
	}
	path := e.ModelPath(lang)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("whisper: model %q not downloaded: %w", lang, err)
	}
	m, err := whisperlib.New(path)
	if err != nil {
		slog.Warn("whisper: model load failed", "language", lang, "path", path, "error", err)
		return fmt.Errorf("whisper: load model %q: %w", path, err)
	}
	*slot = m
	return nil
}

// Transcribe implements stt.OfflineRecognizer: batch inference over one
// WAV-framed 16 kHz mono buffer using the primary language model.
func (e *Engine) Transcribe(ctx context.Context, wav []byte) (string, error) {
	return e.transcribeLang(ctx, wav, e.primaryLang, &e.primary)
}

// TranscribeSecondary runs the same audio through the secondary language
// model. Callers must check SecondaryReady first.
func (e *Engine) TranscribeSecondary(ctx context.Context, wav []byte) (string, error) {
	if e.secondaryLang == "" {
		return "", errors.New("whisper: no secondary language configured")
	}
	return e.transcribeLang(ctx, wav, e.secondaryLang, &e.secondary)
}

func (e *Engine) transcribeLang(ctx context.Context, wav []byte, lang string, slot *whisperlib.Model) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	pcm, f, err := audio.DecodeWAV(wav)
	if err != nil {
		return "", fmt.Errorf("whisper: decode audio: %w", err)
	}
	if f.SampleRate != audio.DefaultFormat.SampleRate {
		pcm = audio.ResampleMono16(pcm, f.SampleRate, audio.DefaultFormat.SampleRate)
	}
	samples := audio.PCMToFloat32Mono(pcm, f.Channels)

	e.mu.Lock()
	if err := e.loadLocked(slot, lang); err != nil {
		e.mu.Unlock()
		return "", err
	}
	model := *slot
	e.mu.Unlock()

	wctx, err := model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using model default", "language", lang, "error", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the loaded models.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	if e.primary != nil {
		errs = append(errs, e.primary.Close())
		e.primary = nil
	}
	if e.secondary != nil {
		errs = append(errs, e.secondary.Close())
		e.secondary = nil
	}
	return errors.Join(errs...)
}
