// Package app wires all Serin subsystems into a running assistant.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the background maintenance loop, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithHistoryStore, WithCredentialStore, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/serin-ai/serin/internal/assistant"
	"github.com/serin-ai/serin/internal/chat"
	"github.com/serin-ai/serin/internal/completion"
	"github.com/serin-ai/serin/internal/config"
	"github.com/serin-ai/serin/internal/observe"
	searchaug "github.com/serin-ai/serin/internal/search"
	"github.com/serin-ai/serin/internal/transcribe"
	"github.com/serin-ai/serin/pkg/audio"
	"github.com/serin-ai/serin/pkg/credential"
	"github.com/serin-ai/serin/pkg/history"
	"github.com/serin-ai/serin/pkg/history/sqlite"
	"github.com/serin-ai/serin/pkg/provider/llm"
	"github.com/serin-ai/serin/pkg/provider/stt"
	"github.com/serin-ai/serin/pkg/provider/tts"
	websearch "github.com/serin-ai/serin/pkg/search"
)

// selfHealInterval is how often the stuck-state probe runs while the
// app is up.
const selfHealInterval = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured and the corresponding feature is disabled.
// Populated by main.go from the config.
type Providers struct {
	Offline stt.OfflineRecognizer
	Cloud   stt.CloudRecognizer
	System  stt.SystemRecognizer
	LLM     llm.Provider
	TTS     tts.Provider
	Search  websearch.Backend
	Capture audio.Capture
}

// App owns all subsystem lifetimes around a single assistant session.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	credentials credential.Store
	refresher   *credential.Refresher
	store       history.Store
	session     *chat.Session
	augmenter   *searchaug.Augmenter
	orch        *assistant.Orchestrator

	observer assistant.Observer
	metrics  *observe.Metrics

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCredentialStore injects a credential store instead of creating one
// from config.
func WithCredentialStore(s credential.Store) Option {
	return func(a *App) { a.credentials = s }
}

// WithRefresher injects the credential refresher used for the single
// transparent reauthentication retry on auth failures.
func WithRefresher(r *credential.Refresher) Option {
	return func(a *App) { a.refresher = r }
}

// WithHistoryStore injects a history store instead of opening the
// configured SQLite database.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithObserver registers the UI-facing observer for state changes,
// transcripts, response deltas and pending actions.
func WithObserver(o assistant.Observer) Option {
	return func(a *App) { a.observer = o }
}

// WithMetrics injects a metrics set instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers
// struct comes from main.go. Use Option functions to inject test doubles
// for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	a.initCredentials()

	if err := a.initHistory(); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	a.session = chat.NewSession(chat.Config{
		MaxMessages: cfg.Session.MaxMessages,
		MaxTokens:   cfg.Session.MaxTokens,
	})

	router, augmenter, streamer := a.buildCollaborators(cfg)
	a.augmenter = augmenter

	a.orch = assistant.NewOrchestrator(assistant.OrchestratorConfig{
		Session:        a.session,
		Router:         router,
		Augmenter:      augmenter,
		Streamer:       streamer,
		Capture:        providers.Capture,
		Voice:          providers.TTS,
		History:        a.store,
		Observer:       a.observer,
		Metrics:        a.metrics,
		AutoSend:       cfg.Assistant.AutoSend,
		SpeakResponses: cfg.TTS.Enabled && providers.TTS != nil,
	})

	return a, nil
}

// buildCollaborators derives the per-turn collaborators from a config
// snapshot. Providers, session, and credential store are reused across
// snapshots.
func (a *App) buildCollaborators(cfg *config.Config) (*transcribe.Router, *searchaug.Augmenter, *completion.Streamer) {
	var corrector *transcribe.Corrector
	if len(cfg.Assistant.Vocabulary) > 0 {
		corrector = transcribe.NewCorrector(cfg.Assistant.Vocabulary)
	}

	router := transcribe.NewRouter(transcribe.RouterConfig{
		Offline:      a.providers.Offline,
		Cloud:        a.providers.Cloud,
		System:       a.providers.System,
		Preferred:    stt.Strategy(cfg.Speech.Preferred),
		Language:     cfg.Assistant.Language,
		Multilingual: cfg.Assistant.Multilingual,
		Corrector:    corrector,
	})

	augmenter := searchaug.New(searchaug.Config{
		Backend:    a.providers.Search,
		Enabled:    cfg.Search.Enabled,
		MaxResults: cfg.Search.MaxResults,
	})

	// The precheck follows the primary backend: its api_key_name picks
	// the store entry, and keyless backends skip the check entirely.
	creds := a.credentials
	var credName string
	if len(cfg.LLM.Backends) > 0 {
		primary := cfg.LLM.Backends[0]
		credName = primary.APIKeyName
		if primary.Name == "ollama" {
			creds = nil
		}
	}

	streamer := completion.NewStreamer(completion.StreamerConfig{
		Provider:       a.providers.LLM,
		Session:        a.session,
		SystemPrompt:   cfg.Assistant.SystemPrompt,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		Credentials:    creds,
		CredentialName: credName,
		Refresher:      a.refresher,
	})

	return router, augmenter, streamer
}

// ReloadSettings replaces the active config snapshot and re-derives the
// collaborators that depend on it. The session, history, credentials,
// and providers are untouched. Rejected while a turn is running.
func (a *App) ReloadSettings(cfg *config.Config) error {
	router, augmenter, streamer := a.buildCollaborators(cfg)
	err := a.orch.Reconfigure(assistant.OrchestratorConfig{
		Router:         router,
		Augmenter:      augmenter,
		Streamer:       streamer,
		AutoSend:       cfg.Assistant.AutoSend,
		SpeakResponses: cfg.TTS.Enabled && a.providers.TTS != nil,
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.augmenter = augmenter
	slog.Info("settings reloaded")
	return nil
}

// initCredentials falls back to an in-memory store when none is injected.
// Opening the encrypted file store needs the device secret, which only
// main has, so a configured credentials path without an injected store
// means keys entered this run are not persisted.
func (a *App) initCredentials() {
	if a.credentials != nil {
		return
	}
	if a.cfg.Credentials.Path != "" {
		slog.Warn("credential store not injected, keys will not persist",
			"path", a.cfg.Credentials.Path)
	}
	a.credentials = credential.NewMemory()
}

// initHistory opens the configured SQLite database or uses an injected
// store. No db_path means persistence is disabled.
func (a *App) initHistory() error {
	if a.store != nil {
		return nil
	}
	if a.cfg.History.DBPath == "" {
		return nil
	}
	store, err := sqlite.Open(a.cfg.History.DBPath)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	return nil
}

// Orchestrator returns the turn orchestrator driving this app.
func (a *App) Orchestrator() *assistant.Orchestrator { return a.orch }

// History returns the conversation store, nil when persistence is disabled.
func (a *App) History() history.Store { return a.store }

// Credentials returns the credential store in use.
func (a *App) Credentials() credential.Store { return a.credentials }

// SetSearchEnabled flips the session-level web-search toggle.
func (a *App) SetSearchEnabled(enabled bool) {
	a.augmenter.SetEnabled(enabled)
	slog.Info("web search toggled", "enabled", enabled)
}

// Run blocks until ctx is cancelled, running the stuck-state recovery
// probe in the background. When ctx is done, Run returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	ticker := time.NewTicker(selfHealInterval)
	defer ticker.Stop()

	slog.Info("assistant running",
		"preferred_stt", a.cfg.Speech.Preferred,
		"search", a.cfg.Search.Enabled,
		"tts", a.cfg.TTS.Enabled,
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if a.orch.SelfHeal() {
				slog.Warn("recovered wedged listening state")
			}
		}
	}
}

// Shutdown tears down all subsystems in reverse-init order. It respects
// the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop any in-flight turn before closing stores.
		a.orch.CancelOperation()

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
