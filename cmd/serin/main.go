// Command serin is the on-device entry point for the Serin voice assistant.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/serin-ai/serin/internal/app"
	"github.com/serin-ai/serin/internal/config"
	"github.com/serin-ai/serin/internal/observe"
	"github.com/serin-ai/serin/internal/resilience"
	"github.com/serin-ai/serin/pkg/credential"
	"github.com/serin-ai/serin/pkg/provider/llm"
	"github.com/serin-ai/serin/pkg/provider/llm/anyllm"
	"github.com/serin-ai/serin/pkg/provider/llm/openai"
	"github.com/serin-ai/serin/pkg/provider/stt/cloud"
	"github.com/serin-ai/serin/pkg/provider/stt/system"
	"github.com/serin-ai/serin/pkg/provider/stt/whisper"
	"github.com/serin-ai/serin/pkg/provider/tts/piper"
	websearch "github.com/serin-ai/serin/pkg/search"
)

// deviceSecretEnv names the environment variable holding the secret that
// unlocks the encrypted credential store.
const deviceSecretEnv = "SERIN_DEVICE_SECRET"

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "serin.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "serin: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "serin: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Assistant.LogLevel)
	slog.SetDefault(logger)

	slog.Info("serin starting",
		"version", version,
		"config", *configPath,
		"language", cfg.Assistant.Language,
		"preferred_stt", cfg.Speech.Preferred,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "serin",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Credential store ──────────────────────────────────────────────────────
	creds, err := buildCredentials(cfg)
	if err != nil {
		slog.Error("failed to open credential store", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, err := buildProviders(cfg, creds)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	opts := []app.Option{
		app.WithCredentialStore(creds),
		app.WithObserver(consoleObserver()),
	}
	if r := buildRefresher(cfg, creds); r != nil {
		opts = append(opts, app.WithRefresher(r))
	}

	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	go func() {
		if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("run error", "err", err)
		}
	}()

	slog.Info("ready — type a question, /help for commands, Ctrl+C to quit")

	repl(ctx, application, func() error {
		next, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		return application.ReloadSettings(next)
	})
	stop()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Credential wiring ─────────────────────────────────────────────────────────

// buildCredentials opens the encrypted file store when one is configured,
// falling back to an in-memory store otherwise. The device secret comes
// from the environment so it never appears in the config file.
func buildCredentials(cfg *config.Config) (credential.Store, error) {
	if cfg.Credentials.Path == "" {
		slog.Warn("no credentials.path configured, keys will not persist")
		return credential.NewMemory(), nil
	}
	secret := os.Getenv(deviceSecretEnv)
	if secret == "" {
		return nil, fmt.Errorf("%s must be set to open %s", deviceSecretEnv, cfg.Credentials.Path)
	}
	return credential.OpenFile(cfg.Credentials.Path, secret)
}

// buildRefresher wires the single-retry reauthentication path when a token
// endpoint is configured and a refresh token is stored.
func buildRefresher(cfg *config.Config, creds credential.Store) *credential.Refresher {
	if cfg.Credentials.TokenURL == "" || !creds.Has(credential.NameRefreshToken) {
		return nil
	}
	slog.Info("credential refresher enabled", "token_url", cfg.Credentials.TokenURL)
	return credential.NewRefresher(creds, oauthRefresh(cfg.Credentials.TokenURL))
}

// oauthRefresh returns a RefreshFunc performing the standard
// refresh_token grant against tokenURL.
func oauthRefresh(tokenURL string) credential.RefreshFunc {
	client := &http.Client{Timeout: 15 * time.Second}
	return func(ctx context.Context, refreshToken string) (string, time.Time, error) {
		form := url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {refreshToken},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL,
			strings.NewReader(form.Encode()))
		if err != nil {
			return "", time.Time{}, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := client.Do(req)
		if err != nil {
			return "", time.Time{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", time.Time{}, fmt.Errorf("token endpoint returned %s", resp.Status)
		}

		var body struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", time.Time{}, err
		}
		if body.AccessToken == "" {
			return "", time.Time{}, errors.New("token endpoint returned no access_token")
		}
		return body.AccessToken, time.Now().Add(time.Duration(body.ExpiresIn) * time.Second), nil
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProviders instantiates every backend named in cfg and returns them
// in an [app.Providers] struct for the application to consume. A backend
// that cannot be built is skipped with a warning unless it is the
// preferred speech path or the only LLM backend.
func buildProviders(cfg *config.Config, creds credential.Store) (*app.Providers, error) {
	ps := &app.Providers{Capture: newMicCapture()}

	if cfg.Speech.ModelDir != "" {
		var opts []whisper.Option
		if cfg.Assistant.Multilingual && cfg.Assistant.SecondaryLanguage != "" {
			opts = append(opts, whisper.WithSecondaryLanguage(cfg.Assistant.SecondaryLanguage))
		}
		eng, err := whisper.New(cfg.Speech.ModelDir, cfg.Assistant.Language, opts...)
		if err != nil {
			return nil, fmt.Errorf("create offline recognizer: %w", err)
		}
		ps.Offline = eng
		slog.Info("provider created", "kind", "stt", "name", "whisper")
	}

	if key, err := creds.Get(credential.NameCloudSTTKey); err == nil {
		var opts []cloud.Option
		if cfg.Speech.Cloud.BaseURL != "" {
			opts = append(opts, cloud.WithBaseURL(cfg.Speech.Cloud.BaseURL))
		}
		if cfg.Speech.Cloud.Model != "" {
			opts = append(opts, cloud.WithModel(cfg.Speech.Cloud.Model))
		}
		rec, err := cloud.New(key, opts...)
		if err != nil {
			return nil, fmt.Errorf("create cloud recognizer: %w", err)
		}
		ps.Cloud = rec
		slog.Info("provider created", "kind", "stt", "name", "cloud")
	} else if cfg.Speech.Preferred == "cloud" {
		return nil, fmt.Errorf("speech.preferred is cloud but no %q credential is stored", credential.NameCloudSTTKey)
	}

	if cfg.Speech.System.BaseURL != "" {
		rec, err := system.New(cfg.Speech.System.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("create system recognizer: %w", err)
		}
		ps.System = rec
		slog.Info("provider created", "kind", "stt", "name", "system")
	}

	llmProvider, err := buildLLMChain(cfg, creds)
	if err != nil {
		return nil, err
	}
	ps.LLM = llmProvider

	if cfg.Search.BaseURL != "" {
		client, err := websearch.NewClient(cfg.Search.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("create search client: %w", err)
		}
		ps.Search = client
		slog.Info("provider created", "kind", "search", "url", cfg.Search.BaseURL)
	}

	if cfg.TTS.Enabled && cfg.TTS.BaseURL != "" {
		var opts []piper.Option
		if cfg.TTS.Voice != "" {
			opts = append(opts, piper.WithVoice(cfg.TTS.Voice))
		}
		p, err := piper.New(cfg.TTS.BaseURL, alsaSink{}, opts...)
		if err != nil {
			return nil, fmt.Errorf("create tts provider: %w", err)
		}
		ps.TTS = p
		slog.Info("provider created", "kind", "tts", "name", "piper", "voice", cfg.TTS.Voice)
	}

	return ps, nil
}

// buildLLMChain builds one provider per configured backend and arranges
// them in a failover chain, first entry preferred.
func buildLLMChain(cfg *config.Config, creds credential.Store) (llm.Provider, error) {
	var chain *resilience.LLMChain
	for _, entry := range cfg.LLM.Backends {
		p, err := buildLLMBackend(entry, creds)
		if err != nil {
			slog.Warn("skipping llm backend", "name", entry.Name, "err", err)
			continue
		}
		if chain == nil {
			chain = resilience.NewLLMChain(entry.Name, p, resilience.BreakerConfig{Name: entry.Name})
		} else {
			chain.Add(entry.Name, p)
		}
		slog.Info("llm backend ready", "name", entry.Name, "model", entry.Model)
	}
	if chain == nil {
		return nil, errors.New("no usable llm backend configured")
	}
	return chain, nil
}

func buildLLMBackend(entry config.BackendEntry, creds credential.Store) (llm.Provider, error) {
	keyName := entry.APIKeyName
	if keyName == "" {
		keyName = credential.NameLLMAPIKey
	}
	key, _ := creds.Get(keyName)

	// The primary OpenAI path uses the official SDK; everything else goes
	// through the any-llm multiplexer.
	if entry.Name == "openai" {
		if key == "" {
			return nil, fmt.Errorf("no %q credential stored", keyName)
		}
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(key, entry.Model, opts...)
	}

	var opts []anyllmlib.Option
	if key != "" {
		opts = append(opts, anyllmlib.WithAPIKey(key))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return anyllm.New(entry.Name, entry.Model, opts...)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
