package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/serin-ai/serin/pkg/provider/stt"
)

// validLLMBackends lists the backend names the application can
// construct.
var validLLMBackends = []string{"openai", "anthropic", "gemini", "ollama", "mistral"}

// Load reads the YAML configuration file at path and returns a
// validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown fields are rejected so typos fail loudly.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Assistant.LogLevel == "" {
		cfg.Assistant.LogLevel = LogInfo
	}
	if cfg.Assistant.Language == "" {
		cfg.Assistant.Language = "en"
	}
	if cfg.Speech.Preferred == "" {
		cfg.Speech.Preferred = string(stt.StrategyOffline)
	}
	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = 5
	}
	if cfg.LLM.TimeoutSeconds <= 0 {
		cfg.LLM.TimeoutSeconds = 90
	}
	if cfg.Session.MaxMessages <= 0 {
		cfg.Session.MaxMessages = 20
	}
	if cfg.Session.MaxTokens <= 0 {
		cfg.Session.MaxTokens = 8000
	}
}

// Validate checks that cfg contains a coherent set of values. It
// returns a joined error listing every failure found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Assistant.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("assistant.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Assistant.LogLevel))
	}
	if cfg.Assistant.Multilingual && cfg.Assistant.SecondaryLanguage == "" {
		errs = append(errs, errors.New("assistant.multilingual requires assistant.secondary_language"))
	}
	if cfg.Assistant.SecondaryLanguage != "" && cfg.Assistant.SecondaryLanguage == cfg.Assistant.Language {
		errs = append(errs, fmt.Errorf("assistant.secondary_language %q must differ from assistant.language", cfg.Assistant.SecondaryLanguage))
	}

	if !stt.Strategy(cfg.Speech.Preferred).IsValid() {
		errs = append(errs, fmt.Errorf("speech.preferred %q is invalid; valid values: offline, cloud, system", cfg.Speech.Preferred))
	}
	if cfg.Speech.Preferred == string(stt.StrategyOffline) && cfg.Speech.ModelDir == "" {
		errs = append(errs, errors.New("speech.preferred is offline but speech.model_dir is empty"))
	}

	if len(cfg.LLM.Backends) == 0 {
		errs = append(errs, errors.New("llm.backends must list at least one backend"))
	}
	seen := make(map[string]int, len(cfg.LLM.Backends))
	for i, b := range cfg.LLM.Backends {
		prefix := fmt.Sprintf("llm.backends[%d]", i)
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if !slices.Contains(validLLMBackends, b.Name) {
			errs = append(errs, fmt.Errorf("%s.name %q is unknown; valid values: %v", prefix, b.Name, validLLMBackends))
		}
		if prev, dup := seen[b.Name]; dup {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of llm.backends[%d]", prefix, b.Name, prev))
		}
		seen[b.Name] = i
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0.0, 2.0]", cfg.LLM.Temperature))
	}

	if cfg.Search.Enabled && cfg.Search.BaseURL == "" {
		errs = append(errs, errors.New("search.enabled requires search.base_url"))
	}
	if cfg.Search.MaxResults > 20 {
		errs = append(errs, fmt.Errorf("search.max_results %d is out of range [1, 20]", cfg.Search.MaxResults))
	}

	if cfg.TTS.Enabled && cfg.TTS.BaseURL == "" {
		errs = append(errs, errors.New("tts.enabled requires tts.base_url"))
	}

	return errors.Join(errs...)
}
