// Package config provides the configuration schema and loader for the
// Serin assistant.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Assistant   AssistantConfig   `yaml:"assistant"`
	Speech      SpeechConfig      `yaml:"speech"`
	LLM         LLMConfig         `yaml:"llm"`
	Search      SearchConfig      `yaml:"search"`
	TTS         TTSConfig         `yaml:"tts"`
	History     HistoryConfig     `yaml:"history"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Session     SessionConfig     `yaml:"session"`
}

// AssistantConfig holds session-level behaviour settings.
type AssistantConfig struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// Language is the primary recognition and response language code
	// (e.g., "en").
	Language string `yaml:"language"`

	// SecondaryLanguage enables the dual-model pass over the same audio
	// when Multilingual is set.
	SecondaryLanguage string `yaml:"secondary_language"`

	// Multilingual runs offline recognition against both language
	// models and merges the results.
	Multilingual bool `yaml:"multilingual"`

	// AutoSend submits a successful transcription immediately instead
	// of staging it for manual confirmation.
	AutoSend bool `yaml:"auto_send"`

	// SystemPrompt is injected as the first message of every completion
	// request.
	SystemPrompt string `yaml:"system_prompt"`

	// Vocabulary lists domain terms the transcript corrector may
	// substitute for misrecognized words.
	Vocabulary []string `yaml:"vocabulary"`
}

// SpeechConfig selects and configures the transcription backends.
type SpeechConfig struct {
	// Preferred selects the recognition path: offline, cloud, or system.
	Preferred string `yaml:"preferred"`

	// ModelDir is the directory holding downloaded whisper models.
	ModelDir string `yaml:"model_dir"`

	// Cloud configures the cloud transcription API.
	Cloud BackendEntry `yaml:"cloud"`

	// System configures the platform speech service endpoint.
	System BackendEntry `yaml:"system"`
}

// LLMConfig configures the completion backends. The first backend is
// the primary; the rest are failover candidates in order.
type LLMConfig struct {
	Backends []BackendEntry `yaml:"backends"`

	// Temperature in [0.0, 2.0]. Zero requests the backend default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps completion length. Zero means backend default.
	MaxTokens int `yaml:"max_tokens"`

	// TimeoutSeconds bounds one streaming call. Default: 90.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// BackendEntry is the common configuration block shared by all remote
// backends.
type BackendEntry struct {
	// Name selects the backend implementation (e.g., "openai",
	// "anthropic", "ollama").
	Name string `yaml:"name"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the backend.
	Model string `yaml:"model"`

	// APIKeyName names the credential-store entry holding this
	// backend's key. Empty uses the default LLM key entry.
	APIKeyName string `yaml:"api_key_name"`
}

// SearchConfig configures web-search augmentation.
type SearchConfig struct {
	Enabled bool `yaml:"enabled"`

	// BaseURL of the SearXNG-compatible instance.
	BaseURL string `yaml:"base_url"`

	// MaxResults caps fetched results. Default: 5.
	MaxResults int `yaml:"max_results"`
}

// TTSConfig configures speech output.
type TTSConfig struct {
	Enabled bool `yaml:"enabled"`

	// BaseURL of the speech synthesis server.
	BaseURL string `yaml:"base_url"`

	// Voice is the synthesis voice identifier.
	Voice string `yaml:"voice"`
}

// HistoryConfig configures conversation persistence.
type HistoryConfig struct {
	// DBPath is the SQLite database file. Empty disables persistence.
	DBPath string `yaml:"db_path"`
}

// CredentialsConfig configures the encrypted credential store.
type CredentialsConfig struct {
	// Path is the encrypted store file.
	Path string `yaml:"path"`

	// TokenURL is the OAuth token endpoint used to exchange the stored
	// refresh token for a fresh access token. Empty disables the
	// transparent reauthentication retry.
	TokenURL string `yaml:"token_url"`
}

// SessionConfig bounds the in-memory conversation.
type SessionConfig struct {
	// MaxMessages retained before eviction. Default: 20.
	MaxMessages int `yaml:"max_messages"`

	// MaxTokens estimated token budget before eviction. Default: 8000.
	MaxTokens int `yaml:"max_tokens"`
}
