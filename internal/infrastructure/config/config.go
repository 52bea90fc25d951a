// Package config provides configuration loading and workspace layout.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory name for narravid project state.
	DefaultConfigDir = ".narravid"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultChaptersDir is where chapter text files live inside a project.
	DefaultChaptersDir = "chapters"
)

// Config holds static infrastructure configuration (read-only after init).
type Config struct {
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
	Extraction ExtractionConfig `yaml:"extraction,omitempty"`
	Matching   MatchingConfig   `yaml:"matching,omitempty"`
	Embedder   EmbedderConfig   `yaml:"embedder,omitempty"`
	Qdrant     QdrantConfig     `yaml:"qdrant,omitempty"`
	Script     ScriptConfig     `yaml:"script,omitempty"`
	Speech     SpeechConfig     `yaml:"speech,omitempty"`
	Images     ImagesConfig     `yaml:"images,omitempty"`
	Video      VideoConfig      `yaml:"video,omitempty"`
	Pipeline   PipelineConfig   `yaml:"pipeline,omitempty"`
	Serve      ServeConfig      `yaml:"serve,omitempty"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

// ExtractionConfig selects and configures the extraction backends. Results
// from every enabled backend are pooled, not chosen exclusively.
type ExtractionConfig struct {
	OpenAI  OpenAIExtractorConfig `yaml:"openai,omitempty"`
	Lexicon LexiconConfig         `yaml:"lexicon,omitempty"`
}

// OpenAIExtractorConfig configures the LLM tagger backend.
type OpenAIExtractorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// LexiconConfig configures the rule-based tagger backend.
type LexiconConfig struct {
	Enabled bool `yaml:"enabled"`
	// Honorifics seed the character patterns (e.g. "don", "doña", "señor").
	Honorifics []string `yaml:"honorifics,omitempty"`
}

// MatchingConfig is the tunable fuzzy-resolution policy for entity merging.
// The engine never auto-merges on a fuzzy hit; these knobs only control what
// gets surfaced as suggestions or conflicts.
type MatchingConfig struct {
	// SuggestThreshold is the minimum similarity (0..1) for a fuzzy match
	// to be queued as a suggested merge.
	SuggestThreshold float64 `yaml:"suggest_threshold,omitempty"`
	// AmbiguityMargin: when the top two scores differ by less than this,
	// the candidate is queued as a conflict for human resolution.
	AmbiguityMargin float64 `yaml:"ambiguity_margin,omitempty"`
	// MaxSuggestions caps the merge targets attached to one queue item.
	MaxSuggestions int `yaml:"max_suggestions,omitempty"`
	// Semantic enables the embedding-backed alias index signal.
	Semantic bool `yaml:"semantic,omitempty"`
}

// EmbedderConfig holds configuration for the embedding provider.
type EmbedderConfig struct {
	Model  string `yaml:"model,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
}

// QdrantConfig holds configuration for the Qdrant alias index.
type QdrantConfig struct {
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
}

// ScriptConfig tunes script generation.
type ScriptConfig struct {
	// WordsPerMinute drives pre-synthesis duration estimates.
	WordsPerMinute int `yaml:"words_per_minute,omitempty"`
}

// SpeechConfig configures the TTS backend.
type SpeechConfig struct {
	Model string `yaml:"model,omitempty"`
	// NarratorVoice is used for narration and for any dialogue whose
	// speaker has no assigned voice profile.
	NarratorVoice string `yaml:"narrator_voice,omitempty"`
	APIKey        string `yaml:"api_key,omitempty"`
}

// ImagesConfig configures image generation and visual pacing.
type ImagesConfig struct {
	Model string `yaml:"model,omitempty"`
	Size  string `yaml:"size,omitempty"`
	Style string `yaml:"style,omitempty"`
	// SecondsPerImage is the target display time for one image; the sync
	// planner derives image counts from audio duration with it.
	SecondsPerImage float64 `yaml:"seconds_per_image,omitempty"`
	APIKey          string  `yaml:"api_key,omitempty"`
}

// VideoConfig configures the ffmpeg assembler.
type VideoConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path,omitempty"`
	Width      int    `yaml:"width,omitempty"`
	Height     int    `yaml:"height,omitempty"`
	FPS        int    `yaml:"fps,omitempty"`
}

// PipelineConfig tunes orchestration.
type PipelineConfig struct {
	// Jobs bounds how many chapters are processed concurrently.
	Jobs int `yaml:"jobs,omitempty"`
	// RetryAttempts bounds retries of external backend calls.
	RetryAttempts int `yaml:"retry_attempts,omitempty"`
	// RetryBackoffMillis is the base delay between retries, doubled per
	// attempt.
	RetryBackoffMillis int `yaml:"retry_backoff_millis,omitempty"`
}

// RetryBackoff returns the base retry delay as a duration.
func (p PipelineConfig) RetryBackoff() time.Duration {
	return time.Duration(p.RetryBackoffMillis) * time.Millisecond
}

// ServeConfig configures the HTTP validation surface.
type ServeConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Extraction: ExtractionConfig{
			OpenAI:  OpenAIExtractorConfig{Enabled: true, Model: "gpt-4o-mini"},
			Lexicon: LexiconConfig{Enabled: true, Honorifics: []string{"don", "doña", "señor", "señora", "sir", "lady"}},
		},
		Matching: MatchingConfig{
			SuggestThreshold: 0.72,
			AmbiguityMargin:  0.08,
			MaxSuggestions:   3,
		},
		Embedder: EmbedderConfig{Model: "text-embedding-3-small"},
		Qdrant:   QdrantConfig{Host: "localhost", Port: 6334, Collection: "narravid_aliases"},
		Script:   ScriptConfig{WordsPerMinute: 150},
		Speech:   SpeechConfig{Model: "tts-1", NarratorVoice: "alloy"},
		Images: ImagesConfig{
			Model:           "dall-e-3",
			Size:            "1024x1024",
			Style:           "storybook illustration",
			SecondsPerImage: 6,
		},
		Video:    VideoConfig{FFmpegPath: "ffmpeg", Width: 1024, Height: 1024, FPS: 24},
		Pipeline: PipelineConfig{Jobs: 2, RetryAttempts: 3, RetryBackoffMillis: 2000},
		Serve:    ServeConfig{Addr: "127.0.0.1:8787"},
	}
}

// Load loads configuration from the .narravid directory in the given path.
func Load(basePath string) (*Config, error) {
	configFile := ConfigFilePath(basePath)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'narravid init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Write persists the config to the project's config file.
func (c *Config) Write(basePath string) error {
	if err := os.MkdirAll(ConfigDir(basePath), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(ConfigFilePath(basePath), data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.Extraction.OpenAI.APIKey == "" {
			c.Extraction.OpenAI.APIKey = key
		}
		if c.Embedder.APIKey == "" {
			c.Embedder.APIKey = key
		}
		if c.Speech.APIKey == "" {
			c.Speech.APIKey = key
		}
		if c.Images.APIKey == "" {
			c.Images.APIKey = key
		}
	}
	if key := os.Getenv("QDRANT_API_KEY"); key != "" {
		if c.Qdrant.APIKey == "" {
			c.Qdrant.APIKey = key
		}
	}
}

// ConfigDir returns the path to the .narravid directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// StatePath returns the SQLite database path for the project.
func StatePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, "state.db")
}

// LockPath returns the path of the single-writer project lock file.
func LockPath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, "narravid.lock")
}

// ChaptersDir returns the directory holding chapter text files.
func ChaptersDir(basePath string) string {
	return filepath.Join(basePath, DefaultChaptersDir)
}

// AssetsDir returns the root of generated assets.
func AssetsDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, "assets")
}

// AudioDir returns the directory for synthesized audio.
func AudioDir(basePath string) string {
	return filepath.Join(AssetsDir(basePath), "audio")
}

// ImagesDir returns the directory for generated images.
func ImagesDir(basePath string) string {
	return filepath.Join(AssetsDir(basePath), "images")
}

// ClipsDir returns the directory for composed scene clips.
func ClipsDir(basePath string) string {
	return filepath.Join(AssetsDir(basePath), "clips")
}

// OutputDir returns the directory for final rendered videos.
func OutputDir(basePath string) string {
	return filepath.Join(basePath, "output")
}

// Exists checks if a narravid project exists in the given path.
func Exists(basePath string) bool {
	_, err := os.Stat(ConfigFilePath(basePath))
	return err == nil
}
