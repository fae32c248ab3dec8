package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the pipeline configuration consumed by the classifier,
// linking engine, and drivers. Values come from defaults, then an
// optional qawatch.yaml, then environment variable overrides. Invalid
// values are fatal at startup; per-message processing never re-validates.
type Config struct {
	// QuestionThreshold is the minimum classifier confidence for a
	// message to become a new open question.
	// Default: 0.7, Range: (0, 1]
	QuestionThreshold float64 `yaml:"question_threshold"`

	// AnswerThreshold is the minimum classifier confidence for a
	// message to be linked as the answer to an open question.
	// Default: 0.6, Range: (0, 1]
	AnswerThreshold float64 `yaml:"answer_threshold"`

	// ContextWindow bounds how many open questions are considered as
	// answer candidates per incoming message (most recent first).
	// Default: 25, Range: 1-500
	ContextWindow int `yaml:"context_window"`

	// AnswerTimeoutHours is how long a question may stay open before
	// it is expired from matching eligibility.
	// Default: 24, Range: 1-720
	AnswerTimeoutHours int `yaml:"answer_timeout_hours"`

	// BufferSize caps the in-memory open-question window per channel.
	// Oldest entries are evicted first; persisted rows are untouched.
	// Default: 50, Range: 1-10000
	BufferSize int `yaml:"buffer_size"`

	// MaxMessagesPerChannel caps how many historical messages backfill
	// replays per channel.
	// Default: 200, Range: 1-10000
	MaxMessagesPerChannel int `yaml:"max_messages_per_channel"`

	// ProcessDelayMS is how long the realtime driver waits before
	// classifying a fresh message, so quick edits settle first.
	// Default: 2000, Range: 0-60000
	ProcessDelayMS int `yaml:"process_delay_ms"`

	// ContextMessages is how many buffered channel messages are passed
	// as conversational context to answer classification.
	// Default: 5, Range: 0-50
	ContextMessages int `yaml:"context_messages"`

	// Model is the Anthropic model used for classification.
	Model string `yaml:"model"`
}

// DefaultConfig returns the default pipeline configuration.
// Thresholds match the original deployment: questions need stronger
// evidence than answers because a false question pollutes the window
// for every later message in the channel.
func DefaultConfig() Config {
	return Config{
		QuestionThreshold:     0.7,
		AnswerThreshold:       0.6,
		ContextWindow:         25,
		AnswerTimeoutHours:    24,
		BufferSize:            50,
		MaxMessagesPerChannel: 200,
		ProcessDelayMS:        2000,
		ContextMessages:       5,
		Model:                 "claude-3-5-haiku-20241022",
	}
}

// AnswerTimeout returns the answer-timeout horizon as a duration
func (c Config) AnswerTimeout() time.Duration {
	return time.Duration(c.AnswerTimeoutHours) * time.Hour
}

// ProcessDelay returns the pre-classification settle delay as a duration
func (c Config) ProcessDelay() time.Duration {
	return time.Duration(c.ProcessDelayMS) * time.Millisecond
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.QuestionThreshold <= 0 || c.QuestionThreshold > 1 {
		return fmt.Errorf("question_threshold must be in (0, 1] (got %.2f)", c.QuestionThreshold)
	}
	if c.AnswerThreshold <= 0 || c.AnswerThreshold > 1 {
		return fmt.Errorf("answer_threshold must be in (0, 1] (got %.2f)", c.AnswerThreshold)
	}
	if c.ContextWindow < 1 || c.ContextWindow > 500 {
		return fmt.Errorf("context_window must be between 1 and 500 (got %d)", c.ContextWindow)
	}
	if c.AnswerTimeoutHours < 1 || c.AnswerTimeoutHours > 720 {
		return fmt.Errorf("answer_timeout_hours must be between 1 and 720 (got %d)", c.AnswerTimeoutHours)
	}
	if c.BufferSize < 1 || c.BufferSize > 10000 {
		return fmt.Errorf("buffer_size must be between 1 and 10000 (got %d)", c.BufferSize)
	}
	if c.MaxMessagesPerChannel < 1 || c.MaxMessagesPerChannel > 10000 {
		return fmt.Errorf("max_messages_per_channel must be between 1 and 10000 (got %d)", c.MaxMessagesPerChannel)
	}
	if c.ProcessDelayMS < 0 || c.ProcessDelayMS > 60000 {
		return fmt.Errorf("process_delay_ms must be between 0 and 60000 (got %d)", c.ProcessDelayMS)
	}
	if c.ContextMessages < 0 || c.ContextMessages > 50 {
		return fmt.Errorf("context_messages must be between 0 and 50 (got %d)", c.ContextMessages)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// Load builds the effective configuration: defaults, overlaid with the
// yaml file at path (if it exists), overlaid with environment variables.
// Pass an empty path to skip the file layer.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return cfg, fmt.Errorf("reading config file: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays QAWATCH_* environment variables onto cfg.
//
// Environment variables:
//   - QAWATCH_QUESTION_THRESHOLD: question confidence threshold (default: 0.7)
//   - QAWATCH_ANSWER_THRESHOLD: answer confidence threshold (default: 0.6)
//   - QAWATCH_CONTEXT_WINDOW: answer candidate limit (default: 25)
//   - QAWATCH_ANSWER_TIMEOUT_HOURS: open question horizon (default: 24)
//   - QAWATCH_BUFFER_SIZE: per-channel window capacity (default: 50)
//   - QAWATCH_MAX_MESSAGES_PER_CHANNEL: backfill cap (default: 200)
//   - QAWATCH_PROCESS_DELAY_MS: settle delay before classification (default: 2000)
//   - QAWATCH_CONTEXT_MESSAGES: context lines for answer classification (default: 5)
//   - QAWATCH_MODEL: Anthropic model name
func applyEnv(cfg *Config) error {
	if err := parseEnvFloat("QAWATCH_QUESTION_THRESHOLD", &cfg.QuestionThreshold); err != nil {
		return err
	}
	if err := parseEnvFloat("QAWATCH_ANSWER_THRESHOLD", &cfg.AnswerThreshold); err != nil {
		return err
	}
	if err := parseEnvInt("QAWATCH_CONTEXT_WINDOW", &cfg.ContextWindow); err != nil {
		return err
	}
	if err := parseEnvInt("QAWATCH_ANSWER_TIMEOUT_HOURS", &cfg.AnswerTimeoutHours); err != nil {
		return err
	}
	if err := parseEnvInt("QAWATCH_BUFFER_SIZE", &cfg.BufferSize); err != nil {
		return err
	}
	if err := parseEnvInt("QAWATCH_MAX_MESSAGES_PER_CHANNEL", &cfg.MaxMessagesPerChannel); err != nil {
		return err
	}
	if err := parseEnvInt("QAWATCH_PROCESS_DELAY_MS", &cfg.ProcessDelayMS); err != nil {
		return err
	}
	if err := parseEnvInt("QAWATCH_CONTEXT_MESSAGES", &cfg.ContextMessages); err != nil {
		return err
	}
	if v := os.Getenv("QAWATCH_MODEL"); v != "" {
		cfg.Model = v
	}
	return nil
}

// parseEnvInt parses an integer environment variable into target if set
func parseEnvInt(name string, target *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be an integer (got %q)", name, v)
	}
	*target = parsed
	return nil
}

// parseEnvFloat parses a float environment variable into target if set
func parseEnvFloat(name string, target *float64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s must be a number (got %q)", name, v)
	}
	*target = parsed
	return nil
}
