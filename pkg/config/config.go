// Package config loads boxbot's runtime configuration from the environment
// using env-tag struct parsing (github.com/caarlos0/env/v11).
package config

import (
	"fmt"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config holds every recognized runtime option.
type Config struct {
	// Chat platform
	Token string `env:"TOKEN,required"`
	CommandPrefix string `env:"COMMAND_PREFIX" envDefault:"!"`

	// Model selection
	TextModelName string `env:"TEXT_MODEL_NAME" envDefault:"claude-sonnet-4-5-20250929"`
	VisionModelName string `env:"VISION_MODEL_NAME" envDefault:"claude-sonnet-4-5-20250929"`
	EmbeddingModelName string `env:"EMBEDDING_MODEL_NAME" envDefault:"text-embedding-3-small"`

	// Rate Governor (§4.A)
	RateRPS float64 `env:"RATE_RPS" envDefault:"5"`
	RateBurst int `env:"RATE_BURST" envDefault:"10"`

	// Conversation Queue / Worker (§4.J, §4.K)
	QueueCapacity int `env:"QUEUE_CAPACITY" envDefault:"50"`
	RequestTimeoutS int `env:"REQUEST_TIMEOUT_S" envDefault:"60"`
	MaxToolIterations int `env:"MAX_TOOL_ITERATIONS" envDefault:"10"`

	// Ingestion Engine (§4.B)
	PipelineConcurrentChannels int `env:"PIPELINE_CONCURRENT_CHANNELS" envDefault:"5"`
	MessagesPerFetch int `env:"MESSAGES_PER_FETCH" envDefault:"1000"`

	// Processing Pipeline default policy (§4.I)
	OnFailure string `env:"ON_FAILURE" envDefault:"skip"`

	// Model runtime credentials
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY"`
	OpenRouterAPIBase string `env:"OPENROUTER_API_BASE"`

	// Persisted state root.
	DataDir string `env:"DATA_DIR" envDefault:"./data"`
}

// Load parses Config from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// DatabasesPath returns the root directory under which every server's
// per-server vector collection directory is created.
func (c *Config) DatabasesPath() string {
	return filepath.Join(c.DataDir, "databases")
}

// ServerVectorPath returns the per-server vector collection directory.
func (c *Config) ServerVectorPath(serverID string) string {
	return filepath.Join(c.DatabasesPath(), serverID, "vectors")
}

// SharedDBPath returns the path to the shared sqlite database holding
// server_configs and the conversation log.
func (c *Config) SharedDBPath() string {
	return filepath.Join(c.DataDir, "shared.db")
}
