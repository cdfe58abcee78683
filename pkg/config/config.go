// Package config resolves supportchat settings from defaults, an optional
// TOML file, a .env file and SUPPORTCHAT_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SUPPORTCHAT_"

// Upstream providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// DefaultSystemPrompt steers the assistant on every upstream request.
const DefaultSystemPrompt = "You are an AI assistant designed to help users with their inquiries about our services. " +
	"Follow these guidelines when responding: " +
	"1. Be polite, friendly, and professional at all times. " +
	"2. Provide concise and accurate answers to the user's questions. " +
	"3. If you don't know the answer, politely inform the user and suggest they contact support. " +
	"4. Always prioritize the user's satisfaction and aim to provide helpful and relevant information. " +
	"5. Keep responses clear and easy to understand. " +
	"6. If the user asks for more detailed information or documentation, provide a brief summary and direct them to the appropriate resources or links. " +
	"7. Use proper grammar and spelling. " +
	"8. For any technical issues, gather necessary details and suggest basic troubleshooting steps. " +
	"Remember, your primary goal is to assist the user in the best way possible."

var ErrUnknownProvider = errors.New("unknown provider")

// Config is the relay configuration. The OpenAI API key is deliberately absent:
// the provider reads OPENAI_API_KEY itself on every call.
type Config struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string `toml:"listen" env:"LISTEN"`

	// Provider is "openai" or "ollama".
	Provider string `toml:"provider" env:"PROVIDER"`

	// Model identifier; empty selects the provider's default.
	Model string `toml:"model" env:"MODEL"`

	// UpstreamURL overrides the provider's base URL.
	UpstreamURL string `toml:"upstream_url" env:"UPSTREAM_URL"`

	SystemPrompt string `toml:"system_prompt" env:"SYSTEM_PROMPT"`

	// Temperature is the sampling temperature; 0 keeps the model default.
	Temperature float32 `toml:"temperature" env:"TEMPERATURE"`

	// MaxTokens caps the reply length in tokens; 0 keeps the model default.
	MaxTokens int `toml:"max_tokens" env:"MAX_TOKENS"`

	// AppearancePath is an optional TOML theme file, watched for changes.
	AppearancePath string `toml:"appearance" env:"APPEARANCE"`

	// OTLPEndpoint enables trace export when set (e.g., "localhost:4317").
	OTLPEndpoint string `toml:"otlp_endpoint" env:"OTLP_ENDPOINT"`

	Debug bool `toml:"debug" env:"DEBUG"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:   ":8080",
		Provider:     ProviderOpenAI,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// Load builds a Config. path may be empty to skip the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields that have a closed set of values.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}
	if c.ListenAddr == "" {
		return errors.New("listen address is empty")
	}
	if c.SystemPrompt == "" {
		return errors.New("system prompt is empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %v out of range [0, 2]", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens %d is negative", c.MaxTokens)
	}
	return nil
}
