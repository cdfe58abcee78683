// Package openai streams chat completions from OpenAI-compatible endpoints.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/papercomputeco/supportchat/pkg/llm"
)

const (
	// EnvAPIKey is read on every call when no key was configured.
	EnvAPIKey = "OPENAI_API_KEY"

	// DefaultModel is the completion model used when none is configured.
	DefaultModel = goopenai.GPT3Dot5Turbo
)

// ErrMissingAPIKey is returned when neither the config nor the environment has a key.
var ErrMissingAPIKey = errors.New("openai: missing API key (set " + EnvAPIKey + ")")

// Config configures a Client. Zero values fall back to defaults.
type Config struct {
	APIKey  string
	BaseURL string // optional; for self-hosted or compatible servers
	Model   string

	Temperature float32
	MaxTokens   int

	HTTPClient *http.Client
}

// Client implements llm.Streamer on top of the go-openai client.
type Client struct {
	config Config
	logger *zap.Logger
}

// New creates a Client. The API key is resolved per call, not here.
func New(config Config, logger *zap.Logger) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{config: config, logger: logger}
}

func (c *Client) apiKey() string {
	if c.config.APIKey != "" {
		return c.config.APIKey
	}
	return os.Getenv(EnvAPIKey)
}

func (c *Client) newClient(key string) *goopenai.Client {
	cfg := goopenai.DefaultConfig(key)
	if c.config.BaseURL != "" {
		cfg.BaseURL = c.config.BaseURL
	}
	if c.config.HTTPClient != nil {
		cfg.HTTPClient = c.config.HTTPClient
	} else {
		// Streams may legitimately run for minutes; cancellation comes from ctx.
		cfg.HTTPClient = &http.Client{}
	}
	return goopenai.NewClientWithConfig(cfg)
}

// StreamChat implements llm.Streamer.
func (c *Client) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.Fragment, error) {
	key := c.apiKey()
	if key == "" {
		return nil, ErrMissingAPIKey
	}

	in := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		in = append(in, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	req := goopenai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    in,
		Stream:      true,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	c.logger.Debug("opening completion stream",
		zap.String("model", req.Model),
		zap.Int("message_count", len(in)),
	)

	stream, err := c.newClient(key).CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create completion stream: %w", err)
	}

	out := make(chan llm.Fragment)
	go func() {
		defer close(out)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				send(ctx, out, llm.Fragment{Err: fmt.Errorf("receive completion chunk: %w", err)})
				return
			}

			if len(resp.Choices) == 0 {
				continue
			}
			if !send(ctx, out, llm.Fragment{Text: resp.Choices[0].Delta.Content}) {
				return
			}
		}
	}()

	return out, nil
}

func send(ctx context.Context, out chan<- llm.Fragment, f llm.Fragment) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- f:
		return true
	}
}

var _ llm.Streamer = (*Client)(nil)
