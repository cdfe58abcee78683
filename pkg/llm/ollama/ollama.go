// Package ollama streams chat completions from an Ollama-compatible /api/chat endpoint.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/supportchat/pkg/llm"
)

const (
	// DefaultURL is the default Ollama API endpoint.
	DefaultURL = "http://localhost:11434"

	// DefaultModel is the model used when none is configured.
	DefaultModel = "llama3.2"
)

// ErrIncompleteStream is delivered when the upstream body ends before a done chunk.
var ErrIncompleteStream = errors.New("ollama: stream ended before done")

// Config configures a Client.
type Config struct {
	URL   string
	Model string

	Options *llm.Options

	HTTPClient *http.Client
}

// Client implements llm.Streamer against Ollama's NDJSON chat stream.
type Client struct {
	config     Config
	logger     *zap.Logger
	httpClient *http.Client
}

// New creates a Client.
func New(config Config, logger *zap.Logger) *Client {
	if config.URL == "" {
		config.URL = DefaultURL
	}
	config.URL = strings.TrimSuffix(config.URL, "/")
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		// No client timeout: streams are bounded by ctx only.
		httpClient = &http.Client{}
	}

	return &Client{config: config, logger: logger, httpClient: httpClient}
}

// StreamChat implements llm.Streamer.
func (c *Client) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.Fragment, error) {
	streaming := true
	req := llm.ChatRequest{
		Model:    c.config.Model,
		Messages: messages,
		Stream:   &streaming,
		Options:  c.config.Options,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	upstreamURL := c.config.URL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("forwarding streaming request to upstream",
		zap.String("url", upstreamURL),
		zap.String("model", req.Model),
		zap.Int("message_count", len(messages)),
	)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		httpResp.Body.Close()
		return nil, fmt.Errorf("upstream returned %d: %s", httpResp.StatusCode, string(body))
	}

	out := make(chan llm.Fragment)
	go func() {
		defer close(out)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var chunk llm.StreamChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				c.logger.Warn("failed to parse chunk", zap.Error(err), zap.String("line", string(line)))
				continue
			}

			if !send(ctx, out, llm.Fragment{Text: chunk.Message.Content}) {
				return
			}

			if chunk.Done {
				c.logger.Debug("upstream stream done",
					zap.Int("eval_count", chunk.EvalCount),
					zap.Int64("total_duration_ns", chunk.TotalDuration),
				)
				return
			}
		}

		if err := scanner.Err(); err != nil {
			send(ctx, out, llm.Fragment{Err: fmt.Errorf("read stream: %w", err)})
			return
		}
		send(ctx, out, llm.Fragment{Err: ErrIncompleteStream})
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
