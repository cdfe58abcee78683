package servecmder

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/supportchat/pkg/appearance"
	"github.com/papercomputeco/supportchat/pkg/config"
	"github.com/papercomputeco/supportchat/pkg/llm"
	"github.com/papercomputeco/supportchat/pkg/llm/ollama"
	"github.com/papercomputeco/supportchat/pkg/llm/openai"
	"github.com/papercomputeco/supportchat/pkg/logger"
	"github.com/papercomputeco/supportchat/pkg/telemetry"
	"github.com/papercomputeco/supportchat/relay"
)

const serveLongDesc string = `Run the chat relay.

Serves the browser widget, the widget appearance and the /api/chat endpoint.
Every posted conversation is prefixed with the system prompt and streamed to
the configured completion provider; reply fragments are forwarded to the
client as they arrive.

Settings are read from defaults, the optional --config TOML file, a .env file
and SUPPORTCHAT_* environment variables, in that order. Flags override all of
them. The OpenAI provider reads OPENAI_API_KEY on every request.

Examples:
  supportchat serve
  supportchat serve --listen :9000 --appearance theme.toml
  supportchat serve --provider ollama --upstream http://localhost:11434 --model llama3.2
  supportchat serve --temperature 0.3 --max-tokens 512`

const serveShortDesc string = "Run the chat relay"

const serviceName = "supportchat"

type serveCommander struct {
	configPath     string
	listen         string
	provider       string
	model          string
	upstream       string
	appearancePath string
	otlpEndpoint   string
	temperature    float32
	maxTokens      int
	debug          bool
}

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cmder.resolveConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (default :8080)")
	cmd.Flags().StringVarP(&cmder.provider, "provider", "p", "", "Completion provider: openai or ollama")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model name (default depends on provider)")
	cmd.Flags().StringVarP(&cmder.upstream, "upstream", "u", "", "Provider base URL override")
	cmd.Flags().StringVar(&cmder.appearancePath, "appearance", "", "Path to a TOML appearance file, reloaded on change")
	cmd.Flags().Float32Var(&cmder.temperature, "temperature", 0, "Sampling temperature, 0 to 2 (0 keeps the model default)")
	cmd.Flags().IntVar(&cmder.maxTokens, "max-tokens", 0, "Reply token cap (0 keeps the model default)")
	cmd.Flags().StringVar(&cmder.otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint for traces")
	cmd.Flags().BoolVarP(&cmder.debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

// resolveConfig loads the layered config and applies the flags that were set.
func (c *serveCommander) resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.ListenAddr = c.listen
	}
	if flags.Changed("provider") {
		cfg.Provider = c.provider
	}
	if flags.Changed("model") {
		cfg.Model = c.model
	}
	if flags.Changed("upstream") {
		cfg.UpstreamURL = c.upstream
	}
	if flags.Changed("appearance") {
		cfg.AppearancePath = c.appearancePath
	}
	if flags.Changed("otlp-endpoint") {
		cfg.OTLPEndpoint = c.otlpEndpoint
	}
	if flags.Changed("temperature") {
		cfg.Temperature = c.temperature
	}
	if flags.Changed("max-tokens") {
		cfg.MaxTokens = c.maxTokens
	}
	if flags.Changed("debug") {
		cfg.Debug = c.debug
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.NewLogger(cfg.Debug)
	defer func() { _ = log.Sync() }()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		return fmt.Errorf("could not initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	store, err := newAppearanceStore(ctx, cfg.AppearancePath, log)
	if err != nil {
		return err
	}

	streamer, err := newStreamer(cfg, log)
	if err != nil {
		return err
	}

	r, err := relay.New(relay.Config{
		ListenAddr:   cfg.ListenAddr,
		SystemPrompt: cfg.SystemPrompt,
	}, streamer, store, log)
	if err != nil {
		return fmt.Errorf("could not create relay: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", cfg.ListenAddr, err)
	}

	log.Info("supportchat relay starting",
		zap.String("listen", ln.Addr().String()),
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Bool("debug", cfg.Debug),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.RunWithListener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down relay")
		if err := r.Shutdown(); err != nil {
			return fmt.Errorf("relay shutdown: %w", err)
		}
		return <-errCh
	}
}

// newAppearanceStore loads path, if set, and keeps the store in sync with it
// until ctx is cancelled.
func newAppearanceStore(ctx context.Context, path string, log *zap.Logger) (*appearance.Store, error) {
	if path == "" {
		return appearance.NewStore(appearance.Default()), nil
	}

	a, err := appearance.Load(path)
	if err != nil {
		return nil, fmt.Errorf("could not load appearance: %w", err)
	}
	store := appearance.NewStore(a)

	go func() {
		if err := store.Watch(ctx, path, log); err != nil {
			log.Warn("appearance watcher stopped", zap.Error(err))
		}
	}()
	return store, nil
}

func newStreamer(cfg *config.Config, log *zap.Logger) (llm.Streamer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.New(openai.Config{
			BaseURL:     cfg.UpstreamURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, log), nil
	case config.ProviderOllama:
		return ollama.New(ollama.Config{
			URL:     cfg.UpstreamURL,
			Model:   cfg.Model,
			Options: llm.NewOptions(cfg.Temperature, cfg.MaxTokens),
		}, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.Provider)
	}
}
