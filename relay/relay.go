// Package relay serves the chat endpoint: it prepends the system prompt to the
// posted conversation, opens an upstream completion stream and forwards the
// text fragments to the client as a chunked plain-text body.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/papercomputeco/supportchat/pkg/appearance"
	"github.com/papercomputeco/supportchat/pkg/llm"
	"github.com/papercomputeco/supportchat/pkg/logger"
	"github.com/papercomputeco/supportchat/pkg/merkle"
	"github.com/papercomputeco/supportchat/pkg/telemetry"
	"github.com/papercomputeco/supportchat/web"
)

// Relay is a stateless chat relay. Nothing is kept between requests: every
// call rebuilds the upstream conversation from the posted turns.
type Relay struct {
	config     Config
	streamer   llm.Streamer
	appearance *appearance.Store
	logger     *zap.Logger
	tracer     trace.Tracer
	server     *fiber.App
}

// Option customises a Relay.
type Option func(*Relay)

// WithTracerProvider records relay spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Relay) {
		r.tracer = tp.Tracer(telemetry.TracerName)
	}
}

// New creates a new Relay. store may be nil, in which case the default
// appearance is served.
func New(config Config, streamer llm.Streamer, store *appearance.Store, logger *zap.Logger, opts ...Option) (*Relay, error) {
	if streamer == nil {
		return nil, errors.New("relay: nil streamer")
	}
	if config.SystemPrompt == "" {
		return nil, errors.New("relay: empty system prompt")
	}
	if store == nil {
		store = appearance.NewStore(appearance.Default())
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		StreamRequestBody:     true,
	})

	r := &Relay{
		config:     config,
		streamer:   streamer,
		appearance: store,
		logger:     logger,
		tracer:     otel.Tracer(telemetry.TracerName),
		server:     app,
	}
	for _, opt := range opts {
		opt(r)
	}

	app.Use(recover.New())
	app.Use(requestID())
	app.Use(requestLogger(logger))

	app.Post("/api/chat", r.handleChat)
	app.Get("/api/appearance", r.handleAppearance)

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	// Browser widget
	app.Get("/*", adaptor.HTTPHandler(http.FileServer(http.FS(web.Static()))))

	return r, nil
}

// Run starts the relay on the configured listening address.
func (r *Relay) Run() error {
	r.logger.Info("starting relay server", zap.String("listen", r.config.ListenAddr))
	return r.server.Listen(r.config.ListenAddr)
}

// RunWithListener serves on an existing listener.
func (r *Relay) RunWithListener(ln net.Listener) error {
	r.logger.Info("starting relay server", zap.String("listen", ln.Addr().String()))
	return r.server.Listener(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (r *Relay) Shutdown() error {
	return r.server.Shutdown()
}

// handleChat relays one conversation. The response is committed as 200 with a
// chunked body before the first fragment arrives; an upstream failure after
// that point drops the connection without the terminating chunk so the client
// sees a broken transfer rather than a short reply.
func (r *Relay) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()
	log := r.logger.With(zap.String("request_id", requestIDFrom(c)))

	var turns llm.Conversation
	if err := json.Unmarshal(c.Body(), &turns); err != nil {
		log.Error("failed to parse request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	messages := turns.WithSystemPrompt(r.config.SystemPrompt)

	// Hashes over the client turns only, so they match across requests
	// regardless of the system prompt.
	history := turns.WithoutSystem()
	head := merkle.Head(history)
	conversationHash := merkle.HeadHash(history)
	parentHash := ""
	if len(history) > 0 {
		parentHash = merkle.HeadHash(history[:len(history)-1])
	}
	log = log.With(zap.String("conversation", conversationHash))

	log.Debug("received chat request",
		zap.Int("turn_count", len(turns)),
		zap.Int("upstream_message_count", len(messages)),
		zap.String("parent", parentHash),
	)

	// The stream outlives this handler, so it gets its own context. It is
	// cancelled once forwarding stops, which also covers client disconnects:
	// fasthttp closes the body reader and the next write fails.
	ctx, cancel := context.WithCancel(context.Background())
	ctx, span := r.tracer.Start(ctx, "relay.chat", trace.WithAttributes(
		attribute.String("relay.request_id", requestIDFrom(c)),
		attribute.Int("relay.turns", len(turns)),
		attribute.String("relay.conversation", conversationHash),
		attribute.String("relay.parent", parentHash),
	))

	fragments, err := r.streamer.StreamChat(ctx, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream request failed")
		span.End()
		cancel()

		log.Error("upstream request failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
	}

	body, pw := io.Pipe()
	go func() {
		defer cancel()
		defer span.End()

		var reply strings.Builder
		n, err := forward(fragments, io.MultiWriter(pw, &reply))
		span.SetAttributes(attribute.Int("relay.fragments", n))

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream aborted")
			log.Error("stream aborted",
				zap.Int("fragments", n),
				zap.Duration("duration", time.Since(startTime)),
				zap.Error(err),
			)
			pw.CloseWithError(err)
			return
		}

		replyHash := merkle.NewNode(llm.Message{Role: llm.RoleAssistant, Content: reply.String()}, head).Hash
		span.SetAttributes(attribute.String("relay.reply", replyHash))

		log.Debug("streaming complete",
			zap.Int("fragments", n),
			zap.String("reply", replyHash),
			zap.String("content_preview", logger.Truncate(reply.String(), 200)),
			zap.Duration("duration", time.Since(startTime)),
		)
		pw.Close()
	}()

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Context().SetBodyStream(body, -1)
	return nil
}

// handleAppearance returns the current widget appearance.
func (r *Relay) handleAppearance(c *fiber.Ctx) error {
	return c.JSON(r.appearance.Get())
}
