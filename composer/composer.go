// Package composer keeps a chat conversation in memory and fills the
// assistant's reply from the relay's streamed response as it arrives.
//
// A Composer allows one submission at a time. Submissions made while another
// is outstanding are dropped, not queued.
package composer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/papercomputeco/supportchat/pkg/llm"
)

const (
	// Greeting seeds every new conversation.
	Greeting = "Hi! I'm the Headstarter support assistant. How can I help you today?"

	// FallbackMessage replaces the assistant reply when a submission fails.
	FallbackMessage = "I'm sorry, but I encountered an error. Please try again later."
)

var (
	ErrEmptyMessage = errors.New("composer: empty message")
	ErrInFlight     = errors.New("composer: a submission is already in flight")
)

const readBufferSize = 4096

// Transport delivers a conversation to the relay and returns the reply body.
type Transport interface {
	Send(ctx context.Context, turns []llm.Message) (io.ReadCloser, error)
}

// Composer holds the conversation of a single chat session.
type Composer struct {
	transport Transport
	logger    *zap.Logger
	onUpdate  func(llm.Conversation)

	inFlight atomic.Bool

	mu           sync.Mutex
	conversation llm.Conversation
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the logger used for failed submissions.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Composer) {
		c.logger = logger
	}
}

// WithOnUpdate registers fn to receive a snapshot after every change to the
// conversation or the in-flight state. fn runs on the submitting goroutine.
func WithOnUpdate(fn func(llm.Conversation)) Option {
	return func(c *Composer) {
		c.onUpdate = fn
	}
}

// New returns a Composer whose conversation holds only the greeting.
func New(transport Transport, opts ...Option) *Composer {
	c := &Composer{
		transport:    transport,
		logger:       zap.NewNop(),
		conversation: llm.Conversation{{Role: llm.RoleAssistant, Content: Greeting}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Conversation returns a copy of the current conversation.
func (c *Composer) Conversation() llm.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversation.Clone()
}

// InFlight reports whether a submission is outstanding.
func (c *Composer) InFlight() bool {
	return c.inFlight.Load()
}

// Submit sends text as a new user turn and blocks until the reply has been
// read. Empty text and submissions made while another is in flight are
// rejected without touching the conversation.
//
// The user turn and an empty assistant placeholder are appended before any
// network activity. On failure the placeholder's content is replaced by
// FallbackMessage and the transport error is returned. The composer never
// cancels or times out a submission itself; ctx is passed to the transport.
func (c *Composer) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer func() {
		c.inFlight.Store(false)
		c.notify()
	}()

	c.mu.Lock()
	history := append(c.conversation.Clone(), llm.Message{Role: llm.RoleUser, Content: text})
	c.conversation = append(history.Clone(), llm.Message{Role: llm.RoleAssistant})
	c.mu.Unlock()
	c.notify()

	if err := c.stream(ctx, history); err != nil {
		c.logger.Error("submission failed", zap.Int("turns", len(history)), zap.Error(err))
		c.replaceReply(FallbackMessage)
		return err
	}
	return nil
}

// stream sends history and appends each decoded fragment of the reply to the
// placeholder. Multi-byte characters split across reads are held back until
// complete.
func (c *Composer) stream(ctx context.Context, history llm.Conversation) error {
	body, err := c.transport.Send(ctx, history)
	if err != nil {
		return fmt.Errorf("send conversation: %w", err)
	}
	defer body.Close()

	r := transform.NewReader(body, unicode.UTF8.NewDecoder())
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.appendToReply(string(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read reply: %w", err)
		}
	}
}

func (c *Composer) appendToReply(text string) {
	c.mu.Lock()
	last := len(c.conversation) - 1
	c.conversation[last].Content += text
	c.mu.Unlock()
	c.notify()
}

// replaceReply overwrites the placeholder so the conversation ends with a
// single assistant turn carrying content.
func (c *Composer) replaceReply(content string) {
	c.mu.Lock()
	if last, ok := c.conversation.Last(); ok && last.Role == llm.RoleAssistant {
		c.conversation[len(c.conversation)-1].Content = content
	} else {
		c.conversation = append(c.conversation, llm.Message{Role: llm.RoleAssistant, Content: content})
	}
	c.mu.Unlock()
}

func (c *Composer) notify() {
	if c.onUpdate == nil {
		return
	}
	c.onUpdate(c.Conversation())
}
