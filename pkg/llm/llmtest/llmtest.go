// Package llmtest provides a scripted llm.Streamer for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/papercomputeco/supportchat/pkg/llm"
)

// Scripted replays a fixed list of fragments and records every request.
type Scripted struct {
	// Fragments are emitted in order, empty strings included.
	Fragments []string

	// Err, when set, is delivered after Fragments as the terminal fragment.
	Err error

	// StartErr, when set, is returned by StreamChat before any stream exists.
	StartErr error

	mu       sync.Mutex
	received [][]llm.Message
}

// StreamChat implements llm.Streamer.
func (s *Scripted) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.Fragment, error) {
	s.mu.Lock()
	s.received = append(s.received, append([]llm.Message(nil), messages...))
	s.mu.Unlock()

	if s.StartErr != nil {
		return nil, s.StartErr
	}

	out := make(chan llm.Fragment)
	go func() {
		defer close(out)
		for _, text := range s.Fragments {
			select {
			case <-ctx.Done():
				return
			case out <- llm.Fragment{Text: text}:
			}
		}
		if s.Err != nil {
			select {
			case <-ctx.Done():
			case out <- llm.Fragment{Err: s.Err}:
			}
		}
	}()
	return out, nil
}

// Received returns the message lists passed to StreamChat, oldest first.
func (s *Scripted) Received() [][]llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]llm.Message(nil), s.received...)
}

var _ llm.Streamer = (*Scripted)(nil)
