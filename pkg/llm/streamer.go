package llm

import "context"

// Fragment is one event of an upstream completion stream. A fragment with a
// non-nil Err is the last one sent; Text may be empty and carries no meaning
// about chunk boundaries.
type Fragment struct {
	Text string
	Err  error
}

// Streamer turns a message sequence into a stream of text fragments.
//
// The returned channel is closed once the stream is exhausted or after a
// fragment carrying an error has been delivered. Implementations stop
// producing when ctx is done.
type Streamer interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan Fragment, error)
}

// StreamerFunc adapts a function to the Streamer interface.
type StreamerFunc func(ctx context.Context, messages []Message) (<-chan Fragment, error)

// StreamChat calls f.
func (f StreamerFunc) StreamChat(ctx context.Context, messages []Message) (<-chan Fragment, error) {
	return f(ctx, messages)
}
