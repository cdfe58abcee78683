package composer_test

import (
	"context"
	"errors"
	"io"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/supportchat/composer"
	"github.com/papercomputeco/supportchat/pkg/llm"
)

// chunkReader returns one chunk per Read, then err (io.EOF when nil).
type chunkReader struct {
	chunks [][]byte
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func (r *chunkReader) Close() error { return nil }

// fakeTransport records every send and answers with body or err.
type fakeTransport struct {
	mu   sync.Mutex
	sent [][]llm.Message
	body func() io.ReadCloser
	err  error
}

func (t *fakeTransport) Send(_ context.Context, turns []llm.Message) (io.ReadCloser, error) {
	t.mu.Lock()
	t.sent = append(t.sent, append([]llm.Message(nil), turns...))
	t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	return t.body(), nil
}

func (t *fakeTransport) Sent() [][]llm.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

func chunks(parts ...string) func() io.ReadCloser {
	return func() io.ReadCloser {
		r := &chunkReader{}
		for _, p := range parts {
			r.chunks = append(r.chunks, []byte(p))
		}
		return r
	}
}

var greeting = llm.Message{Role: llm.RoleAssistant, Content: composer.Greeting}

var _ = Describe("Composer", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("seeds the greeting", func() {
		c := composer.New(&fakeTransport{})
		Expect(c.Conversation()).To(Equal(llm.Conversation{greeting}))
		Expect(c.InFlight()).To(BeFalse())
	})

	Describe("Submit", func() {
		It("fills the placeholder from the streamed reply", func() {
			transport := &fakeTransport{body: chunks("Hel", "lo!")}
			c := composer.New(transport)

			Expect(c.Submit(ctx, "Hi")).To(Succeed())

			Expect(c.Conversation()).To(Equal(llm.Conversation{
				greeting,
				{Role: llm.RoleUser, Content: "Hi"},
				{Role: llm.RoleAssistant, Content: "Hello!"},
			}))
			Expect(c.InFlight()).To(BeFalse())
		})

		It("sends the history and the new user turn without the placeholder", func() {
			transport := &fakeTransport{body: chunks("ok")}
			c := composer.New(transport)

			Expect(c.Submit(ctx, "  Where is my order?  ")).To(Succeed())

			Expect(transport.Sent()).To(HaveLen(1))
			Expect(transport.Sent()[0]).To(Equal([]llm.Message{
				greeting,
				{Role: llm.RoleUser, Content: "Where is my order?"},
			}))
		})

		It("appends the user turn and placeholder before sending", func() {
			var snapshots []llm.Conversation
			c := composer.New(&fakeTransport{body: chunks("Hel", "lo!")}, composer.WithOnUpdate(func(conv llm.Conversation) {
				snapshots = append(snapshots, conv)
			}))

			Expect(c.Submit(ctx, "Hi")).To(Succeed())

			Expect(snapshots).NotTo(BeEmpty())
			first := snapshots[0]
			Expect(first).To(HaveLen(3))
			Expect(first[1]).To(Equal(llm.Message{Role: llm.RoleUser, Content: "Hi"}))
			Expect(first[2]).To(Equal(llm.Message{Role: llm.RoleAssistant}))

			var contents []string
			for _, s := range snapshots {
				contents = append(contents, s[2].Content)
			}
			Expect(contents).To(ContainElements("Hel", "Hello!"))
		})

		It("holds back characters split across reads", func() {
			transport := &fakeTransport{body: func() io.ReadCloser {
				return &chunkReader{chunks: [][]byte{
					[]byte("Gr\xc3"),
					[]byte("\xbc\xc3"),
					[]byte("\x9f dich"),
				}}
			}}
			var seen []string
			c := composer.New(transport, composer.WithOnUpdate(func(conv llm.Conversation) {
				if last, ok := conv.Last(); ok {
					seen = append(seen, last.Content)
				}
			}))

			Expect(c.Submit(ctx, "Hallo")).To(Succeed())

			last, _ := c.Conversation().Last()
			Expect(last.Content).To(Equal("Grüß dich"))
			for _, s := range seen {
				Expect(s).NotTo(ContainSubstring("�"))
			}
		})

		DescribeTable("rejects empty input without changing the conversation",
			func(text string) {
				transport := &fakeTransport{body: chunks("never")}
				c := composer.New(transport)

				Expect(c.Submit(ctx, text)).To(MatchError(composer.ErrEmptyMessage))
				Expect(c.Conversation()).To(HaveLen(1))
				Expect(transport.Sent()).To(BeEmpty())
			},
			Entry("empty", ""),
			Entry("spaces", "   "),
			Entry("newlines and tabs", "\n\t \n"),
		)

		It("drops submissions while one is in flight", func() {
			pr, pw := io.Pipe()
			transport := &fakeTransport{body: func() io.ReadCloser { return pr }}
			c := composer.New(transport)

			done := make(chan error, 1)
			go func() {
				done <- c.Submit(ctx, "first")
			}()

			Eventually(c.InFlight).Should(BeTrue())
			Eventually(func() int { return len(c.Conversation()) }).Should(Equal(3))

			Expect(c.Submit(ctx, "second")).To(MatchError(composer.ErrInFlight))
			Expect(c.Conversation()).To(HaveLen(3))

			_, err := pw.Write([]byte("done"))
			Expect(err).NotTo(HaveOccurred())
			Expect(pw.Close()).To(Succeed())

			Eventually(done).Should(Receive(BeNil()))
			Expect(c.InFlight()).To(BeFalse())
			Expect(transport.Sent()).To(HaveLen(1))

			conv := c.Conversation()
			Expect(conv).To(HaveLen(3))
			Expect(conv[2]).To(Equal(llm.Message{Role: llm.RoleAssistant, Content: "done"}))
		})

		It("replaces a partial reply with the fallback when the stream fails", func() {
			streamErr := io.ErrUnexpectedEOF
			transport := &fakeTransport{body: func() io.ReadCloser {
				return &chunkReader{chunks: [][]byte{[]byte("Par")}, err: streamErr}
			}}
			c := composer.New(transport)

			Expect(c.Submit(ctx, "Hi")).To(MatchError(streamErr))

			Expect(c.Conversation()).To(Equal(llm.Conversation{
				greeting,
				{Role: llm.RoleUser, Content: "Hi"},
				{Role: llm.RoleAssistant, Content: composer.FallbackMessage},
			}))
			Expect(c.InFlight()).To(BeFalse())
		})

		It("uses the fallback when the request fails", func() {
			sendErr := errors.New("connection refused")
			c := composer.New(&fakeTransport{err: sendErr})

			Expect(c.Submit(ctx, "Hi")).To(MatchError(sendErr))

			last, ok := c.Conversation().Last()
			Expect(ok).To(BeTrue())
			Expect(last).To(Equal(llm.Message{Role: llm.RoleAssistant, Content: composer.FallbackMessage}))
			Expect(c.InFlight()).To(BeFalse())
		})

		It("accepts a new submission after a failure", func() {
			transport := &fakeTransport{err: errors.New("down")}
			c := composer.New(transport)
			Expect(c.Submit(ctx, "Hi")).NotTo(Succeed())

			transport.err = nil
			transport.body = chunks("back")
			Expect(c.Submit(ctx, "Again")).To(Succeed())

			conv := c.Conversation()
			Expect(conv).To(HaveLen(5))
			Expect(conv[4].Content).To(Equal("back"))
			Expect(transport.Sent()[1]).To(HaveLen(4))
		})
	})
})
