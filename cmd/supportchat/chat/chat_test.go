package chatcmder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/supportchat/composer"
	"github.com/papercomputeco/supportchat/pkg/llm"
	"github.com/papercomputeco/supportchat/pkg/llm/llmtest"
	"github.com/papercomputeco/supportchat/relay"
)

var _ = Describe("Chat Command", func() {
	startRelay := func(upstream llm.Streamer) string {
		r, err := relay.New(relay.Config{
			ListenAddr:   ":0",
			SystemPrompt: "You are a test assistant.",
		}, upstream, nil, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		go func() {
			_ = r.RunWithListener(listener)
		}()
		DeferCleanup(func() {
			_ = r.Shutdown()
		})
		return "http://" + listener.Addr().String()
	}

	runChat := func(addr, input string) string {
		var out bytes.Buffer
		cmd := NewChatCmd()
		cmd.SetArgs([]string{"--plain", addr})
		cmd.SetIn(strings.NewReader(input))
		cmd.SetOut(&out)
		cmd.SetErr(io.Discard)
		Expect(cmd.ExecuteContext(context.Background())).To(Succeed())
		return out.String()
	}

	It("prints the greeting and the streamed reply", func() {
		addr := startRelay(&llmtest.Scripted{Fragments: []string{"Hel", "lo!"}})

		out := runChat(addr, "Hi\n")

		Expect(out).To(Equal(
			"assistant: " + composer.Greeting + "\n" +
				"assistant: Hello!\n",
		))
	})

	It("skips blank lines", func() {
		upstream := &llmtest.Scripted{Fragments: []string{"ok"}}
		addr := startRelay(upstream)

		out := runChat(addr, "\n   \nHi\n")

		Expect(strings.Count(out, "assistant: ok")).To(Equal(1))
		Expect(upstream.Received()).To(HaveLen(1))
	})

	It("prints the fallback when the stream breaks", func() {
		addr := startRelay(&llmtest.Scripted{
			Fragments: []string{"Par"},
			Err:       errors.New("upstream reset"),
		})

		out := runChat(addr, "Hi\n")

		Expect(out).To(HaveSuffix(composer.FallbackMessage + "\n"))
	})
})

var _ = Describe("linePrinter", func() {
	base := llm.Conversation{
		{Role: llm.RoleAssistant, Content: composer.Greeting},
		{Role: llm.RoleUser, Content: "Hi"},
	}

	withReply := func(content string) llm.Conversation {
		return append(base.Clone(), llm.Message{Role: llm.RoleAssistant, Content: content})
	}

	var (
		out      bytes.Buffer
		inFlight bool
		p        *linePrinter
	)

	BeforeEach(func() {
		out.Reset()
		inFlight = true
		p = &linePrinter{w: &out, turns: 1, inFlight: func() bool { return inFlight }}
	})

	It("writes deltas of the growing reply", func() {
		p.update(withReply(""))
		p.update(withReply("Hel"))
		p.update(withReply("Hello!"))
		inFlight = false
		p.update(withReply("Hello!"))
		p.finish(withReply("Hello!"), nil)

		Expect(out.String()).To(Equal("assistant: Hello!\n"))
	})

	It("puts the fallback on its own line after a partial reply", func() {
		p.update(withReply(""))
		p.update(withReply("Par"))
		inFlight = false
		p.update(withReply(composer.FallbackMessage))
		p.finish(withReply(composer.FallbackMessage), errors.New("stream broke"))

		Expect(out.String()).To(Equal("assistant: Par\n" + composer.FallbackMessage + "\n"))
	})

	It("puts the fallback on its own line when the partial reply is a prefix of it", func() {
		p.update(withReply(""))
		p.update(withReply("I'm"))
		inFlight = false
		p.update(withReply(composer.FallbackMessage))
		p.finish(withReply(composer.FallbackMessage), errors.New("stream broke"))

		Expect(out.String()).To(Equal("assistant: I'm\n" + composer.FallbackMessage + "\n"))
	})

	It("prints the fallback after the label when nothing streamed", func() {
		p.update(withReply(""))
		inFlight = false
		p.finish(withReply(composer.FallbackMessage), errors.New("connection refused"))

		Expect(out.String()).To(Equal("assistant: " + composer.FallbackMessage + "\n"))
	})
})
