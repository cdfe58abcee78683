package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/papercomputeco/supportchat/composer"
	"github.com/papercomputeco/supportchat/pkg/llm"
	"github.com/papercomputeco/supportchat/pkg/logger"
)

const chatLongDesc string = `Chat with a running supportchat relay from the terminal.

On an interactive terminal this opens a full-screen chat styled with the
relay's widget appearance. When input or output is redirected, or with
--plain, each line read from stdin is sent as a message and the reply is
printed as it streams in.

Examples:
  supportchat chat
  supportchat chat http://support.internal:8080
  echo "Where is my order?" | supportchat chat --plain`

const chatShortDesc string = "Chat with a relay from the terminal"

const defaultRelayURL = "http://localhost:8080"

type chatCommander struct {
	plain bool
	debug bool
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat [relay-url]",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			relayURL := defaultRelayURL
			if len(args) == 1 {
				relayURL = args[0]
			}
			return cmder.run(cmd.Context(), cmd, relayURL)
		},
	}

	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Use line mode even on a terminal")
	cmd.Flags().BoolVarP(&cmder.debug, "debug", "d", false, "Enable debug logging to stderr")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command, relayURL string) error {
	transport := composer.NewHTTPTransport(relayURL, nil)

	if !c.plain && isTerminal(cmd.InOrStdin()) && isTerminal(cmd.OutOrStdout()) {
		return runTUI(ctx, cmd, transport)
	}

	log := logger.New(cmd.ErrOrStderr(), c.debug)
	defer func() { _ = log.Sync() }()
	return runLines(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), transport, log)
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// runLines submits every input line and prints replies as they stream.
func runLines(ctx context.Context, in io.Reader, out io.Writer, transport composer.Transport, log *zap.Logger) error {
	printer := &linePrinter{w: out, turns: 1}
	c := composer.New(transport,
		composer.WithLogger(log),
		composer.WithOnUpdate(printer.update),
	)
	printer.inFlight = c.InFlight

	fmt.Fprintf(out, "assistant: %s\n", composer.Greeting)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		err := c.Submit(ctx, scanner.Text())
		if errors.Is(err, composer.ErrEmptyMessage) || errors.Is(err, composer.ErrInFlight) {
			continue
		}
		printer.finish(c.Conversation(), err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

// linePrinter writes the assistant reply as deltas while it streams. The
// outcome is settled by finish once Submit has returned: a failed submission's
// fallback always goes on its own line, whatever was streamed before it.
type linePrinter struct {
	w        io.Writer
	inFlight func() bool
	turns    int
	printed  string
}

func (p *linePrinter) update(conv llm.Conversation) {
	if p.inFlight != nil && !p.inFlight() {
		return
	}

	last, ok := conv.Last()
	if !ok || last.Role != llm.RoleAssistant {
		return
	}

	if len(conv) != p.turns {
		p.turns = len(conv)
		p.printed = ""
		fmt.Fprint(p.w, "assistant: ")
	}

	if strings.HasPrefix(last.Content, p.printed) {
		fmt.Fprint(p.w, last.Content[len(p.printed):])
		p.printed = last.Content
	}
}

// finish ends the reply line. err is the result of the submission.
func (p *linePrinter) finish(conv llm.Conversation, err error) {
	last, ok := conv.Last()
	if !ok || last.Role != llm.RoleAssistant {
		fmt.Fprintln(p.w)
		return
	}

	if err != nil {
		if p.printed != "" {
			fmt.Fprintln(p.w)
		}
		fmt.Fprintln(p.w, last.Content)
	} else if strings.HasPrefix(last.Content, p.printed) {
		fmt.Fprintln(p.w, last.Content[len(p.printed):])
	} else {
		fmt.Fprintln(p.w)
	}
	p.printed = last.Content
}
