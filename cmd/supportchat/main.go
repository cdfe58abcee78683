package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/supportchat/cmd/supportchat/chat"
	servecmder "github.com/papercomputeco/supportchat/cmd/supportchat/serve"
)

const rootLongDesc string = `supportchat is a minimal customer support chat.

The relay serves a browser widget and streams model replies to it; the chat
command talks to a running relay from the terminal.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "supportchat",
		Short:         "Support chat relay and client",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
