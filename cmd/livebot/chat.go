package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/app"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/approvals"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/bot"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/domain"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/history"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/observability"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant in the terminal",
		Long: `Starts an interactive session against an in-memory demo warehouse.

The conversation is kept in memory and nothing is written to the database.
Logs go to stderr; type /help for commands and Ctrl+D to leave.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			slog.SetDefault(observability.New(os.Stderr, opts.logLevel, opts.logFormat))

			config := loadConfig()
			config.MinInterval = time.Nanosecond
			provider, err := app.NewProvider(cmd.Context(), config.Provider)
			if err != nil {
				return err
			}
			cat, err := app.LoadCatalog(config.CatalogPath)
			if err != nil {
				return err
			}
			b := app.NewBot(config, app.Deps{
				Provider: provider,
				Catalog:  cat,
				Service:  domain.NewWarehouse(time.Now, config.Location),
				History:  history.NewMemory(),
			})
			return chatLoop(cmd, b, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func chatLoop(cmd *cobra.Command, b *bot.Bot, in io.Reader, out io.Writer) error {
	conversation := "chat-" + uuid.NewString()
	you := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(out, "%s (%s)\n", color.New(color.Bold).Sprint("livebot chat"), conversation)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, you("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply, ok, err := b.Handle(cmd.Context(), bot.Incoming{Conversation: conversation, Actor: "terminal", Text: line})
		if err != nil {
			fmt.Fprintln(out, color.RedString("error: %v", err))
		}
		if !ok {
			continue
		}
		printReply(out, reply)
	}
}

// printReply hides the pending-action marker, which is internal state.
func printReply(out io.Writer, reply bot.Reply) {
	text := reply.Text
	if reply.Pending {
		text = approvals.Strip(text)
	}
	fmt.Fprintln(out, color.GreenString("bot> ")+text)
	if reply.Pending {
		fmt.Fprintln(out, color.YellowString("(waiting for your confirmation)"))
	}
}
