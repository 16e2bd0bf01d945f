// Command livebot runs the warehouse chat assistant.
//
//	livebot serve     answer in Matrix rooms
//	livebot chat      talk to the assistant in the terminal
//	livebot catalog   print the action catalogue
//	livebot version   print build information
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/markegidiDev/ERP-ChatBot-LLM/common/environment"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/observability"
)

type rootOptions struct {
	logLevel  string
	logFormat string
	dbPath    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "livebot",
		Short:        "Chat assistant for sales orders and warehouse operations",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			observability.Setup(opts.logLevel, opts.logFormat)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", environment.StringOr("LOG_LEVEL", "info"), "log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", environment.StringOr("LOG_FORMAT", "text"), "log format: text or json")
	flags.StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides DATABASE_PATH)")

	root.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newCatalogCmd(),
		newVersionCmd(),
	)
	return root
}
