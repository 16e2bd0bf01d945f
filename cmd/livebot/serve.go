package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/app"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer messages in the configured Matrix rooms",
		Long: `Connects to the Matrix homeserver and answers text messages in MATRIX_ROOMS.

Required environment: MATRIX_HOMESERVER, MATRIX_USER_ID, MATRIX_ACCESS_TOKEN,
MATRIX_ROOMS and the API key of the selected provider (GEMINI_API_KEY or
OPENROUTER_API_KEY).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config := loadConfig()
			if opts.dbPath != "" {
				config.DatabasePath = opts.dbPath
			}
			if cmd.Flags().Changed("http-addr") {
				config.HTTPAddr = httpAddr
			}
			if err := validateServe(config); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			livebot, err := app.New(ctx, config)
			if err != nil {
				return fmt.Errorf("failed to initialize livebot: %w", err)
			}
			defer livebot.Stop()
			return livebot.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "address of the /health and /status server (overrides LIVEBOT_HTTP_ADDR)")
	return cmd
}

func validateServe(c *app.Config) error {
	var missing []error
	if c.Matrix.Homeserver == "" {
		missing = append(missing, errors.New("MATRIX_HOMESERVER is required"))
	}
	if c.Matrix.UserID == "" {
		missing = append(missing, errors.New("MATRIX_USER_ID is required"))
	}
	if c.Matrix.AccessToken == "" {
		missing = append(missing, errors.New("MATRIX_ACCESS_TOKEN is required"))
	}
	if len(c.Matrix.Rooms) == 0 {
		missing = append(missing, errors.New("MATRIX_ROOMS is required"))
	}
	return errors.Join(missing...)
}
