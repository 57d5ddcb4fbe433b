package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"marketchat/internal/infra/config"
	"marketchat/internal/infra/obs"
)

var (
	conversationID string
	tokenOverride  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "marketchat",
		Short: "Terminal client for marketplace messaging",
		RunE:  runClient,

		SilenceUsage: true,
	}
	rootCmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "conversation id to open on start")
	rootCmd.Flags().StringVarP(&tokenOverride, "token", "t", "", "session token (overrides SESSION_TOKEN)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if tokenOverride != "" {
		os.Setenv("SESSION_TOKEN", tokenOverride)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := obs.NewLogger(cfg.Env)

	s, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.run(ctx, conversationID); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
