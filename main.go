package main

import (
	"context"
	"os/signal"
	"syscall"
	"wserver/src/command"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := &cobra.Command{Use: "wserver", Short: "concurrent file server"}
	root.SilenceUsage = true

	logger := log.New()

	root.AddCommand(
		command.Server{Logger: logger}.Command(ctx),
		command.Client{Logger: logger}.Command(ctx),
	)

	if err := root.Execute(); err != nil {
		logger.WithContext(ctx).Fatalf("failed to execute root command: \n%v", err)
	}
}
