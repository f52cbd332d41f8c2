package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := serveCmd()

	rootCmd := &cobra.Command{
		Use:          "premium-bot",
		Short:        "Telegram intake bot with idempotent Stripe payment reconciliation",
		Version:      Version,
		SilenceUsage: true,
		RunE:         serve.RunE,
	}

	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(reconcileCmd())

	return rootCmd
}
