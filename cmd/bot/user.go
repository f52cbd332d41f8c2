package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/suspectuso/premium-bot/internal/storage"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Inspect stored users",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [external-id]",
		Short: "Print a user record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserGet,
	})

	return cmd
}

func runUserGet(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(false)
	if err != nil {
		return err
	}

	ctx := context.Background()
	d, err := openDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	user, err := d.store.FindByExternalID(ctx, args[0])
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("user %s not found", args[0])
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
