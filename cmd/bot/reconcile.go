package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/suspectuso/premium-bot/internal/billing"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Apply a payment event by hand, e.g. one seen in the Stripe dashboard",
		Long: `Replays a completed payment for a user through the same reconciler the
webhook uses. Replaying an event id that was already applied is a no-op.`,
		RunE: runReconcile,
	}

	cmd.Flags().String("external-id", "", "User external id (Stripe client_reference_id)")
	cmd.Flags().String("event-id", "", "Provider event id")
	cmd.Flags().String("customer", "", "Customer reference")
	cmd.Flags().String("subscription", "", "Subscription reference")
	cmd.MarkFlagRequired("external-id")
	cmd.MarkFlagRequired("event-id")

	return cmd
}

func runReconcile(cmd *cobra.Command, args []string) error {
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

	ev := billing.PaymentEvent{Completed: true, OccurredAt: time.Now()}
	ev.ExternalID, _ = cmd.Flags().GetString("external-id")
	ev.EventID, _ = cmd.Flags().GetString("event-id")
	ev.CustomerRef, _ = cmd.Flags().GetString("customer")
	ev.SubscriptionRef, _ = cmd.Flags().GetString("subscription")
	// Operator input is trusted.
	ev.Verified = true

	reconciler := billing.NewReconciler(d.store, d.locker, log, billing.WithTimeout(cfg.ReconcileTimeout))
	outcome, err := reconciler.Apply(ctx, ev)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), outcome.String())
	return nil
}
