package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/stoik/triage/services/triage-service/internal/metrics"
	"github.com/stoik/triage/services/triage-service/internal/subscription"
	"go.uber.org/zap"
)

var subscriptionsCmd = &cobra.Command{
	Use:     "subscriptions",
	Aliases: []string{"subs"},
	Short:   "Manage mailbox webhook subscriptions",
}

var listSubscriptionsCmd = &cobra.Command{
	Use:   "list",
	Short: "List active subscriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(ctx context.Context, m *subscription.Manager) error {
			subs, err := m.List(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), subs)
		})
	},
}

var createSubscriptionCmd = &cobra.Command{
	Use:   "create <webhook-url>",
	Short: "Subscribe a webhook URL to new inbox messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(ctx context.Context, m *subscription.Manager) error {
			sub, err := m.Create(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Save the subscription ID - needed to delete/renew")
			return printJSON(cmd.OutOrStdout(), sub)
		})
	},
}

var deleteSubscriptionCmd = &cobra.Command{
	Use:   "delete <subscription-id>",
	Short: "Delete a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(ctx context.Context, m *subscription.Manager) error {
			if err := m.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted subscription %s\n", args[0])
			return nil
		})
	},
}

var renewSubscriptionsCmd = &cobra.Command{
	Use:   "renew",
	Short: "Renew every active subscription once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(ctx context.Context, m *subscription.Manager) error {
			report, err := m.RenewAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renewed %d/%d subscriptions\n", report.Renewed, report.Total)
			for _, f := range report.Failures {
				fmt.Fprintf(cmd.OutOrStdout(), "  ✗ %s: %v\n", f.SubscriptionID, f.Err)
			}
			if len(report.Failures) > 0 {
				return fmt.Errorf("%d renewal(s) failed", len(report.Failures))
			}
			return nil
		})
	},
}

func withManager(fn func(ctx context.Context, m *subscription.Manager) error) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.RequireMailbox(); err != nil {
		return err
	}

	manager := subscription.NewManager(newGraphProvider(cfg, logger), metrics.New(), logger)
	if err := fn(context.Background(), manager); err != nil {
		logger.Error("Subscription command failed", zap.Error(err))
		return err
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	subscriptionsCmd.AddCommand(listSubscriptionsCmd, createSubscriptionCmd, deleteSubscriptionCmd, renewSubscriptionsCmd)
	rootCmd.AddCommand(subscriptionsCmd)
}
