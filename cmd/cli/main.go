package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/marcelsud/webhook-relay/config"
	"github.com/marcelsud/webhook-relay/internal/bootstrap"
	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

/* cli - operator commands over the same service layer and backends as the API
 * Replay and retry only enqueue; a worker (API or cmd/worker) performs the delivery
 */

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var app *bootstrap.App

	root := &cobra.Command{
		Use:          "cli",
		Short:        "Inspect and re-deliver relayed webhooks",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.GetConfig()
			if err != nil {
				return err
			}
			if cfg.QueueBackend == config.BackendMemory {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: QUEUE_BACKEND=memory, replay and retry will not reach any worker")
			}
			app, err = bootstrap.New(cmd.Context(), cfg, zerolog.Nop())
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app == nil {
				return nil
			}
			return app.Close(context.Background())
		},
	}

	service := func() webhook.UseCase { return app.Service }
	root.AddCommand(
		listCmd(service),
		getCmd(service),
		failedCmd(service),
		replayCmd(service),
		retryCmd(service),
	)
	return root
}

func listCmd(service func() webhook.UseCase) *cobra.Command {
	var filter webhook.ListFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List webhooks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := service().List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			printTable(cmd.OutOrStdout(), page.Webhooks)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d (offset %d)\n", len(page.Webhooks), page.Total, page.Offset)
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter.ProjectID, "project", "p", "", "only webhooks of this project")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "l", webhook.DefaultListLimit, "page size")
	cmd.Flags().IntVarP(&filter.Offset, "offset", "o", 0, "page offset")
	return cmd
}

func getCmd(service func() webhook.UseCase) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print the full record of a webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wh, err := service().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(wh)
		},
	}
}

func failedCmd(service func() webhook.UseCase) *cobra.Command {
	return &cobra.Command{
		Use:   "failed",
		Short: "List webhooks that are retrying or dead-lettered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			failed, err := service().ListFailed(cmd.Context())
			if err != nil {
				return err
			}
			printTable(cmd.OutOrStdout(), failed)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d failed\n", len(failed))
			return nil
		},
	}
}

func replayCmd(service func() webhook.UseCase) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <id> <target-url>",
		Short: "Send a captured webhook to a target URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := service().Replay(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Replay of %s accepted\n", args[0])
			return nil
		},
	}
}

func retryCmd(service func() webhook.UseCase) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Retry a webhook against its last target URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := service().ManualRetry(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Webhook %s queued for retry\n", args[0])
			return nil
		},
	}
}

func printTable(out io.Writer, webhooks []webhook.Webhook) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROJECT\tSTATUS\tRETRIES\tRECEIVED\tTARGET\tERROR")
	for _, wh := range webhooks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			wh.ID,
			wh.ProjectID,
			wh.Status,
			wh.RetryCount,
			wh.ReceivedAt.Format(time.RFC3339),
			wh.TargetURL,
			wh.ErrorMessage,
		)
	}
	tw.Flush()
}
