package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"dripfeed/internal/api"
	"dripfeed/internal/config"
	"dripfeed/internal/executor"
	"dripfeed/internal/logging"
	"dripfeed/internal/notifications"
	"dripfeed/internal/processor"
	"dripfeed/internal/queue"
)

func newTickCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one scan over the queue and exit",
		Long: "Run one scan: every due job has its head step executed and is rescheduled.\n" +
			"Safe to run from cron alongside the daemon; concurrent scans are serialized by a lock file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				logger, err := logging.NewFromConfig(cfg)
				if err != nil {
					return fmt.Errorf("init logger: %w", err)
				}

				dispatcher := notifications.NewDispatcher(notifications.NewService(cfg, nil), notifications.DispatcherOptions{
					Buffer:       cfg.Notifications.Buffer,
					MaxPerMinute: cfg.Notifications.MaxPerMinute,
					SendTimeout:  cfg.NotificationTimeout(),
					Logger:       logger,
				})
				opts := append(processor.OptionsFromConfig(cfg),
					processor.WithLogger(logger),
					processor.WithNotifier(dispatcher),
					processor.WithScanGuard(flock.New(cfg.ScanLockPath())),
				)
				proc := processor.New(store, executor.New(cfg, nil, logger), opts...)
				summary := proc.RunOnce(cmd.Context())

				flushCtx, cancel := context.WithTimeout(context.Background(), cfg.NotificationTimeout())
				defer cancel()
				_ = dispatcher.Close(flushCtx)

				view := api.FromSummary(summary, time.Now())
				if asJSON {
					return writeJSON(cmd, view)
				}
				rows := [][]string{
					{"Status", titleLabel(view.Status)},
					{"Due", strconv.Itoa(view.Due)},
					{"Processed", strconv.Itoa(view.Processed)},
					{"Completed", strconv.Itoa(view.Completed)},
					{"Failed", strconv.Itoa(view.Failed)},
					{"Skipped", strconv.Itoa(view.Skipped)},
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Scan " + view.ScanID, ""}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the scan summary as JSON")
	return cmd
}
