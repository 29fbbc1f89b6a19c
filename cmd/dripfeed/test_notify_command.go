package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dripfeed/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			svc := notifications.NewService(cfg, nil)
			if notifications.IsNoop(svc) {
				fmt.Fprintln(cmd.OutOrStdout(), "Notifications not configured (set notifications.ntfy_topic or notifications.discord_webhook)")
				return nil
			}
			if err := svc.Publish(cmd.Context(), notifications.EventTest, notifications.Payload{"sentAt": time.Now()}); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
