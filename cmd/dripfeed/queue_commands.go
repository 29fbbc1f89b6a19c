package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dripfeed/internal/api"
	"dripfeed/internal/config"
	"dripfeed/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCompletedCommand(ctx))
	queueCmd.AddCommand(newQueuePruneCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(func(_ *config.Config, jobs *api.JobService) error {
				status, err := jobs.Status(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				if status.Total == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(status.ByStatus)+3)
				for _, key := range status.StatusKeys() {
					rows = append(rows, []string{titleLabel(key), strconv.Itoa(status.ByStatus[key])})
				}
				rows = append(rows,
					[]string{"Due now", strconv.Itoa(status.Due)},
					[]string{"Steps pending", strconv.Itoa(status.StepsPending)},
					[]string{"Next due", displayTime(status.NextDueAt)},
				)
				fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(listStatuses)
			if err != nil {
				return err
			}
			return ctx.withJobs(func(_ *config.Config, jobs *api.JobService) error {
				items, err := jobs.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "App", "Status", "Next", "Left", "Next Due", "Last Result"},
					buildQueueListRows(items),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by status: pending or completed (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print jobs as JSON")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIDs(args)
			if err != nil {
				return err
			}
			return ctx.withJobs(func(_ *config.Config, jobs *api.JobService) error {
				job, err := jobs.Describe(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderJobDetail(job))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job as JSON")
	return cmd
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove jobs by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIDs(args)
			if err != nil {
				return err
			}
			return ctx.withJobs(func(_ *config.Config, jobs *api.JobService) error {
				res, err := jobs.Remove(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d jobs\n", res.Removed)
				return nil
			})
		},
	}
}

func newQueueClearCompletedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Remove every completed job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(func(_ *config.Config, jobs *api.JobService) error {
				res, err := jobs.ClearCompleted(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d completed jobs\n", res.Removed)
				return nil
			})
		},
	}
}

func newQueuePruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove completed jobs older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(func(cfg *config.Config, jobs *api.JobService) error {
				age := olderThan
				if !cmd.Flags().Changed("older-than") {
					age = time.Duration(cfg.Workflow.CompletedRetentionDays) * 24 * time.Hour
				}
				if age <= 0 {
					return fmt.Errorf("nothing to prune: retention is disabled (pass --older-than)")
				}
				res, err := jobs.Prune(cmd.Context(), age)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d completed jobs older than %s\n", res.Removed, age)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age cutoff, e.g. 720h (default: workflow.completed_retention_days)")
	return cmd
}

func parseStatuses(values []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(values))
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q (expected pending or completed)", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func parseJobIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid job id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func buildQueueListRows(items []api.Job) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		next := "-"
		if len(item.RemainingSteps) > 0 {
			next = item.RemainingSteps[0]
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.AppName,
			titleLabel(item.Status),
			next,
			strconv.Itoa(len(item.RemainingSteps)),
			displayTime(item.NextDueAt),
			lastResult(item),
		})
	}
	return rows
}

func renderJobDetail(job *api.Job) string {
	var b strings.Builder
	line := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "%-14s %s\n", label+":", value)
	}
	line("Job", strconv.FormatInt(job.ID, 10))
	line("App", job.AppName)
	line("Platform", job.Platform)
	line("Device", job.DeviceID)
	line("Owner", job.Owner)
	line("Status", titleLabel(job.Status))
	line("Steps done", strconv.Itoa(job.StepsDone))
	line("Remaining", strings.Join(job.RemainingSteps, " -> "))
	line("Delay", fmt.Sprintf("%gh - %gh", job.DelayMin, job.DelayMax))
	line("Next due", displayTime(job.NextDueAt))
	line("Last result", lastResult(*job))
	line("Created", displayTime(job.CreatedAt))
	line("Updated", displayTime(job.UpdatedAt))
	return b.String()
}

func lastResult(job api.Job) string {
	if job.LastStep == "" {
		return "-"
	}
	result := fmt.Sprintf("%s: %d", job.LastStep, job.LastResultCode)
	if text := strings.TrimSpace(job.LastResultText); text != "" {
		if len(text) > 40 {
			text = text[:37] + "..."
		}
		result += " " + text
	}
	return result
}

// displayTime renders an API timestamp in local time.
func displayTime(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return parsed.Local().Format("2006-01-02 15:04")
}
