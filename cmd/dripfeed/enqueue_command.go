package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dripfeed/internal/api"
	"dripfeed/internal/config"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var (
		req    api.SubmitRequest
		steps  []string
		useGet bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Add a job to the queue",
		Long: "Add a job whose steps are sent one per interval.\n\n" +
			"Steps come either from catalog event names (--event, repeatable, in order)\n" +
			"or from explicit name=token pairs (--step, repeatable, in order).",
		Example: "  dripfeed enqueue --app Shop --platform ios --device abc --event install --event purchase --delay-min 2 --delay-max 6\n" +
			"  dripfeed enqueue --app Shop --app-token T --step install=tok1 --step purchase=tok2",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseStepFlags(steps)
			if err != nil {
				return err
			}
			req.Steps = parsed
			if cmd.Flags().Changed("use-get") {
				req.UseGet = &useGet
			}
			return ctx.withJobs(func(_ *config.Config, jobs *api.JobService) error {
				job, err := jobs.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d for %s: %s (first step due %s)\n",
					job.ID, job.AppName, strings.Join(job.RemainingSteps, " -> "), displayTime(job.NextDueAt))
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.AppName, "app", "", "App name (catalog key when using --event)")
	flags.StringVar(&req.Platform, "platform", "", "Target platform, e.g. ios or android")
	flags.StringVar(&req.DeviceID, "device", "", "Device identifier sent with every step")
	flags.StringVar(&req.AppToken, "app-token", "", "App credential; overrides the catalog entry")
	flags.BoolVar(&useGet, "use-get", false, "Send steps as GET requests; overrides the catalog entry")
	flags.StringSliceVarP(&req.Events, "event", "e", nil, "Catalog event name (repeatable, ordered; see catalog list)")
	flags.StringArrayVar(&steps, "step", nil, "Explicit step as name=token (repeatable, ordered)")
	flags.Float64Var(&req.DelayMin, "delay-min", 1, "Minimum hours between steps")
	flags.Float64Var(&req.DelayMax, "delay-max", 1, "Maximum hours between steps")
	flags.Float64Var(&req.StartInMinutes, "start-in", 0, "Minutes until the first step is due")
	flags.StringVar(&req.Owner, "owner", "", "Free-form owner tag shown in notifications")
	flags.BoolVar(&asJSON, "json", false, "Print the queued job as JSON")
	_ = cmd.MarkFlagRequired("app")
	return cmd
}

func parseStepFlags(values []string) ([]api.StepInput, error) {
	steps := make([]api.StepInput, 0, len(values))
	for _, value := range values {
		name, token, ok := strings.Cut(value, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --step %q: expected name=token", value)
		}
		if token == "" {
			return nil, errors.New("step " + name + " has an empty token")
		}
		steps = append(steps, api.StepInput{Name: strings.TrimSpace(name), Token: token})
	}
	return steps, nil
}
