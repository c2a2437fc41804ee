package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"gridlock/internal/api"
	"gridlock/internal/config"
	"gridlock/internal/store"
)

func newSchedulerCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Inspect and trigger scheduled jobs",
	}
	cmd.AddCommand(newSchedulerDueCommand(ctx))
	cmd.AddCommand(newSchedulerTriggerCommand(ctx))
	return cmd
}

func newSchedulerDueCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "due",
		Short: "List scheduled jobs, due ones first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				var jobs []*store.ScheduledJob
				var err error
				if all {
					jobs, err = st.ListScheduledJobs(cmd.Context(), "")
				} else {
					jobs, err = st.ListScheduledJobs(cmd.Context(), store.JobScheduled)
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No scheduled jobs")
					return nil
				}
				now := time.Now().UTC()
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						string(job.TriggerType),
						string(job.Status),
						job.ScheduledFor.Local().Format("2006-01-02 15:04"),
						yesNo(job.Status == store.JobScheduled && !job.ScheduledFor.After(now)),
						truncate(job.Description, 48),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Trigger", "Status", "Scheduled", "Due", "Description"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include launched and finished jobs")
	return cmd
}

func newSchedulerTriggerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <job-id>",
		Short: "Launch a scheduled job ahead of its due time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			return ctx.withService(func(_ *config.Config, _ *store.Store, svc *api.Service) error {
				ep, err := svc.TriggerScheduled(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %d launched episode %d (%s)\n", id, ep.ID, ep.EpisodeType)
				return nil
			})
		},
	}
}
