package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flemzord/storemods/pkg/app"
)

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Inspect and trigger maintenance jobs",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List configured jobs and their schedules",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStack(cmd, func(_ context.Context, s *app.Stack) error {
					sched, err := s.Scheduler()
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "JOB\tSCHEDULE")
					for _, st := range sched.Status() {
						fmt.Fprintf(tw, "%s\t%s\n", st.Name, st.Schedule)
					}
					return tw.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "run <job>",
			Short: "Run a job once, now",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStack(cmd, func(ctx context.Context, s *app.Stack) error {
					sched, err := s.Scheduler()
					if err != nil {
						return err
					}
					if err := sched.RunNow(ctx, args[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s completed\n", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}
