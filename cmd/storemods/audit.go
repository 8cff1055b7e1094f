package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/flemzord/storemods/internal/security"
	"github.com/flemzord/storemods/pkg/app"
)

func auditCmd() *cobra.Command {
	var (
		filter security.AuditFilter
		since  time.Duration
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent lifecycle and login events from the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, _, err := app.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Audit.Path == "" {
				return errors.New("audit.path is not set, events only go to the log")
			}
			f, err := os.Open(cfg.Audit.Path)
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), "No audit events yet.")
				return nil
			}
			if err != nil {
				return err
			}
			defer f.Close()

			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			events, skipped, err := security.ReadAuditLog(f, filter)
			if err != nil {
				return err
			}
			if skipped > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d unreadable lines\n", skipped)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				for _, ev := range events {
					if err := enc.Encode(ev); err != nil {
						return err
					}
				}
				return nil
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "No matching audit events.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tEVENT\tMODULE\tACTOR\tRESULT")
			for _, ev := range events {
				result := "ok"
				if !ev.Success {
					result = "failed"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					humanize.Time(ev.Timestamp), ev.Type, dash(ev.Module), dash(ev.Actor), result)
			}
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVarP(&filter.Module, "module", "m", "", "Only events about this module")
	f.IntVarP(&filter.Limit, "limit", "n", 20, "Show at most this many events, newest last (0 for all)")
	f.DurationVar(&since, "since", 0, "Only events newer than this, e.g. 24h")
	f.BoolVar(&asJSON, "json", false, "Print JSON lines instead of a table")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
