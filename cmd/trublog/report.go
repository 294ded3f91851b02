package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tania-lang/trublog-writer/internal/classify"
	"github.com/tania-lang/trublog-writer/internal/report"
	"github.com/tania-lang/trublog-writer/internal/storage"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		domain string
		since  time.Duration
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise stored harvest snapshots",
		Example: `  trublog report
  trublog report --domain example.com --format html > report.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := openBackend(a.cfg.Storage)
			if err != nil {
				return err
			}
			if backend == nil {
				return errors.New("storage.backend is none; nothing to report")
			}
			defer backend.Close()

			filter := storage.Filter{Limit: limit}
			if domain != "" {
				if filter.Domain, err = classify.NormalizeDomain(domain); err != nil {
					return err
				}
			}
			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}

			snaps, err := backend.Query(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("query snapshots: %w", err)
			}

			summary := report.GenerateSummary(snaps)
			out := cmd.OutOrStdout()
			switch format {
			case "text":
				return report.WriteText(out, summary)
			case "json":
				return report.WriteJSON(out, summary)
			case "html":
				return report.WriteHTML(out, summary)
			default:
				return fmt.Errorf("unknown format %q (want text, json or html)", format)
			}
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "only snapshots of this domain")
	cmd.Flags().DurationVar(&since, "since", 0, "only snapshots newer than this (e.g. 72h)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum snapshots to include (0 = all)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text|json|html")

	return cmd
}
