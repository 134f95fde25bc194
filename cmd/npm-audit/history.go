package main

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/exploopio/npm-audit/pkg/history"
)

func newHistoryCmd(stdout io.Writer) *cobra.Command {
	var (
		db      string
		project string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded audit runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if project != "" {
				abs, err := filepath.Abs(project)
				if err != nil {
					return err
				}
				project = abs
			}

			store, err := history.Open(db)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), project, limit)
			if err != nil {
				return err
			}
			return printRuns(stdout, runs)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&db, "db", "", "history database written by --history (required)")
	fs.StringVarP(&project, "project", "p", "", "only list runs of this project")
	fs.IntVar(&limit, "limit", 20, "maximum number of runs to list")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func printRuns(w io.Writer, runs []history.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No recorded runs.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tDIRECT\tLOCKFILE\tSTRATEGY\tPROJECT")
	for _, r := range runs {
		strategy := r.Strategy
		if strategy == "" {
			strategy = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ID, r.StartedAt.UTC().Format(time.RFC3339), r.DirectCount, r.LockfileCount, strategy, r.ProjectPath)
	}
	return tw.Flush()
}
