package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/exploopio/npm-audit/pkg/report"
	"github.com/exploopio/npm-audit/pkg/sarif"
	"github.com/exploopio/npm-audit/pkg/scan"
)

func newShowCmd(stdout io.Writer) *cobra.Command {
	var sarifOut string

	cmd := &cobra.Command{
		Use:   "show REPORT",
		Short: "Print the matches of a saved report (.json, .json.gz or .json.zst)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			rep, err := report.Read(args[0])
			if err != nil {
				return err
			}
			if sarifOut != "" {
				if err := sarif.Write(sarif.FromReport(rep, version), sarifOut); err != nil {
					return err
				}
			}
			printReport(stdout, rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&sarifOut, "sarif", "", "also convert the report to a SARIF 2.1.0 log at this path")
	return cmd
}

func printReport(w io.Writer, rep *report.Report) {
	summary := color.New(color.FgGreen)
	if rep.HasMatches() {
		summary = color.New(color.FgRed, color.Bold)
	}

	fmt.Fprintf(w, "Project: %s\n", rep.ProjectPath)
	summary.Fprintln(w, rep.Summary)

	if len(rep.DirectMatches) > 0 {
		fmt.Fprintln(w, "Direct dependencies:")
		for _, m := range rep.DirectMatches {
			fmt.Fprintf(w, "  %s %s (%s)\n", m.Package, specString(m), m.Matched)
		}
	}
	if len(rep.LockfileMatches) > 0 {
		fmt.Fprintln(w, "Lockfile:")
		for _, m := range rep.LockfileMatches {
			fmt.Fprintf(w, "  %s via %s\n", matchLabel(m), strings.Join(m.Path, " > "))
		}
	}
}

func specString(m scan.DirectMatch) string {
	if s, ok := m.DeclaredVersionSpec.Str(); ok {
		return s
	}
	data, err := m.DeclaredVersionSpec.MarshalJSON()
	if err != nil {
		return "?"
	}
	return string(data)
}

func matchLabel(m scan.Match) string {
	if m.Version == nil {
		return m.Package
	}
	return m.Package + "@" + *m.Version
}
