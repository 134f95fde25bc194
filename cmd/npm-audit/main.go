// npm-audit checks an npm project against a list of compromised packages.
//
//	npm-audit --compromised compromised.txt --project ./app --out audit_report.json
//
// Exit status is 0 on success, 1 on any error, and 2 when --fail-on-match is
// set and something matched.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const appName = "npm-audit"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	exitOK      = 0
	exitError   = 1
	exitMatched = 2
)

// exitCodeError carries a non-error exit status out of a command.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ec *exitCodeError
	if stderrors.As(err, &ec) {
		return ec.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitError
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &auditFlags{}

	root := &cobra.Command{
		Use:   appName,
		Short: "Scan an npm project for compromised packages (direct and transitive)",
		Long: `npm-audit reads a list of compromised package names (one "name" or
"name@version" per line), checks the dependencies declared in package.json and
every package resolved in package-lock.json, and writes a JSON report.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAudit(cmd, flags, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	flags.register(root)

	root.AddCommand(newHistoryCmd(stdout), newShowCmd(stdout))
	return root
}
