// Package main provides the turnstream CLI entrypoint.
//
// Usage:
//
//	turnstream <command> [options]
//
// Exit codes for `stream` and `replay`:
//   - 0: completed
//   - 1: server error item
//   - 2: protocol error (parse error, unknown result kind)
//   - 3: unexpected status or transport error
//   - 4: permission denied
//   - 64: usage error
//   - 74: storage error (stats only)
//   - 130: canceled
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/turnstream/cli/cmd"
	"github.com/pithecene-io/turnstream/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "turnstream",
		Usage:          "Stream one conversation turn and assemble its response",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.StreamCommand(),
			cmd.ReplayCommand(),
			cmd.StatsCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(exitCode(os.Stderr, err))
}

// exitCode reports err on w and returns the process exit code for it.
// cli.Exit("", N) carries only a code and prints nothing.
func exitCode(w io.Writer, err error) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(w, msg)
		}
		return code
	}

	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
