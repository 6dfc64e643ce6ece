// Package commands implements the modelstudio command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ProgramName is the name printed by --version.
const ProgramName = "modelstudio-sdk"

var errNoCommand = errors.New("no command given")

// globalOptions are the flags shared by every subcommand, plus the build version.
type globalOptions struct {
	Verbosity int
	Version   string
}

// NewRootCommand creates the modelstudio command with its subcommands.
func NewRootCommand(version string, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	global := &globalOptions{Version: version}

	cmd := &cobra.Command{
		Use:   "modelstudio",
		Short: "Submit images to a ModelStudio prediction API",
		Long: `Sends each image to a remote prediction API and prints one result line per image.

Failed requests are retried with exponential backoff. Requests that time out are
retried with a doubled timeout.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return errNoCommand
		},
	}
	cmd.SetVersionTemplate(ProgramName + " {{.Version}}\n")
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().CountVarP(&global.Verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")

	cmd.AddCommand(
		NewPredictCommand(global),
		NewConfigCommand(),
		NewVersionCommand(version),
	)
	return cmd
}

// Execute runs the command line with args and returns the process exit code.
func Execute(ctx context.Context, version string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := NewRootCommand(version, stdin, stdout, stderr)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errNoCommand) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}
