package cli

import (
	"io"

	"github.com/pysugar/homeauth/internal/version"
	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(rootOpts, cmd.OutOrStdout())
			return p.emit(map[string]string{
				"version":    version.Version,
				"commit":     version.Commit,
				"build_time": version.BuildTime,
			}, func(w io.Writer) {
				p.line("%s", version.String())
			})
		},
	}
}
