package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AttachCobraVersionCommand attaches a `version` subcommand to root. It
// prints the build metadata and warns when Version is not a valid file version.
func AttachCobraVersionCommand(root *cobra.Command) {
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", root.Name(), Full())

			if _, err := FileVersion(); err != nil {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
			}
		},
	})
}
