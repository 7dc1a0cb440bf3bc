package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/update-service/internal/logger"
	"github.com/oshokin/update-service/internal/service/trigger"
	"github.com/oshokin/update-service/internal/version"
)

var (
	// exitCode is what the process returns once cobra is done.
	exitCode int

	// rootCmd asks the update service to run an updater.
	rootCmd = &cobra.Command{
		Use:   "start-update <updater-path> <registry-key>",
		Short: "Ask the update service to run an updater.",
		Long: `Starts the AveoSystemsUpdate service with a software-update command.

The installation directory is the default value of HKEY_LOCAL_MACHINE\<registry-key>.
Exit codes: -1 not enough arguments, -2 invalid updater path, -3 registry key or value
unreadable, -4 invalid install path, -5 service already running. Any other failure
returns the system error code.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(_ *cobra.Command, args []string) {
			ctx := logger.ToContext(context.Background(), logger.New(nil, os.Stderr, false).Named("start-update"))
			defer logger.Sync(ctx)

			exitCode = trigger.NewHost().Run(ctx, args)
		},
	}
)

// Execute runs the start-update CLI and exits with the trigger's code.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}

	os.Exit(exitCode)
}
