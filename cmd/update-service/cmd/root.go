package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/update-service/internal/service/worker"
	"github.com/oshokin/update-service/internal/version"
)

var (
	// configPath to the configuration YAML file; empty means beside the binary.
	configPath string

	// rootCmd runs the worker under the SCM or dispatches an administrative command.
	rootCmd = &cobra.Command{
		Use:   "update-service",
		Short: "Privileged update worker for Mira Connect.",
		Long: `Runs as the AveoSystemsUpdate Windows service and executes trusted updaters on behalf of unprivileged callers.

Started by the service control manager it handles a single software-update command and exits.
Started from a console it manages its own service record through the subcommands below.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !worker.IsService() {
				return cmd.Help()
			}

			return worker.Serve(context.Background(), &worker.Options{ConfigPath: configPath})
		},
	}
)

// newManageCommand builds a subcommand running one administrative command.
func newManageCommand(command worker.Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(command),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			result, err := worker.Manage(ctx, &worker.Options{ConfigPath: configPath}, command)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), result)

			return nil
		},
	}
}

// Execute runs the update-service CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)

		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")

	rootCmd.AddCommand(
		newManageCommand(worker.CommandInstall, "Install the service, or upgrade it when this binary is newer."),
		newManageCommand(worker.CommandUpgrade, "Upgrade an installed service when this binary is newer."),
		newManageCommand(worker.CommandForceInstall, "Install or replace the service regardless of version."),
		newManageCommand(worker.CommandUninstall, "Stop and remove the service."),
		newManageCommand(worker.CommandStop, "Stop the service and wait for it to exit."),
		newManageCommand(worker.CommandStatus, "Print the installed service state and version."),
	)
}
