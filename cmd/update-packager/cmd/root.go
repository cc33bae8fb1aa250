package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/oshokin/update-packager/internal/config"
	"github.com/oshokin/update-packager/internal/domain/update"
	"github.com/oshokin/update-packager/internal/logger"
	"github.com/oshokin/update-packager/internal/service/session"
	"github.com/oshokin/update-packager/internal/version"
)

var (
	// configPath to the settings YAML file.
	configPath string
	// projectPath to the project description.
	projectPath string
	// assignmentsPath to an optional deployment configuration.
	assignmentsPath string
	// logLevel overrides the level from the settings.
	logLevel string
	// metricsFile receives the metrics in text format after the run.
	metricsFile string

	// rootCmd represents the base command for assembling update packages.
	rootCmd = &cobra.Command{
		Use:           "update-packager",
		Short:         "Assemble device update packages from a project view",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	initCmd = &cobra.Command{
		Use:   "init-config",
		Short: "Write the effective settings to the settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeSettings(cmd.OutOrStdout(), configPath, logLevel)
		},
	}

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Check that every selected file exists and suits its device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(func(ctx context.Context, s *session.Session) error {
				report := s.Validate(ctx)
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), report.String())

				if report.HasMissing() {
					return update.ErrMissingFile
				}

				return nil
			})
		},
	}

	exportCmd = &cobra.Command{
		Use:   "export-config [file]",
		Short: "Write the deployment configuration of the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return run(func(ctx context.Context, s *session.Session) error {
				return s.ExportConfig(ctx, args[0])
			})
		},
	}

	importCmd = &cobra.Command{
		Use:   "import-config [file] [out]",
		Short: "Apply a deployment configuration to the project and write the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, s *session.Session) error {
				result, err := s.ImportConfig(ctx, args[0])
				if err != nil {
					return err
				}

				for _, ignored := range result.IgnoredNodes {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Node not found in the project: %s\n", ignored)
				}

				return s.ExportConfig(ctx, args[1])
			})
		},
	}

	createCmd = &cobra.Command{
		Use:   "create-package [destination]",
		Short: "Validate the files and write the update package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, s *session.Session) error {
				result, err := s.CreatePackage(ctx, args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "Package written to %s (%d nodes, %d files)\n",
					result.Path, len(result.Manifest.Nodes), result.Manifest.FileCount())

				for _, warning := range result.Warnings {
					_, _ = fmt.Fprintf(out, "Warning: %s\n", warning)
				}

				return nil
			})
		},
	}
)

// run opens a session, executes action and writes the metrics file when requested.
func run(action func(ctx context.Context, s *session.Session) error) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	ctx = logger.WithName(ctx, "update-packager")
	registry := prometheus.NewRegistry()

	s, err := session.Open(ctx, &session.Options{
		ConfigPath:      configPath,
		ProjectPath:     projectPath,
		AssignmentsPath: assignmentsPath,
		LogLevel:        logLevel,
		Registerer:      registry,
	})
	if err != nil {
		return err
	}

	actionErr := action(ctx, s)

	if metricsFile != "" {
		if err = prometheus.WriteToTextfile(metricsFile, registry); err != nil {
			logger.WarnKV(ctx, "Could not write metrics", "path", metricsFile, "error", err)
		}
	}

	return actionErr
}

// writeSettings persists the defaults, the existing file and environment
// overrides merged into one settings file at path.
func writeSettings(out io.Writer, path, level string) error {
	settings, err := config.Load(path)
	if err != nil {
		return err
	}

	if level != "" {
		settings.LogLevel = level

		if err = config.Validate(settings); err != nil {
			return fmt.Errorf("%w: %w", update.ErrInvalidSettings, err)
		}
	}

	if err = config.Save(path, settings); err != nil {
		return fmt.Errorf("%w: %w", update.ErrIO, err)
	}

	_, _ = fmt.Fprintf(out, "Settings written to %s\n", path)

	return nil
}

// Execute runs the update-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Logger().Errorw("Command failed", "error", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps error categories to process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, update.ErrConfigurationMissing):
		return 2
	case errors.Is(err, update.ErrNoEligibleWork):
		return 3
	case errors.Is(err, update.ErrMissingFile):
		return 4
	case errors.Is(err, update.ErrInvalidSettings):
		return 5
	default:
		return 1
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to settings file")
	flags.StringVarP(&projectPath, "project", "p", "project.yaml", "path to project description")
	flags.StringVarP(&assignmentsPath, "assignments", "a", "", "deployment configuration applied before the command")
	flags.StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&metricsFile, "metrics-file", "", "write metrics in text format to this file")

	rootCmd.AddCommand(initCmd, validateCmd, exportCmd, importCmd, createCmd)
}
