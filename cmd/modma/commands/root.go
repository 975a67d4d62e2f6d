// Package commands implements the modma CLI.
package commands

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ekisa-team/modma/internal/config"
	"github.com/ekisa-team/modma/internal/env"
	"github.com/ekisa-team/modma/internal/envvar"
	"github.com/ekisa-team/modma/internal/logger"
)

// Version is set at build time.
var Version = "dev"

type globalFlags struct {
	configPath string
	schemaPath string
	logLevel   string
	logFile    string
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "modma",
		Short: "EEG depression screening service",
		Long: `modma - preprocess EGI EEG recordings into epoch archives and classify
subjects as healthy control (HC) or major depressive disorder (MDD).

Configuration is read from a YAML file (defaults are used when it is absent):
  macOS:   ~/Library/Application Support/modma/config.yaml
  Linux:   ~/.config/modma/config.yaml
  Windows: %AppData%/modma/config.yaml

A .env file in the working directory is loaded before anything else.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			_ = godotenv.Load()
			setupLogger(cmd, flags)
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config file (env "+envvar.ModmaConfig+")")
	root.PersistentFlags().StringVar(&flags.schemaPath, "schema", "", "path to a JSON schema overriding the embedded one")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (env "+envvar.ModmaLogLevel+")")
	root.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "also write logs to this rotating file")

	root.AddCommand(
		newServeCommand(flags),
		newPreprocessCommand(flags),
		newPredictCommand(flags),
		newModelsCommand(flags),
		newVersionCommand(),
	)

	return root
}

func setupLogger(cmd *cobra.Command, flags *globalFlags) {
	level := flags.logLevel
	if level == "" {
		level = os.Getenv(envvar.ModmaLogLevel)
	}

	opts := []logger.Option{
		logger.WithLevel(logger.ParseLevel(level)),
		logger.WithWriter(cmd.ErrOrStderr()),
	}
	if flags.logFile != "" {
		opts = append(opts, logger.WithLogToFile(true), logger.WithLogFile(flags.logFile))
	}

	slog.SetDefault(logger.New(env.FromEnv(), opts...))
}

// resolveConfigPath applies flag > env > default precedence.
func (f *globalFlags) resolveConfigPath() string {
	if f.configPath != "" {
		return f.configPath
	}
	if p := os.Getenv(envvar.ModmaConfig); p != "" {
		return p
	}
	return filepath.Join(config.DefaultConfigPath(), "config.yaml")
}

func (f *globalFlags) loadConfig() (*config.Config, error) {
	return config.Load(f.resolveConfigPath(), f.schemaPath)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
