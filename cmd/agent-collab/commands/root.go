package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kingrea/agent-collab/internal/config"
	"github.com/kingrea/agent-collab/internal/logging"
)

var (
	// Global flags
	projectDir string
	configPath string
	verbose    bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agent-collab",
		Short: "Planner/reviewer collaboration between two coding agents",
		Long: `agent-collab drives two coding agents through a shared workflow: the planner
refines a goal with you and writes a plan, the reviewer critiques it until it is
approved, then the planner executes the plan step by step.

Run without a subcommand to open the interactive terminal UI.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runTUI,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", "", "project directory (default: current directory)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: <project>/"+config.FileName+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newRefineCommand())
	rootCmd.AddCommand(newWritePlanCommand())
	rootCmd.AddCommand(newReviewCommand())
	rootCmd.AddCommand(newRespondCommand())
	rootCmd.AddCommand(newExecuteCommand())
	rootCmd.AddCommand(newDoneCommand())
	rootCmd.AddCommand(newRecoverCommand())
	rootCmd.AddCommand(newLoopCommand())
	rootCmd.AddCommand(newResetCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newPromptsCommand())

	return rootCmd
}

// resolveProjectDir returns the absolute project directory.
func resolveProjectDir() (string, error) {
	dir := projectDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		dir = wd
	}
	return filepath.Abs(dir)
}

func loadConfig() (*config.Config, error) {
	dir, err := resolveProjectDir()
	if err != nil {
		return nil, err
	}
	return config.Load(dir, configPath)
}

// consoleLogger logs to stderr so stdout stays clean for agent output.
func consoleLogger(cmd *cobra.Command) zerolog.Logger {
	return logging.Console(cmd.ErrOrStderr(), logging.ParseLevel(os.Getenv("LOG_LEVEL"), verbose))
}
