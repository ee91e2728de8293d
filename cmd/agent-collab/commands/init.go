package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/agent-collab/internal/config"
	"github.com/kingrea/agent-collab/internal/prompt"
)

func newInitCommand() *cobra.Command {
	var ejectPrompts bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the project config and workdir",
		Long: `Init writes a default ` + config.FileName + ` (unless one exists) and creates the
workdir that holds the plan, review comments, state, logs and prompt overrides.`,
		Example: `  # Initialize the current project
  agent-collab init

  # Also copy the built-in prompt templates for editing
  agent-collab init --prompts`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveProjectDir()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if configPath == "" {
				path, written, err := config.WriteDefault(dir)
				if err != nil {
					return err
				}
				if written {
					fmt.Fprintf(out, "✓ Created config file: %s\n", path)
				} else {
					fmt.Fprintf(out, "• Config file exists: %s\n", path)
				}
			}
			cfg, err := config.Load(dir, configPath)
			if err != nil {
				return err
			}
			if err := cfg.InitWorkdir(); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Workdir ready: %s\n", cfg.Workdir())
			if ejectPrompts {
				written, err := prompt.NewLibrary(cfg.PromptsDir()).Eject()
				if err != nil {
					return err
				}
				for _, path := range written {
					fmt.Fprintf(out, "✓ Copied prompt: %s\n", path)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ejectPrompts, "prompts", false, "copy the built-in prompt templates into the workdir")
	return cmd
}
