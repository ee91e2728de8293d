package commands

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kingrea/agent-collab/internal/prompt"
)

func newPromptsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect and customize the prompt templates",
	}
	cmd.AddCommand(newPromptsListCommand())
	cmd.AddCommand(newPromptsEjectCommand())
	return cmd
}

func newPromptsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates and where each one is loaded from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			entries, err := prompt.NewLibrary(cfg.PromptsDir()).List()
			if err != nil {
				return err
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("TEMPLATE", "SOURCE", "PATH")
			for _, entry := range entries {
				t.Row(entry.ID, string(entry.Source), entry.Path)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
}

func newPromptsEjectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "eject",
		Short: "Copy the built-in templates into the workdir for editing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			lib := prompt.NewLibrary(cfg.PromptsDir())
			written, err := lib.Eject()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(written) == 0 {
				fmt.Fprintf(out, "All templates already present in %s\n", lib.Dir())
				return nil
			}
			for _, path := range written {
				fmt.Fprintf(out, "✓ Copied prompt: %s\n", path)
			}
			return nil
		},
	}
}
