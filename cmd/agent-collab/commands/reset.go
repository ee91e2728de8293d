package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/agent-collab/internal/workflow/engine"
)

func newResetCommand() *cobra.Command {
	var (
		yes       bool
		artifacts bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the workflow state and start over",
		Long: `Reset deletes the saved phase, review round and agent sessions. With --artifacts
the plan and review comments are removed as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !yes {
				fmt.Fprintf(out, "Reset workflow state in %s? [y/N] ", cfg.Workdir())
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				answer = strings.ToLower(strings.TrimSpace(answer))
				if answer != "y" && answer != "yes" {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}
			if err := engine.NewRepository(cfg.StatePath()).Delete(); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Removed state: %s\n", cfg.StatePath())
			if artifacts {
				for _, path := range []string{cfg.PlanPath(), cfg.CommentsPath()} {
					if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
						return fmt.Errorf("remove %s: %w", path, err)
					}
					fmt.Fprintf(out, "✓ Removed: %s\n", path)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().BoolVar(&artifacts, "artifacts", false, "also remove the plan and review comments")
	return cmd
}
