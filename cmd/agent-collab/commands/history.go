package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kingrea/agent-collab/internal/history"
)

const historyPreview = 60

func newHistoryCommand() *cobra.Command {
	var (
		limit      int
		role       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent agent exchanges",
		Example: `  agent-collab history --limit 5
  agent-collab history --role reviewer --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cmd.Context(), cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			exchanges, err := store.List(cmd.Context(), history.Filter{Role: role, Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				encoded, err := json.MarshalIndent(exchanges, "", "  ")
				if err != nil {
					return fmt.Errorf("encode history: %w", err)
				}
				fmt.Fprintln(out, string(encoded))
				return nil
			}
			if len(exchanges) == 0 {
				fmt.Fprintln(out, "No exchanges recorded yet.")
				return nil
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("STARTED", "ROLE", "AGENT", "PHASE", "ROUND", "TOOK", "RESULT")
			for _, ex := range exchanges {
				result := preview(ex.Response)
				if ex.Failed() {
					result = "error: " + preview(ex.Err)
				}
				t.Row(
					ex.StartedAt.Local().Format("2006-01-02 15:04:05"),
					ex.Role,
					ex.Agent,
					ex.Phase,
					fmt.Sprintf("%d", ex.Iteration),
					ex.Duration.Round(time.Millisecond).String(),
					result,
				)
			}
			fmt.Fprintln(out, t.String())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of exchanges to show")
	cmd.Flags().StringVar(&role, "role", "", "only show exchanges for this role (planner or reviewer)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len([]rune(text)) <= historyPreview {
		return text
	}
	return string([]rune(text)[:historyPreview-1]) + "…"
}
