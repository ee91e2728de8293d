package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/agent-collab/internal/artifact"
	"github.com/kingrea/agent-collab/internal/workflow/engine"
)

func newStatusCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the workflow phase, review round and documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctrl, err := engine.New(cfg, engine.WithLogger(consoleLogger(cmd)))
			if err != nil {
				return err
			}
			status := ctrl.Status()
			out := cmd.OutOrStdout()
			if jsonOutput {
				encoded, err := json.MarshalIndent(status, "", "  ")
				if err != nil {
					return fmt.Errorf("encode status: %w", err)
				}
				fmt.Fprintln(out, string(encoded))
				return nil
			}

			fmt.Fprintf(out, "Phase:      %s\n", status.PhaseLabel)
			fmt.Fprintf(out, "Iteration:  %d/%d", status.Iteration, status.MaxIterations)
			if status.BudgetReached {
				fmt.Fprint(out, " (budget reached)")
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Approved:   %t\n", status.Approved)
			fmt.Fprintf(out, "Waiting on: %s\n", status.ActiveRole)
			if len(status.NextPhases) > 0 {
				fmt.Fprintf(out, "Next:       %s\n", strings.Join(status.NextPhases, ", "))
			}
			fmt.Fprintf(out, "Sessions:   planner=%s reviewer=%s\n", orNone(status.PlannerSession), orNone(status.ReviewerSession))
			for _, kind := range artifact.Kinds() {
				check, err := ctrl.Artifacts().Check(kind)
				line := fmt.Sprintf("%-11s %s (%s)", titleKind(kind)+":", check.Ref.Path, check.State)
				if err != nil {
					line += " " + err.Error()
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func orNone(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func titleKind(kind artifact.Kind) string {
	name := string(kind)
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
