package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/agent-collab/internal/artifact"
	"github.com/kingrea/agent-collab/internal/workflow/engine"
)

// runOperation opens the runtime with output streaming to stdout, runs op and
// prints the resulting status.
func runOperation(cmd *cobra.Command, op func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	printed := false
	printer := engine.ListenerFuncs{Output: func(fragment string) {
		printed = true
		fmt.Fprint(out, fragment)
	}}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := openRuntime(ctx, cfg, consoleLogger(cmd), printer)
	if err != nil {
		return err
	}
	defer rt.Close()

	opErr := op(ctx, rt)
	if printed {
		fmt.Fprintln(out)
	}
	printStatusLine(cmd.ErrOrStderr(), rt.ctrl.Status())
	if errors.Is(opErr, engine.ErrIterationBudget) {
		return fmt.Errorf("review budget of %d rounds reached without approval: %w", rt.cfg.MaxIterations(), opErr)
	}
	return opErr
}

func printStatusLine(w io.Writer, status engine.Status) {
	line := fmt.Sprintf("phase: %s · iteration %d/%d", status.PhaseLabel, status.Iteration, status.MaxIterations)
	if status.Approved {
		line += " · approved"
	}
	if len(status.NextPhases) > 0 {
		line += " · next: " + strings.Join(status.NextPhases, ", ")
	}
	fmt.Fprintln(w, line)
}

func newRefineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refine <text...>",
		Short: "Talk the goal through with the planner",
		Example: `  agent-collab refine "add retry support to the uploader"
  agent-collab refine only retry idempotent requests`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return errors.New("refine needs some text")
			}
			return runOperation(cmd, func(ctx context.Context, rt *runtime) error {
				_, err := rt.ctrl.Refine(ctx, text)
				return err
			})
		},
	}
}

func newWritePlanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "write-plan",
		Short: "Have the planner write the plan document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, func(ctx context.Context, rt *runtime) error {
				_, err := rt.ctrl.WritePlan(ctx)
				return err
			})
		},
	}
}

func newReviewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Have the reviewer critique the plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, func(ctx context.Context, rt *runtime) error {
				_, err := rt.ctrl.Review(ctx)
				return err
			})
		},
	}
}

func newRespondCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "respond",
		Short: "Have the planner revise the plan from review comments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, func(ctx context.Context, rt *runtime) error {
				_, err := rt.ctrl.Respond(ctx)
				return err
			})
		},
	}
}

func newLoopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "loop",
		Short: "Alternate review and respond until approval or the round budget runs out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, func(ctx context.Context, rt *runtime) error {
				_, err := rt.ctrl.RunReviewLoop(ctx)
				return err
			})
		},
	}
}

func newExecuteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <step> [content...]",
		Short: "Have the planner carry out one plan step",
		Long: `Execute sends one step of the approved plan to the planner. When no content is
given the step is looked up in the plan by its number.`,
		Example: `  agent-collab execute 1
  agent-collab execute 3 "wire the retry policy into the uploader"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := strconv.Atoi(args[0])
			if err != nil || step < 1 {
				return fmt.Errorf("step must be a positive number, got %q", args[0])
			}
			content := strings.TrimSpace(strings.Join(args[1:], " "))
			return runOperation(cmd, func(ctx context.Context, rt *runtime) error {
				if content == "" {
					found, ok := artifact.StepAt(rt.ctrl.PlanContent(), step)
					if !ok {
						return fmt.Errorf("step %d not found in %s; pass its content explicitly", step, rt.cfg.PlanPath())
					}
					content = found.Content()
				}
				_, err := rt.ctrl.ExecuteStep(ctx, step, content)
				return err
			})
		},
	}
}

func newDoneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "done",
		Short: "Mark the collaboration finished",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, func(ctx context.Context, rt *runtime) error {
				return rt.ctrl.MarkDone()
			})
		},
	}
}

func newRecoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Re-seed the active agent with the plan, comments and progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, func(ctx context.Context, rt *runtime) error {
				_, err := rt.ctrl.RecoverContext(ctx)
				return err
			})
		},
	}
}
