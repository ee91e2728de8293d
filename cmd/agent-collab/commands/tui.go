package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kingrea/agent-collab/internal/artifact"
	"github.com/kingrea/agent-collab/internal/logging"
	"github.com/kingrea/agent-collab/internal/tui"
)

var errNoTerminal = errors.New("the interactive UI needs a terminal; run a subcommand instead (see --help)")

func runTUI(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errNoTerminal
	}
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.InitWorkdir(); err != nil {
		return err
	}

	// Diagnostics go to a file so they do not draw over the screen.
	fileLog, err := logging.New(cfg.LogsDir(), logging.ParseLevel(os.Getenv("LOG_LEVEL"), verbose))
	if err != nil {
		return err
	}
	defer fileLog.Close()
	logger := fileLog.Zerolog()

	bridge := tui.NewBridge(tui.DefaultBridgeBuffer)
	defer bridge.Close()

	rt, err := openRuntime(ctx, cfg, logger, bridge)
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.book.SessionOpened(rt.ctrl.Phase().Key())

	opts := []tui.AppOption{tui.WithLogbook(rt.book), tui.WithContext(ctx)}
	if watcher, err := startWatcher(ctx, rt.ctrl.Artifacts(), logger); err != nil {
		logger.Warn().Err(err).Msg("document watcher unavailable")
	} else {
		defer watcher.Stop()
		opts = append(opts, tui.WithArtifactEvents(watcher.Events()))
	}

	app, err := tui.NewApp(rt.ctrl, bridge, opts...)
	if err != nil {
		return err
	}
	program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}

// startWatcher returns a running document watcher, or releases it when it
// cannot start.
func startWatcher(ctx context.Context, store *artifact.Store, logger zerolog.Logger) (*artifact.Watcher, error) {
	watcher, err := artifact.NewWatcher(store, artifact.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := watcher.Start(ctx); err != nil {
		_ = watcher.Stop()
		return nil, err
	}
	return watcher, nil
}
