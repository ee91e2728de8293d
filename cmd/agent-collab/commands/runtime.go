package commands

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/kingrea/agent-collab/internal/config"
	"github.com/kingrea/agent-collab/internal/history"
	"github.com/kingrea/agent-collab/internal/logbook"
	"github.com/kingrea/agent-collab/internal/monitor"
	"github.com/kingrea/agent-collab/internal/workflow/engine"
)

// runtime bundles the controller with the services every workflow command
// shares: journey log, exchange history, metrics and the optional monitor.
type runtime struct {
	cfg     *config.Config
	ctrl    *engine.Controller
	book    *logbook.Logbook
	history *history.Store
	monitor *monitor.Server
	logger  zerolog.Logger
}

func openRuntime(ctx context.Context, cfg *config.Config, logger zerolog.Logger, listeners ...engine.Listener) (*runtime, error) {
	if err := cfg.InitWorkdir(); err != nil {
		return nil, err
	}
	book, err := logbook.New(cfg.LogPath())
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, book: book, logger: logger}

	store, err := history.Open(ctx, cfg.HistoryPath())
	if err != nil {
		logger.Warn().Err(err).Msg("exchange history unavailable")
	} else {
		rt.history = store
	}

	metrics := engine.NewMetrics()
	settings := monitor.SettingsFromConfig(cfg)
	hub := monitor.NewHub(settings.Backlog, &logger)

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithLogbook(book),
		engine.WithMetrics(metrics),
		engine.WithListeners(listeners...),
		engine.WithListeners(hub),
	}
	if rt.history != nil {
		opts = append(opts, engine.WithRecorder(rt.history))
	}
	ctrl, err := engine.New(cfg, opts...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.ctrl = ctrl

	rt.monitor = monitor.NewServer(settings,
		monitor.WithStatus(ctrl),
		monitor.WithHub(hub),
		monitor.WithMetricsHandler(metrics.Handler()),
		monitor.WithLogger(&logger),
	)
	if err := rt.monitor.Start(ctx); err != nil && !errors.Is(err, monitor.ErrDisabled) {
		logger.Warn().Err(err).Msg("monitor server not started")
	} else if err == nil {
		logger.Info().Str("url", rt.monitor.BaseURL()).Msg("monitor listening")
	}
	return rt, nil
}

// Close stops the monitor and closes the history database.
func (rt *runtime) Close() {
	if rt == nil {
		return
	}
	if rt.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = rt.monitor.Shutdown(ctx)
		cancel()
	}
	if rt.history != nil {
		if err := rt.history.Close(); err != nil {
			rt.logger.Warn().Err(err).Msg("close history")
		}
	}
}
