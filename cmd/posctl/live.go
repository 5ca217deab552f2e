package main

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/san-kum/posctl/internal/config"
	"github.com/san-kum/posctl/internal/experiment"
	"github.com/san-kum/posctl/internal/operator"
	"github.com/san-kum/posctl/internal/telemetry"
	"github.com/san-kum/posctl/internal/tui"
	"github.com/san-kum/posctl/internal/tuning"
)

const inputQueue = 16

// live is the simulated actuator running on the wall clock.
type live struct {
	bench  *experiment.Bench
	table  *telemetry.Table
	server *telemetry.Server
	input  *operator.Input
	logger *zap.SugaredLogger
}

// startLive assembles the bench against the local table, or against a remote
// dashboard when cfg names one. The local server only runs when serve is set
// and there is no remote.
func startLive(cfg *config.Config, serve bool, logger *zap.SugaredLogger) (*live, error) {
	l := &live{input: operator.NewInput(inputQueue), logger: logger}

	var store telemetry.Store
	if cfg.Telemetry.Remote != "" {
		store = telemetry.NewClient(cfg.Telemetry.Remote, cfg.Telemetry.Timeout)
		logger.Infow("using remote dashboard", "url", cfg.Telemetry.Remote)
	} else {
		l.table = telemetry.NewTable()
		store = l.table
	}

	bench, err := experiment.Assemble(cfg, experiment.NewRegistry(), clock.New(), store, logger)
	if err != nil {
		return nil, err
	}
	l.bench = bench

	if serve && l.table != nil && cfg.Telemetry.Listen != "" {
		l.server = telemetry.NewServer(l.table, logger.Named("telemetry"))
		l.server.OnInput = l.input.Press
		go func() {
			if err := l.server.Listen(cfg.Telemetry.Listen); err != nil {
				logger.Errorw("telemetry server stopped", "error", err)
			}
		}()
	}
	return l, nil
}

// run drives the loop until ctx is done.
func (l *live) run(ctx context.Context) error {
	return l.bench.Loop.Run(ctx, l.input.C())
}

func (l *live) close() error {
	if l.server == nil {
		return nil
	}
	return l.server.Shutdown()
}

func (l *live) params() []tuning.Param {
	if l.bench.Gains == nil {
		return nil
	}
	return l.bench.Gains.Params()
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Telemetry.Remote != "" {
		return errors.New("the console needs the local dashboard table; use serve --remote instead")
	}
	logger, logPath, err := fileLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	l, err := startLive(cfg, !noServer, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	loopErr := make(chan error, 1)
	go func() { loopErr <- l.run(ctx) }()

	console := tui.NewConsole(l.table, l.input.Press, cfg.Name, l.params())
	uiErr := tui.Run(console)
	cancel()

	err = multierr.Combine(uiErr, <-loopErr, l.close())
	if l.server != nil {
		fmt.Printf("dashboard was served on %s\n", cfg.Telemetry.Listen)
	}
	fmt.Printf("log: %s\n", logPath)
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	l, err := startLive(cfg, true, logger)
	if err != nil {
		return err
	}
	if enableAtBoot {
		if err := l.input.Send(operator.Events{}.Press(operator.ButtonToggle)); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	var samples uint64
	l.bench.Loop.OnTick = func(s operator.Sample) {
		samples++
		if s.Writes > 0 {
			logger.Debugw("gains updated from dashboard", "writes", s.Writes, "tick", s.Tick)
		}
	}

	logger.Infow("serving", "motor", cfg.Name, "listen", cfg.Telemetry.Listen, "closed_loop", cfg.ClosedLoop)
	err = multierr.Append(l.run(ctx), l.close())
	logger.Infow("stopped", "ticks", samples)
	return err
}
