package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/auditfront/internal/config"
	"github.com/ashita-ai/auditfront/internal/model"
	"github.com/ashita-ai/auditfront/internal/runstate"
	"github.com/ashita-ai/auditfront/internal/telemetry"
	"github.com/ashita-ai/auditfront/internal/tui"
)

// ErrRunIncomplete is returned when the run ended without a result.
var ErrRunIncomplete = errors.New("run did not complete")

type runOptions struct {
	request    requestFlags
	backendURL string
	simulate   bool
	speed      float64
	uiMode     string
	noColor    bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one analysis and show its progress",
		Long: "Run one analysis against the backend (or a local replay) and show the\n" +
			"pipeline trace. In the live UI: s skips to the result, r resets,\n" +
			"enter runs again, q quits.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, &opts)
		},
	}
	opts.request.register(cmd)
	fl := cmd.Flags()
	fl.StringVar(&opts.backendURL, "backend-url", "", "Analysis backend URL (overrides AUDITFRONT_BACKEND_URL)")
	fl.BoolVar(&opts.simulate, "simulate", false, "Replay a canned run instead of calling the backend")
	fl.Float64Var(&opts.speed, "speed", 0, "Replay speed multiplier for --simulate")
	fl.StringVar(&opts.uiMode, "ui", "auto", "Output mode: auto|live|plain")
	fl.BoolVar(&opts.noColor, "no-color", false, "Disable colors in the live UI")
	return cmd
}

func runRun(cmd *cobra.Command, opts *runOptions) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	req, err := opts.request.build(cmd)
	if err != nil {
		return err
	}
	if err := model.ValidateRunRequest(req); err != nil {
		return fmt.Errorf("invalid request:\n%w", err)
	}

	decision, err := tui.ResolveMode(opts.uiMode, stdout)
	if err != nil {
		return err
	}
	if decision.Warning != "" {
		fmt.Fprintln(stderr, decision.Warning)
	}

	// The live UI owns the terminal, so logs are dropped there.
	var logger *slog.Logger
	if decision.Live {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	cfg, err := executorConfig(cmd, opts)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		ServiceName: "auditctl",
		Version:     cmd.Root().Version,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	exec, err := runstate.NewExecutor(cfg, logger)
	if err != nil {
		return err
	}
	machine := runstate.New(exec, runstate.WithLogger(logger))
	defer machine.Close()

	var snap model.Snapshot
	if decision.Live {
		snap, err = tui.RunLive(ctx, machine, req, cmd.InOrStdin(), stdout, tui.Options{NoColor: opts.noColor})
	} else {
		snap, err = tui.RunPlain(ctx, machine, req, stdout)
	}
	if err != nil {
		return err
	}
	if tui.ExitCode(snap) != 0 {
		return ErrRunIncomplete
	}
	return nil
}

// executorConfig layers the executor flags over the environment.
func executorConfig(cmd *cobra.Command, opts *runOptions) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	changed := cmd.Flags().Changed
	if changed("backend-url") {
		cfg.BackendURL = opts.backendURL
		cfg.Simulate = false
	}
	if changed("simulate") {
		cfg.Simulate = opts.simulate
	}
	if changed("speed") {
		cfg.SimulateSpeed = opts.speed
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
