package runstate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashita-ai/auditfront/internal/backend"
	"github.com/ashita-ai/auditfront/internal/config"
	"github.com/ashita-ai/auditfront/internal/model"
)

// Sink receives the effects of one run. Every call made after the run has
// been torn down is dropped by the machine, so executors may call it from
// any goroutine without coordinating with cancellation.
type Sink interface {
	// Handle records the run identifier once it is known.
	Handle(h model.RunHandle)
	// Event applies one stream event in arrival order.
	Event(ev model.Event)
	// Warn reports a non-fatal problem such as an undecodable event.
	Warn(err error)
	// Fail ends the run with an error and returns the machine to idle.
	Fail(err error)
}

// Executor is one strategy for carrying out a run. Implementations must not
// block in Execute: the work happens in the background and reports through
// the sink. The returned stop function cancels all of it; it may be called
// more than once and from inside a sink call.
type Executor interface {
	// Name identifies the strategy in logs and metrics.
	Name() string
	Execute(ctx context.Context, req model.RunRequest, sink Sink) (stop func())
	// Progress projects the completion ratio of an analyzing run.
	Progress(req model.RunRequest, t Tally) model.Progress
	// SkipResult is the result surfaced when a run is skipped to completion.
	// partial is whatever result has arrived so far, possibly nil.
	SkipResult(req model.RunRequest, hint model.ResultKind, partial *model.RunResult) *model.RunResult
}

// Tally is the raw progress counted for the current run.
type Tally struct {
	Logs            int
	CompletedStages int
	// UnknownStage is set once a completed stage names an agent outside the
	// request's pipeline.
	UnknownStage bool
}

// NewExecutor picks the strategy for cfg: the simulated replay when
// cfg.Simulate is set, the live backend otherwise.
func NewExecutor(cfg config.Config, logger *slog.Logger) (Executor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Simulate {
		return NewSimulatedExecutor(SimulatedConfig{Speed: cfg.SimulateSpeed}), nil
	}
	client, err := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.SubmitTimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("runstate: live executor: %w", err)
	}
	return NewLiveExecutor(client), nil
}
