package runstate

import (
	"context"
	"sync"

	"github.com/ashita-ai/auditfront/internal/backend"
	"github.com/ashita-ai/auditfront/internal/model"
)

// Backend is the part of the analysis backend client the live executor uses.
// *backend.Client implements it.
type Backend interface {
	Submit(ctx context.Context, req model.RunRequest) (model.RunHandle, error)
	Open(ctx context.Context, handle model.RunHandle, onEvent func(model.Event), onError func(error)) func()
}

// LiveExecutor submits the run to the analysis backend and relays its
// event stream.
type LiveExecutor struct {
	backend Backend
}

// NewLiveExecutor creates the executor for a configured backend.
func NewLiveExecutor(b Backend) *LiveExecutor {
	return &LiveExecutor{backend: b}
}

func (e *LiveExecutor) Name() string { return "live" }

func (e *LiveExecutor) Execute(ctx context.Context, req model.RunRequest, sink Sink) func() {
	ctx, cancel := context.WithCancel(ctx)

	var (
		mu          sync.Mutex
		stopped     bool
		closeStream func()
	)

	go func() {
		handle, err := e.backend.Submit(ctx, req)
		if err != nil {
			if ctx.Err() == nil {
				sink.Fail(err)
			}
			return
		}
		sink.Handle(handle)

		onError := func(err error) {
			if backend.IsDecodeError(err) {
				sink.Warn(err)
				return
			}
			sink.Fail(err)
		}
		closeFn := e.backend.Open(ctx, handle, sink.Event, onError)

		mu.Lock()
		defer mu.Unlock()
		if stopped {
			closeFn()
			return
		}
		closeStream = closeFn
	}()

	return func() {
		mu.Lock()
		stopped = true
		c := closeStream
		mu.Unlock()

		cancel()
		if c != nil {
			c()
		}
	}
}

func (e *LiveExecutor) Progress(req model.RunRequest, t Tally) model.Progress {
	return StageProgress(req.Pipeline(), t)
}

// SkipResult keeps whatever arrived from the backend. A live skip is a
// degraded completion and may carry no result at all.
func (e *LiveExecutor) SkipResult(_ model.RunRequest, _ model.ResultKind, partial *model.RunResult) *model.RunResult {
	return partial
}
