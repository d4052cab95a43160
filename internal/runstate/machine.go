// Package runstate is the run lifecycle state machine shared by the web and
// terminal front ends.
//
// A Machine owns one run at a time: idle → analyzing → complete, with
// failures returning to idle carrying an error message. The work of a run is
// delegated to an Executor (simulated replay or live backend), and every
// resource a run holds lives in a single cancellation scope that Reset,
// SkipToComplete, Close, terminal events, and the next Start tear down.
package runstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashita-ai/auditfront/internal/model"
)

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithClock overrides the clock used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// Machine is the run state machine. All methods are safe for concurrent use.
type Machine struct {
	exec    Executor
	logger  *slog.Logger
	now     func() time.Time
	metrics *runMetrics
	notify  *notifier

	mu         sync.Mutex
	state      model.State
	req        model.RunRequest
	handle     model.RunHandle
	logs       []model.LogEntry
	tally      Tally
	result     *model.RunResult
	errMsg     string
	startedAt  time.Time
	finishedAt time.Time
	scope      *scope
	closed     bool
}

// New creates an idle machine that runs requests with exec.
func New(exec Executor, opts ...Option) *Machine {
	m := &Machine{
		exec:    exec,
		logger:  slog.Default(),
		now:     time.Now,
		metrics: newRunMetrics(),
		notify:  newNotifier(),
		state:   model.StateIdle,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Simulated reports whether runs are replayed locally.
func (m *Machine) Simulated() bool {
	return m.exec.Name() == "simulated"
}

// Start begins a run. It refuses, without changing anything, when a run is
// already analyzing (ErrRunActive), when req lacks what its mode requires
// (ErrIncompleteRequest), or after Close (ErrClosed). Starting from complete
// discards the previous run.
func (m *Machine) Start(req model.RunRequest) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.state == model.StateAnalyzing:
		m.mu.Unlock()
		return ErrRunActive
	case !req.Complete():
		m.mu.Unlock()
		return ErrIncompleteRequest
	}

	m.teardownLocked()
	m.clearLocked()
	m.state = model.StateAnalyzing
	m.req = req
	m.startedAt = m.now()

	ctx, cancel := context.WithCancel(context.Background())
	s := &scope{cancel: cancel}
	m.scope = s
	m.notify.broadcast()
	m.mu.Unlock()

	m.metrics.runStarted(m.exec.Name())
	m.logger.Info("runstate: run started",
		"executor", m.exec.Name(), "mode", req.Mode, "entity_id", req.EntityID)

	// Execute may call back into the sink synchronously, so it runs unlocked.
	s.attach(m.exec.Execute(ctx, req, &runSink{m: m, scope: s}))
	return nil
}

// SkipToComplete cancels the in-flight run and completes it immediately.
// The result comes from the executor: the canned result when simulated,
// whatever has arrived so far when live. hint selects the canned variant and
// may be empty. It reports whether a run was skipped; outside analyzing it
// does nothing.
func (m *Machine) SkipToComplete(hint model.ResultKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != model.StateAnalyzing {
		return false
	}
	m.teardownLocked()
	m.result = m.exec.SkipResult(m.req, hint, m.result)
	m.finishLocked(model.StateComplete, outcomeSkipped)
	return true
}

// Reset cancels all in-flight work and returns to a clear idle state.
// Resetting a machine that is already clear and idle does nothing.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	wasAnalyzing := m.state == model.StateAnalyzing
	m.teardownLocked()
	if m.state == model.StateIdle && m.isClearLocked() {
		return
	}
	if wasAnalyzing {
		m.metrics.runFinished(m.exec.Name(), outcomeReset, m.elapsedLocked())
	}
	m.clearLocked()
	m.state = model.StateIdle
	m.notify.broadcast()
}

// Close tears the machine down: in-flight work is cancelled, observers are
// released, and later Start calls fail with ErrClosed. A run cut short by
// Close ends in idle with its trace kept, so the final Snapshot never reports
// work that is no longer happening.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.teardownLocked()
	if m.state == model.StateAnalyzing {
		m.metrics.runFinished(m.exec.Name(), outcomeClosed, m.elapsedLocked())
		m.state = model.StateIdle
		m.finishedAt = m.now()
	}
	m.notify.close()
}

// Subscribe returns a channel that signals after every state change, primed
// with one signal. Signals coalesce: read Snapshot on each one. The channel
// is closed by the returned cancel function or by Close.
func (m *Machine) Subscribe() (<-chan struct{}, func()) {
	return m.notify.subscribe()
}

// Snapshot returns a consistent copy of the current state with progress
// projected from it.
func (m *Machine) Snapshot() model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := model.Snapshot{
		State:           m.state,
		RunID:           m.handle,
		Logs:            append([]model.LogEntry{}, m.logs...),
		CompletedStages: m.tally.CompletedStages,
		Mode:            m.req.Mode,
		Error:           m.errMsg,
	}
	if m.result != nil {
		r := *m.result
		snap.Result = &r
	}
	if !m.startedAt.IsZero() {
		t := m.startedAt
		snap.StartedAt = &t
	}
	if !m.finishedAt.IsZero() {
		t := m.finishedAt
		snap.FinishedAt = &t
	}

	switch m.state {
	case model.StateComplete:
		snap.Progress = model.Progress{Ratio: 1, Determinate: true}
	case model.StateAnalyzing:
		snap.Progress = m.exec.Progress(m.req, m.tally)
	default:
		snap.Progress = model.Progress{Determinate: true}
	}
	return snap
}

// apply routes one event of the run owned by s. Events from a scope that is
// no longer current are dropped.
func (m *Machine) apply(s *scope, ev model.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.currentLocked(s) {
		return
	}

	switch e := ev.(type) {
	case model.LogEvent:
		m.logs = append(m.logs, e.Entry)
		m.tally.Logs++
		if !e.Entry.Agent.Known() {
			m.logger.Warn("runstate: log from unknown agent",
				"run_id", m.handle, "agent", e.Entry.Agent)
		}
	case model.NodeCompleteEvent:
		m.tally.CompletedStages++
		if !m.req.Pipeline().Has(e.Agent) {
			m.tally.UnknownStage = true
			m.logger.Warn("runstate: stage outside pipeline",
				"run_id", m.handle, "agent", e.Agent, "pipeline", m.req.Pipeline().Name)
		}
	case model.CompleteEvent:
		r := e.Result
		m.result = &r
		m.teardownLocked()
		m.finishLocked(model.StateComplete, outcomeComplete)
		return
	case model.ErrorEvent:
		m.teardownLocked()
		m.errMsg = e.Message
		m.finishLocked(model.StateIdle, outcomeError)
		return
	default:
		m.logger.Error("runstate: unhandled event type", "type", ev.Type())
		return
	}
	m.notify.broadcast()
}

func (m *Machine) fail(s *scope, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.currentLocked(s) {
		return
	}
	m.teardownLocked()
	m.errMsg = err.Error()
	m.logger.Warn("runstate: run failed", "run_id", m.handle, "error", err)
	m.finishLocked(model.StateIdle, outcomeError)
}

func (m *Machine) setHandle(s *scope, h model.RunHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.currentLocked(s) {
		return
	}
	m.handle = h
	m.notify.broadcast()
}

func (m *Machine) currentLocked(s *scope) bool {
	return m.scope == s && m.state == model.StateAnalyzing
}

// finishLocked ends the current run in state.
func (m *Machine) finishLocked(state model.State, outcome string) {
	m.state = state
	m.finishedAt = m.now()
	m.metrics.runFinished(m.exec.Name(), outcome, m.elapsedLocked())
	m.logger.Info("runstate: run ended", "run_id", m.handle, "outcome", outcome)
	m.notify.broadcast()
}

// teardownLocked cancels the current scope, if any.
func (m *Machine) teardownLocked() {
	if m.scope != nil {
		m.scope.close()
		m.scope = nil
	}
}

func (m *Machine) clearLocked() {
	m.req = model.RunRequest{}
	m.handle = ""
	m.logs = nil
	m.tally = Tally{}
	m.result = nil
	m.errMsg = ""
	m.startedAt = time.Time{}
	m.finishedAt = time.Time{}
}

func (m *Machine) isClearLocked() bool {
	return m.handle == "" && len(m.logs) == 0 && m.tally == (Tally{}) &&
		m.result == nil && m.errMsg == "" && m.startedAt.IsZero()
}

func (m *Machine) elapsedLocked() float64 {
	if m.startedAt.IsZero() {
		return 0
	}
	return float64(m.now().Sub(m.startedAt).Microseconds()) / 1000
}

// scope holds everything one run must release when it ends.
type scope struct {
	cancel context.CancelFunc

	once   sync.Once
	mu     sync.Mutex
	done   bool
	stopFn func()
}

// attach registers the executor's stop function. If the scope has already
// been closed the run is stopped at once.
func (s *scope) attach(stop func()) {
	if stop == nil {
		return
	}
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		stop()
		return
	}
	s.stopFn = stop
	s.mu.Unlock()
}

// close is idempotent.
func (s *scope) close() {
	s.once.Do(func() {
		s.cancel()
		s.mu.Lock()
		s.done = true
		stop := s.stopFn
		s.stopFn = nil
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
	})
}

// runSink binds executor callbacks to the scope of the run they belong to.
type runSink struct {
	m     *Machine
	scope *scope
}

func (r *runSink) Handle(h model.RunHandle) { r.m.setHandle(r.scope, h) }
func (r *runSink) Event(ev model.Event)     { r.m.apply(r.scope, ev) }
func (r *runSink) Fail(err error)           { r.m.fail(r.scope, err) }

func (r *runSink) Warn(err error) {
	r.m.mu.Lock()
	current := r.m.currentLocked(r.scope)
	handle := r.m.handle
	r.m.mu.Unlock()
	if current {
		r.m.logger.Warn("runstate: ignored stream event", "run_id", handle, "error", err)
	}
}
