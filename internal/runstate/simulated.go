package runstate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/auditfront/internal/model"
	"github.com/ashita-ai/auditfront/internal/schedule"
)

// ScriptStep is one pre-recorded log line, emitted At after run start.
type ScriptStep struct {
	At      time.Duration
	Agent   model.Agent
	Message string
}

// Script is a fixed replay: its steps, then the canned result after the
// last step plus TrailingPause.
type Script struct {
	Steps         []ScriptStep
	TrailingPause time.Duration
}

// Duration is the time from run start to completion at normal speed.
func (s Script) Duration() time.Duration {
	var last time.Duration
	for _, st := range s.Steps {
		last = max(last, st.At)
	}
	return last + s.TrailingPause
}

// SimulatedConfig configures the offline replay.
type SimulatedConfig struct {
	// Speed scales every delay; 2 replays twice as fast. Defaults to 1.
	Speed float64
	// Scripts overrides the replay per mode. Modes without an entry use
	// DefaultScript.
	Scripts map[model.Mode]Script
	// Now stamps log entries. Defaults to time.Now.
	Now func() time.Time
}

// SimulatedExecutor replays a fixed script on timers instead of calling
// the analysis backend.
type SimulatedExecutor struct {
	speed   float64
	scripts map[model.Mode]Script
	now     func() time.Time
}

// NewSimulatedExecutor creates the offline executor.
func NewSimulatedExecutor(cfg SimulatedConfig) *SimulatedExecutor {
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SimulatedExecutor{speed: cfg.Speed, scripts: cfg.Scripts, now: cfg.Now}
}

func (e *SimulatedExecutor) Name() string { return "simulated" }

// Script returns the replay used for mode.
func (e *SimulatedExecutor) Script(mode model.Mode) Script {
	if s, ok := e.scripts[mode]; ok {
		return s
	}
	return DefaultScript(mode)
}

func (e *SimulatedExecutor) Execute(_ context.Context, req model.RunRequest, sink Sink) func() {
	sink.Handle(model.RunHandle("sim-" + uuid.NewString()))

	script := e.Script(req.Mode)
	var b schedule.Batch
	var last time.Duration
	for _, step := range script.Steps {
		at := e.scale(step.At)
		last = max(last, at)
		b.Schedule(at, func() {
			sink.Event(model.LogEvent{Entry: model.LogEntry{
				Timestamp: e.now().Format("15:04:05"),
				Agent:     step.Agent,
				Message:   step.Message,
			}})
		})
	}
	kind := model.ResultKindFor(req.Mode)
	b.Schedule(last+e.scale(script.TrailingPause), func() {
		sink.Event(model.CompleteEvent{Result: *CannedResult(kind)})
	})
	b.Start()
	return b.CancelAll
}

func (e *SimulatedExecutor) Progress(req model.RunRequest, t Tally) model.Progress {
	return RatioProgress(t.Logs, len(e.Script(req.Mode).Steps))
}

// SkipResult always supplies the full canned result: the hinted variant,
// or the one the request's mode produces.
func (e *SimulatedExecutor) SkipResult(req model.RunRequest, hint model.ResultKind, _ *model.RunResult) *model.RunResult {
	if !hint.Valid() {
		hint = model.ResultKindFor(req.Mode)
	}
	return CannedResult(hint)
}

func (e *SimulatedExecutor) scale(d time.Duration) time.Duration {
	return time.Duration(float64(d) / e.speed)
}

// DefaultScript is the built-in replay for a mode. Free text skips the
// auditor, like the compliance-check pipeline does.
func DefaultScript(mode model.Mode) Script {
	if mode == model.ModeFreeText {
		return Script{
			Steps: []ScriptStep{
				{At: 0, Agent: model.AgentExtractor, Message: "Reading free-text description"},
				{At: 900 * time.Millisecond, Agent: model.AgentExtractor, Message: "Identified 6 candidate ESRS disclosures"},
				{At: 1800 * time.Millisecond, Agent: model.AgentScorer, Message: "Checking CSRD applicability thresholds"},
				{At: 2700 * time.Millisecond, Agent: model.AgentScorer, Message: "Coverage estimated at 41% of mandatory datapoints"},
				{At: 3600 * time.Millisecond, Agent: model.AgentAdvisor, Message: "Drafting priority recommendations"},
				{At: 4500 * time.Millisecond, Agent: model.AgentAdvisor, Message: "Compliance check ready"},
			},
			TrailingPause: 600 * time.Millisecond,
		}
	}
	return Script{
		Steps: []ScriptStep{
			{At: 0, Agent: model.AgentExtractor, Message: "Parsing structured report"},
			{At: 800 * time.Millisecond, Agent: model.AgentExtractor, Message: "Extracted 214 datapoints across ESRS E1, S1 and G1"},
			{At: 1600 * time.Millisecond, Agent: model.AgentScorer, Message: "Scoring disclosure completeness"},
			{At: 2400 * time.Millisecond, Agent: model.AgentScorer, Message: "E1 climate disclosures at 78% completeness"},
			{At: 3200 * time.Millisecond, Agent: model.AgentAuditor, Message: "Cross-checking figures against double materiality assessment"},
			{At: 4000 * time.Millisecond, Agent: model.AgentAuditor, Message: "Flagged 3 inconsistencies in scope 3 reporting"},
			{At: 4800 * time.Millisecond, Agent: model.AgentAdvisor, Message: "Generating remediation plan"},
			{At: 5600 * time.Millisecond, Agent: model.AgentAdvisor, Message: "Audit complete"},
		},
		TrailingPause: 600 * time.Millisecond,
	}
}

// CannedResult returns a fresh copy of the fixed result for kind.
func CannedResult(kind model.ResultKind) *model.RunResult {
	if kind == model.ResultComplianceCheck {
		return &model.RunResult{Kind: model.ResultComplianceCheck, Check: &model.Report{
			EntityID: "demo-entity",
			Score:    41,
			Summary:  "Partial coverage of mandatory ESRS datapoints; climate and workforce disclosures need work before the first reporting cycle.",
			Recommendations: []model.Recommendation{
				{Title: "Publish a transition plan under ESRS E1", Priority: "high"},
				{Title: "Start a double materiality assessment", Priority: "high"},
				{Title: "Collect own-workforce metrics for ESRS S1", Priority: "medium"},
			},
		}}
	}
	return &model.RunResult{Kind: model.ResultAudit, Audit: &model.Report{
		EntityID: "demo-entity",
		Score:    72.5,
		Summary:  "Report is broadly aligned with ESRS; scope 3 emissions and governance metrics need correction.",
		Recommendations: []model.Recommendation{
			{Title: "Reconcile scope 3 category totals", Priority: "high", Detail: "Categories 1 and 11 do not sum to the reported total."},
			{Title: "Disclose board sustainability expertise (G1)", Priority: "medium"},
			{Title: "Add interim targets to the E1 transition plan", Priority: "low"},
		},
	}}
}
