// Package model defines the core domain types for auditfront.
//
// Types mirror the analysis backend's wire protocol (run submission fields and
// the server-sent event kinds) plus the UI-facing lifecycle state derived from it.
package model

import (
	"encoding/json"
	"errors"
	"time"
)

// State is the lifecycle state of the run state machine.
// An error is an annotation attached while returning to StateIdle, not a state.
type State string

const (
	StateIdle      State = "idle"
	StateAnalyzing State = "analyzing"
	StateComplete  State = "complete"
)

// RunHandle is the opaque run identifier returned by the backend.
type RunHandle string

// Agent names a stage of the external analysis pipeline.
type Agent string

const (
	AgentExtractor Agent = "extractor"
	AgentScorer    Agent = "scorer"
	AgentAuditor   Agent = "auditor"
	AgentAdvisor   Agent = "advisor"
)

// Known reports whether a is one of the pipeline agents above.
func (a Agent) Known() bool {
	switch a {
	case AgentExtractor, AgentScorer, AgentAuditor, AgentAdvisor:
		return true
	}
	return false
}

// Pipeline is one backend variant: a name and its ordered stages.
type Pipeline struct {
	Name   string
	Agents []Agent
}

// Stages returns the canonical stage count of the pipeline.
// Zero means the stage count is unknown.
func (p Pipeline) Stages() int {
	return len(p.Agents)
}

// Has reports whether agent is one of the pipeline's stages.
func (p Pipeline) Has(agent Agent) bool {
	for _, a := range p.Agents {
		if a == agent {
			return true
		}
	}
	return false
}

var (
	// FullAuditPipeline handles structured documents: extract, score, audit, recommend.
	FullAuditPipeline = Pipeline{
		Name:   "full_audit",
		Agents: []Agent{AgentExtractor, AgentScorer, AgentAuditor, AgentAdvisor},
	}
	// ComplianceCheckPipeline handles free text and skips the audit stage.
	ComplianceCheckPipeline = Pipeline{
		Name:   "compliance_check",
		Agents: []Agent{AgentExtractor, AgentScorer, AgentAdvisor},
	}
)

// PipelineFor returns the pipeline variant for a mode. Unknown modes get a
// pipeline with no stages, which callers treat as an unknown total.
func PipelineFor(mode Mode) Pipeline {
	switch mode {
	case ModeStructuredDocument:
		return FullAuditPipeline
	case ModeFreeText:
		return ComplianceCheckPipeline
	default:
		return Pipeline{Name: "unknown"}
	}
}

// LogEntry is one line of the visible pipeline trace.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Agent     Agent  `json:"agent"`
	Message   string `json:"message"`
}

// Progress is a derived completion ratio. When Determinate is false the total
// is unknown and Ratio carries no meaning.
type Progress struct {
	Ratio       float64 `json:"ratio"`
	Determinate bool    `json:"determinate"`
}

// Indeterminate is the progress value reported when the total is unknown.
var Indeterminate = Progress{}

// ResultKind discriminates the two report shapes the backend produces.
type ResultKind string

const (
	ResultAudit           ResultKind = "audit"
	ResultComplianceCheck ResultKind = "compliance_check"
)

// Valid reports whether k is a known result kind.
func (k ResultKind) Valid() bool {
	return k == ResultAudit || k == ResultComplianceCheck
}

// ResultKindFor returns the report shape a mode produces.
func ResultKindFor(mode Mode) ResultKind {
	if mode == ModeFreeText {
		return ResultComplianceCheck
	}
	return ResultAudit
}

// Recommendation is one suggested remediation in a report.
type Recommendation struct {
	Title    string `json:"title"`
	Priority string `json:"priority"`
	Detail   string `json:"detail,omitempty"`
}

// Report holds the fields of a backend report the front ends render directly.
// Raw keeps the original payload so nothing the backend sent is lost.
type Report struct {
	EntityID        string           `json:"entity_id"`
	Score           float64          `json:"score"`
	Summary         string           `json:"summary"`
	Recommendations []Recommendation `json:"recommendations"`
	Raw             json.RawMessage  `json:"-"`
}

type reportFields Report

// UnmarshalJSON decodes the known fields and retains the raw payload.
func (r *Report) UnmarshalJSON(data []byte) error {
	var f reportFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Report(f)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the raw payload when present.
func (r Report) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	return json.Marshal(reportFields(r))
}

// RunResult is the terminal payload of a run: exactly one report variant.
type RunResult struct {
	Kind  ResultKind `json:"kind"`
	Audit *Report    `json:"audit,omitempty"`
	Check *Report    `json:"compliance_check,omitempty"`
}

// Report returns whichever variant is populated.
func (r *RunResult) Report() *Report {
	if r == nil {
		return nil
	}
	if r.Audit != nil {
		return r.Audit
	}
	return r.Check
}

// Validate checks that exactly one variant is set and matches Kind.
func (r *RunResult) Validate() error {
	switch {
	case r == nil:
		return errors.New("result is missing")
	case r.Audit != nil && r.Check != nil:
		return errors.New("result carries both audit and compliance_check")
	case r.Audit != nil && r.Kind != ResultAudit:
		return errors.New("audit result with mismatched kind")
	case r.Check != nil && r.Kind != ResultComplianceCheck:
		return errors.New("compliance_check result with mismatched kind")
	case r.Audit == nil && r.Check == nil:
		return errors.New("result carries neither audit nor compliance_check")
	}
	return nil
}

// Snapshot is a consistent, copy-on-read view of the run state machine.
type Snapshot struct {
	State           State      `json:"state"`
	RunID           RunHandle  `json:"run_id,omitempty"`
	Mode            Mode       `json:"mode,omitempty"`
	Logs            []LogEntry `json:"logs"`
	CompletedStages int        `json:"completed_stages"`
	Progress        Progress   `json:"progress"`
	Result          *RunResult `json:"result"`
	Error           string     `json:"error,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}
