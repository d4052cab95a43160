package tui

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/auditfront/internal/model"
	"github.com/ashita-ai/auditfront/internal/runstate"
	"github.com/ashita-ai/auditfront/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freeTextRequest() model.RunRequest {
	return model.RunRequest{
		EntityID: "acme-gmbh",
		Mode:     model.ModeFreeText,
		FreeText: "We publish scope 1 and 2 emissions annually.",
		Metrics:  model.Metrics{Employees: 320, RevenueEUR: 48e6, TotalAssetsEUR: 21.5e6, ReportingYear: 2025},
	}
}

func simulatedMachine(t *testing.T, steps []runstate.ScriptStep) *runstate.Machine {
	t.Helper()
	script := runstate.Script{Steps: steps}
	exec := runstate.NewSimulatedExecutor(runstate.SimulatedConfig{
		Scripts: map[model.Mode]runstate.Script{model.ModeFreeText: script},
	})
	m := runstate.New(exec, runstate.WithLogger(quietLogger()))
	t.Cleanup(m.Close)
	return m
}

func slowSteps() []runstate.ScriptStep {
	return []runstate.ScriptStep{
		{At: 0, Agent: model.AgentExtractor, Message: "Reading input"},
		{At: time.Hour, Agent: model.AgentScorer, Message: "Scoring"},
	}
}

func keyPress(s string) tea.KeyMsg {
	if s == "enter" {
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

// ---- Model ---------------------------------------------------------------

func TestModel_KeysDriveMachine(t *testing.T) {
	machine := simulatedMachine(t, slowSteps())
	changes, cancel := machine.Subscribe()
	defer cancel()

	m := NewModel(machine, changes, freeTextRequest(), Options{NoColor: true})
	m, _ = update(t, m, startMsg{})
	assert.Equal(t, model.StateAnalyzing, machine.Snapshot().State)

	m, _ = update(t, m, changedMsg{})
	assert.Contains(t, m.View(), "Audit analyzing")
	assert.Contains(t, m.View(), "[simulated]")

	m, _ = update(t, m, keyPress("s"))
	m, _ = update(t, m, changedMsg{})
	assert.Equal(t, model.StateComplete, m.Snapshot().State)
	assert.Contains(t, m.View(), "Result (compliance_check)")

	m, _ = update(t, m, keyPress("s"))
	assert.Contains(t, m.View(), "nothing to skip")

	m, _ = update(t, m, keyPress("r"))
	m, _ = update(t, m, changedMsg{})
	assert.Equal(t, model.StateIdle, m.Snapshot().State)

	m, _ = update(t, m, keyPress("enter"))
	assert.Equal(t, model.StateAnalyzing, machine.Snapshot().State, "enter runs the request again")

	_, cmd := update(t, m, keyPress("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_StartErrorIsShown(t *testing.T) {
	machine := simulatedMachine(t, slowSteps())
	changes, cancel := machine.Subscribe()
	defer cancel()

	req := freeTextRequest()
	req.FreeText = ""
	m := NewModel(machine, changes, req, Options{NoColor: true})
	m, _ = update(t, m, startMsg{})
	assert.Contains(t, m.View(), runstate.ErrIncompleteRequest.Error())
}

func TestWaitForChange_QuitsWhenClosed(t *testing.T) {
	ch := make(chan struct{})
	close(ch)
	assert.IsType(t, tea.QuitMsg{}, waitForChange(ch)())
}

// ---- Plain ---------------------------------------------------------------

func TestRunPlain_Completes(t *testing.T) {
	machine := simulatedMachine(t, []runstate.ScriptStep{
		{At: 0, Agent: model.AgentExtractor, Message: "Reading input"},
		{At: 5 * time.Millisecond, Agent: model.AgentScorer, Message: "Scoring"},
	})

	var out bytes.Buffer
	snap, err := RunPlain(testutil.Context(t, testutil.DefaultTimeout), machine, freeTextRequest(), &out)
	require.NoError(t, err)
	assert.Equal(t, model.StateComplete, snap.State)
	assert.Equal(t, 0, ExitCode(snap))

	text := out.String()
	assert.Contains(t, text, "simulated run")
	assert.Contains(t, text, "Reading input")
	assert.Contains(t, text, "Scoring")
	assert.Contains(t, text, "Result (compliance_check)")
	assert.Less(t, strings.Index(text, "Reading input"), strings.Index(text, "Scoring"))
}

// failingExecutor fails every run as soon as it starts.
type failingExecutor struct{}

func (failingExecutor) Name() string { return "live" }
func (failingExecutor) Execute(_ context.Context, _ model.RunRequest, sink runstate.Sink) func() {
	sink.Fail(errors.New("backend unreachable"))
	return nil
}
func (failingExecutor) Progress(model.RunRequest, runstate.Tally) model.Progress {
	return model.Indeterminate
}
func (failingExecutor) SkipResult(_ model.RunRequest, _ model.ResultKind, partial *model.RunResult) *model.RunResult {
	return partial
}

func TestRunPlain_Fails(t *testing.T) {
	machine := runstate.New(failingExecutor{}, runstate.WithLogger(quietLogger()))
	t.Cleanup(machine.Close)

	var out bytes.Buffer
	snap, err := RunPlain(testutil.Context(t, testutil.DefaultTimeout), machine, freeTextRequest(), &out)
	require.NoError(t, err)
	assert.Equal(t, 1, ExitCode(snap))
	assert.Contains(t, out.String(), "Run failed: backend unreachable")
}

func TestRunPlain_CancelResets(t *testing.T) {
	machine := simulatedMachine(t, slowSteps())
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	snap, err := RunPlain(ctx, machine, freeTextRequest(), io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.StateIdle, snap.State)
	assert.Equal(t, 1, ExitCode(snap))
}

func TestRunPlain_RejectsIncompleteRequest(t *testing.T) {
	machine := simulatedMachine(t, slowSteps())
	_, err := RunPlain(context.Background(), machine, model.RunRequest{}, io.Discard)
	assert.ErrorIs(t, err, runstate.ErrIncompleteRequest)
}

// ---- Mode ----------------------------------------------------------------

func TestResolveMode(t *testing.T) {
	orig := isTerminal
	t.Cleanup(func() { isTerminal = orig })

	isTerminal = func(io.Writer) bool { return true }
	d, err := ResolveMode("", nil)
	require.NoError(t, err)
	assert.True(t, d.Live)
	d, _ = ResolveMode("plain", nil)
	assert.False(t, d.Live)

	isTerminal = func(io.Writer) bool { return false }
	d, _ = ResolveMode("auto", nil)
	assert.False(t, d.Live)
	d, _ = ResolveMode("LIVE", nil)
	assert.False(t, d.Live)
	assert.NotEmpty(t, d.Warning)

	_, err = ResolveMode("fancy", nil)
	assert.Error(t, err)
}

// ---- Request files -------------------------------------------------------

func TestLoadRequest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.json"), []byte(`{"entity":"acme"}`), 0o600))
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
entity_id: acme-gmbh
mode: structured_document
metrics:
  number_of_employees: 320
  revenue_eur: 48000000
  total_assets_eur: 21500000
  reporting_year: 2025
document: report.json
`), 0o600))

	req, err := LoadRequest(path)
	require.NoError(t, err)
	assert.Equal(t, "acme-gmbh", req.EntityID)
	assert.Equal(t, model.ModeStructuredDocument, req.Mode)
	assert.Equal(t, 320, req.Metrics.Employees)
	require.NotNil(t, req.Document)
	assert.Equal(t, "report.json", req.Document.Filename)
	assert.JSONEq(t, `{"entity":"acme"}`, string(req.Document.Content))
	assert.NoError(t, req.Validate())
}

func TestLoadRequest_Errors(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("entity_id: x\ncolour: blue\n"), 0o600))
	_, err := LoadRequest(unknown)
	assert.Error(t, err)

	missingDoc := filepath.Join(dir, "missing.yaml")
	require.NoError(t, os.WriteFile(missingDoc, []byte("entity_id: x\ndocument: nope.json\n"), 0o600))
	_, err = LoadRequest(missingDoc)
	assert.ErrorContains(t, err, "read document")

	_, err = LoadRequest(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}
