package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/auditfront/internal/auth"
	"github.com/ashita-ai/auditfront/internal/testutil"
)

// clearEnv keeps the developer's environment out of config.Load.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"AUDITFRONT_BACKEND_URL", "AUDITFRONT_SIMULATE", "AUDITFRONT_SIMULATE_SPEED",
		"AUDITFRONT_SUBMIT_TIMEOUT", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd("test")
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(bytes.NewReader(nil))
	err := cmd.ExecuteContext(testutil.Context(t, testutil.DefaultTimeout))
	return stdout.String(), stderr.String(), err
}

func writeRequestFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.json"), []byte(`{"entity":"acme"}`), 0o600))
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`entity_id: acme-gmbh
mode: structured_document
metrics:
  number_of_employees: 320
  revenue_eur: 48000000
  total_assets_eur: 21500000
  reporting_year: 2025
document: report.json
`), 0o600))
	return path
}

var metricFlags = []string{"--employees", "320", "--revenue", "48000000", "--assets", "21500000", "--year", "2025"}

func TestValidate(t *testing.T) {
	out, _, err := execute(t, "validate", "-f", writeRequestFile(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Request for acme-gmbh is valid (structured_document, full_audit pipeline)")
}

func TestValidate_FlagsOverrideFile(t *testing.T) {
	out, _, err := execute(t, "validate", "-f", writeRequestFile(t), "--entity-id", "other", "--text", "Free text wins.")
	require.NoError(t, err)
	assert.Contains(t, out, "Request for other is valid (free_text, compliance_check pipeline)")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	_, _, err := execute(t, "validate", "--mode", "free_text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity_id is required")
	assert.Contains(t, err.Error(), "free_text is required")
	assert.Contains(t, err.Error(), "number_of_employees must be positive")
}

func TestValidate_TextFlagsAreExclusive(t *testing.T) {
	_, _, err := execute(t, "validate", "--text", "a", "--text-file", "b.txt")
	assert.Error(t, err)
}

func TestRun_Simulated(t *testing.T) {
	clearEnv(t)
	out, _, err := execute(t, "run", "-f", writeRequestFile(t), "--simulate", "--speed", "1000", "--ui", "plain")
	require.NoError(t, err)
	assert.Contains(t, out, "simulated run")
	assert.Contains(t, out, "Result (audit)")
}

func TestRun_LiveBackend(t *testing.T) {
	clearEnv(t)
	fake := testutil.NewBackend(t)

	go func() {
		fake.WaitConnected(t)
		fake.Send(map[string]any{"type": "log", "agent": "extractor", "message": "reading report", "timestamp": "10:00:00"})
		fake.Send(map[string]any{"type": "node_complete", "agent": "extractor"})
		fake.Send(map[string]any{"type": "complete", "compliance_check": map[string]any{"entity_id": "acme-gmbh", "score": 71}})
		fake.Hangup()
	}()

	args := append([]string{"run", "--entity-id", "acme-gmbh", "--text", "Scope 1 reported.",
		"--backend-url", fake.URL, "--ui", "plain"}, metricFlags...)
	out, _, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-1 started")
	assert.Contains(t, out, "reading report")
	assert.Contains(t, out, "Result (compliance_check): score 71")

	subs := fake.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "free_text", subs[0].Fields["mode"])
}

func TestRun_BackendErrorFails(t *testing.T) {
	clearEnv(t)
	fake := testutil.NewBackend(t)

	go func() {
		fake.WaitConnected(t)
		fake.Send(map[string]any{"type": "error", "message": "extraction failed"})
	}()

	args := append([]string{"run", "--entity-id", "acme-gmbh", "--text", "Scope 1 reported.",
		"--backend-url", fake.URL, "--ui", "plain"}, metricFlags...)
	out, _, err := execute(t, args...)
	assert.ErrorIs(t, err, ErrRunIncomplete)
	assert.Contains(t, out, "Run failed: extraction failed")
}

func TestRun_InvalidRequestNeverSubmits(t *testing.T) {
	clearEnv(t)
	fake := testutil.NewBackend(t)
	_, _, err := execute(t, "run", "--backend-url", fake.URL, "--ui", "plain", "--text", "x")
	require.Error(t, err)
	assert.Empty(t, fake.Submissions())
}

func TestRun_BadUIMode(t *testing.T) {
	clearEnv(t)
	_, _, err := execute(t, "run", "-f", writeRequestFile(t), "--simulate", "--ui", "fancy")
	assert.ErrorContains(t, err, "invalid ui mode")
}

func TestKeygen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "session.pem")
	out, _, err := execute(t, "keygen", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)
	assert.FileExists(t, path)

	_, _, err = execute(t, "keygen", "--out", path)
	assert.ErrorIs(t, err, auth.ErrKeyExists)
}
