package model_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/auditfront/internal/model"
)

func freeTextRequest() model.RunRequest {
	return model.RunRequest{
		EntityID: "acme-gmbh",
		Mode:     model.ModeFreeText,
		Metrics: model.Metrics{
			Employees:      320,
			RevenueEUR:     48_000_000,
			TotalAssetsEUR: 21_500_000,
			ReportingYear:  2025,
		},
		FreeText: "We publish scope 1 and 2 emissions annually.",
	}
}

func documentRequest() model.RunRequest {
	r := freeTextRequest()
	r.Mode = model.ModeStructuredDocument
	r.FreeText = ""
	r.Document = &model.Document{Filename: "report.json", Content: []byte(`{"esrs":{}}`)}
	return r
}

// ---- RunRequest.Validate -------------------------------------------------

func TestValidate_HappyPaths(t *testing.T) {
	assert.NoError(t, freeTextRequest().Validate())
	assert.NoError(t, documentRequest().Validate())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	r := model.RunRequest{Mode: model.ModeFreeText}
	err := r.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"entity_id is required",
		"free_text is required",
		"number_of_employees must be positive",
		"revenue_eur must be positive",
		"total_assets_eur must be positive",
		"reporting_year must be 2024 or later",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_ModeSelectsExactlyOnePayload(t *testing.T) {
	r := documentRequest()
	r.FreeText = "stray text"
	assert.ErrorContains(t, r.Validate(), "free_text must be empty")

	r = freeTextRequest()
	r.Document = &model.Document{Filename: "x.json", Content: []byte("{}")}
	assert.ErrorContains(t, r.Validate(), "report_json must be absent")
}

func TestValidate_UnknownMode(t *testing.T) {
	r := freeTextRequest()
	r.Mode = "pdf"
	assert.ErrorContains(t, r.Validate(), `got "pdf"`)
}

func TestValidateRunRequest_LengthLimits(t *testing.T) {
	r := freeTextRequest()
	r.EntityID = strings.Repeat("x", model.MaxEntityIDLen+1)
	assert.ErrorContains(t, model.ValidateRunRequest(r), "entity_id exceeds")

	r = freeTextRequest()
	r.FreeText = strings.Repeat("x", model.MaxFreeTextLen+1)
	assert.ErrorContains(t, model.ValidateRunRequest(r), "free_text exceeds")
}

// ---- RunRequest.Complete -------------------------------------------------

func TestComplete(t *testing.T) {
	assert.True(t, freeTextRequest().Complete())
	assert.True(t, documentRequest().Complete())

	r := freeTextRequest()
	r.EntityID = "   "
	assert.False(t, r.Complete())

	r = documentRequest()
	r.Document = &model.Document{Filename: "empty.json"}
	assert.False(t, r.Complete())

	assert.False(t, model.RunRequest{EntityID: "x"}.Complete())
}

// ---- Pipelines -----------------------------------------------------------

func TestPipelineFor(t *testing.T) {
	assert.Equal(t, 4, model.PipelineFor(model.ModeStructuredDocument).Stages())
	assert.Equal(t, 3, model.PipelineFor(model.ModeFreeText).Stages())
	assert.Equal(t, 0, model.PipelineFor("other").Stages())

	assert.True(t, model.FullAuditPipeline.Has(model.AgentAuditor))
	assert.False(t, model.ComplianceCheckPipeline.Has(model.AgentAuditor))
}

// ---- RunResult -----------------------------------------------------------

func TestRunResultValidate(t *testing.T) {
	report := &model.Report{EntityID: "acme"}

	assert.NoError(t, (&model.RunResult{Kind: model.ResultAudit, Audit: report}).Validate())
	assert.NoError(t, (&model.RunResult{Kind: model.ResultComplianceCheck, Check: report}).Validate())

	assert.Error(t, (*model.RunResult)(nil).Validate())
	assert.Error(t, (&model.RunResult{Kind: model.ResultAudit}).Validate())
	assert.Error(t, (&model.RunResult{Kind: model.ResultAudit, Audit: report, Check: report}).Validate())
	assert.Error(t, (&model.RunResult{Kind: model.ResultComplianceCheck, Audit: report}).Validate())
}

func TestReportKeepsRawPayload(t *testing.T) {
	payload := `{"entity_id":"acme","score":71.5,"summary":"ok","recommendations":[],"double_materiality":{"topics":3}}`

	var r model.Report
	require.NoError(t, json.Unmarshal([]byte(payload), &r))
	assert.Equal(t, "acme", r.EntityID)
	assert.InDelta(t, 71.5, r.Score, 0.001)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(out), "unknown backend fields must survive a round trip")
}
