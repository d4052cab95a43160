package model

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects which payload a run request carries.
type Mode string

const (
	ModeStructuredDocument Mode = "structured_document"
	ModeFreeText           Mode = "free_text"
)

// Valid reports whether m is one of the known analysis modes.
func (m Mode) Valid() bool {
	return m == ModeStructuredDocument || m == ModeFreeText
}

// MinReportingYear is the earliest reporting year the backend accepts.
const MinReportingYear = 2024

// Metrics are the company size figures sent with every run.
type Metrics struct {
	Employees      int     `json:"number_of_employees" yaml:"number_of_employees"`
	RevenueEUR     float64 `json:"revenue_eur" yaml:"revenue_eur"`
	TotalAssetsEUR float64 `json:"total_assets_eur" yaml:"total_assets_eur"`
	ReportingYear  int     `json:"reporting_year" yaml:"reporting_year"`
}

// Document is a structured report uploaded for extraction.
type Document struct {
	Filename string `json:"filename"`
	Content  []byte `json:"-"`
}

// RunRequest is everything the backend needs to start one analysis run.
// Mode decides which of Document and FreeText is populated; the other is empty.
type RunRequest struct {
	EntityID string    `json:"entity_id" yaml:"entity_id"`
	Mode     Mode      `json:"mode" yaml:"mode"`
	Metrics  Metrics   `json:"metrics" yaml:"metrics"`
	Document *Document `json:"document,omitempty" yaml:"-"`
	FreeText string    `json:"free_text,omitempty" yaml:"free_text,omitempty"`
}

// Complete is the cheap gate the state machine applies before starting a run:
// an entity id, a known mode, and the payload that mode requires.
func (r RunRequest) Complete() bool {
	if strings.TrimSpace(r.EntityID) == "" {
		return false
	}
	switch r.Mode {
	case ModeStructuredDocument:
		return r.Document != nil && len(r.Document.Content) > 0
	case ModeFreeText:
		return strings.TrimSpace(r.FreeText) != ""
	default:
		return false
	}
}

// Validate performs the full caller-side validation of a run request.
// All problems are reported together so a form can highlight every field.
func (r RunRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.EntityID) == "" {
		errs = append(errs, errors.New("entity_id is required"))
	}
	switch r.Mode {
	case ModeStructuredDocument:
		if r.Document == nil || len(r.Document.Content) == 0 {
			errs = append(errs, errors.New("report_json is required for structured_document mode"))
		}
		if r.FreeText != "" {
			errs = append(errs, errors.New("free_text must be empty for structured_document mode"))
		}
	case ModeFreeText:
		if strings.TrimSpace(r.FreeText) == "" {
			errs = append(errs, errors.New("free_text is required for free_text mode"))
		}
		if r.Document != nil {
			errs = append(errs, errors.New("report_json must be absent for free_text mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("mode must be %q or %q (got %q)", ModeStructuredDocument, ModeFreeText, r.Mode))
	}
	if r.Metrics.Employees <= 0 {
		errs = append(errs, errors.New("number_of_employees must be positive"))
	}
	if r.Metrics.RevenueEUR <= 0 {
		errs = append(errs, errors.New("revenue_eur must be positive"))
	}
	if r.Metrics.TotalAssetsEUR <= 0 {
		errs = append(errs, errors.New("total_assets_eur must be positive"))
	}
	if r.Metrics.ReportingYear < MinReportingYear {
		errs = append(errs, fmt.Errorf("reporting_year must be %d or later", MinReportingYear))
	}
	return errors.Join(errs...)
}

// Pipeline returns the backend pipeline variant this request runs through.
func (r RunRequest) Pipeline() Pipeline {
	return PipelineFor(r.Mode)
}
