package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/auditfront/internal/model"
	"github.com/ashita-ai/auditfront/internal/tui"
)

// requestFlags are the run request fields settable on the command line.
// Flags that are set override the request file.
type requestFlags struct {
	file      string
	entityID  string
	mode      string
	employees int
	revenue   float64
	assets    float64
	year      int
	document  string
	text      string
	textFile  string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.file, "request", "f", "", "YAML run request file")
	fl.StringVar(&f.entityID, "entity-id", "", "Entity under audit")
	fl.StringVar(&f.mode, "mode", "", "structured_document or free_text (inferred from --document/--text when omitted)")
	fl.IntVar(&f.employees, "employees", 0, "Number of employees")
	fl.Float64Var(&f.revenue, "revenue", 0, "Revenue in EUR")
	fl.Float64Var(&f.assets, "assets", 0, "Total assets in EUR")
	fl.IntVar(&f.year, "year", 0, "Reporting year")
	fl.StringVar(&f.document, "document", "", "Structured report (JSON) to upload")
	fl.StringVar(&f.text, "text", "", "Free text to analyze")
	fl.StringVar(&f.textFile, "text-file", "", "Read the free text from a file")
	cmd.MarkFlagsMutuallyExclusive("text", "text-file")
}

// build assembles the request from the file, then the flags that were set.
func (f *requestFlags) build(cmd *cobra.Command) (model.RunRequest, error) {
	var req model.RunRequest
	if f.file != "" {
		loaded, err := tui.LoadRequest(f.file)
		if err != nil {
			return model.RunRequest{}, err
		}
		req = loaded
	}

	changed := cmd.Flags().Changed
	if changed("entity-id") {
		req.EntityID = f.entityID
	}
	if changed("employees") {
		req.Metrics.Employees = f.employees
	}
	if changed("revenue") {
		req.Metrics.RevenueEUR = f.revenue
	}
	if changed("assets") {
		req.Metrics.TotalAssetsEUR = f.assets
	}
	if changed("year") {
		req.Metrics.ReportingYear = f.year
	}
	if changed("document") {
		doc, err := tui.LoadDocument(f.document)
		if err != nil {
			return model.RunRequest{}, err
		}
		req.Document = doc
		req.FreeText = ""
		req.Mode = model.ModeStructuredDocument
	}
	if changed("text-file") {
		data, err := os.ReadFile(f.textFile)
		if err != nil {
			return model.RunRequest{}, fmt.Errorf("read text file: %w", err)
		}
		f.text = string(data)
	}
	if changed("text") || changed("text-file") {
		req.FreeText = f.text
		req.Document = nil
		req.Mode = model.ModeFreeText
	}
	if changed("mode") {
		req.Mode = model.Mode(f.mode)
	}
	return req, nil
}
