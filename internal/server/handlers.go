package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/auditfront/internal/ctxutil"
	"github.com/ashita-ai/auditfront/internal/model"
	"github.com/ashita-ai/auditfront/internal/runstate"
	"github.com/ashita-ai/auditfront/internal/session"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	sessions            *session.Registry
	executor            string
	simulated           bool
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Sessions            *session.Registry
	Executor            string
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		sessions:            d.Sessions,
		executor:            d.Executor,
		simulated:           d.Executor == "simulated",
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// machine returns the caller's state machine, writing a 503 when the
// registry has shut down.
func (h *Handlers) machine(w http.ResponseWriter, r *http.Request) *runstate.Machine {
	m := h.sessions.Get(ctxutil.SessionIDFromContext(r.Context()))
	if m == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "server is shutting down")
	}
	return m
}

// HandleStartRun handles POST /v1/run.
func (h *Handlers) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	req, err := parseRunForm(w, r, h.maxRequestBodyBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err := model.ValidateRunRequest(req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeValidation, err.Error())
		return
	}

	m := h.machine(w, r)
	if m == nil {
		return
	}
	switch err := m.Start(req); {
	case errors.Is(err, runstate.ErrRunActive):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "a run is already in progress")
		return
	case errors.Is(err, runstate.ErrClosed):
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "session has ended")
		return
	case err != nil:
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeValidation, err.Error())
		return
	}
	writeJSON(w, r, http.StatusAccepted, m.Snapshot())
}

// HandleSkip handles POST /v1/run/skip.
func (h *Handlers) HandleSkip(w http.ResponseWriter, r *http.Request) {
	var req model.SkipRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid JSON body")
		return
	}
	if req.Variant != "" && !req.Variant.Valid() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("variant must be %q or %q", model.ResultAudit, model.ResultComplianceCheck))
		return
	}

	m := h.machine(w, r)
	if m == nil {
		return
	}
	if !m.SkipToComplete(req.Variant) {
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "no run is in progress")
		return
	}
	writeJSON(w, r, http.StatusOK, m.Snapshot())
}

// HandleReset handles POST /v1/run/reset.
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	m := h.machine(w, r)
	if m == nil {
		return
	}
	m.Reset()
	writeJSON(w, r, http.StatusOK, m.Snapshot())
}

// HandleGetRun handles GET /v1/run.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	m := h.machine(w, r)
	if m == nil {
		return
	}
	writeJSON(w, r, http.StatusOK, m.Snapshot())
}

// HandleConfig handles GET /v1/config.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, model.ConfigResponse{
		Simulated: h.simulated,
		Version:   h.version,
	})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, model.HealthResponse{
		Status:   "healthy",
		Version:  h.version,
		Executor: h.executor,
		Sessions: h.sessions.Len(),
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	})
}

// maxMemoryBytes is how much of a multipart form is held in memory before
// spilling file parts to disk.
const maxMemoryBytes = 1 << 20

// parseRunForm reads the multipart run form. Field names match what the
// analysis backend accepts; the uploaded report travels as "report_json".
func parseRunForm(w http.ResponseWriter, r *http.Request, maxBytes int64) (model.RunRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.RunRequest{}, err
		}
		return model.RunRequest{}, fmt.Errorf("expected a multipart form: %w", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var errs []error
	intField := func(name string) int {
		v := strings.TrimSpace(r.FormValue(name))
		if v == "" {
			return 0
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be an integer", name))
		}
		return n
	}
	floatField := func(name string) float64 {
		v := strings.TrimSpace(r.FormValue(name))
		if v == "" {
			return 0
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be a number", name))
		}
		return f
	}

	req := model.RunRequest{
		EntityID: strings.TrimSpace(r.FormValue("entity_id")),
		Mode:     model.Mode(r.FormValue("mode")),
		FreeText: r.FormValue("free_text"),
		Metrics: model.Metrics{
			Employees:      intField("number_of_employees"),
			RevenueEUR:     floatField("revenue_eur"),
			TotalAssetsEUR: floatField("total_assets_eur"),
			ReportingYear:  intField("reporting_year"),
		},
	}

	file, header, err := r.FormFile("report_json")
	switch {
	case err == nil:
		defer func() { _ = file.Close() }()
		content, err := io.ReadAll(file)
		if err != nil {
			return model.RunRequest{}, fmt.Errorf("read report_json: %w", err)
		}
		req.Document = &model.Document{Filename: header.Filename, Content: content}
	case !errors.Is(err, http.ErrMissingFile):
		errs = append(errs, fmt.Errorf("report_json: %w", err))
	}

	return req, errors.Join(errs...)
}
