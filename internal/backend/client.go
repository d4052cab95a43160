// Package backend is the client for the external compliance analysis backend.
//
// It covers the two calls the front end makes: submitting a run
// (POST /audit/run) and consuming the run's server-sent event stream
// (GET /audit/{id}/stream). Neither call retries; a single attempt is made.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/auditfront/internal/model"
	"github.com/ashita-ai/auditfront/internal/telemetry"
)

// maxErrorBody bounds how much of a rejected response is kept for the error.
const maxErrorBody = 64 * 1024

// maxSubmitResponse bounds an accepted submit response. Backends may echo
// the request back next to the run id.
const maxSubmitResponse = 4 << 20

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the analysis backend (e.g. "http://localhost:8000").
	BaseURL string

	// HTTPClient is used for run submission. If nil, a client with Timeout is used.
	HTTPClient *http.Client

	// StreamClient is used for the long-lived event stream. It must not carry an
	// overall timeout. If nil, a client without timeout is used.
	StreamClient *http.Client

	// Timeout applies to run submission. Defaults to 30 seconds.
	Timeout time.Duration

	Logger *slog.Logger
}

// Client talks to the analysis backend. It holds no per-run state and all
// methods are safe for concurrent use.
type Client struct {
	baseURL string
	submit  *http.Client
	stream  *http.Client
	logger  *slog.Logger

	eventCounter  otelmetric.Int64Counter
	decodeCounter otelmetric.Int64Counter
}

var tracer = otel.Tracer("auditfront/backend")

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty or not an absolute http(s) URL.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend: BaseURL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("backend: parse BaseURL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend: BaseURL must use http or https (got %q)", u.Scheme)
	}

	submit := cfg.HTTPClient
	if submit == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		submit = &http.Client{Timeout: timeout}
	}
	stream := cfg.StreamClient
	if stream == nil {
		stream = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	meter := telemetry.Meter("auditfront/backend")
	eventCounter, _ := meter.Int64Counter("auditfront.stream.events",
		otelmetric.WithDescription("Stream events decoded, by kind"))
	decodeCounter, _ := meter.Int64Counter("auditfront.stream.decode_errors",
		otelmetric.WithDescription("Stream messages that failed to decode"))

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		submit:        submit,
		stream:        stream,
		logger:        logger,
		eventCounter:  eventCounter,
		decodeCounter: decodeCounter,
	}, nil
}

// submitResponse accepts both the current and the historical id field.
type submitResponse struct {
	AuditID string `json:"audit_id"`
	RunID   string `json:"run_id"`
}

// Submit starts a run and returns its handle. Non-2xx responses fail with
// *SubmissionError; transport failures fail with *NetworkError.
func (c *Client) Submit(ctx context.Context, req model.RunRequest) (model.RunHandle, error) {
	if strings.TrimSpace(req.EntityID) == "" {
		return "", errors.New("backend: entity id is required")
	}

	ctx, span := tracer.Start(ctx, "backend.submit", trace.WithAttributes(
		attribute.String("auditfront.entity_id", req.EntityID),
		attribute.String("auditfront.mode", string(req.Mode)),
	))
	defer span.End()

	body, contentType, err := encodeRunRequest(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode")
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audit/run", body)
	if err != nil {
		return "", fmt.Errorf("backend: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.submit.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return "", &NetworkError{Op: "submit run", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	accepted := resp.StatusCode >= 200 && resp.StatusCode <= 299
	limit := int64(maxErrorBody)
	if accepted {
		limit = maxSubmitResponse
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", &NetworkError{Op: "read submit response", Cause: err}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if !accepted {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var sr submitResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: errorBody(respBody)}
	}
	id := sr.AuditID
	if id == "" {
		id = sr.RunID
	}
	if id == "" {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: errorBody(respBody)}
	}

	span.SetAttributes(attribute.String("auditfront.run_id", id))
	c.logger.Debug("backend: run submitted", "run_id", id, "mode", req.Mode)
	return model.RunHandle(id), nil
}

// errorBody trims an unusable accepted response to what an error keeps.
func errorBody(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}

// encodeRunRequest builds the multipart body. Numeric fields are sent as
// decimal strings; mode decides between the report_json file part and the
// free_text field.
func encodeRunRequest(req model.RunRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"entity_id", req.EntityID},
		{"mode", string(req.Mode)},
		{"number_of_employees", strconv.Itoa(req.Metrics.Employees)},
		{"revenue_eur", formatDecimal(req.Metrics.RevenueEUR)},
		{"total_assets_eur", formatDecimal(req.Metrics.TotalAssetsEUR)},
		{"reporting_year", strconv.Itoa(req.Metrics.ReportingYear)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("backend: write field %s: %w", f.name, err)
		}
	}

	switch req.Mode {
	case model.ModeStructuredDocument:
		if req.Document != nil {
			filename := req.Document.Filename
			if filename == "" {
				filename = "report.json"
			}
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="report_json"; filename=%q`, filename))
			h.Set("Content-Type", "application/json")
			part, err := mw.CreatePart(h)
			if err != nil {
				return nil, "", fmt.Errorf("backend: create report_json part: %w", err)
			}
			if _, err := part.Write(req.Document.Content); err != nil {
				return nil, "", fmt.Errorf("backend: write report_json: %w", err)
			}
		}
	case model.ModeFreeText:
		if err := mw.WriteField("free_text", req.FreeText); err != nil {
			return nil, "", fmt.Errorf("backend: write field free_text: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("backend: close multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
