package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ashita-ai/auditfront/internal/model"
)

// wireEvent is the union of every field any event kind may carry.
type wireEvent struct {
	Type            model.EventType `json:"type"`
	Agent           string          `json:"agent"`
	Message         *string         `json:"message"`
	Timestamp       json.RawMessage `json:"timestamp"`
	Duration        *float64        `json:"duration"`
	Audit           json.RawMessage `json:"audit"`
	ComplianceCheck json.RawMessage `json:"compliance_check"`
}

// DecodeEvent decodes one stream message into its typed event. Every failure
// is returned as a *StreamDecodeError carrying the raw payload.
func DecodeEvent(raw string) (model.Event, error) {
	ev, err := decodeEvent([]byte(raw))
	if err != nil {
		return nil, &StreamDecodeError{Raw: raw, Cause: err}
	}
	return ev, nil
}

func decodeEvent(data []byte) (model.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}

	switch w.Type {
	case model.EventLog:
		if w.Agent == "" {
			return nil, errors.New("log event without agent")
		}
		if w.Message == nil {
			return nil, errors.New("log event without message")
		}
		ts, err := decodeTimestamp(w.Timestamp)
		if err != nil {
			return nil, err
		}
		return model.LogEvent{Entry: model.LogEntry{
			Timestamp: ts,
			Agent:     model.Agent(w.Agent),
			Message:   *w.Message,
		}}, nil

	case model.EventNodeComplete:
		if w.Agent == "" {
			return nil, errors.New("node_complete event without agent")
		}
		var d time.Duration
		if w.Duration != nil {
			if *w.Duration < 0 {
				return nil, fmt.Errorf("node_complete event with negative duration %v", *w.Duration)
			}
			d = time.Duration(*w.Duration * float64(time.Second))
		}
		return model.NodeCompleteEvent{Agent: model.Agent(w.Agent), Duration: d}, nil

	case model.EventComplete:
		result, err := decodeResult(w.Audit, w.ComplianceCheck)
		if err != nil {
			return nil, err
		}
		return model.CompleteEvent{Result: result}, nil

	case model.EventError:
		msg := "analysis failed"
		if w.Message != nil && *w.Message != "" {
			msg = *w.Message
		}
		return model.ErrorEvent{Message: msg}, nil

	case "":
		return nil, errors.New("event without type")
	default:
		return nil, fmt.Errorf("unknown event type %q", w.Type)
	}
}

// decodeResult enforces that a complete event carries exactly one variant.
func decodeResult(audit, check json.RawMessage) (model.RunResult, error) {
	hasAudit, hasCheck := present(audit), present(check)
	switch {
	case hasAudit && hasCheck:
		return model.RunResult{}, errors.New("complete event carries both audit and compliance_check")
	case hasAudit:
		var r model.Report
		if err := json.Unmarshal(audit, &r); err != nil {
			return model.RunResult{}, fmt.Errorf("decode audit: %w", err)
		}
		return model.RunResult{Kind: model.ResultAudit, Audit: &r}, nil
	case hasCheck:
		var r model.Report
		if err := json.Unmarshal(check, &r); err != nil {
			return model.RunResult{}, fmt.Errorf("decode compliance_check: %w", err)
		}
		return model.RunResult{Kind: model.ResultComplianceCheck, Check: &r}, nil
	default:
		return model.RunResult{}, errors.New("complete event without a result")
	}
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// decodeTimestamp accepts a string or a unix-seconds number. A missing
// timestamp is stamped with the local arrival time.
func decodeTimestamp(raw json.RawMessage) (string, error) {
	if !present(raw) {
		return time.Now().Format("15:04:05"), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("timestamp is neither string nor number: %s", raw)
	}
	sec := int64(n)
	return time.Unix(sec, int64((n-float64(sec))*1e9)).UTC().Format(time.RFC3339), nil
}

// formatDecimal renders a metric the way the backend's form parser expects.
func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
