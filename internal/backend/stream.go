package backend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/auditfront/internal/model"
)

// Open subscribes to the event stream of a run. Events are delivered to
// onEvent in arrival order from a single goroutine. onError receives
// *StreamDecodeError for each undecodable message (the stream stays open) and
// at most one *StreamTransportError if the connection fails before a terminal
// event.
//
// The returned close function cancels the subscription. It is idempotent, does
// not wait for the reader goroutine, and suppresses every callback made after
// it returns.
func (c *Client) Open(ctx context.Context, handle model.RunHandle, onEvent func(model.Event), onError func(error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel}

	go c.consume(ctx, sub, handle, onEvent, onError)

	return sub.close
}

type subscription struct {
	cancel context.CancelFunc
	once   sync.Once
	closed atomic.Bool
}

func (s *subscription) close() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
	})
}

func (c *Client) consume(ctx context.Context, sub *subscription, handle model.RunHandle, onEvent func(model.Event), onError func(error)) {
	defer sub.cancel()

	ctx, span := tracer.Start(ctx, "backend.stream", trace.WithAttributes(
		attribute.String("auditfront.run_id", string(handle)),
	))
	defer span.End()

	fail := func(err error) {
		if sub.closed.Load() {
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
		c.logger.Warn("backend: event stream failed", "run_id", handle, "error", err)
		onError(err)
	}

	endpoint := c.baseURL + "/audit/" + url.PathEscape(string(handle)) + "/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		fail(&StreamTransportError{Cause: err})
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.stream.Do(req)
	if err != nil {
		fail(&StreamTransportError{Cause: err})
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		cause := errors.New(http.StatusText(resp.StatusCode))
		if b := strings.TrimSpace(string(body)); b != "" {
			cause = errors.New(b)
		}
		fail(&StreamTransportError{StatusCode: resp.StatusCode, Cause: cause})
		return
	}

	terminal := false
	r := newEventReader(resp.Body)
	for {
		data, err := r.next()
		if err != nil {
			if terminal || sub.closed.Load() {
				return
			}
			if errors.Is(err, io.EOF) {
				err = errStreamEnded
			}
			fail(&StreamTransportError{Cause: err})
			return
		}
		if sub.closed.Load() {
			return
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			c.decodeCounter.Add(ctx, 1)
			c.logger.Warn("backend: dropped stream event", "run_id", handle, "error", err)
			onError(err)
			continue
		}
		c.eventCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("kind", string(ev.Type()))))
		onEvent(ev)
		if ev.Terminal() {
			terminal = true
		}
	}
}

// maxEventLine bounds a single event stream line. A complete event carries
// the whole report, so the limit is generous.
const maxEventLine = 4 << 20

// errLineTooLong fails a stream whose server never ends a line.
var errLineTooLong = fmt.Errorf("event stream line exceeds %d bytes", maxEventLine)

// eventReader splits a text/event-stream body into message payloads. Lines
// end in CRLF, LF, or a lone CR. Only the data field is used; multi-line data
// is joined with newlines.
type eventReader struct {
	br *bufio.Reader
	// skipLF is set after a line ended in CR: a directly following LF
	// belongs to the same terminator.
	skipLF bool
	line   []byte
}

func newEventReader(r io.Reader) *eventReader {
	return &eventReader{br: bufio.NewReader(r)}
}

// next returns the data of the next dispatched message. A message with no
// data lines is skipped.
func (r *eventReader) next() (string, error) {
	var data []string
	for {
		line, err := r.readLine()
		if err != nil {
			// An unterminated trailing line was never dispatched and is dropped.
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", fmt.Errorf("read event stream: %w", err)
		}

		if line == "" {
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		if field == "data" {
			data = append(data, value)
		}
	}
}

// readLine returns one line without its terminator. It never reads past the
// terminator, so a dispatching blank line is seen as soon as it arrives.
func (r *eventReader) readLine() (string, error) {
	r.line = r.line[:0]
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			return "", err
		}
		if r.skipLF {
			r.skipLF = false
			if b == '\n' {
				continue
			}
		}
		switch b {
		case '\n':
			return string(r.line), nil
		case '\r':
			r.skipLF = true
			return string(r.line), nil
		}
		if len(r.line) >= maxEventLine {
			return "", errLineTooLong
		}
		r.line = append(r.line, b)
	}
}
