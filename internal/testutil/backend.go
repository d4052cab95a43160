package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Submission is one run request as received by the fake backend.
type Submission struct {
	Fields      map[string]string
	File        []byte
	Filename    string
	FileType    string
	HasFreeText bool
}

// Backend is a scripted fake of the analysis backend. Submissions are
// recorded; stream messages are pushed by the test with Send and friends.
type Backend struct {
	*httptest.Server

	mu          sync.Mutex
	submissions []Submission
	streams     []string

	submitStatus int
	submitBody   string
	runID        string
	streamStatus int

	frames       chan frame
	connected    chan string
	disconnected chan string
	quit         chan struct{}
	closeOnce    sync.Once
}

type frame struct {
	raw    string
	hangup bool
}

// NewBackend starts a fake backend that is closed at test cleanup.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		runID:        "run-1",
		frames:       make(chan frame, 64),
		connected:    make(chan string, 16),
		disconnected: make(chan string, 16),
		quit:         make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /audit/run", b.handleSubmit)
	mux.HandleFunc("GET /audit/{id}/stream", b.handleStream)
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

// Close ends every open stream and shuts the server down.
func (b *Backend) Close() {
	b.closeOnce.Do(func() {
		close(b.quit)
		b.Server.Close()
	})
}

// RespondToSubmit overrides the submission response. An empty body
// falls back to {"audit_id": <run id>}.
func (b *Backend) RespondToSubmit(status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitStatus, b.submitBody = status, body
}

// SetRunID changes the run id handed out by submissions.
func (b *Backend) SetRunID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runID = id
}

// RejectStreams makes every later stream request fail with status.
func (b *Backend) RejectStreams(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamStatus = status
}

// Submissions returns a copy of every submission received so far.
func (b *Backend) Submissions() []Submission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Submission(nil), b.submissions...)
}

// Streams returns the run ids of every stream request received so far.
func (b *Backend) Streams() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.streams...)
}

// Send pushes v, JSON-encoded, as one stream message.
func (b *Backend) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: encode stream event: %v", err))
	}
	b.SendData(string(data))
}

// SendData pushes raw as the data of one stream message.
func (b *Backend) SendData(raw string) {
	b.SendRaw("data: " + raw + "\n\n")
}

// SendRaw writes raw bytes to the stream unchanged.
func (b *Backend) SendRaw(raw string) {
	b.frames <- frame{raw: raw}
}

// Hangup ends the current stream response cleanly.
func (b *Backend) Hangup() {
	b.frames <- frame{hangup: true}
}

// WaitConnected blocks until a stream is opened and returns its run id.
func (b *Backend) WaitConnected(t testing.TB) string {
	t.Helper()
	select {
	case id := <-b.connected:
		return id
	case <-time.After(DefaultTimeout):
		t.Fatalf("testutil: no stream connection")
		return ""
	}
}

// WaitDisconnected blocks until a stream is torn down by the client.
func (b *Backend) WaitDisconnected(t testing.TB) string {
	t.Helper()
	select {
	case id := <-b.disconnected:
		return id
	case <-time.After(DefaultTimeout):
		t.Fatalf("testutil: stream was not closed by the client")
		return ""
	}
}

func (b *Backend) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sub := Submission{Fields: make(map[string]string)}
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			sub.Fields[k] = v[0]
		}
	}
	_, sub.HasFreeText = r.MultipartForm.Value["free_text"]
	if files := r.MultipartForm.File["report_json"]; len(files) > 0 {
		sub.Filename = files[0].Filename
		sub.FileType = files[0].Header.Get("Content-Type")
		if f, err := files[0].Open(); err == nil {
			sub.File, _ = io.ReadAll(f)
			_ = f.Close()
		}
	}

	b.mu.Lock()
	b.submissions = append(b.submissions, sub)
	status, body, runID := b.submitStatus, b.submitBody, b.runID
	b.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	if body == "" {
		body = fmt.Sprintf(`{"audit_id":%q}`, runID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (b *Backend) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b.mu.Lock()
	b.streams = append(b.streams, id)
	status := b.streamStatus
	b.mu.Unlock()

	if status != 0 {
		http.Error(w, "stream unavailable", status)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	notify(b.connected, id)

	for {
		select {
		case f := <-b.frames:
			if f.hangup {
				return
			}
			_, _ = io.WriteString(w, f.raw)
			flusher.Flush()
		case <-r.Context().Done():
			notify(b.disconnected, id)
			return
		case <-b.quit:
			return
		}
	}
}

func notify(ch chan string, id string) {
	select {
	case ch <- id:
	default:
	}
}
