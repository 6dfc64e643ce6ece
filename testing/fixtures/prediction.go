package fixtures

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Step scripts one response of a PredictionServer.
type Step struct {
	Status int
	Body   string
	// Delay holds the response back, or until the client gives up.
	Delay time.Duration
}

// OK returns a 200 step with body.
func OK(body string) Step {
	return Step{Status: http.StatusOK, Body: body}
}

// Status returns a step answering with status and an empty JSON object.
func Status(status int) Step {
	return Step{Status: status, Body: `{}`}
}

// Slow returns a 200 step that is delayed by d.
func Slow(d time.Duration, body string) Step {
	return Step{Status: http.StatusOK, Body: body, Delay: d}
}

// PredictionServer is an httptest server that answers with scripted steps.
// Once the script is exhausted the last step repeats.
type PredictionServer struct {
	*httptest.Server

	mu       sync.Mutex
	steps    []Step
	requests []map[string]string
	headers  []http.Header
}

// NewPredictionServer starts a server answering with steps in order. It is
// closed when the test ends.
func NewPredictionServer(t *testing.T, steps ...Step) *PredictionServer {
	t.Helper()
	require.NotEmpty(t, steps, "prediction server needs at least one step")

	ps := &PredictionServer{steps: steps}
	ps.Server = httptest.NewServer(http.HandlerFunc(ps.handle))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *PredictionServer) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var payload map[string]string
	_ = json.Unmarshal(raw, &payload)

	ps.mu.Lock()
	idx := len(ps.requests)
	ps.requests = append(ps.requests, payload)
	ps.headers = append(ps.headers, r.Header.Clone())
	step := ps.steps[min(idx, len(ps.steps)-1)]
	ps.mu.Unlock()

	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(step.Status)
	_, _ = w.Write([]byte(step.Body))
}

// Calls returns the number of requests received.
func (ps *PredictionServer) Calls() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.requests)
}

// Requests returns the decoded JSON bodies received, in order.
func (ps *PredictionServer) Requests() []map[string]string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]map[string]string(nil), ps.requests...)
}

// Headers returns the request headers received, in order.
func (ps *PredictionServer) Headers() []http.Header {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]http.Header(nil), ps.headers...)
}

// RecordingSleeper records backoff delays instead of sleeping.
type RecordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
	// Err, when set, is returned by every Sleep call.
	Err error
}

// Sleep records d and returns immediately. It honours ctx cancellation.
func (s *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Err
}

// Delays returns the recorded delays in order.
func (s *RecordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// WriteImages writes one file per name into a temporary directory, each
// holding content, and returns their paths in order.
func WriteImages(t *testing.T, content string, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		paths = append(paths, path)
	}
	return paths
}
