package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"

	"github.com/modelstudio/modelstudio-go/httpclient"
	"github.com/modelstudio/modelstudio-go/logger"
	obtest "github.com/modelstudio/modelstudio-go/observability/testing"
	tst "github.com/modelstudio/modelstudio-go/testing"
	"github.com/modelstudio/modelstudio-go/testing/fixtures"
	"github.com/modelstudio/modelstudio-go/testing/mocks"
)

func testConfig(maxRetries int) Config {
	return Config{
		URL:        tst.TestURL,
		APIKey:     tst.TestAPIKey,
		Timeout:    10 * time.Second,
		MaxRetries: maxRetries,
		BaseDelay:  2 * time.Second,
	}
}

func newMockPredictor(t *testing.T, cfg Config, opts ...Option) (*Predictor, *mocks.MockHTTPClient, *fixtures.RecordingSleeper) {
	t.Helper()
	client := &mocks.MockHTTPClient{}
	sleeper := &fixtures.RecordingSleeper{}
	opts = append([]Option{WithHTTPClient(client), WithSleeper(sleeper.Sleep)}, opts...)
	p, err := New(cfg, opts...)
	require.NoError(t, err)
	return p, client, sleeper
}

func image() *strings.Reader {
	return strings.NewReader(tst.TestImageData)
}

func timeouts(reqs []*httpclient.Request) []time.Duration {
	out := make([]time.Duration, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.Timeout)
	}
	return out
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(0)
	_, err := New(cfg)
	assert.ErrorContains(t, err, "MaxRetries must be positive")
}

func TestNewRequestEncodesImage(t *testing.T) {
	req := NewRequest(tst.TestAPIKey, []byte(tst.TestImageData))
	assert.Equal(t, tst.TestImageB64, req.ImageB64)

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"api_token":"test-api-key","image_b64":"ZmFrZV9pbWFnZV9kYXRh"}`, string(raw))
}

func TestPredictSuccessOnFirstAttempt(t *testing.T) {
	p, client, sleeper := newMockPredictor(t, testConfig(3))
	client.ExpectSuccess(`{"label":"cat","score":0.9}`)

	outcome := p.Predict(context.Background(), image())

	require.False(t, outcome.Failed())
	assert.Equal(t, map[string]any{"label": "cat", "score": 0.9}, outcome.Body())
	assert.Empty(t, sleeper.Delays())
	client.AssertExpectations(t)

	reqs := client.PostedRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, tst.TestURL, reqs[0].URL)
	assert.Equal(t, 10*time.Second, reqs[0].Timeout)

	var body map[string]string
	require.NoError(t, json.Unmarshal(reqs[0].Body, &body))
	assert.Equal(t, map[string]string{"api_token": tst.TestAPIKey, "image_b64": tst.TestImageB64}, body)
}

func TestPredictTimeoutEscalationNeverDecreases(t *testing.T) {
	cfg := testConfig(3)
	cfg.Timeout = 1 << 62
	p, client, _ := newMockPredictor(t, cfg)
	for range 3 {
		client.ExpectError(httpclient.NewTimeoutError("slow", cfg.Timeout))
	}

	outcome := p.Predict(context.Background(), image())

	require.True(t, outcome.Failed())
	assert.Equal(t, []time.Duration{
		1 << 62, time.Duration(math.MaxInt64), time.Duration(math.MaxInt64),
	}, timeouts(client.PostedRequests()))
}

func TestPredictExhaustsRetries(t *testing.T) {
	tests := []struct {
		maxRetries int
		message    string
		delays     []time.Duration
	}{
		{maxRetries: 1, message: "An error occurred after 0 attempts.", delays: nil},
		{maxRetries: 3, message: "An error occurred after 2 attempts.", delays: []time.Duration{2 * time.Second, 4 * time.Second}},
		{maxRetries: 5, message: "An error occurred after 4 attempts.", delays: []time.Duration{
			2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			p, client, sleeper := newMockPredictor(t, testConfig(tt.maxRetries))
			for range tt.maxRetries {
				client.ExpectError(httpclient.NewNetworkError("connection refused", nil))
			}

			outcome := p.Predict(context.Background(), image())

			require.True(t, outcome.Failed())
			assert.Equal(t, tt.message, outcome.ErrorMessage())
			assert.Equal(t, tt.delays, sleeper.Delays())
			assert.Len(t, client.PostedRequests(), tt.maxRetries)
			client.AssertExpectations(t)
		})
	}
}

func TestPredictTimeoutEscalation(t *testing.T) {
	p, client, sleeper := newMockPredictor(t, testConfig(5))
	client.ExpectError(httpclient.NewTimeoutError("slow", 10*time.Second))
	client.ExpectError(httpclient.NewNetworkError("reset", nil))
	client.ExpectError(httpclient.NewTimeoutError("slow", 20*time.Second))
	client.ExpectError(httpclient.NewHTTPError("unavailable", http.StatusServiceUnavailable, nil))
	client.ExpectSuccess(`{"label":"dog"}`)

	outcome := p.Predict(context.Background(), image())

	require.False(t, outcome.Failed())
	assert.Equal(t, []time.Duration{
		10 * time.Second, 20 * time.Second, 20 * time.Second, 40 * time.Second, 40 * time.Second,
	}, timeouts(client.PostedRequests()))
	assert.Equal(t, []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, sleeper.Delays())
}

func TestPredictNonTimeoutFailuresKeepTimeout(t *testing.T) {
	p, client, _ := newMockPredictor(t, testConfig(3))
	client.ExpectError(httpclient.NewHTTPError("server error", http.StatusInternalServerError, []byte(`{}`)))
	client.ExpectError(httpclient.NewNetworkError("no such host", nil))
	client.ExpectSuccess(`[]`)

	outcome := p.Predict(context.Background(), image())

	require.False(t, outcome.Failed())
	assert.Equal(t, []any{}, outcome.Body())
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second, 10 * time.Second},
		timeouts(client.PostedRequests()))
}

func TestPredictMalformedBodyIsRetried(t *testing.T) {
	p, client, sleeper := newMockPredictor(t, testConfig(3))
	client.ExpectSuccess(`<html>bad gateway</html>`)
	client.ExpectSuccess(`{"label":"cat"}`)

	outcome := p.Predict(context.Background(), image())

	require.False(t, outcome.Failed())
	assert.Len(t, client.PostedRequests(), 2)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.Delays())
}

func TestPredictErrorBodyIsSuccess(t *testing.T) {
	p, client, _ := newMockPredictor(t, testConfig(3))
	client.ExpectSuccess(`{"error":"unsupported image"}`)

	outcome := p.Predict(context.Background(), image())

	assert.False(t, outcome.Failed())
	assert.True(t, outcome.HasError())
	assert.Len(t, client.PostedRequests(), 1)
}

func TestPredictUnreadableImage(t *testing.T) {
	tests := []struct {
		name    string
		image   io.Reader
		message string
	}{
		{name: "empty", image: bytes.NewReader(nil), message: "image is empty"},
		{name: "nil reader", image: nil, message: "image is empty"},
		{name: "read error", image: iotest.ErrReader(errors.New("disk failure")), message: "disk failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, client, _ := newMockPredictor(t, testConfig(3))

			outcome := p.Predict(context.Background(), tt.image)

			assert.True(t, outcome.Failed())
			assert.Contains(t, outcome.ErrorMessage(), "could not read image")
			assert.Contains(t, outcome.ErrorMessage(), tt.message)
			assert.Empty(t, client.PostedRequests())
		})
	}
}

func TestPredictFile(t *testing.T) {
	paths := fixtures.WriteImages(t, tst.TestImageData, "cat.jpg")

	p, client, _ := newMockPredictor(t, testConfig(3))
	client.ExpectSuccess(`{"label":"cat"}`)

	outcome := p.PredictFile(context.Background(), paths[0])
	require.False(t, outcome.Failed())

	var body map[string]string
	require.NoError(t, json.Unmarshal(client.PostedRequests()[0].Body, &body))
	assert.Equal(t, tst.TestImageB64, body["image_b64"])
}

func TestPredictFileMissing(t *testing.T) {
	p, client, _ := newMockPredictor(t, testConfig(3))

	outcome := p.PredictFile(context.Background(), "/does/not/exist.jpg")

	assert.True(t, outcome.Failed())
	assert.Contains(t, outcome.ErrorMessage(), "could not open image /does/not/exist.jpg")
	assert.Empty(t, client.PostedRequests())
}

func TestPredictCancelledDuringBackoff(t *testing.T) {
	p, client, sleeper := newMockPredictor(t, testConfig(3))
	client.ExpectError(httpclient.NewNetworkError("connection refused", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := p.Predict(ctx, image())

	assert.True(t, outcome.Failed())
	assert.Equal(t, "An error occurred after 0 attempts.", outcome.ErrorMessage())
	assert.Len(t, client.PostedRequests(), 1)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.Delays())
}

func TestPredictIsIdempotent(t *testing.T) {
	p, client, sleeper := newMockPredictor(t, testConfig(2))
	for range 4 {
		client.ExpectError(httpclient.NewTimeoutError("slow", 0))
	}

	first := p.Predict(context.Background(), image())
	second := p.Predict(context.Background(), image())

	assert.Equal(t, first, second)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeper.Delays())
	assert.Equal(t, []time.Duration{
		10 * time.Second, 20 * time.Second, 10 * time.Second, 20 * time.Second,
	}, timeouts(client.PostedRequests()))
}

func TestPredictAgainstServer(t *testing.T) {
	srv := fixtures.NewPredictionServer(t,
		fixtures.Slow(time.Second, `{"label":"late"}`),
		fixtures.Status(http.StatusBadGateway),
		fixtures.OK(`{"label":"cat"}`),
	)

	var logs bytes.Buffer
	sleeper := &fixtures.RecordingSleeper{}
	cfg := Config{
		URL:        srv.URL,
		APIKey:     tst.TestAPIKey,
		Timeout:    50 * time.Millisecond,
		MaxRetries: 3,
		BaseDelay:  time.Second,
	}
	p, err := New(cfg,
		WithLogger(logger.NewWithWriter(&logs, tst.TestLoggerLevelDebug, false)),
		WithSleeper(sleeper.Sleep),
	)
	require.NoError(t, err)

	outcome := p.Predict(context.Background(), image())

	require.False(t, outcome.Failed(), outcome.String())
	assert.Equal(t, `{"label":"cat"}`, outcome.String())
	assert.Equal(t, 3, srv.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.Delays())
	for _, req := range srv.Requests() {
		assert.Equal(t, tst.TestAPIKey, req["api_token"])
		assert.Equal(t, tst.TestImageB64, req["image_b64"])
	}

	out := logs.String()
	assert.Contains(t, out, "Request timed out. Adapting timeout: 100ms")
	assert.Contains(t, out, "Attempt 2/3 failed")
	assert.NotContains(t, out, tst.TestAPIKey)
}

func TestPredictDefaultClientHeaders(t *testing.T) {
	srv := fixtures.NewPredictionServer(t, fixtures.OK(`{"label":"cat"}`))
	tp := obtest.NewTestTraceProvider()
	defer tp.Shutdown(context.Background())

	var logs bytes.Buffer
	cfg := Config{URL: srv.URL, APIKey: tst.TestAPIKey, Timeout: time.Second, MaxRetries: 1, BaseDelay: time.Millisecond}
	p, err := New(cfg,
		WithLogger(logger.NewWithWriter(&logs, tst.TestLoggerLevelDebug, false)),
		WithTracerProvider(tp),
		WithPropagator(propagation.TraceContext{}),
		WithUserAgent("modelstudio-sdk/test"),
		WithPayloadLogging(true),
	)
	require.NoError(t, err)

	outcome := p.Predict(context.Background(), image())
	require.False(t, outcome.Failed(), outcome.String())

	headers := srv.Headers()
	require.Len(t, headers, 1)
	assert.Equal(t, "application/json", headers[0].Get("Accept"))
	assert.Equal(t, "modelstudio-sdk/test", headers[0].Get("User-Agent"))
	assert.NotEmpty(t, headers[0].Get(httpclient.HeaderXRequestID))

	attempt := obtest.NewSpanCollector(t, tp.Exporter).WithName("modelstudio.predict.attempt").First()
	assert.Contains(t, headers[0].Get("traceparent"), attempt.SpanContext.TraceID().String())

	out := logs.String()
	assert.Contains(t, out, "body_preview")
	assert.Contains(t, out, tst.TestImageB64)
	assert.NotContains(t, out, tst.TestAPIKey)
}

func TestPredictWithoutPayloadLogging(t *testing.T) {
	srv := fixtures.NewPredictionServer(t, fixtures.OK(`{"label":"cat"}`))

	var logs bytes.Buffer
	cfg := Config{URL: srv.URL, APIKey: tst.TestAPIKey, Timeout: time.Second, MaxRetries: 1, BaseDelay: time.Millisecond}
	p, err := New(cfg, WithLogger(logger.NewWithWriter(&logs, tst.TestLoggerLevelDebug, false)))
	require.NoError(t, err)

	p.Predict(context.Background(), image())

	assert.NotContains(t, logs.String(), "body_preview")
}

func TestPredictAgainstServerExhausted(t *testing.T) {
	srv := fixtures.NewPredictionServer(t, fixtures.Status(http.StatusServiceUnavailable))

	var logs bytes.Buffer
	cfg := Config{URL: srv.URL, APIKey: tst.TestAPIKey, Timeout: time.Second, MaxRetries: 3, BaseDelay: time.Millisecond}
	p, err := New(cfg, WithLogger(logger.NewWithWriter(&logs, "warn", false)))
	require.NoError(t, err)

	outcome := p.Predict(context.Background(), image())

	assert.Equal(t, `{"error":"An error occurred after 2 attempts."}`, outcome.String())
	assert.Equal(t, 3, srv.Calls())
	assert.Contains(t, logs.String(), "Max retries reached. Request failed.")
}

func TestPredictTelemetry(t *testing.T) {
	tp := obtest.NewTestTraceProvider()
	mp := obtest.NewTestMeterProvider()
	defer tp.Shutdown(context.Background())
	defer mp.Shutdown(context.Background())

	p, client, _ := newMockPredictor(t, testConfig(3), WithTracerProvider(tp), WithMeterProvider(mp))
	client.ExpectError(httpclient.NewTimeoutError("slow", 10*time.Second))
	client.ExpectError(httpclient.NewNetworkError("reset", nil))
	client.ExpectError(httpclient.NewNetworkError("reset", nil))

	outcome := p.Predict(context.Background(), image())
	require.True(t, outcome.Failed())

	spans := obtest.NewSpanCollector(t, tp.Exporter)
	spans.WithName("modelstudio.predict").AssertCount(1)
	spans.WithName("modelstudio.predict.attempt").AssertCount(3)
	spans.WithName("modelstudio.predict.attempt").WithAttribute("modelstudio.timeout_seconds", 20.0).AssertCount(2)

	rm := mp.Collect(t)
	assert.Equal(t, int64(3), obtest.SumInt64(t, rm, "modelstudio.predict.attempts", "", ""))
	assert.Equal(t, int64(1), obtest.SumInt64(t, rm, "modelstudio.predict.attempts", "result", resultTimeout))
	assert.Equal(t, int64(2), obtest.SumInt64(t, rm, "modelstudio.predict.attempts", "result", resultFailure))
	assert.Equal(t, int64(1), obtest.SumInt64(t, rm, "modelstudio.predict.timeout_escalations", "", ""))
	assert.Equal(t, int64(1), obtest.SumInt64(t, rm, "modelstudio.predict.outcomes", "result", resultFailure))
	assert.Equal(t, uint64(3), obtest.HistogramCount(t, rm, "modelstudio.predict.attempt.duration"))
}
