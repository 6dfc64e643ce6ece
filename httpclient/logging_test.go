package httpclient

import (
	"context"
	"maps"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelstudio/modelstudio-go/logger"
)

const (
	testRestClientRequest  = "REST client request"
	testRestClientResponse = "REST client response"
	testPredictURL         = "https://api.example.com/predict"
)

// fakeLogEvent implements logger.LogEvent for testing
type fakeLogEvent struct {
	logger *fakeLogger
	level  string
	fields map[string]any
}

func (e *fakeLogEvent) Msg(msg string) {
	e.logger.events = append(e.logger.events, loggedEvent{
		level:   e.level,
		fields:  maps.Clone(e.fields),
		message: msg,
	})
}

func (e *fakeLogEvent) Msgf(format string, _ ...any) { e.Msg(format) }

func (e *fakeLogEvent) Err(err error) logger.LogEvent {
	e.fields["error"] = err
	return e
}

func (e *fakeLogEvent) Str(key, value string) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Int(key string, value int) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Int64(key string, value int64) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Float64(key string, value float64) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Dur(key string, d time.Duration) logger.LogEvent {
	e.fields[key] = d
	return e
}

func (e *fakeLogEvent) Interface(key string, i any) logger.LogEvent {
	e.fields[key] = i
	return e
}

func (e *fakeLogEvent) Bytes(key string, val []byte) logger.LogEvent {
	e.fields[key] = val
	return e
}

// fakeLogger implements logger.Logger and records every event
type fakeLogger struct {
	events []loggedEvent
}

type loggedEvent struct {
	level   string
	fields  map[string]any
	message string
}

func (l *fakeLogger) event(level string) logger.LogEvent {
	return &fakeLogEvent{logger: l, level: level, fields: make(map[string]any)}
}

func (l *fakeLogger) Info() logger.LogEvent                     { return l.event("info") }
func (l *fakeLogger) Error() logger.LogEvent                    { return l.event("error") }
func (l *fakeLogger) Debug() logger.LogEvent                    { return l.event("debug") }
func (l *fakeLogger) Warn() logger.LogEvent                     { return l.event("warn") }
func (l *fakeLogger) WithFields(_ map[string]any) logger.Logger { return l }

func (l *fakeLogger) eventsByLevel(level string) []loggedEvent {
	var events []loggedEvent
	for _, event := range l.events {
		if event.level == level {
			events = append(events, event)
		}
	}
	return events
}

func newTestRequest(t *testing.T, method string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, testPredictURL, http.NoBody)
	require.NoError(t, err)
	return req
}

func TestClientLogRequest(t *testing.T) {
	t.Run("basic request logging", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{logger: fakeLog, config: &Config{MaxPayloadLogBytes: 1024}}

		req := newTestRequest(t, http.MethodPost)
		req.Header.Set("Content-Type", "application/json")
		body := []byte(`{"image_b64": "AAAA"}`)

		c.logRequest(req, body, "req-123")

		infoEvents := fakeLog.eventsByLevel("info")
		require.Len(t, infoEvents, 1)
		event := infoEvents[0]
		assert.Equal(t, testRestClientRequest, event.message)
		assert.Equal(t, "outbound", event.fields["direction"])
		assert.Equal(t, http.MethodPost, event.fields["method"])
		assert.Equal(t, testPredictURL, event.fields["url"])
		assert.Equal(t, "req-123", event.fields["request_id"])
		assert.Equal(t, 1, event.fields["header_count"])
		assert.Equal(t, len(body), event.fields["body_size"])
		assert.Empty(t, fakeLog.eventsByLevel("debug"))
	})

	t.Run("empty body and headers omit size fields", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{logger: fakeLog, config: &Config{}}

		c.logRequest(newTestRequest(t, http.MethodGet), nil, "req-456")

		event := fakeLog.eventsByLevel("info")[0]
		assert.NotContains(t, event.fields, "body_size")
		assert.NotContains(t, event.fields, "header_count")
	})

	t.Run("payload logging redacts the api token", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{logger: fakeLog, config: &Config{LogPayloads: true, MaxPayloadLogBytes: 1024}}

		body := []byte(`{"api_token":"s3cret","image_b64":"ZmFrZV9pbWFnZV9kYXRh"}`)
		c.logRequest(newTestRequest(t, http.MethodPost), body, "req-789")

		debugEvents := fakeLog.eventsByLevel("debug")
		require.Len(t, debugEvents, 1)
		preview := string(debugEvents[0].fields["body_preview"].([]byte))
		assert.NotContains(t, preview, "s3cret")
		assert.Contains(t, preview, logger.DefaultMaskValue)
		assert.Contains(t, preview, "ZmFrZV9pbWFnZV9kYXRh")
		assert.Equal(t, len(body), debugEvents[0].fields["body_size"])
		assert.Equal(t, "false", debugEvents[0].fields["body_truncated"])
	})

	t.Run("large body is truncated", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{logger: fakeLog, config: &Config{LogPayloads: true, MaxPayloadLogBytes: 10}}

		body := []byte("this body is not json and is longer than ten bytes")
		c.logRequest(newTestRequest(t, http.MethodPost), body, "req-truncate")

		event := fakeLog.eventsByLevel("debug")[0]
		assert.Equal(t, "true", event.fields["body_truncated"])
		assert.Equal(t, body[:10], event.fields["body_preview"])
	})

	t.Run("zero MaxPayloadLogBytes uses default", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{logger: fakeLog, config: &Config{LogPayloads: true}}

		body := make([]byte, 1500)
		for i := range body {
			body[i] = byte('A' + (i % 26))
		}
		c.logRequest(newTestRequest(t, http.MethodPost), body, "req-default")

		event := fakeLog.eventsByLevel("debug")[0]
		assert.Equal(t, body[:defaultMaxPayloadLogBytes], event.fields["body_preview"])
	})
}

func TestClientLogResponse(t *testing.T) {
	t.Run("basic response logging", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{logger: fakeLog, config: &Config{}}

		response := &Response{
			StatusCode: 200,
			Body:       []byte(`{"prediction":"cat"}`),
			Headers:    http.Header{},
			Stats:      Stats{ElapsedTime: 250 * time.Millisecond, CallCount: 5},
		}
		c.logResponse(response, "req-response")

		event := fakeLog.eventsByLevel("info")[0]
		assert.Equal(t, testRestClientResponse, event.message)
		assert.Equal(t, "inbound", event.fields["direction"])
		assert.Equal(t, 200, event.fields["status"])
		assert.Equal(t, 250*time.Millisecond, event.fields["elapsed"])
		assert.Equal(t, int64(5), event.fields["call_count"])
		assert.Equal(t, len(response.Body), event.fields["body_size"])
		assert.Empty(t, fakeLog.eventsByLevel("debug"))
	})

	t.Run("payload logging", func(t *testing.T) {
		fakeLog := &fakeLogger{}
		c := &client{logger: fakeLog, config: &Config{LogPayloads: true, MaxPayloadLogBytes: 100}}

		response := &Response{
			StatusCode: 201,
			Body:       []byte(`{"prediction":"dog"}`),
			Headers:    http.Header{"X-Rate-Limit": []string{"100"}},
		}
		c.logResponse(response, "req-debug")

		event := fakeLog.eventsByLevel("debug")[0]
		assert.Equal(t, testRestClientResponse, event.message)
		assert.Equal(t, map[string]string{"X-Rate-Limit": "100"}, event.fields["headers"])
		assert.Equal(t, response.Body, event.fields["body_preview"])
	})
}

func TestBuilderDefaults(t *testing.T) {
	fakeLog := &fakeLogger{}
	built := NewBuilder(fakeLog).WithTimeout(5 * time.Second).Build()

	impl, ok := built.(*client)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, impl.config.Timeout)
	assert.False(t, impl.config.LogPayloads)
	assert.Equal(t, defaultMaxPayloadLogBytes, impl.config.MaxPayloadLogBytes)
	assert.Len(t, impl.config.RequestInterceptors, 1)
}

func TestBuilderPayloadLogging(t *testing.T) {
	built := NewBuilder(nil).WithPayloadLogging(true, 0).Build().(*client)
	assert.True(t, built.config.LogPayloads)
	assert.Equal(t, defaultMaxPayloadLogBytes, built.config.MaxPayloadLogBytes)

	built = NewBuilder(nil).WithPayloadLogging(true, 64).Build().(*client)
	assert.Equal(t, 64, built.config.MaxPayloadLogBytes)
}
