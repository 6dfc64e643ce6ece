// Package predictor submits images to a remote prediction API and retries
// transient failures with exponential backoff and timeout escalation.
//
// A Predictor issues at most Config.MaxRetries POST requests per image. An
// attempt that times out doubles the timeout of every later attempt; any other
// failure (connection error, non-2xx status, malformed body) leaves it alone.
// Between attempts it sleeps BaseDelay * 2^attempt. Predict never returns an
// error: exhaustion is reported as a failure Outcome.
package predictor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/modelstudio/modelstudio-go/httpclient"
	"github.com/modelstudio/modelstudio-go/images"
	"github.com/modelstudio/modelstudio-go/logger"
	"github.com/modelstudio/modelstudio-go/trace"
)

// exhaustedFormat reports the zero-based index of the last attempt, not the
// number of attempts. Kept as is for compatibility with existing consumers.
const exhaustedFormat = "An error occurred after %d attempts."

var errEmptyImage = errors.New("image is empty")

// Request is the JSON body sent to the prediction API.
type Request struct {
	APIToken string `json:"api_token"`
	ImageB64 string `json:"image_b64"`
}

// NewRequest base64-encodes image and pairs it with apiKey.
func NewRequest(apiKey string, image []byte) Request {
	return Request{
		APIToken: apiKey,
		ImageB64: base64.StdEncoding.EncodeToString(image),
	}
}

type attemptKind int

const (
	attemptSucceeded attemptKind = iota
	attemptTimedOut
	attemptFailed
)

// attemptResult is the classified result of one HTTP attempt.
type attemptResult struct {
	kind attemptKind
	body any
	err  error
}

// Predictor owns the retry loop. It is safe for sequential reuse across
// images; no state is kept between Predict calls.
type Predictor struct {
	cfg     Config
	client  httpclient.Client
	logger  logger.Logger
	sleep   Sleeper
	tracer  oteltrace.Tracer
	metrics *instruments
}

type options struct {
	client         httpclient.Client
	logger         logger.Logger
	sleep          Sleeper
	tracerProvider oteltrace.TracerProvider
	meterProvider  metric.MeterProvider
	propagator     propagation.TextMapPropagator
	userAgent      string
	logPayloads    bool
}

// Option configures a Predictor.
type Option func(*options)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithUserAgent sets the User-Agent header of the default HTTP client.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithPayloadLogging makes the default HTTP client log redacted request and
// response bodies at debug level.
func WithPayloadLogging(enabled bool) Option {
	return func(o *options) { o.logPayloads = enabled }
}

// WithPropagator sets the propagator injecting the attempt span context into
// request headers. Defaults to the global otel propagator.
func WithPropagator(prop propagation.TextMapPropagator) Option {
	return func(o *options) { o.propagator = prop }
}

// WithHTTPClient replaces the HTTP transport. Defaults to an httpclient built
// with the predictor's logger. The options configuring the default client
// have no effect on a replaced one.
func WithHTTPClient(c httpclient.Client) Option {
	return func(o *options) { o.client = c }
}

// WithSleeper replaces the backoff sleep.
func WithSleeper(s Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// WithTracerProvider enables tracing of predictions and attempts.
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider enables attempt and outcome metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// New creates a Predictor. It fails only when cfg is invalid or the metric
// instruments cannot be created.
func New(cfg Config, opts ...Option) (*Predictor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{
		sleep:          sleepContext,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.Nop()
	}
	if o.propagator == nil {
		o.propagator = otel.GetTextMapPropagator()
	}
	if o.client == nil {
		o.client = newHTTPClient(cfg, o)
	}

	metrics, err := newInstruments(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create predictor metrics: %w", err)
	}

	return &Predictor{
		cfg:     cfg,
		client:  o.client,
		logger:  o.logger,
		sleep:   o.sleep,
		tracer:  o.tracerProvider.Tracer(instrumentationName),
		metrics: metrics,
	}, nil
}

func newHTTPClient(cfg Config, o *options) httpclient.Client {
	b := httpclient.NewBuilder(o.logger).
		WithTimeout(cfg.Timeout).
		WithDefaultHeader("Accept", "application/json").
		WithRequestInterceptor(propagateTraceContext(o.propagator)).
		WithPayloadLogging(o.logPayloads, 0)
	if o.userAgent != "" {
		b = b.WithDefaultHeader("User-Agent", o.userAgent)
	}
	return b.Build()
}

// Config returns the predictor configuration.
func (p *Predictor) Config() Config { return p.cfg }

// PredictFile opens the image at path, predicts it and closes the file.
func (p *Predictor) PredictFile(ctx context.Context, path string) Outcome {
	f, err := images.New(path).Open()
	if err != nil {
		p.logger.Error().Err(err).Str("path", path).Msg("Could not open image")
		return Failure(fmt.Sprintf("could not open image %s: %v", path, err))
	}
	defer f.Close()

	return p.Predict(ctx, f)
}

// Predict sends image to the prediction API and returns exactly one Outcome.
// Cancelling ctx interrupts the backoff sleep and ends the retry loop early.
func (p *Predictor) Predict(ctx context.Context, image io.Reader) Outcome {
	ctx = trace.WithRequestID(ctx, trace.EnsureRequestID(ctx))
	ctx, span := p.tracer.Start(ctx, "modelstudio.predict")
	defer span.End()

	body, err := p.encode(image)
	if err != nil {
		p.logger.Error().Err(err).Msg("Could not read image")
		span.SetStatus(codes.Error, err.Error())
		p.metrics.recordOutcome(ctx, true)
		return Failure(fmt.Sprintf("could not read image: %v", err))
	}

	p.logger.Debug().
		Str("url", p.cfg.URL).
		Int("body_size", len(body)).
		Msg("Sending request")

	outcome := p.retry(ctx, body)

	span.SetAttributes(attribute.Bool("modelstudio.failed", outcome.Failed()))
	if outcome.Failed() {
		span.SetStatus(codes.Error, outcome.ErrorMessage())
	}
	p.metrics.recordOutcome(ctx, outcome.Failed())
	return outcome
}

func (p *Predictor) retry(ctx context.Context, body []byte) Outcome {
	state := newAttemptState(p.cfg)

	last := 0
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		last = attempt

		res := p.attempt(ctx, body, attempt, state.timeout)
		switch res.kind {
		case attemptSucceeded:
			return Success(res.body)
		case attemptTimedOut:
			timeout := state.escalate()
			p.metrics.escalations.Add(ctx, 1)
			p.logger.Error().
				Float64("timeout", timeout.Seconds()).
				Msgf("Request timed out. Adapting timeout: %s", timeout)
		case attemptFailed:
			p.logger.Warn().
				Err(res.err).
				Int("attempt", attempt+1).
				Int("max_retries", p.cfg.MaxRetries).
				Msgf("Attempt %d/%d failed", attempt+1, p.cfg.MaxRetries)
		}

		if attempt == p.cfg.MaxRetries-1 {
			break
		}

		delay := state.nextDelay()
		p.logger.Debug().
			Dur("delay", delay).
			Msgf("Retrying in %s", delay)
		if err := p.sleep(ctx, delay); err != nil {
			p.logger.Warn().Err(err).Msg("Retry loop interrupted")
			break
		}
	}

	p.logger.Error().Msg("Max retries reached. Request failed.")
	return Failure(fmt.Sprintf(exhaustedFormat, last))
}

// attempt performs one POST with the given timeout and classifies the result.
func (p *Predictor) attempt(ctx context.Context, body []byte, attempt int, timeout time.Duration) attemptResult {
	ctx, span := p.tracer.Start(ctx, "modelstudio.predict.attempt", oteltrace.WithAttributes(
		attribute.Int("modelstudio.attempt", attempt),
		attribute.Float64("modelstudio.timeout_seconds", timeout.Seconds()),
	))
	defer span.End()

	start := time.Now()
	res := p.send(ctx, body, timeout)
	elapsed := time.Since(start).Seconds()

	switch res.kind {
	case attemptSucceeded:
		p.metrics.recordAttempt(ctx, resultSuccess, elapsed)
	case attemptTimedOut:
		p.metrics.recordAttempt(ctx, resultTimeout, elapsed)
		span.RecordError(res.err)
		span.SetStatus(codes.Error, "timeout")
	default:
		p.metrics.recordAttempt(ctx, resultFailure, elapsed)
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
	}
	return res
}

func (p *Predictor) send(ctx context.Context, body []byte, timeout time.Duration) attemptResult {
	resp, err := p.client.Post(ctx, &httpclient.Request{
		URL:     p.cfg.URL,
		Body:    body,
		Timeout: timeout,
	})
	if err != nil {
		if httpclient.IsErrorType(err, httpclient.TimeoutError) {
			return attemptResult{kind: attemptTimedOut, err: err}
		}
		return attemptResult{kind: attemptFailed, err: err}
	}

	var decoded any
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return attemptResult{kind: attemptFailed, err: fmt.Errorf("malformed response body: %w", err)}
	}

	p.logger.Debug().Bytes("response", resp.Body).Msg("Received response")
	return attemptResult{kind: attemptSucceeded, body: decoded}
}

// encode reads the whole image and builds the JSON request body.
func (p *Predictor) encode(image io.Reader) ([]byte, error) {
	if image == nil {
		return nil, errEmptyImage
	}
	raw, err := io.ReadAll(image)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errEmptyImage
	}
	return json.Marshal(NewRequest(p.cfg.APIKey, raw))
}
