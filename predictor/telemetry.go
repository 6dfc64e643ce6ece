package predictor

import (
	"context"
	"fmt"
	nethttp "net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"

	"github.com/modelstudio/modelstudio-go/httpclient"
	"github.com/modelstudio/modelstudio-go/observability"
)

const instrumentationName = "github.com/modelstudio/modelstudio-go/predictor"

// Attempt results recorded on the attempts counter.
const (
	resultSuccess = "success"
	resultTimeout = "timeout"
	resultFailure = "failure"
)

type instruments struct {
	attempts    metric.Int64Counter
	escalations metric.Int64Counter
	outcomes    metric.Int64Counter
	latency     metric.Float64Histogram
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(instrumentationName)

	attempts, err := observability.CreateCounter(meter, "modelstudio.predict.attempts", "Prediction HTTP attempts by result")
	if err != nil {
		return nil, fmt.Errorf("attempts counter: %w", err)
	}
	escalations, err := observability.CreateCounter(meter, "modelstudio.predict.timeout_escalations", "Timeouts that doubled the attempt timeout")
	if err != nil {
		return nil, fmt.Errorf("escalations counter: %w", err)
	}
	outcomes, err := observability.CreateCounter(meter, "modelstudio.predict.outcomes", "Prediction outcomes by result")
	if err != nil {
		return nil, fmt.Errorf("outcomes counter: %w", err)
	}
	latency, err := observability.CreateHistogram(meter, "modelstudio.predict.attempt.duration", "Duration of a single prediction attempt",
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("latency histogram: %w", err)
	}

	return &instruments{
		attempts:    attempts,
		escalations: escalations,
		outcomes:    outcomes,
		latency:     latency,
	}, nil
}

func (i *instruments) recordAttempt(ctx context.Context, result string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("result", result))
	i.attempts.Add(ctx, 1, attrs)
	i.latency.Record(ctx, seconds, attrs)
}

func (i *instruments) recordOutcome(ctx context.Context, failed bool) {
	result := resultSuccess
	if failed {
		result = resultFailure
	}
	i.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// propagateTraceContext injects the span context of the request context into
// the outgoing headers.
func propagateTraceContext(prop propagation.TextMapPropagator) httpclient.RequestInterceptor {
	return func(ctx context.Context, req *nethttp.Request) error {
		prop.Inject(ctx, propagation.HeaderCarrier(req.Header))
		return nil
	}
}
