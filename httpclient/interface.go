// Package httpclient is the single-attempt HTTP transport used by the prediction
// client. Retrying is the caller's job; this package reports each failure as a
// typed ClientError so the caller can tell timeouts from other failures.
package httpclient

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/modelstudio/modelstudio-go/trace"
)

// HeaderXRequestID is the header carrying the per-prediction request ID
const HeaderXRequestID = trace.HeaderXRequestID

// Client defines the HTTP client interface used by the predictor
type Client interface {
	Post(ctx context.Context, req *Request) (*Response, error)
	Do(ctx context.Context, method string, req *Request) (*Response, error)
}

// Request represents an HTTP request with all necessary data
type Request struct {
	URL     string
	Headers map[string]string
	Body    []byte
	// Timeout bounds the whole exchange including reading the response body.
	// Zero means the client default.
	Timeout time.Duration
}

// Response represents an HTTP response with tracking information
type Response struct {
	StatusCode int
	Body       []byte
	Headers    nethttp.Header
	Stats      Stats
}

// Stats contains request execution statistics
type Stats struct {
	ElapsedTime time.Duration
	CallCount   int64
}

// RequestInterceptor is called before sending the request
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// Config holds the client configuration
type Config struct {
	Timeout             time.Duration
	RequestInterceptors []RequestInterceptor
	DefaultHeaders      map[string]string
	// LogPayloads enables debug-level logging of headers and body payloads
	LogPayloads bool
	// MaxPayloadLogBytes caps the number of body bytes logged when LogPayloads is enabled
	MaxPayloadLogBytes int
}

// NewRequestIDInterceptor sets the X-Request-ID header from the context,
// generating one when the context carries none.
func NewRequestIDInterceptor() RequestInterceptor {
	return func(ctx context.Context, req *nethttp.Request) error {
		if req.Header.Get(HeaderXRequestID) == "" {
			req.Header.Set(HeaderXRequestID, trace.EnsureRequestID(ctx))
		}
		return nil
	}
}
