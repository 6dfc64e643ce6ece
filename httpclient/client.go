package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/modelstudio/modelstudio-go/logger"
	"github.com/modelstudio/modelstudio-go/trace"
)

type client struct {
	httpClient *nethttp.Client
	logger     logger.Logger
	config     *Config
	callCount  atomic.Int64
}

// Post performs a POST request
func (c *client) Post(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPost, req)
}

// Do performs a single HTTP exchange. A non-2xx status returns both the
// response and an HTTPError.
func (c *client) Do(ctx context.Context, method string, req *Request) (*Response, error) {
	if req == nil || req.URL == "" {
		return nil, NewValidationError("request URL is required", "url")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader = nethttp.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, NewValidationError(err.Error(), "url")
	}

	for k, v := range c.config.DefaultHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	for _, interceptor := range c.config.RequestInterceptors {
		if err := interceptor(ctx, httpReq); err != nil {
			return nil, NewInterceptorError("request interceptor failed", "request", err)
		}
	}

	requestID := httpReq.Header.Get(HeaderXRequestID)
	if requestID == "" {
		requestID = trace.EnsureRequestID(ctx)
	}
	c.logRequest(httpReq, req.Body, requestID)

	start := time.Now()
	callCount := c.callCount.Add(1)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err, timeout)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err, timeout)
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Headers:    resp.Header,
		Stats: Stats{
			ElapsedTime: time.Since(start),
			CallCount:   callCount,
		},
	}
	c.logResponse(response, requestID)

	if !IsSuccessStatus(resp.StatusCode) {
		return response, NewHTTPError(fmt.Sprintf("unexpected status %s", nethttp.StatusText(resp.StatusCode)), resp.StatusCode, respBody)
	}
	return response, nil
}

// classifyTransportError maps deadline and net timeouts to TimeoutError and
// everything else to NetworkError.
func classifyTransportError(err error, timeout time.Duration) ClientError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("request did not complete in time", timeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError("request did not complete in time", timeout)
	}
	return NewNetworkError("request failed", err)
}

func (c *client) maxPayloadLogBytes() int {
	if c.config.MaxPayloadLogBytes <= 0 {
		return defaultMaxPayloadLogBytes
	}
	return c.config.MaxPayloadLogBytes
}

func (c *client) logRequest(req *nethttp.Request, body []byte, requestID string) {
	event := c.logger.Info().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("request_id", requestID)
	if n := len(req.Header); n > 0 {
		event = event.Int("header_count", n)
	}
	if len(body) > 0 {
		event = event.Int("body_size", len(body))
	}
	event.Msg("REST client request")

	if !c.config.LogPayloads {
		return
	}
	preview, truncated := c.truncate(redactJSON(body))
	c.logger.Debug().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("request_id", requestID).
		Interface("headers", flattenHeaders(req.Header)).
		Int("body_size", len(body)).
		Str("body_truncated", strconv.FormatBool(truncated)).
		Bytes("body_preview", preview).
		Msg("REST client request")
}

func (c *client) logResponse(resp *Response, requestID string) {
	event := c.logger.Info().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Dur("elapsed", resp.Stats.ElapsedTime).
		Int64("call_count", resp.Stats.CallCount).
		Str("request_id", requestID)
	if len(resp.Body) > 0 {
		event = event.Int("body_size", len(resp.Body))
	}
	event.Msg("REST client response")

	if !c.config.LogPayloads {
		return
	}
	preview, truncated := c.truncate(resp.Body)
	c.logger.Debug().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Str("request_id", requestID).
		Interface("headers", flattenHeaders(resp.Headers)).
		Int("body_size", len(resp.Body)).
		Str("body_truncated", strconv.FormatBool(truncated)).
		Bytes("body_preview", preview).
		Msg("REST client response")
}

func (c *client) truncate(body []byte) ([]byte, bool) {
	limit := c.maxPayloadLogBytes()
	if len(body) > limit {
		return body[:limit], true
	}
	return body, false
}

var payloadFilter = logger.NewSensitiveDataFilter(logger.DefaultFilterConfig())

// redactJSON masks credential fields of a JSON object body before it is logged.
// Bodies that are not JSON objects are returned unchanged.
func redactJSON(body []byte) []byte {
	var fields map[string]any
	if len(body) == 0 || json.Unmarshal(body, &fields) != nil {
		return body
	}
	redacted, err := json.Marshal(payloadFilter.FilterFields(fields))
	if err != nil {
		return body
	}
	return redacted
}

func flattenHeaders(h nethttp.Header) map[string]string {
	flat := make(map[string]string, len(h))
	for k := range h {
		flat[k] = h.Get(k)
	}
	return flat
}
