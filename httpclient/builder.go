package httpclient

import (
	nethttp "net/http"
	"time"

	"github.com/modelstudio/modelstudio-go/logger"
)

const defaultMaxPayloadLogBytes = 1024

// Builder assembles a Client with a fluent API
type Builder struct {
	logger logger.Logger
	config *Config
}

// NewBuilder creates a builder with default configuration.
// The request ID interceptor is always installed.
func NewBuilder(log logger.Logger) *Builder {
	return &Builder{
		logger: log,
		config: &Config{
			Timeout:             30 * time.Second,
			RequestInterceptors: []RequestInterceptor{NewRequestIDInterceptor()},
			DefaultHeaders:      make(map[string]string),
			MaxPayloadLogBytes:  defaultMaxPayloadLogBytes,
		},
	}
}

// WithTimeout sets the default per-request timeout
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithDefaultHeader adds a header sent with every request
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithRequestInterceptor appends a request interceptor
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, interceptor)
	return b
}

// WithPayloadLogging enables debug logging of request and response bodies,
// truncated to maxBytes (values <= 0 keep the default of 1024).
func (b *Builder) WithPayloadLogging(enabled bool, maxBytes int) *Builder {
	b.config.LogPayloads = enabled
	if maxBytes > 0 {
		b.config.MaxPayloadLogBytes = maxBytes
	}
	return b
}

// Build creates the Client
func (b *Builder) Build() Client {
	log := b.logger
	if log == nil {
		log = logger.Nop()
	}
	return &client{
		httpClient: &nethttp.Client{},
		logger:     log,
		config:     b.config,
	}
}
