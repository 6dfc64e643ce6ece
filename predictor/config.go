package predictor

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults used by the command line tool.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2 * time.Second
)

// Config is the immutable configuration of a Predictor.
type Config struct {
	// URL is the prediction endpoint receiving the POST requests.
	URL string `validate:"required,url"`
	// APIKey is sent as api_token in every request body. It is never logged.
	APIKey string `validate:"required"`
	// Timeout is the timeout of the first attempt. It doubles after every
	// attempt that times out.
	Timeout time.Duration `validate:"gt=0"`
	// MaxRetries is the total number of attempts, including the first one.
	MaxRetries int `validate:"gt=0"`
	// BaseDelay is the backoff before the second attempt; each later backoff doubles.
	BaseDelay time.Duration `validate:"gt=0"`
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate reports every field that violates its constraint.
func (c Config) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "url":
			msgs = append(msgs, fe.Field()+" must be a valid URL")
		case "gt":
			msgs = append(msgs, fe.Field()+" must be positive")
		default:
			msgs = append(msgs, fe.Field()+" failed validation")
		}
	}
	return fmt.Errorf("invalid predictor config: %s", strings.Join(msgs, "; "))
}

// Seconds converts a fractional number of seconds, as accepted on the command
// line, to a time.Duration. Positive values are clamped to [1ns, MaxInt64ns]
// so they stay positive; zero, negative and NaN inputs map to zero.
func Seconds(s float64) time.Duration {
	ns := s * float64(time.Second)
	switch {
	case math.IsNaN(ns) || ns <= 0:
		return 0
	case ns >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	case ns < 1:
		return time.Nanosecond
	}
	return time.Duration(ns)
}
