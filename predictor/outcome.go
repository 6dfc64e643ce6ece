package predictor

import (
	"encoding/json"
	"fmt"
)

// ErrorKey is the key of the failure record and the key callers look for to
// stop processing further images.
const ErrorKey = "error"

// Outcome is the terminal value of a Predict call: either the decoded
// response body of a successful request or a failure record.
type Outcome struct {
	body    any
	message string
	failed  bool
}

// Success wraps a decoded response body.
func Success(body any) Outcome {
	return Outcome{body: body}
}

// Failure creates a failure record carrying message.
func Failure(message string) Outcome {
	return Outcome{message: message, failed: true}
}

// Failed reports whether the outcome is a failure record.
func (o Outcome) Failed() bool { return o.failed }

// Body returns the decoded response body, nil for failures.
func (o Outcome) Body() any { return o.body }

// ErrorMessage returns the failure message, empty for successes.
func (o Outcome) ErrorMessage() string { return o.message }

// HasError reports whether the outcome carries an "error" key: every failure
// does, and so does a successful body that is an object with that key.
func (o Outcome) HasError() bool {
	if o.failed {
		return true
	}
	m, ok := o.body.(map[string]any)
	if !ok {
		return false
	}
	_, has := m[ErrorKey]
	return has
}

// Value returns the outcome as a plain value: the body for successes,
// {"error": message} for failures.
func (o Outcome) Value() any {
	if o.failed {
		return map[string]any{ErrorKey: o.message}
	}
	return o.body
}

// MarshalJSON renders Value as JSON.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value())
}

func (o Outcome) String() string {
	b, err := json.Marshal(o.Value())
	if err != nil {
		return fmt.Sprint(o.Value())
	}
	return string(b)
}
