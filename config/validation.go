package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// flagNames maps config paths to the command line flag setting them.
var flagNames = map[string]string{
	KeyURL:        "url",
	KeyAPIKey:     "api_key",
	KeyTimeout:    "timeout",
	KeyMaxRetries: "max_retries",
	KeyBaseDelay:  "base_delay",
	KeyRate:       "rate",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("koanf"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks cfg and returns every violation as a *ConfigError joined
// with errors.Join.
func Validate(cfg *Config) error {
	var errs []error

	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs = append(errs, fieldError(fe))
		}
	}

	obs := cfg.Observability
	obs.ApplyDefaults()
	if err := obs.Validate(); err != nil {
		errs = append(errs, NewInvalidFieldError("observability", err.Error()))
	}

	return errors.Join(errs...)
}

func fieldError(fe validator.FieldError) *ConfigError {
	// Namespace is "Config.predict.url"; drop the root type name.
	_, field, _ := strings.Cut(fe.Namespace(), ".")

	switch fe.Tag() {
	case "required":
		flag, ok := flagNames[field]
		if !ok {
			flag = field
		}
		return NewMissingFieldError(field, flag)
	case "url":
		return NewInvalidFieldError(field, fmt.Sprintf("must be a valid URL, got %q", fe.Value()))
	case "gt":
		return NewInvalidFieldError(field, fmt.Sprintf("must be positive, got %v", fe.Value()))
	case "gte":
		return NewInvalidFieldError(field, fmt.Sprintf("must not be negative, got %v", fe.Value()))
	case "oneof":
		return NewInvalidFieldError(field, fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", ")))
	default:
		return NewInvalidFieldError(field, "failed "+fe.Tag()+" validation")
	}
}
