package config

import (
	"reflect"

	"github.com/modelstudio/modelstudio-go/observability"
	"github.com/modelstudio/modelstudio-go/predictor"
	"github.com/modelstudio/modelstudio-go/validation"
)

// Config is the configuration of the modelstudio command. Keys are loaded by
// koanf from defaults, an optional YAML file, MODELSTUDIO_* environment
// variables and command line flags, in increasing priority.
type Config struct {
	Predict       PredictConfig        `koanf:"predict" json:"predict" yaml:"predict"`
	Log           LogConfig            `koanf:"log" json:"log" yaml:"log"`
	Observability observability.Config `koanf:"observability" json:"observability" yaml:"observability"`
}

// PredictConfig holds the prediction client settings. Durations are given in
// seconds and may be fractional.
type PredictConfig struct {
	URL        string  `koanf:"url" json:"url" yaml:"url" validate:"required,url" doc:"Prediction API URL"`
	APIKey     string  `koanf:"apikey" json:"-" yaml:"apikey" validate:"required" doc:"API key sent as api_token"`
	Timeout    float64 `koanf:"timeout" json:"timeout" yaml:"timeout" validate:"gt=0" doc:"Initial request timeout in seconds"`
	MaxRetries int     `koanf:"maxretries" json:"maxretries" yaml:"maxretries" validate:"gt=0" doc:"Attempts per image"`
	BaseDelay  float64 `koanf:"basedelay" json:"basedelay" yaml:"basedelay" validate:"gt=0" doc:"Delay before the first retry in seconds"`
	// Rate caps images per second. Zero disables pacing.
	Rate float64 `koanf:"rate" json:"rate" yaml:"rate" validate:"gte=0" doc:"Maximum images per second"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error disabled" doc:"Log level"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty" doc:"Human readable log output"`
	// Payloads logs redacted request and response bodies at debug level.
	Payloads bool `koanf:"payloads" json:"payloads" yaml:"payloads" doc:"Log request and response bodies at debug level"`
}

// PredictorConfig converts the prediction settings into a predictor.Config.
func (c *Config) PredictorConfig() predictor.Config {
	return predictor.Config{
		URL:        c.Predict.URL,
		APIKey:     c.Predict.APIKey,
		Timeout:    predictor.Seconds(c.Predict.Timeout),
		MaxRetries: c.Predict.MaxRetries,
		BaseDelay:  predictor.Seconds(c.Predict.BaseDelay),
	}
}

// Describe lists every configuration key with its constraints, derived from
// the struct tags of Config.
func Describe() []validation.KeyInfo {
	return validation.ParseKeys(reflect.TypeOf(Config{}), "")
}
