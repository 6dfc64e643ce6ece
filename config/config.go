package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/modelstudio/modelstudio-go/predictor"
)

// EnvPrefix prefixes every environment variable read by Load.
// MODELSTUDIO_PREDICT_APIKEY maps to predict.apikey.
const EnvPrefix = "MODELSTUDIO_"

// Keys of the settings that can be overridden from the command line.
const (
	KeyURL        = "predict.url"
	KeyAPIKey     = "predict.apikey"
	KeyTimeout    = "predict.timeout"
	KeyMaxRetries = "predict.maxretries"
	KeyBaseDelay  = "predict.basedelay"
	KeyRate       = "predict.rate"
	KeyLogLevel   = "log.level"
	KeyLogPretty  = "log.pretty"

	KeyLogPayloads    = "log.payloads"
	KeyServiceVersion = "observability.service.version"
)

// Options selects the sources of Load.
type Options struct {
	// File is an optional YAML file. When set it must exist.
	File string
	// Version replaces the default observability.service.version.
	Version string
	// Overrides are applied last, keyed by dotted path (see the Key constants).
	Overrides map[string]any
}

// Load builds the configuration from, in increasing priority: defaults, the
// YAML file, MODELSTUDIO_* environment variables and opts.Overrides.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k, opts.Version); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", opts.File, err)
		}
	}

	return finish(k, opts.Overrides)
}

// LoadBytes is like Load with the YAML document given in memory instead of
// opts.File, which is ignored.
func LoadBytes(data []byte, opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k, opts.Version); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return finish(k, opts.Overrides)
}

func finish(k *koanf.Koanf, overrides map[string]any) (*Config, error) {
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey converts MODELSTUDIO_PREDICT_MAXRETRIES to predict.maxretries.
func envKey(key, value string) (string, any) {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "_", "."), value
}

// Defaults returns the default value of every key that has one.
func Defaults() map[string]any {
	return map[string]any{
		KeyTimeout:    predictor.DefaultTimeout.Seconds(),
		KeyMaxRetries: predictor.DefaultMaxRetries,
		KeyBaseDelay:  predictor.DefaultBaseDelay.Seconds(),
		KeyRate:       0.0,
		KeyLogLevel:   "warn",
		KeyLogPretty:  false,

		KeyLogPayloads:    false,
		KeyServiceVersion: "unknown",

		"observability.enabled":      false,
		"observability.service.name": "modelstudio",
	}
}

func loadDefaults(k *koanf.Koanf, version string) error {
	defaults := Defaults()
	if version != "" {
		defaults[KeyServiceVersion] = version
	}
	return k.Load(confmap.Provider(defaults, "."), nil)
}
