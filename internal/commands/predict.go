package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/modelstudio/modelstudio-go/config"
	"github.com/modelstudio/modelstudio-go/images"
	"github.com/modelstudio/modelstudio-go/logger"
	"github.com/modelstudio/modelstudio-go/observability"
	"github.com/modelstudio/modelstudio-go/predictor"
	"github.com/modelstudio/modelstudio-go/runner"
)

var errNoImages = errors.New("at least one image is required (--images)")

// PredictOptions holds the flags of the predict command
type PredictOptions struct {
	URL         string
	APIKey      string
	Images      []string
	Timeout     float64
	MaxRetries  int
	BaseDelay   float64
	Rate        float64
	LogPayloads bool
	ConfigFile  string
}

// flagKeys maps predict flags to the config keys they override.
var flagKeys = map[string]string{
	"url":          config.KeyURL,
	"api_key":      config.KeyAPIKey,
	"timeout":      config.KeyTimeout,
	"max_retries":  config.KeyMaxRetries,
	"base_delay":   config.KeyBaseDelay,
	"rate":         config.KeyRate,
	"log_payloads": config.KeyLogPayloads,
}

// NewPredictCommand creates the predict command
func NewPredictCommand(global *globalOptions) *cobra.Command {
	opts := &PredictOptions{}

	cmd := &cobra.Command{
		Use:   "predict --url URL --api_key KEY --images IMAGE [IMAGE...]",
		Short: "Predict one or more images",
		Long: `Sends every image to the prediction API in order and prints "<image> <result>"
for each. Processing stops at the first result carrying an "error" key.

Settings are read from defaults, the --config YAML file, MODELSTUDIO_* environment
variables and flags, in increasing priority. "--config -" reads the YAML from stdin.`,
		Example: `  # Predict two images
  modelstudio predict --url https://api.example.com/predict --api_key $KEY --images cat.jpg dog.jpg

  # Give slow servers more time and retry more often
  modelstudio predict --config modelstudio.yaml --timeout 30 --max_retries 5 --images scan.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Images = append(opts.Images, args...)
			return runPredict(cmd, global, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.URL, "url", "", "Prediction API URL")
	flags.StringVar(&opts.APIKey, "api_key", "", "API key sent as api_token")
	flags.StringArrayVar(&opts.Images, "images", nil, "Image files to predict")
	flags.Float64Var(&opts.Timeout, "timeout", predictor.DefaultTimeout.Seconds(), "Initial request timeout in seconds")
	flags.IntVar(&opts.MaxRetries, "max_retries", predictor.DefaultMaxRetries, "Attempts per image")
	flags.Float64Var(&opts.BaseDelay, "base_delay", predictor.DefaultBaseDelay.Seconds(), "Delay before the first retry in seconds")
	flags.Float64Var(&opts.Rate, "rate", 0, "Maximum images per second, 0 for no limit")
	flags.BoolVar(&opts.LogPayloads, "log_payloads", false, "Log redacted request and response bodies at debug level")
	flags.StringVar(&opts.ConfigFile, "config", "", "YAML configuration file, - for stdin")

	return cmd
}

// overrides returns the config keys of the flags set on the command line.
func overrides(cmd *cobra.Command, opts *PredictOptions, global *globalOptions) map[string]any {
	values := map[string]any{
		"url":          opts.URL,
		"api_key":      opts.APIKey,
		"timeout":      opts.Timeout,
		"max_retries":  opts.MaxRetries,
		"base_delay":   opts.BaseDelay,
		"rate":         opts.Rate,
		"log_payloads": opts.LogPayloads,
	}

	out := make(map[string]any)
	for flag, key := range flagKeys {
		if cmd.Flags().Changed(flag) {
			out[key] = values[flag]
		}
	}
	if global.Verbosity > 0 {
		out[config.KeyLogLevel] = logger.LevelForVerbosity(global.Verbosity)
	}
	return out
}

func runPredict(cmd *cobra.Command, global *globalOptions, opts *PredictOptions) error {
	if len(opts.Images) == 0 {
		return errNoImages
	}

	cfg, err := loadConfig(cmd, opts, global)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Pretty)

	provider, err := observability.NewProvider(&cfg.Observability, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := observability.Shutdown(provider, observability.DefaultShutdownTimeout); err != nil {
			log.Warn().Err(err).Msg("Failed to flush telemetry")
		}
	}()

	p, err := predictor.New(cfg.PredictorConfig(),
		predictor.WithLogger(log),
		predictor.WithTracerProvider(provider.TracerProvider()),
		predictor.WithMeterProvider(provider.MeterProvider()),
		predictor.WithUserAgent(ProgramName+"/"+global.Version),
		predictor.WithPayloadLogging(cfg.Log.Payloads),
	)
	if err != nil {
		return err
	}

	r := &runner.Runner{
		Predictor: p,
		Output:    cmd.OutOrStdout(),
		Limiter:   runner.NewLimiter(cfg.Predict.Rate),
		Logger:    log,
	}
	source := images.Read(opts.Images...)
	summary, err := r.Run(cmd.Context(), source)
	if err != nil {
		return err
	}

	log.Info().
		Int("processed", summary.Processed).
		Int("total", source.Len()).
		Str("stopped_at", summary.Stopped).
		Msg("Prediction run finished")
	return nil
}

// loadConfig layers the --config source, the environment and the set flags.
// A --config of "-" reads the YAML document from stdin.
func loadConfig(cmd *cobra.Command, opts *PredictOptions, global *globalOptions) (*config.Config, error) {
	options := config.Options{
		Version:   global.Version,
		Overrides: overrides(cmd, opts, global),
	}
	if opts.ConfigFile != "-" {
		options.File = opts.ConfigFile
		return config.Load(options)
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("failed to read config from stdin: %w", err)
	}
	return config.LoadBytes(data, options)
}
