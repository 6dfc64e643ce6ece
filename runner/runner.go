// Package runner feeds images to a predictor one at a time, prints one
// result line per image and stops at the first outcome carrying an error.
package runner

import (
	"context"
	"fmt"
	"io"
	"iter"

	"golang.org/x/time/rate"

	"github.com/modelstudio/modelstudio-go/images"
	"github.com/modelstudio/modelstudio-go/logger"
	"github.com/modelstudio/modelstudio-go/predictor"
)

// Predictor is the part of *predictor.Predictor the runner needs.
type Predictor interface {
	PredictFile(ctx context.Context, path string) predictor.Outcome
}

// Source yields labelled images in order.
type Source interface {
	All() iter.Seq2[string, images.Image]
}

// Runner processes a Source sequentially.
type Runner struct {
	Predictor Predictor
	// Output receives one "<label> <outcome>" line per processed image.
	Output io.Writer
	// Limiter paces requests between images. Nil means no pacing.
	Limiter *rate.Limiter
	Logger  logger.Logger
}

// Summary describes a completed run.
type Summary struct {
	Processed int
	// Failed is set when the run stopped on an outcome carrying an error.
	Failed bool
	// Stopped is the label of the image whose outcome stopped the run.
	Stopped string
}

// NewLimiter returns a limiter allowing perSecond images per second, or nil
// when perSecond is not positive.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Run predicts every image of source in order. It returns an error only
// when ctx ends while waiting on the limiter or when a result line cannot
// be written. An outcome carrying an error ends the run without an error.
func (r *Runner) Run(ctx context.Context, source Source) (Summary, error) {
	log := r.Logger
	if log == nil {
		log = logger.Nop()
	}

	var summary Summary
	for label, img := range source.All() {
		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				return summary, fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}

		log.Info().Str("image", label).Msg("Predicting image")
		outcome := r.Predictor.PredictFile(ctx, img.Path)
		summary.Processed++

		if _, err := fmt.Fprintf(r.Output, "%s %s\n", label, outcome); err != nil {
			return summary, fmt.Errorf("writing result for %s: %w", label, err)
		}

		if outcome.HasError() {
			summary.Failed = true
			summary.Stopped = label
			log.Warn().
				Str("image", label).
				Int("processed", summary.Processed).
				Msg("Stopping after an error outcome")
			break
		}
	}
	return summary, nil
}
