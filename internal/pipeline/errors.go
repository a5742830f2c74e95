package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sprawl-cli/internal/model"
)

// Terminal failures of an analysis. Every error returned by Analyze matches
// at most one of them with errors.Is.
var (
	ErrDistrictNotFound = eris.New("pipeline: district not found")
	ErrNoImagery        = eris.New("pipeline: no imagery covers the district in the date range")
	ErrNoValidTiles     = eris.New("pipeline: no tile could be fetched")
	ErrCancelled        = eris.New("pipeline: analysis cancelled")
	ErrExternalService  = eris.New("pipeline: external service failed")
)

// ErrInvalidScale is a configuration error: the resampling scale must lie in (0, 1].
var ErrInvalidScale = eris.New("pipeline: scale must be in (0, 1]")

// Outcome maps an Analyze error to the outcome recorded for the run.
func Outcome(err error) model.Outcome {
	switch {
	case err == nil:
		return model.OutcomeDone
	case errors.Is(err, ErrDistrictNotFound):
		return model.OutcomeDistrictNotFound
	case errors.Is(err, ErrNoImagery):
		return model.OutcomeNoImagery
	case errors.Is(err, ErrNoValidTiles):
		return model.OutcomeNoValidTiles
	case errors.Is(err, ErrCancelled):
		return model.OutcomeCancelled
	default:
		return model.OutcomeError
	}
}

// cancelled reports whether err or ctx show the analysis was cancelled or ran
// past its deadline.
func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
