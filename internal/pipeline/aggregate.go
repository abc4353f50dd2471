package pipeline

import (
	"context"

	"github.com/suricates/suitability/internal/ops"
)

// Aggregator folds contribution rasters into the final pair of outputs.
type Aggregator struct {
	lib *ops.Library
}

// NewAggregator creates an aggregator over the given operation library.
func NewAggregator(lib *ops.Library) *Aggregator {
	return &Aggregator{lib: lib}
}

// Cumulate reduces the rasters with the six-input sum: the first raster
// seeds the accumulator and each batch folds in up to five more. An
// empty input yields no raster; a single raster is returned as-is
// without creating an artifact.
func (a *Aggregator) Cumulate(ctx context.Context, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}
	acc := paths[0]
	for i := 1; i < len(paths); i += 5 {
		end := i + 5
		if end > len(paths) {
			end = len(paths)
		}
		batch := make([]string, 0, 6)
		batch = append(batch, acc)
		batch = append(batch, paths[i:end]...)
		next, err := a.lib.Sum(ctx, batch)
		if err != nil {
			return "", err
		}
		acc = next
	}
	return acc, nil
}

// Finalize rescales the cumulative raster to [0, 1] and derives the
// thresholded variant that keeps only cells strictly below coef.
func (a *Aggregator) Finalize(ctx context.Context, cumulative string, coef float64) (normalized, thresholded string, err error) {
	normalized, err = a.lib.Normalize(ctx, cumulative, ops.NormalizeParams{Ceiling: 1})
	if err != nil {
		return "", "", err
	}
	thresholded, err = a.lib.Threshold(ctx, normalized, coef)
	if err != nil {
		return "", "", err
	}
	return normalized, thresholded, nil
}
