package ops

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/suricates/suitability/internal/domain"
	"github.com/suricates/suitability/internal/raster"
	"github.com/suricates/suitability/internal/vector"
)

// Artifact extensions. Vector artifacts are GeoJSON, raster artifacts
// use the binary grid format, and inversion round-trips through an
// ASCII grid.
const (
	extVector = ".geojson"
	extRaster = ".grd"
	extASCII  = ".asc"
)

// BufferParams configures BufferVector.
type BufferParams struct {
	Distance float64
	Segments int
}

// RasterizeParams configures Rasterize. Burn is the value written into
// cells whose center falls inside the geometry.
type RasterizeParams struct {
	Extent domain.Extent
	Width  int
	Height int
	Burn   float64
}

// NormalizeParams configures Normalize. Ceiling is the value the
// largest cell maps to, or the smallest when Invert is set.
type NormalizeParams struct {
	Invert  bool
	Ceiling float64
}

// Library executes the primitive raster operations. Each call consumes
// file paths, materializes its result as a fresh Workspace artifact,
// and returns the artifact path. Cancellation is honored on entry so a
// cancelled run stops before producing its next artifact.
type Library struct {
	ws  *Workspace
	log zerolog.Logger
}

// NewLibrary binds an operation library to a workspace.
func NewLibrary(ws *Workspace, log zerolog.Logger) *Library {
	return &Library{ws: ws, log: log.With().Str("component", "ops").Logger()}
}

// Workspace exposes the bound workspace for artifact bookkeeping.
func (l *Library) Workspace() *Workspace {
	return l.ws
}

func (l *Library) begin(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapEngineError(domain.ErrRunCancelled.Code, op+" not started", err)
	}
	return nil
}

func (l *Library) done(op, out string) {
	l.log.Debug().Str("op", op).Str("artifact", out).Msg("artifact created")
}

// BufferVector grows the geometry of a vector file outward by
// p.Distance and writes the result as a new vector artifact.
func (l *Library) BufferVector(ctx context.Context, vectorPath string, p BufferParams) (string, error) {
	if err := l.begin(ctx, "buffer"); err != nil {
		return "", err
	}
	if p.Distance < 0 {
		return "", domain.NewEngineError(domain.ErrOpParams.Code, "buffer distance must not be negative")
	}
	g, err := vector.Load(vectorPath)
	if err != nil {
		return "", err
	}
	out := l.ws.NewFile(extVector)
	if err := vector.Save(out, vector.Buffer(g, p.Distance, p.Segments)); err != nil {
		return "", err
	}
	l.done("buffer", out)
	return out, nil
}

// Rasterize burns a vector file into a fresh grid. Covered cells take
// p.Burn, everything else stays nodata.
func (l *Library) Rasterize(ctx context.Context, vectorPath string, p RasterizeParams) (string, error) {
	if err := l.begin(ctx, "rasterize"); err != nil {
		return "", err
	}
	if p.Width <= 0 || p.Height <= 0 {
		return "", domain.NewEngineError(domain.ErrOpParams.Code, "rasterize grid shape must be positive")
	}
	g, err := vector.Load(vectorPath)
	if err != nil {
		return "", err
	}
	ext := p.Extent
	if ext.CRS == "" {
		ext.CRS = g.CRS
	}
	r := raster.New(p.Width, p.Height, ext)
	for row := 0; row < p.Height; row++ {
		for col := 0; col < p.Width; col++ {
			if x, y := r.CellCenter(col, row); g.Contains(x, y) {
				r.Set(col, row, float32(p.Burn))
			}
		}
	}
	out := l.ws.NewFile(extRaster)
	if err := raster.Write(out, r); err != nil {
		return "", err
	}
	l.done("rasterize", out)
	return out, nil
}

// Proximity writes, for every cell, the distance from its center to the
// nearest data cell of the input, in extent units. An input without any
// data cells yields an all-nodata raster.
func (l *Library) Proximity(ctx context.Context, rasterPath string) (string, error) {
	if err := l.begin(ctx, "proximity"); err != nil {
		return "", err
	}
	in, err := raster.Read(rasterPath)
	if err != nil {
		return "", err
	}
	r := raster.New(in.Width, in.Height, in.Extent)
	if _, _, count := in.Stats(); count > 0 {
		for i, d := range distances(in) {
			r.Cells[i] = float32(d)
		}
	}
	out := l.ws.NewFile(extRaster)
	if err := raster.Write(out, r); err != nil {
		return "", err
	}
	l.done("proximity", out)
	return out, nil
}

// Clip keeps data cells of the input only where the mask also has data.
func (l *Library) Clip(ctx context.Context, dataPath, maskPath string) (string, error) {
	if err := l.begin(ctx, "clip"); err != nil {
		return "", err
	}
	data, err := raster.Read(dataPath)
	if err != nil {
		return "", err
	}
	mask, err := raster.Read(maskPath)
	if err != nil {
		return "", err
	}
	if !data.SameGrid(mask) {
		return "", domain.NewEngineError(domain.ErrGridMismatch.Code, "clip inputs have different grids")
	}
	r := raster.New(data.Width, data.Height, data.Extent)
	for i, v := range data.Cells {
		if !raster.IsNoData(v) && !raster.IsNoData(mask.Cells[i]) {
			r.Cells[i] = v
		}
	}
	out := l.ws.NewFile(extRaster)
	if err := raster.Write(out, r); err != nil {
		return "", err
	}
	l.done("clip", out)
	return out, nil
}

// Invert swaps the data/nodata classification: former data cells become
// nodata and former nodata cells become data with value 0. The result
// round-trips through an ASCII grid artifact before landing in the
// binary format, so two artifacts are produced.
func (l *Library) Invert(ctx context.Context, rasterPath string) (string, error) {
	if err := l.begin(ctx, "invert"); err != nil {
		return "", err
	}
	in, err := raster.Read(rasterPath)
	if err != nil {
		return "", err
	}
	flipped := raster.New(in.Width, in.Height, in.Extent)
	for i, v := range in.Cells {
		if raster.IsNoData(v) {
			flipped.Cells[i] = 0
		}
	}
	mid := l.ws.NewFile(extASCII)
	if err := raster.WriteASC(mid, flipped); err != nil {
		return "", err
	}
	back, err := raster.ReadASC(mid)
	if err != nil {
		return "", err
	}
	// The ASCII format drops the CRS.
	back.Extent.CRS = in.Extent.CRS
	out := l.ws.NewFile(extRaster)
	if err := raster.Write(out, back); err != nil {
		return "", err
	}
	l.done("invert", out)
	return out, nil
}

// MergeLayers fills a's nodata holes from b. Where both rasters carry
// data, a wins.
func (l *Library) MergeLayers(ctx context.Context, aPath, bPath string) (string, error) {
	if err := l.begin(ctx, "merge"); err != nil {
		return "", err
	}
	a, err := raster.Read(aPath)
	if err != nil {
		return "", err
	}
	b, err := raster.Read(bPath)
	if err != nil {
		return "", err
	}
	if !a.SameGrid(b) {
		return "", domain.NewEngineError(domain.ErrGridMismatch.Code, "merge inputs have different grids")
	}
	r := a.Clone()
	for i, v := range r.Cells {
		if raster.IsNoData(v) {
			r.Cells[i] = b.Cells[i]
		}
	}
	out := l.ws.NewFile(extRaster)
	if err := raster.Write(out, r); err != nil {
		return "", err
	}
	l.done("merge", out)
	return out, nil
}

// Normalize rescales data cells to [0, ceiling] between the raster's
// own bounds, optionally flipping the direction. When every data cell
// holds the same value the bounds are widened deterministically: a
// nonzero plateau is measured from zero, a zero plateau up to one.
func (l *Library) Normalize(ctx context.Context, rasterPath string, p NormalizeParams) (string, error) {
	if err := l.begin(ctx, "normalize"); err != nil {
		return "", err
	}
	in, err := raster.Read(rasterPath)
	if err != nil {
		return "", err
	}
	r := raster.New(in.Width, in.Height, in.Extent)
	min, max, count := in.Stats()
	if count > 0 {
		if max-min == 0 {
			if min != 0 {
				min = 0
			} else {
				max = 1
			}
		}
		span := max - min
		for i, v := range in.Cells {
			if raster.IsNoData(v) {
				continue
			}
			t := (float64(v) - min) / span
			if p.Invert {
				t = 1 - t
			}
			r.Cells[i] = float32(t * p.Ceiling)
		}
	}
	out := l.ws.NewFile(extRaster)
	if err := raster.Write(out, r); err != nil {
		return "", err
	}
	l.log.Debug().Str("op", "normalize").Float64("min", min).Float64("max", max).
		Bool("invert", p.Invert).Str("artifact", out).Msg("artifact created")
	return out, nil
}

// Threshold keeps data cells strictly below coef and turns every other
// data cell into nodata.
func (l *Library) Threshold(ctx context.Context, rasterPath string, coef float64) (string, error) {
	if err := l.begin(ctx, "threshold"); err != nil {
		return "", err
	}
	in, err := raster.Read(rasterPath)
	if err != nil {
		return "", err
	}
	r := raster.New(in.Width, in.Height, in.Extent)
	for i, v := range in.Cells {
		if !raster.IsNoData(v) && float64(v) < coef {
			r.Cells[i] = v
		}
	}
	out := l.ws.NewFile(extRaster)
	if err := raster.Write(out, r); err != nil {
		return "", err
	}
	l.done("threshold", out)
	return out, nil
}

// Sum adds up to six rasters cell-wise. A nodata cell contributes
// nothing; the result is nodata only where every input is nodata.
func (l *Library) Sum(ctx context.Context, paths []string) (string, error) {
	if err := l.begin(ctx, "sum"); err != nil {
		return "", err
	}
	if len(paths) == 0 || len(paths) > 6 {
		return "", domain.NewEngineError(domain.ErrOpParams.Code, "sum takes between 1 and 6 rasters")
	}
	var acc *raster.Raster
	for _, path := range paths {
		in, err := raster.Read(path)
		if err != nil {
			return "", err
		}
		if acc == nil {
			acc = raster.New(in.Width, in.Height, in.Extent)
		} else if !acc.SameGrid(in) {
			return "", domain.NewEngineError(domain.ErrGridMismatch.Code, "sum inputs have different grids")
		}
		for i, v := range in.Cells {
			if raster.IsNoData(v) {
				continue
			}
			if raster.IsNoData(acc.Cells[i]) {
				acc.Cells[i] = v
			} else {
				acc.Cells[i] += v
			}
		}
	}
	out := l.ws.NewFile(extRaster)
	if err := raster.Write(out, acc); err != nil {
		return "", err
	}
	l.done("sum", out)
	return out, nil
}

// Constant writes value into every cell where the mask has data and
// nodata everywhere else.
func (l *Library) Constant(ctx context.Context, maskPath string, value float64) (string, error) {
	if err := l.begin(ctx, "constant"); err != nil {
		return "", err
	}
	mask, err := raster.Read(maskPath)
	if err != nil {
		return "", err
	}
	r := raster.New(mask.Width, mask.Height, mask.Extent)
	for i, v := range mask.Cells {
		if !raster.IsNoData(v) {
			r.Cells[i] = float32(value)
		}
	}
	out := l.ws.NewFile(extRaster)
	if err := raster.Write(out, r); err != nil {
		return "", err
	}
	l.done("constant", out)
	return out, nil
}
