package pipeline

import (
	"context"

	"github.com/suricates/suitability/internal/domain"
	"github.com/suricates/suitability/internal/ops"
	"github.com/suricates/suitability/internal/vector"
)

// Compiler turns constraints into contribution rasters. PrepareMap must
// run first: it fixes the working extent and the map mask every later
// compilation clips against.
type Compiler struct {
	lib    *ops.Library
	width  int
	height int
	margin float64

	extent  domain.Extent
	mapPath string
}

// NewCompiler creates a compiler for the given grid shape. The extent
// margin is added on every side of the map geometry's bounding box.
func NewCompiler(lib *ops.Library, width, height int, margin float64) *Compiler {
	return &Compiler{lib: lib, width: width, height: height, margin: margin}
}

// MapRaster returns the rasterized map mask, once PrepareMap has run.
func (c *Compiler) MapRaster() string {
	return c.mapPath
}

// Extent returns the working extent, once PrepareMap has run.
func (c *Compiler) Extent() domain.Extent {
	return c.extent
}

// PrepareMap buffers and rasterizes the map constraint. The buffered
// geometry's bounding box, expanded by the margin, becomes the working
// extent shared by every later rasterization.
func (c *Compiler) PrepareMap(ctx context.Context, con domain.Constraint) (string, error) {
	path := con.SourceRef
	if con.Buffer > 0 {
		buffered, err := c.lib.BufferVector(ctx, path, ops.BufferParams{
			Distance: con.Buffer,
			Segments: vector.DefaultSegments,
		})
		if err != nil {
			return "", err
		}
		path = buffered
	}
	g, err := vector.Load(path)
	if err != nil {
		return "", err
	}
	c.extent = g.Extent().Expand(c.margin)
	mask, err := c.lib.Rasterize(ctx, path, ops.RasterizeParams{
		Extent: c.extent,
		Width:  c.width,
		Height: c.height,
	})
	if err != nil {
		return "", err
	}
	c.mapPath = mask
	return mask, nil
}

// Compile produces the contribution raster for one non-map constraint,
// or "" when both sides are sanctuarized away. The outside contribution
// reads proximity from the footprint and is confined to the inverted
// footprint; the inside contribution swaps those roles, so the second
// raster argument is always the side being scored.
func (c *Compiler) Compile(ctx context.Context, con domain.Constraint) (string, error) {
	footprint, err := c.rasterizeWithBuffer(ctx, con)
	if err != nil {
		return "", err
	}
	inverted, err := c.lib.Invert(ctx, footprint)
	if err != nil {
		return "", err
	}
	outside, err := c.kindRaster(ctx, con.KindOutside, con.Priority, footprint, inverted)
	if err != nil {
		return "", err
	}
	inside, err := c.kindRaster(ctx, con.KindInside, con.Priority, inverted, footprint)
	if err != nil {
		return "", err
	}
	switch {
	case inside == "" && outside == "":
		return "", nil
	case inside == "":
		return outside, nil
	case outside == "":
		return inside, nil
	}
	return c.lib.MergeLayers(ctx, inside, outside)
}

func (c *Compiler) rasterizeWithBuffer(ctx context.Context, con domain.Constraint) (string, error) {
	path := con.SourceRef
	if con.Buffer > 0 {
		buffered, err := c.lib.BufferVector(ctx, path, ops.BufferParams{
			Distance: con.Buffer,
			Segments: vector.DefaultSegments,
		})
		if err != nil {
			return "", err
		}
		path = buffered
	}
	return c.lib.Rasterize(ctx, path, ops.RasterizeParams{
		Extent: c.extent,
		Width:  c.width,
		Height: c.height,
	})
}

// kindRaster scores one side of a constraint. primary seeds proximity
// distances; secondary masks the region the score applies to.
func (c *Compiler) kindRaster(ctx context.Context, kind domain.ConstraintKind, priority float64, primary, secondary string) (string, error) {
	switch kind {
	case domain.KindRepulsive:
		return c.proximityScore(ctx, primary, secondary, true, priority)
	case domain.KindAttractive:
		return c.proximityScore(ctx, primary, secondary, false, priority)
	case domain.KindExcluded:
		return c.lib.Constant(ctx, secondary, priority)
	case domain.KindIncluded:
		return c.lib.Constant(ctx, secondary, 0)
	}
	// Sanctuarized and Map sides contribute nothing.
	return "", nil
}

// proximityScore builds the distance surface from primary, confines it
// to the map and then to secondary, and rescales it to [0, ceiling].
// Inverting makes near cells score the ceiling instead of far ones.
func (c *Compiler) proximityScore(ctx context.Context, primary, secondary string, invert bool, ceiling float64) (string, error) {
	prox, err := c.lib.Proximity(ctx, primary)
	if err != nil {
		return "", err
	}
	onMap, err := c.lib.Clip(ctx, prox, c.mapPath)
	if err != nil {
		return "", err
	}
	confined, err := c.lib.Clip(ctx, onMap, secondary)
	if err != nil {
		return "", err
	}
	return c.lib.Normalize(ctx, confined, ops.NormalizeParams{Invert: invert, Ceiling: ceiling})
}
