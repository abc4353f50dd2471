// Package raster implements the in-memory grid model shared by all
// pipeline operations, along with the file codecs used to persist it.
package raster

import (
	"math"

	"github.com/suricates/suitability/internal/domain"
)

// NoData marks cells that carry no value. Every operation propagates or
// interprets it explicitly; it never participates in arithmetic.
const NoData float32 = -9999

// Raster is a north-up grid of float32 cells. Row 0 is the northernmost
// row and cells are stored row-major.
type Raster struct {
	Width  int
	Height int
	Extent domain.Extent
	Cells  []float32
}

// New allocates a raster of the given shape with every cell set to NoData.
func New(width, height int, extent domain.Extent) *Raster {
	cells := make([]float32, width*height)
	for i := range cells {
		cells[i] = NoData
	}
	return &Raster{Width: width, Height: height, Extent: extent, Cells: cells}
}

// IsNoData reports whether v is the nodata marker.
func IsNoData(v float32) bool {
	return v == NoData
}

// At returns the cell at (col, row).
func (r *Raster) At(col, row int) float32 {
	return r.Cells[row*r.Width+col]
}

// Set writes the cell at (col, row).
func (r *Raster) Set(col, row int, v float32) {
	r.Cells[row*r.Width+col] = v
}

// CellWidth returns the horizontal size of one cell in extent units.
func (r *Raster) CellWidth() float64 {
	return r.Extent.Width() / float64(r.Width)
}

// CellHeight returns the vertical size of one cell in extent units.
func (r *Raster) CellHeight() float64 {
	return r.Extent.Height() / float64(r.Height)
}

// CellCenter returns the extent coordinates of the center of (col, row).
func (r *Raster) CellCenter(col, row int) (x, y float64) {
	x = r.Extent.XMin + (float64(col)+0.5)*r.CellWidth()
	y = r.Extent.YMax - (float64(row)+0.5)*r.CellHeight()
	return x, y
}

// SameGrid reports whether two rasters share shape and extent, which is
// required before any cell-wise combination.
func (r *Raster) SameGrid(o *Raster) bool {
	return r.Width == o.Width && r.Height == o.Height &&
		r.Extent.XMin == o.Extent.XMin && r.Extent.XMax == o.Extent.XMax &&
		r.Extent.YMin == o.Extent.YMin && r.Extent.YMax == o.Extent.YMax
}

// Clone returns a deep copy sharing no cell storage.
func (r *Raster) Clone() *Raster {
	cells := make([]float32, len(r.Cells))
	copy(cells, r.Cells)
	return &Raster{Width: r.Width, Height: r.Height, Extent: r.Extent, Cells: cells}
}

// Stats returns the minimum and maximum over data cells and how many
// data cells there are. With zero data cells both bounds are NaN.
func (r *Raster) Stats() (min, max float64, count int) {
	min, max = math.NaN(), math.NaN()
	for _, v := range r.Cells {
		if IsNoData(v) {
			continue
		}
		f := float64(v)
		if count == 0 {
			min, max = f, f
		} else {
			if f < min {
				min = f
			}
			if f > max {
				max = f
			}
		}
		count++
	}
	return min, max, count
}
