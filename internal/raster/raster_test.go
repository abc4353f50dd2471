package raster

import (
	"math"
	"testing"

	"github.com/suricates/suitability/internal/domain"
)

func testExtent() domain.Extent {
	return domain.Extent{XMin: 0, XMax: 80, YMin: 0, YMax: 60, CRS: "EPSG:2154"}
}

func TestNew_AllNoData(t *testing.T) {
	r := New(8, 6, testExtent())

	if len(r.Cells) != 48 {
		t.Fatalf("cell count = %d, want 48", len(r.Cells))
	}
	for i, v := range r.Cells {
		if !IsNoData(v) {
			t.Fatalf("cell %d = %g, want nodata", i, v)
		}
	}
}

func TestRaster_AtSet(t *testing.T) {
	r := New(8, 6, testExtent())
	r.Set(3, 2, 7.5)

	if got := r.At(3, 2); got != 7.5 {
		t.Errorf("At(3,2) = %g, want 7.5", got)
	}
	// Row-major layout.
	if got := r.Cells[2*8+3]; got != 7.5 {
		t.Errorf("Cells[19] = %g, want 7.5", got)
	}
}

func TestRaster_CellGeometry(t *testing.T) {
	r := New(8, 6, testExtent())

	if got := r.CellWidth(); got != 10 {
		t.Errorf("CellWidth = %g, want 10", got)
	}
	if got := r.CellHeight(); got != 10 {
		t.Errorf("CellHeight = %g, want 10", got)
	}

	// Row 0 is the northernmost row.
	x, y := r.CellCenter(0, 0)
	if x != 5 || y != 55 {
		t.Errorf("CellCenter(0,0) = (%g, %g), want (5, 55)", x, y)
	}
	x, y = r.CellCenter(7, 5)
	if x != 75 || y != 5 {
		t.Errorf("CellCenter(7,5) = (%g, %g), want (75, 5)", x, y)
	}
}

func TestRaster_SameGrid(t *testing.T) {
	a := New(8, 6, testExtent())
	b := New(8, 6, testExtent())
	if !a.SameGrid(b) {
		t.Error("identical rasters should share a grid")
	}

	c := New(8, 5, testExtent())
	if a.SameGrid(c) {
		t.Error("different heights should not share a grid")
	}

	shifted := testExtent()
	shifted.XMin += 1
	d := New(8, 6, shifted)
	if a.SameGrid(d) {
		t.Error("different extents should not share a grid")
	}
}

func TestRaster_Clone(t *testing.T) {
	a := New(4, 4, testExtent())
	a.Set(1, 1, 3)

	b := a.Clone()
	b.Set(1, 1, 9)

	if got := a.At(1, 1); got != 3 {
		t.Errorf("original cell = %g after clone write, want 3", got)
	}
	if got := b.At(1, 1); got != 9 {
		t.Errorf("clone cell = %g, want 9", got)
	}
}

func TestRaster_Stats(t *testing.T) {
	r := New(4, 4, testExtent())
	r.Set(0, 0, -2)
	r.Set(1, 0, 5)
	r.Set(2, 3, 1)

	min, max, count := r.Stats()
	if min != -2 || max != 5 || count != 3 {
		t.Errorf("Stats = (%g, %g, %d), want (-2, 5, 3)", min, max, count)
	}
}

func TestRaster_Stats_Empty(t *testing.T) {
	r := New(4, 4, testExtent())

	min, max, count := r.Stats()
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if !math.IsNaN(min) || !math.IsNaN(max) {
		t.Errorf("empty Stats = (%g, %g), want NaN bounds", min, max)
	}
}
