package ops

import (
	"math"

	"github.com/suricates/suitability/internal/raster"
)

// unreachable is a finite stand-in for infinity in the distance
// transform. Keeping the arithmetic finite sidesteps NaN in the
// parabola intersections while staying far above any real squared
// distance a grid can produce.
const unreachable = 1e20

// distances returns the exact Euclidean distance from every cell center
// to the nearest data cell, in extent units, using the two-pass lower
// envelope transform of Felzenszwalb and Huttenlocher. Sample spacing
// follows the physical cell size on each axis. The raster must contain
// at least one data cell.
func distances(r *raster.Raster) []float64 {
	w, h := r.Width, r.Height
	cw, ch := r.CellWidth(), r.CellHeight()
	grid := make([]float64, w*h)
	for i, v := range r.Cells {
		if raster.IsNoData(v) {
			grid[i] = unreachable
		}
	}

	n := w
	if h > n {
		n = h
	}
	f := make([]float64, n)
	out := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)

	for row := 0; row < h; row++ {
		copy(f[:w], grid[row*w:(row+1)*w])
		dt1d(f[:w], out[:w], v[:w], z[:w+1], cw)
		copy(grid[row*w:(row+1)*w], out[:w])
	}
	for col := 0; col < w; col++ {
		for row := 0; row < h; row++ {
			f[row] = grid[row*w+col]
		}
		dt1d(f[:h], out[:h], v[:h], z[:h+1], ch)
		for row := 0; row < h; row++ {
			grid[row*w+col] = out[row]
		}
	}

	for i, d := range grid {
		grid[i] = math.Sqrt(d)
	}
	return grid
}

// dt1d writes into out the lower envelope of the parabolas rooted at
// the samples of f, with sample i located at abscissa i*h. v and z are
// caller-provided scratch holding the envelope's parabola indexes and
// boundaries; z needs len(f)+1 entries.
func dt1d(f, out []float64, v []int, z []float64, h float64) {
	n := len(f)
	k := 0
	v[0] = 0
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)
	for q := 1; q < n; q++ {
		xq := float64(q) * h
		for {
			xv := float64(v[k]) * h
			s := ((f[q] + xq*xq) - (f[v[k]] + xv*xv)) / (2 * (xq - xv))
			if s <= z[k] {
				k--
				continue
			}
			k++
			v[k] = q
			z[k] = s
			z[k+1] = math.Inf(1)
			break
		}
	}
	k = 0
	for q := 0; q < n; q++ {
		xq := float64(q) * h
		for z[k+1] < xq {
			k++
		}
		xv := float64(v[k]) * h
		d := xq - xv
		out[q] = d*d + f[v[k]]
	}
}
