// Package vector provides the polygon geometry model consumed by the
// pipeline: containment tests, extents, buffering, and the GeoJSON codec.
package vector

import (
	"math"

	"github.com/suricates/suitability/internal/domain"
)

// Point is a position in the source CRS.
type Point struct {
	X, Y float64
}

// Ring is an implicitly closed sequence of points.
type Ring []Point

// Polygon is one outer ring followed by zero or more hole rings.
type Polygon struct {
	Rings []Ring
}

// Geometry is a set of polygons interpreted as their union.
type Geometry struct {
	Polygons []Polygon
	CRS      string
}

// IsValid reports whether the geometry has at least one usable polygon.
func (g *Geometry) IsValid() bool {
	if g == nil {
		return false
	}
	for _, p := range g.Polygons {
		if len(p.Rings) > 0 && len(p.Rings[0]) >= 3 {
			return true
		}
	}
	return false
}

// Extent returns the bounding box of all polygons, tagged with the CRS.
func (g *Geometry) Extent() domain.Extent {
	e := domain.Extent{
		XMin: math.Inf(1), XMax: math.Inf(-1),
		YMin: math.Inf(1), YMax: math.Inf(-1),
		CRS: g.CRS,
	}
	for _, p := range g.Polygons {
		for _, r := range p.Rings {
			for _, pt := range r {
				if pt.X < e.XMin {
					e.XMin = pt.X
				}
				if pt.X > e.XMax {
					e.XMax = pt.X
				}
				if pt.Y < e.YMin {
					e.YMin = pt.Y
				}
				if pt.Y > e.YMax {
					e.YMax = pt.Y
				}
			}
		}
	}
	return e
}

// Contains reports whether (x, y) lies inside the union of the polygons.
// Each polygon is evaluated with the even-odd rule, so hole rings carve
// out their interior.
func (g *Geometry) Contains(x, y float64) bool {
	for _, p := range g.Polygons {
		if polygonContains(p, x, y) {
			return true
		}
	}
	return false
}

func polygonContains(p Polygon, x, y float64) bool {
	inside := false
	for _, r := range p.Rings {
		if ringContains(r, x, y) {
			inside = !inside
		}
	}
	return inside
}

// ringContains is a crossing-number test against one closed ring.
func ringContains(r Ring, x, y float64) bool {
	inside := false
	n := len(r)
	if n < 3 {
		return false
	}
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := r[i], r[j]
		if (pi.Y > y) != (pj.Y > y) &&
			x < (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}
