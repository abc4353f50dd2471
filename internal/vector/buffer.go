package vector

import "math"

// DefaultSegments is the number of segments used to approximate a
// quarter circle in buffered caps and joins.
const DefaultSegments = 5

// Buffer returns the geometry grown outward by distance, with round caps
// and joins approximated by segments vertices per quarter circle. The
// result is expressed as a union: the original polygons plus one capsule
// per edge and one disc per vertex. Containment tests on the result are
// exact for that union; hole interiors shrink by the same distance.
func Buffer(g *Geometry, distance float64, segments int) *Geometry {
	if segments <= 0 {
		segments = DefaultSegments
	}
	out := &Geometry{CRS: g.CRS}
	out.Polygons = append(out.Polygons, g.Polygons...)
	if distance <= 0 {
		return out
	}
	for _, p := range g.Polygons {
		for _, r := range p.Rings {
			n := len(r)
			if n < 2 {
				continue
			}
			for i := 0; i < n; i++ {
				a, b := r[i], r[(i+1)%n]
				if quad, ok := edgeCapsule(a, b, distance); ok {
					out.Polygons = append(out.Polygons, Polygon{Rings: []Ring{quad}})
				}
				out.Polygons = append(out.Polygons, Polygon{Rings: []Ring{discRing(a, distance, segments)}})
			}
		}
	}
	return out
}

// edgeCapsule builds the rectangle of half-width d around edge ab.
// Degenerate edges are covered by the vertex discs instead.
func edgeCapsule(a, b Point, d float64) (Ring, bool) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return nil, false
	}
	nx, ny := -dy/length*d, dx/length*d
	return Ring{
		{a.X + nx, a.Y + ny},
		{b.X + nx, b.Y + ny},
		{b.X - nx, b.Y - ny},
		{a.X - nx, a.Y - ny},
	}, true
}

func discRing(c Point, radius float64, segments int) Ring {
	n := 4 * segments
	ring := make(Ring, n)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		ring[i] = Point{
			X: c.X + radius*math.Cos(angle),
			Y: c.Y + radius*math.Sin(angle),
		}
	}
	return ring
}
