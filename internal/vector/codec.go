package vector

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/suricates/suitability/internal/domain"
)

// DefaultCRS is assumed when a GeoJSON file carries no crs member.
const DefaultCRS = "EPSG:4326"

type geojsonCRS struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

type geojsonGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type geojsonFeature struct {
	Type       string           `json:"type"`
	Geometry   *geojsonGeometry `json:"geometry"`
	Properties map[string]any   `json:"properties,omitempty"`
}

type geojsonRoot struct {
	Type        string           `json:"type"`
	CRS         *geojsonCRS      `json:"crs,omitempty"`
	Features    []geojsonFeature `json:"features,omitempty"`
	Geometry    *geojsonGeometry `json:"geometry,omitempty"`
	Coordinates json.RawMessage  `json:"coordinates,omitempty"`
}

// Load reads a GeoJSON file into a Geometry. The root may be a
// FeatureCollection, a single Feature, or a bare Polygon/MultiPolygon.
// Only polygonal geometries are accepted. A legacy crs member is honored
// when present, otherwise DefaultCRS applies.
func Load(path string) (*Geometry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrInvalidSource.Code, "read vector source", err)
	}
	var root geojsonRoot
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, domain.WrapEngineError(domain.ErrInvalidSource.Code, "parse vector source", err)
	}

	g := &Geometry{CRS: DefaultCRS}
	if root.CRS != nil && root.CRS.Properties.Name != "" {
		g.CRS = root.CRS.Properties.Name
	}

	switch root.Type {
	case "FeatureCollection":
		for _, f := range root.Features {
			if f.Geometry == nil {
				continue
			}
			if err := appendGeometry(g, f.Geometry); err != nil {
				return nil, err
			}
		}
	case "Feature":
		if root.Geometry != nil {
			if err := appendGeometry(g, root.Geometry); err != nil {
				return nil, err
			}
		}
	case "Polygon", "MultiPolygon":
		gm := &geojsonGeometry{Type: root.Type, Coordinates: root.Coordinates}
		if err := appendGeometry(g, gm); err != nil {
			return nil, err
		}
	default:
		return nil, domain.NewEngineError(domain.ErrInvalidSource.Code,
			fmt.Sprintf("unsupported GeoJSON root type %q", root.Type))
	}

	if !g.IsValid() {
		return nil, domain.NewEngineError(domain.ErrInvalidSource.Code, "no polygon geometry in "+path)
	}
	return g, nil
}

func appendGeometry(g *Geometry, gm *geojsonGeometry) error {
	switch gm.Type {
	case "Polygon":
		var coords [][][]float64
		if err := json.Unmarshal(gm.Coordinates, &coords); err != nil {
			return domain.WrapEngineError(domain.ErrInvalidSource.Code, "parse polygon coordinates", err)
		}
		g.Polygons = append(g.Polygons, buildPolygon(coords))
	case "MultiPolygon":
		var coords [][][][]float64
		if err := json.Unmarshal(gm.Coordinates, &coords); err != nil {
			return domain.WrapEngineError(domain.ErrInvalidSource.Code, "parse multipolygon coordinates", err)
		}
		for _, pc := range coords {
			g.Polygons = append(g.Polygons, buildPolygon(pc))
		}
	default:
		return domain.NewEngineError(domain.ErrInvalidSource.Code,
			fmt.Sprintf("unsupported geometry type %q", gm.Type))
	}
	return nil
}

// buildPolygon converts GeoJSON ring arrays, dropping the explicit
// closing position since rings are implicitly closed here.
func buildPolygon(coords [][][]float64) Polygon {
	var p Polygon
	for _, rc := range coords {
		ring := make(Ring, 0, len(rc))
		for _, pos := range rc {
			if len(pos) < 2 {
				continue
			}
			ring = append(ring, Point{X: pos[0], Y: pos[1]})
		}
		if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
			ring = ring[:len(ring)-1]
		}
		p.Rings = append(p.Rings, ring)
	}
	return p
}

// Save writes the geometry as a FeatureCollection holding one
// MultiPolygon feature, with a legacy crs member when the CRS is known.
func Save(path string, g *Geometry) error {
	coords := make([][][][]float64, 0, len(g.Polygons))
	for _, p := range g.Polygons {
		pc := make([][][]float64, 0, len(p.Rings))
		for _, r := range p.Rings {
			rc := make([][]float64, 0, len(r)+1)
			for _, pt := range r {
				rc = append(rc, []float64{pt.X, pt.Y})
			}
			if len(r) > 0 {
				rc = append(rc, []float64{r[0].X, r[0].Y})
			}
			pc = append(pc, rc)
		}
		coords = append(coords, pc)
	}
	rawCoords, err := json.Marshal(coords)
	if err != nil {
		return domain.WrapEngineError(domain.ErrCodecFormat.Code, "encode coordinates", err)
	}

	root := geojsonRoot{
		Type: "FeatureCollection",
		Features: []geojsonFeature{{
			Type:     "Feature",
			Geometry: &geojsonGeometry{Type: "MultiPolygon", Coordinates: rawCoords},
		}},
	}
	if g.CRS != "" {
		root.CRS = &geojsonCRS{Type: "name"}
		root.CRS.Properties.Name = g.CRS
	}
	raw, err := json.MarshalIndent(&root, "", "  ")
	if err != nil {
		return domain.WrapEngineError(domain.ErrCodecFormat.Code, "encode vector file", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return domain.WrapEngineError(domain.ErrCodecFormat.Code, "write vector file", err)
	}
	return nil
}
