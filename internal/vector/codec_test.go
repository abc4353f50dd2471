package vector

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/suricates/suitability/internal/domain"
)

func writeVector(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "layer.geojson")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write vector file: %v", err)
	}
	return p
}

func TestLoad_FeatureCollectionWithCRS(t *testing.T) {
	path := writeVector(t, t.TempDir(), `{
		"type": "FeatureCollection",
		"crs": {"type": "name", "properties": {"name": "EPSG:2154"}},
		"features": [{
			"type": "Feature",
			"geometry": {
				"type": "Polygon",
				"coordinates": [[[0,0],[10,0],[10,10],[0,10],[0,0]]]
			}
		}]
	}`)

	g, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.CRS != "EPSG:2154" {
		t.Errorf("CRS = %q, want EPSG:2154", g.CRS)
	}
	if len(g.Polygons) != 1 {
		t.Fatalf("polygon count = %d, want 1", len(g.Polygons))
	}
	// The explicit closing position is dropped.
	if n := len(g.Polygons[0].Rings[0]); n != 4 {
		t.Errorf("ring length = %d, want 4", n)
	}
	if !g.Contains(5, 5) {
		t.Error("loaded polygon should contain its center")
	}
}

func TestLoad_DefaultCRS(t *testing.T) {
	path := writeVector(t, t.TempDir(), `{
		"type": "Polygon",
		"coordinates": [[[0,0],[4,0],[4,4],[0,4],[0,0]]]
	}`)

	g, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.CRS != DefaultCRS {
		t.Errorf("CRS = %q, want %q", g.CRS, DefaultCRS)
	}
}

func TestLoad_BareFeature(t *testing.T) {
	path := writeVector(t, t.TempDir(), `{
		"type": "Feature",
		"geometry": {
			"type": "MultiPolygon",
			"coordinates": [
				[[[0,0],[2,0],[2,2],[0,2],[0,0]]],
				[[[5,5],[7,5],[7,7],[5,7],[5,5]]]
			]
		}
	}`)

	g, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(g.Polygons) != 2 {
		t.Errorf("polygon count = %d, want 2", len(g.Polygons))
	}
}

func TestLoad_RejectsNonPolygonal(t *testing.T) {
	path := writeVector(t, t.TempDir(), `{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"geometry": {"type": "Point", "coordinates": [1, 2]}
		}]
	}`)

	_, err := Load(path)
	if !errors.Is(err, domain.ErrInvalidSource) {
		t.Errorf("expected ErrInvalidSource, got %v", err)
	}
}

func TestLoad_RejectsUnsupportedRoot(t *testing.T) {
	path := writeVector(t, t.TempDir(), `{"type": "GeometryCollection", "geometries": []}`)

	_, err := Load(path)
	if !errors.Is(err, domain.ErrInvalidSource) {
		t.Errorf("expected ErrInvalidSource, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.geojson"))
	if !errors.Is(err, domain.ErrInvalidSource) {
		t.Errorf("expected ErrInvalidSource, got %v", err)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	g := &Geometry{
		CRS: "EPSG:2154",
		Polygons: []Polygon{{
			Rings: []Ring{
				square(0, 0, 10, 10),
				square(3, 3, 5, 5),
			},
		}},
	}

	path := filepath.Join(t.TempDir(), "out.geojson")
	if err := Save(path, g); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got.CRS != g.CRS {
		t.Errorf("CRS = %q, want %q", got.CRS, g.CRS)
	}
	if len(got.Polygons) != 1 {
		t.Fatalf("polygon count = %d, want 1", len(got.Polygons))
	}
	if len(got.Polygons[0].Rings) != 2 {
		t.Fatalf("ring count = %d, want 2", len(got.Polygons[0].Rings))
	}
	for ri, ring := range got.Polygons[0].Rings {
		wantRing := g.Polygons[0].Rings[ri]
		if len(ring) != len(wantRing) {
			t.Fatalf("ring %d length = %d, want %d", ri, len(ring), len(wantRing))
		}
		for pi, pt := range ring {
			if pt != wantRing[pi] {
				t.Errorf("ring %d point %d = %v, want %v", ri, pi, pt, wantRing[pi])
			}
		}
	}
	if got.Contains(5, 1) != true || got.Contains(4, 4) != false {
		t.Error("round-tripped polygon lost its hole semantics")
	}
}
