package domain

import (
	"testing"
)

func TestParseConstraintKind(t *testing.T) {
	tests := []struct {
		name    string
		want    ConstraintKind
		wantErr bool
	}{
		{"Sanctuarized", KindSanctuarized, false},
		{"Attractive", KindAttractive, false},
		{"Repulsive", KindRepulsive, false},
		{"Included", KindIncluded, false},
		{"Excluded", KindExcluded, false},
		{"Map", KindMap, false},
		{"attractive", "", true},
		{"", "", true},
		{"Forbidden", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConstraintKind(tt.name)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseConstraintKind(%q): expected error, got nil", tt.name)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConstraintKind(%q): %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("ParseConstraintKind(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestConstraint_Base(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"/data/geo/rivers.geojson", "rivers"},
		{"rivers.geojson", "rivers"},
		{"/data/geo/no_extension", "no_extension"},
		{"/data/geo/two.dots.geojson", "two.dots"},
	}

	for _, tt := range tests {
		c := Constraint{SourceRef: tt.source}
		if got := c.Base(); got != tt.want {
			t.Errorf("Base(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestNewConstraint_Defaults(t *testing.T) {
	c := NewConstraint("/data/roads.geojson")

	if c.Buffer != 50 {
		t.Errorf("Buffer = %g, want 50", c.Buffer)
	}
	if c.Priority != 100 {
		t.Errorf("Priority = %g, want 100", c.Priority)
	}
	if c.KindInside != KindSanctuarized || c.KindOutside != KindSanctuarized {
		t.Errorf("kinds = %s/%s, want Sanctuarized/Sanctuarized", c.KindInside, c.KindOutside)
	}
	if !c.Skippable() {
		t.Error("fresh constraint should be skippable")
	}
	if c.IsMap() {
		t.Error("fresh constraint should not be the map")
	}
}

func TestNewMapConstraint_Defaults(t *testing.T) {
	c := NewMapConstraint("/data/region.geojson")

	if c.Buffer != 0 {
		t.Errorf("Buffer = %g, want 0", c.Buffer)
	}
	if c.Priority != 5 {
		t.Errorf("Priority = %g, want 5", c.Priority)
	}
	if !c.IsMap() {
		t.Error("map constraint should report IsMap")
	}
	if c.Skippable() {
		t.Error("map constraint should not be skippable")
	}
}

func TestConstraint_Skippable(t *testing.T) {
	tests := []struct {
		in, out ConstraintKind
		want    bool
	}{
		{KindSanctuarized, KindSanctuarized, true},
		{KindAttractive, KindSanctuarized, false},
		{KindSanctuarized, KindRepulsive, false},
		{KindMap, KindMap, false},
	}

	for _, tt := range tests {
		c := Constraint{KindInside: tt.in, KindOutside: tt.out}
		if got := c.Skippable(); got != tt.want {
			t.Errorf("Skippable(%s/%s) = %v, want %v", tt.in, tt.out, got, tt.want)
		}
	}
}

func TestThresholdKey(t *testing.T) {
	tests := []struct {
		coef float64
		want string
	}{
		{0.05, "threshold(0.05)"},
		{0.5, "threshold(0.5)"},
		{1, "threshold(1)"},
	}

	for _, tt := range tests {
		if got := ThresholdKey(tt.coef); got != tt.want {
			t.Errorf("ThresholdKey(%g) = %q, want %q", tt.coef, got, tt.want)
		}
	}
}

func TestExtent_Expand(t *testing.T) {
	e := Extent{XMin: 10, XMax: 20, YMin: 30, YMax: 40, CRS: "EPSG:2154"}
	got := e.Expand(5)

	want := Extent{XMin: 5, XMax: 25, YMin: 25, YMax: 45, CRS: "EPSG:2154"}
	if got != want {
		t.Errorf("Expand(5) = %+v, want %+v", got, want)
	}
	// The receiver is unchanged.
	if e.XMin != 10 {
		t.Errorf("receiver XMin = %g, want 10", e.XMin)
	}
}

func TestExtent_String(t *testing.T) {
	e := Extent{XMin: 0, XMax: 100, YMin: -50, YMax: 50, CRS: "EPSG:4326"}
	want := "0,100,-50,50 [EPSG:4326]"
	if got := e.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestExtent_Dimensions(t *testing.T) {
	e := Extent{XMin: 2, XMax: 12, YMin: 3, YMax: 23}
	if got := e.Width(); got != 10 {
		t.Errorf("Width() = %g, want 10", got)
	}
	if got := e.Height(); got != 20 {
		t.Errorf("Height() = %g, want 20", got)
	}
}
