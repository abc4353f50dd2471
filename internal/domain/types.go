// Package domain defines the core types for the suitability engine.
package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ConstraintKind is the treatment applied to one side (inside or outside)
// of a constraint's area.
type ConstraintKind string

const (
	// KindSanctuarized marks a side that is not evaluated at all.
	KindSanctuarized ConstraintKind = "Sanctuarized"
	// KindAttractive scores cells near the area as suitable.
	KindAttractive ConstraintKind = "Attractive"
	// KindRepulsive scores cells far from the area as suitable.
	KindRepulsive ConstraintKind = "Repulsive"
	// KindIncluded contributes a neutral (zero) score over the side.
	KindIncluded ConstraintKind = "Included"
	// KindExcluded contributes a flat penalty of the constraint's priority.
	KindExcluded ConstraintKind = "Excluded"
	// KindMap marks the constraint defining the working extent and threshold.
	KindMap ConstraintKind = "Map"
)

// ParseConstraintKind converts a stored kind name to a ConstraintKind.
func ParseConstraintKind(name string) (ConstraintKind, error) {
	switch ConstraintKind(name) {
	case KindSanctuarized, KindAttractive, KindRepulsive, KindIncluded, KindExcluded, KindMap:
		return ConstraintKind(name), nil
	}
	return "", NewEngineError(ErrUnknownKind.Code, fmt.Sprintf("unknown constraint kind %q", name))
}

// Constraint pairs a source geometry with inside/outside treatment, a buffer
// distance, and a priority weight.
//
// When KindInside is KindMap, KindOutside is ignored by computation and
// Priority holds the acceptance threshold percentage (0-100) instead of a
// weight.
type Constraint struct {
	SourceRef   string
	Buffer      float64
	Priority    float64
	KindInside  ConstraintKind
	KindOutside ConstraintKind
	Exists      bool
}

// Base returns the constraint's result key: the source file name without
// directory or extension.
func (c Constraint) Base() string {
	name := filepath.Base(c.SourceRef)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// IsMap reports whether this is the map constraint.
func (c Constraint) IsMap() bool {
	return c.KindInside == KindMap
}

// Skippable reports whether the constraint contributes nothing to a run.
func (c Constraint) Skippable() bool {
	return c.KindInside == KindSanctuarized && c.KindOutside == KindSanctuarized
}

// NewConstraint returns a constraint with the standard defaults for a
// freshly added source.
func NewConstraint(sourceRef string) Constraint {
	return Constraint{
		SourceRef:   sourceRef,
		Buffer:      50,
		Priority:    100,
		KindInside:  KindSanctuarized,
		KindOutside: KindSanctuarized,
		Exists:      true,
	}
}

// NewMapConstraint returns the map constraint a project starts with.
func NewMapConstraint(sourceRef string) Constraint {
	return Constraint{
		SourceRef:   sourceRef,
		Buffer:      0,
		Priority:    5,
		KindInside:  KindMap,
		KindOutside: KindMap,
		Exists:      true,
	}
}

// PipelineResult maps a human-readable name to an output raster path.
// It always carries ResultKeyRaster plus a threshold key, and one entry per
// contributing constraint keyed by Constraint.Base.
type PipelineResult map[string]string

// ResultKeyRaster is the key of the normalized cumulative raster.
const ResultKeyRaster = "raster"

// ThresholdKey returns the result key encoding the acceptance coefficient.
func ThresholdKey(coef float64) string {
	return fmt.Sprintf("threshold(%g)", coef)
}

// RunState is the lifecycle state of a pipeline run.
type RunState string

const (
	RunCreated   RunState = "created"
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
	RunFinished  RunState = "finished"
)

// Extent is the axis-aligned working area of a run, tagged with a CRS
// authority identifier.
type Extent struct {
	XMin, XMax float64
	YMin, YMax float64
	CRS        string
}

// String renders the extent in the "xMin,xMax,yMin,yMax [CRS]" wire form.
func (e Extent) String() string {
	return fmt.Sprintf("%g,%g,%g,%g [%s]", e.XMin, e.XMax, e.YMin, e.YMax, e.CRS)
}

// Expand grows the extent by margin units on every side.
func (e Extent) Expand(margin float64) Extent {
	e.XMin -= margin
	e.XMax += margin
	e.YMin -= margin
	e.YMax += margin
	return e
}

// Width returns the extent's horizontal span.
func (e Extent) Width() float64 { return e.XMax - e.XMin }

// Height returns the extent's vertical span.
func (e Extent) Height() float64 { return e.YMax - e.YMin }

// Project is a named workspace holding a constraint table and a durable
// output directory.
type Project struct {
	Name      string
	Dir       string
	CreatedAt int64
}

// Run records one pipeline execution in the journal.
type Run struct {
	RunID          string
	Project        string
	State          RunState
	StateVersion   int64
	EstimatedSteps int
	Produced       int
	ErrorCode      int
	ErrorMessage   string
	Outputs        PipelineResult
	StartedAt      int64
	FinishedAt     int64
}

// RunEvent is one entry in a run's state history. Detail carries the
// failure message when the state is failed.
type RunEvent struct {
	ID     int64
	RunID  string
	State  RunState
	Detail string
	At     int64
}
