// Package pipeline composes the raster operations into suitability
// runs: compiling constraints into contribution rasters, folding them
// into a cumulative penalty surface, and driving the run state machine
// around that work.
package pipeline

import "github.com/suricates/suitability/internal/domain"

// EstimateSteps predicts how many artifacts a run over the given
// constraint list will create. The prediction feeds progress reporting
// and deliberately overshoots by at most one per run: the denominator
// gains an extra slack step so produced counts never pass 100%.
func EstimateSteps(constraints []domain.Constraint) int {
	total := 0
	contributing := 0
	for _, c := range constraints {
		if c.Skippable() {
			continue
		}
		if c.Buffer == 0 {
			total++
		} else {
			total += 2
		}
		if c.KindInside != domain.KindMap {
			total += 2
		}
		total += stepsForKind(c.KindInside) + stepsForKind(c.KindOutside)
		if c.KindInside != domain.KindSanctuarized && c.KindOutside != domain.KindSanctuarized {
			total++
		}
		if !c.IsMap() {
			contributing++
		}
	}
	if contributing > 0 {
		// One sum artifact per fold batch of the accumulator plus five.
		total += (contributing - 1 + 4) / 5
	}
	total++
	return total
}

// stepsForKind counts the artifacts one side of a constraint produces:
// proximity scoring takes a proximity, two clips, and a normalize;
// constant scoring takes a single synthesis.
func stepsForKind(kind domain.ConstraintKind) int {
	switch kind {
	case domain.KindAttractive, domain.KindRepulsive:
		return 4
	case domain.KindIncluded, domain.KindExcluded:
		return 1
	}
	return 0
}
