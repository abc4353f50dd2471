package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/suricates/suitability/internal/domain"
	"github.com/suricates/suitability/internal/ops"
)

// validTransitions defines the run lifecycle:
// Created -> Running -> Succeeded/Failed -> Finished.
var validTransitions = map[domain.RunState]map[domain.RunState]bool{
	domain.RunCreated:   {domain.RunRunning: true},
	domain.RunRunning:   {domain.RunSucceeded: true, domain.RunFailed: true},
	domain.RunSucceeded: {domain.RunFinished: true},
	domain.RunFailed:    {domain.RunFinished: true},
	domain.RunFinished:  {},
}

// IsValidTransition reports whether a run may move between two states.
func IsValidTransition(from, to domain.RunState) bool {
	allowed, ok := validTransitions[from]
	return ok && allowed[to]
}

// Journal persists run state changes. Implementations apply an
// optimistic version check so concurrent writers surface as conflicts
// instead of lost updates.
type Journal interface {
	UpdateRun(run *domain.Run) error
}

// Sink publishes a finished run's outputs to durable storage and
// returns where each output landed, keyed like the input result.
type Sink interface {
	Publish(run *domain.Run, result domain.PipelineResult) (domain.PipelineResult, error)
}

// RunnerOptions wires a Runner. Journal and Sink are optional; without
// them runs execute in memory only and skip publication.
type RunnerOptions struct {
	Workspace   *ops.Workspace
	Library     *ops.Library
	GridWidth   int
	GridHeight  int
	Margin      float64
	Journal     Journal
	Sink        Sink
	Incremental bool
	SessionWipe bool
	Log         zerolog.Logger
}

// Runner drives one run end to end: validation, map preparation,
// per-constraint compilation, aggregation, and the state machine around
// it all. Cancellation is honored between operations, so an aborted run
// stops at the next artifact boundary with its state recorded.
type Runner struct {
	ws          *ops.Workspace
	lib         *ops.Library
	compiler    *Compiler
	agg         *Aggregator
	journal     Journal
	sink        Sink
	incremental bool
	sessionWipe bool
	log         zerolog.Logger
}

// NewRunner assembles a runner from its options.
func NewRunner(o RunnerOptions) *Runner {
	return &Runner{
		ws:          o.Workspace,
		lib:         o.Library,
		compiler:    NewCompiler(o.Library, o.GridWidth, o.GridHeight, o.Margin),
		agg:         NewAggregator(o.Library),
		journal:     o.Journal,
		sink:        o.Sink,
		incremental: o.Incremental,
		sessionWipe: o.SessionWipe,
		log:         o.Log.With().Str("component", "pipeline").Logger(),
	}
}

// NewRun creates a run record in the Created state.
func NewRun(project string) *domain.Run {
	return &domain.Run{
		RunID:     uuid.NewString(),
		Project:   project,
		State:     domain.RunCreated,
		StartedAt: time.Now().Unix(),
	}
}

// Run executes the pipeline and moves the run to Succeeded or Failed.
// Completion is a separate Finish step so the caller controls which
// goroutine performs publication.
func (r *Runner) Run(ctx context.Context, run *domain.Run, constraints []domain.Constraint) error {
	if err := r.transition(run, domain.RunRunning); err != nil {
		return err
	}
	result, err := r.execute(ctx, run, constraints)
	run.Produced = r.ws.CreatedCount()
	if err != nil {
		var ee *domain.EngineError
		if errors.As(err, &ee) {
			run.ErrorCode = ee.Code
			run.ErrorMessage = ee.Message
		} else {
			run.ErrorCode = domain.ErrExternalOpFailure.Code
			run.ErrorMessage = err.Error()
		}
		if terr := r.transition(run, domain.RunFailed); terr != nil {
			return terr
		}
		return err
	}
	run.Outputs = result
	return r.transition(run, domain.RunSucceeded)
}

// Finish publishes a succeeded run's outputs and closes the run out.
// Publication failures are reported without retracting copies already
// made, and the run reaches Finished either way.
func (r *Runner) Finish(run *domain.Run) (domain.PipelineResult, error) {
	var published domain.PipelineResult
	var pubErr error
	if run.State == domain.RunSucceeded && r.sink != nil && len(run.Outputs) > 0 {
		published, pubErr = r.sink.Publish(run, run.Outputs)
	}
	run.FinishedAt = time.Now().Unix()
	if err := r.transition(run, domain.RunFinished); err != nil {
		return published, err
	}
	if r.sessionWipe {
		if err := r.ws.CleanupAll(); err != nil {
			r.log.Warn().Str("run", run.RunID).Err(err).Msg("session cleanup failed")
		}
	}
	return published, pubErr
}

func (r *Runner) transition(run *domain.Run, to domain.RunState) error {
	if !IsValidTransition(run.State, to) {
		return domain.NewEngineError(domain.ErrInvalidTransition.Code,
			fmt.Sprintf("cannot move run from %s to %s", run.State, to))
	}
	from := run.State
	run.State = to
	if r.journal != nil {
		if err := r.journal.UpdateRun(run); err != nil {
			run.State = from
			return err
		}
	}
	r.log.Info().Str("run", run.RunID).
		Str("from", string(from)).Str("to", string(to)).Msg("run state changed")
	return nil
}

func (r *Runner) execute(ctx context.Context, run *domain.Run, constraints []domain.Constraint) (domain.PipelineResult, error) {
	list, mapIdx, err := prepare(constraints)
	if err != nil {
		return nil, err
	}
	estimate := EstimateSteps(list)
	run.EstimatedSteps = estimate
	r.ws.SetEstimate(estimate)
	r.log.Info().Str("run", run.RunID).
		Int("constraints", len(list)).Int("estimated_steps", estimate).Msg("run started")

	mapCon := list[mapIdx]
	mapRaster, err := r.compiler.PrepareMap(ctx, mapCon)
	if err != nil {
		return nil, err
	}
	// Every later clip reads the map mask, so it must survive any
	// incremental cleanup.
	r.ws.Forget(mapRaster)
	coef := mapCon.Priority / 100

	result := domain.PipelineResult{}
	var layers []string
	for _, con := range list {
		if con.Skippable() || con.IsMap() {
			continue
		}
		contribution, err := r.compiler.Compile(ctx, con)
		if err != nil {
			return nil, err
		}
		if contribution != "" {
			result[con.Base()] = contribution
			layers = append(layers, contribution)
			r.ws.Forget(contribution)
		}
		if r.incremental {
			if cerr := r.ws.CleanupTracked(); cerr != nil {
				r.log.Warn().Str("run", run.RunID).Err(cerr).Msg("incremental cleanup failed")
			}
		}
	}

	cumulative, err := r.agg.Cumulate(ctx, layers)
	if err != nil {
		return nil, err
	}
	if cumulative == "" {
		// No constraint contributed. Synthesize a neutral surface over
		// the map so the final outputs still exist.
		cumulative, err = r.lib.Constant(ctx, mapRaster, 0)
		if err != nil {
			return nil, err
		}
	}
	normalized, thresholded, err := r.agg.Finalize(ctx, cumulative, coef)
	if err != nil {
		return nil, err
	}
	result[domain.ResultKeyRaster] = normalized
	result[domain.ThresholdKey(coef)] = thresholded
	r.ws.Forget(normalized)
	r.ws.Forget(thresholded)
	if r.incremental {
		if cerr := r.ws.CleanupTracked(); cerr != nil {
			r.log.Warn().Str("run", run.RunID).Err(cerr).Msg("incremental cleanup failed")
		}
	}
	r.ws.Complete()
	return result, nil
}

// prepare deep-copies the constraint list, canonicalizes map rows so
// both sides read Map, and locates the single map constraint.
func prepare(constraints []domain.Constraint) ([]domain.Constraint, int, error) {
	list := make([]domain.Constraint, len(constraints))
	copy(list, constraints)
	mapIdx := -1
	for i := range list {
		if list[i].KindInside != domain.KindMap && list[i].KindOutside != domain.KindMap {
			continue
		}
		if mapIdx >= 0 {
			return nil, 0, domain.ErrMultipleMapConstraints
		}
		list[i].KindInside = domain.KindMap
		list[i].KindOutside = domain.KindMap
		mapIdx = i
	}
	if mapIdx < 0 {
		return nil, 0, domain.ErrMissingMapConstraint
	}
	return list, mapIdx, nil
}
