package pipeline

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/suricates/suitability/internal/domain"
)

// Registry tracks active runs, one per project. Each run's pipeline
// executes on its own goroutine; completion happens on whichever
// goroutine calls Wait, never on the worker itself.
type Registry struct {
	mu     sync.Mutex
	active map[string]*Handle
	log    zerolog.Logger
}

// Handle follows one submitted run.
type Handle struct {
	Run    *domain.Run
	runner *Runner
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		active: make(map[string]*Handle),
		log:    log.With().Str("component", "registry").Logger(),
	}
}

// Submit starts a run on a background goroutine. A project admits one
// active run at a time.
func (reg *Registry) Submit(ctx context.Context, runner *Runner, run *domain.Run, constraints []domain.Constraint) (*Handle, error) {
	reg.mu.Lock()
	if _, busy := reg.active[run.Project]; busy {
		reg.mu.Unlock()
		return nil, domain.NewEngineError(domain.ErrDuplicateRun.Code,
			"project "+run.Project+" already has an active run")
	}
	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{Run: run, runner: runner, cancel: cancel, done: make(chan struct{})}
	reg.active[run.Project] = h
	reg.mu.Unlock()

	reg.log.Info().Str("run", run.RunID).Str("project", run.Project).Msg("run submitted")
	go func() {
		defer close(h.done)
		h.runErr = runner.Run(runCtx, run, constraints)
	}()
	return h, nil
}

// Cancel requests cancellation of a project's active run. It reports
// whether such a run existed; the run itself winds down at its next
// operation boundary.
func (reg *Registry) Cancel(project string) bool {
	reg.mu.Lock()
	h, ok := reg.active[project]
	reg.mu.Unlock()
	if ok {
		reg.log.Info().Str("project", project).Msg("cancellation requested")
		h.cancel()
	}
	return ok
}

// Active returns the projects that currently hold a run, sorted.
func (reg *Registry) Active() []string {
	reg.mu.Lock()
	projects := make([]string, 0, len(reg.active))
	for p := range reg.active {
		projects = append(projects, p)
	}
	reg.mu.Unlock()
	sort.Strings(projects)
	return projects
}

// Wait blocks until the run's worker finishes, then completes the run
// on the calling goroutine and releases the project, win or lose.
func (reg *Registry) Wait(h *Handle) (domain.PipelineResult, error) {
	<-h.done
	published, finErr := h.runner.Finish(h.Run)
	h.cancel()

	reg.mu.Lock()
	delete(reg.active, h.Run.Project)
	reg.mu.Unlock()

	if h.runErr != nil {
		return published, h.runErr
	}
	return published, finErr
}
