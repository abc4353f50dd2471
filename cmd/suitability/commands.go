package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/suricates/suitability/internal/config"
	"github.com/suricates/suitability/internal/domain"
	"github.com/suricates/suitability/internal/ipc"
	"github.com/suricates/suitability/internal/ops"
	"github.com/suricates/suitability/internal/pipeline"
	"github.com/suricates/suitability/internal/raster"
	"github.com/suricates/suitability/internal/store"
)

type app struct {
	cfg      *config.Config
	db       *sql.DB
	log      zerolog.Logger
	projects *store.ProjectRepo
	cons     *store.ConstraintRepo
	runs     *store.RunRepo
	events   *store.RunEventRepo
}

func (a *app) dispatch(args []string) error {
	switch args[0] {
	case "project":
		return a.cmdProject(args[1:])
	case "constraint":
		return a.cmdConstraint(args[1:])
	case "threshold":
		return a.cmdThreshold(args[1:])
	case "run":
		return a.cmdRun(args[1:])
	case "runs":
		return a.cmdRuns(args[1:])
	case "history":
		return a.cmdHistory(args[1:])
	case "render":
		return a.cmdRender(args[1:])
	case "serve":
		return a.cmdServe(args[1:])
	case "cleanup":
		return a.cmdCleanup(args[1:])
	}
	usage()
	return fmt.Errorf("unknown command %q", args[0])
}

func (a *app) cmdProject(args []string) error {
	if len(args) == 0 {
		return errors.New("project needs a subcommand: create, list, delete")
	}
	ctx := context.Background()
	switch args[0] {
	case "create":
		if len(args) < 2 {
			return errors.New("usage: suitability project create <name> [--dir <path>]")
		}
		name := args[1]
		fs := flag.NewFlagSet("project create", flag.ExitOnError)
		dir := fs.String("dir", "", "directory for published outputs")
		fs.Parse(args[2:])

		projectDir := *dir
		if projectDir == "" {
			projectDir = filepath.Join(a.cfg.DataDir, "projects", name)
		}
		if err := os.MkdirAll(projectDir, 0o755); err != nil {
			return fmt.Errorf("create project directory: %w", err)
		}
		p := &domain.Project{Name: name, Dir: projectDir, CreatedAt: time.Now().Unix()}
		if err := a.projects.Create(ctx, a.db, p); err != nil {
			return err
		}
		fmt.Printf("created project %s (outputs in %s)\n", name, projectDir)
		return nil

	case "list":
		projects, err := a.projects.List(ctx, a.db)
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("no projects")
			return nil
		}
		for _, p := range projects {
			fmt.Printf("%-20s %-48s created %s\n", p.Name, p.Dir, humanize.Time(time.Unix(p.CreatedAt, 0)))
		}
		return nil

	case "delete":
		if len(args) < 2 {
			return errors.New("usage: suitability project delete <name>")
		}
		if err := a.projects.Delete(ctx, a.db, args[1]); err != nil {
			return err
		}
		fmt.Printf("deleted project %s (published files are left on disk)\n", args[1])
		return nil
	}
	return fmt.Errorf("unknown project subcommand %q", args[0])
}

func (a *app) cmdConstraint(args []string) error {
	if len(args) == 0 {
		return errors.New("constraint needs a subcommand: add, list, set, del")
	}
	ctx := context.Background()
	switch args[0] {
	case "add":
		if len(args) < 3 {
			return errors.New("usage: suitability constraint add <project> <source> [--in <kind>] [--out <kind>] [--buffer <n>] [--priority <p>]")
		}
		project, source := args[1], args[2]
		fs := flag.NewFlagSet("constraint add", flag.ExitOnError)
		in := fs.String("in", string(domain.KindSanctuarized), "kind applied inside the footprint")
		out := fs.String("out", string(domain.KindSanctuarized), "kind applied outside the footprint")
		buffer := fs.Float64("buffer", 50, "buffer distance in extent units")
		priority := fs.Float64("priority", 100, "priority weight")
		fs.Parse(args[3:])

		if _, err := a.projects.Get(ctx, a.db, project); err != nil {
			return err
		}
		abs, err := filepath.Abs(source)
		if err != nil {
			return fmt.Errorf("resolve source path: %w", err)
		}
		count, err := a.cons.Count(ctx, a.db, project)
		if err != nil {
			return err
		}
		var c domain.Constraint
		if count == 0 {
			c = domain.NewMapConstraint(abs)
			fmt.Printf("%s becomes the map of %s (buffer %g, threshold %g%%)\n",
				c.Base(), project, c.Buffer, c.Priority)
		} else {
			c = domain.NewConstraint(abs)
			if c.KindInside, err = domain.ParseConstraintKind(*in); err != nil {
				return err
			}
			if c.KindOutside, err = domain.ParseConstraintKind(*out); err != nil {
				return err
			}
			c.Buffer = *buffer
			c.Priority = *priority
		}
		if err := a.cons.Append(ctx, a.db, project, c); err != nil {
			return err
		}
		fmt.Printf("added %s to %s (%s/%s, buffer %g, priority %g)\n",
			c.Base(), project, c.KindInside, c.KindOutside, c.Buffer, c.Priority)
		return nil

	case "list":
		if len(args) < 2 {
			return errors.New("usage: suitability constraint list <project>")
		}
		constraints, err := a.cons.ListByProject(ctx, a.db, args[1])
		if err != nil {
			return err
		}
		if len(constraints) == 0 {
			fmt.Println("no constraints")
			return nil
		}
		fmt.Printf("%-24s %-13s %-13s %8s %9s  %s\n", "BASE", "INSIDE", "OUTSIDE", "BUFFER", "PRIORITY", "SOURCE")
		for _, c := range constraints {
			note := ""
			if !c.Exists {
				note = " (missing)"
			}
			fmt.Printf("%-24s %-13s %-13s %8g %9g  %s%s\n",
				c.Base(), c.KindInside, c.KindOutside, c.Buffer, c.Priority, c.SourceRef, note)
		}
		return nil

	case "set":
		if len(args) < 3 {
			return errors.New("usage: suitability constraint set <project> <base> [--in <kind>] [--out <kind>] [--buffer <n>] [--priority <p>]")
		}
		project, base := args[1], args[2]
		fs := flag.NewFlagSet("constraint set", flag.ExitOnError)
		in := fs.String("in", "", "kind applied inside the footprint")
		out := fs.String("out", "", "kind applied outside the footprint")
		buffer := fs.Float64("buffer", 0, "buffer distance in extent units")
		priority := fs.Float64("priority", 0, "priority weight")
		fs.Parse(args[3:])

		constraints, err := a.cons.ListByProject(ctx, a.db, project)
		if err != nil {
			return err
		}
		var current *domain.Constraint
		for i := range constraints {
			if constraints[i].Base() == base {
				current = &constraints[i]
				break
			}
		}
		if current == nil {
			return domain.ErrConstraintNotFound
		}
		var parseErr error
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "in":
				if k, err := domain.ParseConstraintKind(*in); err != nil {
					parseErr = err
				} else {
					current.KindInside = k
				}
			case "out":
				if k, err := domain.ParseConstraintKind(*out); err != nil {
					parseErr = err
				} else {
					current.KindOutside = k
				}
			case "buffer":
				current.Buffer = *buffer
			case "priority":
				current.Priority = *priority
			}
		})
		if parseErr != nil {
			return parseErr
		}
		if err := a.cons.Update(ctx, a.db, project, base, *current); err != nil {
			return err
		}
		fmt.Printf("updated %s (%s/%s, buffer %g, priority %g)\n",
			base, current.KindInside, current.KindOutside, current.Buffer, current.Priority)
		return nil

	case "del":
		if len(args) < 3 {
			return errors.New("usage: suitability constraint del <project> <base>")
		}
		if err := a.cons.Delete(ctx, a.db, args[1], args[2]); err != nil {
			return err
		}
		fmt.Printf("removed %s from %s\n", args[2], args[1])
		return nil
	}
	return fmt.Errorf("unknown constraint subcommand %q", args[0])
}

func (a *app) cmdThreshold(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: suitability threshold <project> <percent>")
	}
	percent, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("parse percent: %w", err)
	}
	if percent <= 0 || percent > 100 {
		return errors.New("threshold percent must be in (0, 100]")
	}
	if err := a.cons.SetThreshold(context.Background(), a.db, args[0], percent); err != nil {
		return err
	}
	fmt.Printf("acceptance threshold for %s set to %g%% (coef %g)\n", args[0], percent, percent/100)
	return nil
}

func (a *app) cmdRun(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: suitability run <project>")
	}
	projectName := args[0]
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	project, err := a.projects.Get(ctx, a.db, projectName)
	if err != nil {
		return err
	}
	constraints, err := a.cons.ListByProject(ctx, a.db, projectName)
	if err != nil {
		return err
	}
	for _, c := range constraints {
		if !c.Exists {
			return domain.NewEngineError(domain.ErrInvalidSource.Code,
				"source file missing for constraint "+c.Base())
		}
	}

	run := pipeline.NewRun(projectName)
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run insert: %w", err)
	}
	if err := a.runs.CreateTx(ctx, tx, run); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run insert: %w", err)
	}

	progress := func(pct int) { fmt.Printf("\rprogress: %3d%%", pct) }
	ws, err := ops.NewWorkspace(a.cfg.TempDir, progress)
	if err != nil {
		return err
	}
	lib := ops.NewLibrary(ws, a.log)

	runner := pipeline.NewRunner(pipeline.RunnerOptions{
		Workspace:  ws,
		Library:    lib,
		GridWidth:  a.cfg.GridWidth,
		GridHeight: a.cfg.GridHeight,
		Margin:     a.cfg.ExtentMargin,
		Journal:    &store.RunJournal{DB: a.db, Runs: a.runs, Events: a.events},
		Sink: &pipeline.DirSink{
			Dir:          project.Dir,
			Preview:      a.cfg.Preview,
			PreviewScale: a.cfg.PreviewScale,
			Log:          a.log,
		},
		Incremental: a.cfg.Cleanup == config.CleanupIncremental,
		SessionWipe: a.cfg.Cleanup == config.CleanupSession,
		Log:         a.log,
	})

	registry := pipeline.NewRegistry(a.log)
	handle, err := registry.Submit(ctx, runner, run, constraints)
	if err != nil {
		return err
	}
	published, runErr := registry.Wait(handle)
	fmt.Println()

	if runErr != nil {
		return fmt.Errorf("run %s failed: %w", run.RunID, runErr)
	}
	fmt.Printf("run %s succeeded: %d artifacts (estimated %d)\n", run.RunID, run.Produced, run.EstimatedSteps)
	names := make([]string, 0, len(published))
	for name := range published {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path := published[name]
		size := "?"
		if fi, err := os.Stat(path); err == nil {
			size = humanize.Bytes(uint64(fi.Size()))
		}
		fmt.Printf("  %-28s %8s  %s\n", name, size, path)
	}
	return nil
}

func (a *app) cmdRuns(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: suitability runs <project> [--limit <n>]")
	}
	project := args[0]
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "maximum number of runs to show")
	fs.Parse(args[1:])

	runs, err := a.runs.ListByProject(context.Background(), a.db, project, *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return nil
	}
	for _, run := range runs {
		note := ""
		if run.ErrorMessage != "" {
			note = "  " + run.ErrorMessage
		}
		fmt.Printf("%-36s %-10s %-18s steps %d/%d%s\n",
			run.RunID, run.State, humanize.Time(time.Unix(run.StartedAt, 0)), run.Produced, run.EstimatedSteps, note)
	}
	return nil
}

func (a *app) cmdHistory(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: suitability history <run-id>")
	}
	runID := args[0]
	ctx := context.Background()

	if _, err := a.runs.GetByID(ctx, a.db, runID); err != nil {
		return err
	}
	events, err := a.events.ListByRun(ctx, a.db, runID, 0)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("no recorded transitions")
		return nil
	}
	for _, e := range events {
		note := ""
		if e.Detail != "" {
			note = "  " + e.Detail
		}
		fmt.Printf("%-10s %-18s%s\n", e.State, humanize.Time(time.Unix(e.At, 0)), note)
	}
	return nil
}

// newRunner builds the pipeline stack for one API-submitted run. The
// workspace has no progress callback; clients follow the event stream
// instead.
func (a *app) newRunner(project *domain.Project) (*pipeline.Runner, error) {
	ws, err := ops.NewWorkspace(a.cfg.TempDir, nil)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(pipeline.RunnerOptions{
		Workspace:  ws,
		Library:    ops.NewLibrary(ws, a.log),
		GridWidth:  a.cfg.GridWidth,
		GridHeight: a.cfg.GridHeight,
		Margin:     a.cfg.ExtentMargin,
		Journal:    &store.RunJournal{DB: a.db, Runs: a.runs, Events: a.events},
		Sink: &pipeline.DirSink{
			Dir:          project.Dir,
			Preview:      a.cfg.Preview,
			PreviewScale: a.cfg.PreviewScale,
			Log:          a.log,
		},
		Incremental: a.cfg.Cleanup == config.CleanupIncremental,
		SessionWipe: a.cfg.Cleanup == config.CleanupSession,
		Log:         a.log,
	}), nil
}

func (a *app) cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8329", "listen address for the local API")
	fs.Parse(args)

	handler := &ipc.Handler{
		DB:          a.db,
		Projects:    a.projects,
		Constraints: a.cons,
		Runs:        a.runs,
		Events:      a.events,
		Registry:    pipeline.NewRegistry(a.log),
		NewRunner:   a.newRunner,
		Log:         a.log,
	}
	srv := ipc.NewServer(handler, *addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	a.log.Info().Str("addr", *addr).Msg("api listening")
	fmt.Printf("listening on http://%s\n", *addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	fmt.Println("\nshutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) cmdRender(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: suitability render <raster.grd> [--out <file.png>] [--scale <n>]")
	}
	src := args[0]
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	out := fs.String("out", "", "output PNG path")
	scale := fs.Int("scale", a.cfg.PreviewScale, "output pixels per cell")
	fs.Parse(args[1:])

	r, err := raster.Read(src)
	if err != nil {
		return err
	}
	dst := *out
	if dst == "" {
		dst = src + ".png"
	}
	if err := raster.RenderPNG(r, dst, *scale); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%dx%d cells at scale %d)\n", dst, r.Width, r.Height, *scale)
	return nil
}

func (a *app) cmdCleanup(args []string) error {
	if err := ops.Purge(a.cfg.TempDir); err != nil {
		return err
	}
	fmt.Printf("purged scratch directory %s\n", a.cfg.TempDir)
	return nil
}
