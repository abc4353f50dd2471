// Package main is the entry point for the suitability engine CLI.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/suricates/suitability/internal/config"
	"github.com/suricates/suitability/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to configuration JSON file")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("suitability %s (commit=%s, built=%s)\n", version, commit, date)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	// Resolve config path: --config flag > SURICATES_CONFIG env > auto-discover.
	path := *configPath
	if path == "" {
		path = os.Getenv("SURICATES_CONFIG")
	}
	if path == "" {
		path = discoverConfig()
	}
	if path == "" {
		fatal("no config found. Place config.json next to the exe, use --config <path>, or set SURICATES_CONFIG.")
	}

	cfg, err := config.Load(path)
	if err != nil {
		fatal(fmt.Sprintf("load config: %v", err))
	}

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		fatal(fmt.Sprintf("open database: %v", err))
	}
	defer db.Close()

	a := &app{
		cfg:      cfg,
		db:       db,
		log:      newLogger(cfg.LogLevel),
		projects: &store.ProjectRepo{},
		cons:     &store.ConstraintRepo{},
		runs:     &store.RunRepo{},
		events:   &store.RunEventRepo{},
	}

	if err := a.dispatch(args); err != nil {
		fatal(err.Error())
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// discoverConfig looks for config.json next to the executable, then in the cwd.
func discoverConfig() string {
	// Next to executable.
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "config.json")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	// Current working directory.
	if _, err := os.Stat("config.json"); err == nil {
		return "config.json"
	}
	return ""
}

func usage() {
	fmt.Fprint(os.Stderr, `suitability - constraint-based suitability raster engine

Usage:
  suitability [flags] <command> [args]

Commands (positional arguments come before command options):
  project create <name> [--dir <path>]        create a project
  project list                                list projects
  project delete <name>                       delete a project and its records
  constraint add <project> <source> [opts]    append a constraint; the first one becomes the map
  constraint list <project>                   show a project's constraint table
  constraint set <project> <base> [opts]      edit kinds, buffer, or priority
  constraint del <project> <base>             remove a constraint
  threshold <project> <percent>               set the acceptance threshold (map row priority)
  run <project>                               execute the pipeline for a project
  runs <project> [--limit <n>]                list past runs
  history <run-id>                            show a run's state transitions
  render <raster.grd> [--out <file.png>]      render a raster grid to PNG
  serve [--addr <host:port>]                  start the local HTTP API
  cleanup                                     purge the scratch directory

Flags:
  --config <path>   configuration file (default: config.json next to the exe)
  --version         print version and exit
`)
}

// fatal prints an error and, on Windows, waits for a keypress so the user can
// read the message when the exe is launched by double-click.
func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", msg)
	if runtime.GOOS == "windows" {
		fmt.Fprintln(os.Stderr, "\nPress Enter to exit...")
		bufio.NewReader(os.Stdin).ReadBytes('\n')
	}
	os.Exit(1)
}
