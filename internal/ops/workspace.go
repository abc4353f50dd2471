// Package ops implements the raster operations the pipeline composes:
// buffering, rasterization, proximity, clipping, inversion, merging,
// normalization, thresholding, summation, and constant synthesis. Every
// operation materializes its result as a file in a Workspace, mirroring
// a toolchain of external processing steps.
package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/suricates/suitability/internal/domain"
)

// ProgressFunc receives percentages in [0, 100].
type ProgressFunc func(percent int)

// Workspace owns a run's scratch directory. It allocates artifact names,
// counts them for progress reporting, and tracks which ones are still
// subject to cleanup.
type Workspace struct {
	dir      string
	stamp    string
	progress ProgressFunc

	mu       sync.Mutex
	counter  int
	estimate int
	tracked  map[string]struct{}
	created  []string
}

// NewWorkspace prepares the scratch directory and captures the run
// timestamp used in every artifact name.
func NewWorkspace(dir string, progress ProgressFunc) (*Workspace, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreInit.Code, "create scratch directory", err)
	}
	return &Workspace{
		dir:      dir,
		stamp:    time.Now().Format("060102-150405"),
		progress: progress,
		tracked:  make(map[string]struct{}),
	}, nil
}

// Dir returns the scratch directory.
func (ws *Workspace) Dir() string {
	return ws.dir
}

// SetEstimate fixes the denominator for progress reporting. Progress is
// computed as 100*created/(estimate+1) so the bar never reaches 100
// before the run is declared complete.
func (ws *Workspace) SetEstimate(n int) {
	ws.mu.Lock()
	ws.estimate = n
	ws.mu.Unlock()
}

// NewFile allocates the next artifact path with the given extension,
// tracks it for cleanup, and advances the progress bar. The name embeds
// the run timestamp, a two-digit sequence number, and a fresh UUID.
func (ws *Workspace) NewFile(ext string) string {
	ws.mu.Lock()
	ws.counter++
	name := fmt.Sprintf("%s%02d-%s%s", ws.stamp, ws.counter, uuid.New().String(), ext)
	base := strings.TrimSuffix(name, ext)
	ws.tracked[base] = struct{}{}
	ws.created = append(ws.created, base)
	pct := 0
	if ws.estimate > 0 {
		pct = 100 * ws.counter / (ws.estimate + 1)
		if pct > 100 {
			pct = 100
		}
	}
	fire := ws.progress
	ws.mu.Unlock()

	if fire != nil && pct > 0 {
		fire(pct)
	}
	return filepath.Join(ws.dir, name)
}

// CreatedCount returns how many artifacts have been allocated so far.
func (ws *Workspace) CreatedCount() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.counter
}

// Complete drives the progress bar to 100.
func (ws *Workspace) Complete() {
	if ws.progress != nil {
		ws.progress(100)
	}
}

// Forget exempts an artifact from cleanup. Results that outlive the
// step that produced them, like the rasterized map every constraint
// clips against, must be forgotten before any cleanup pass runs.
func (ws *Workspace) Forget(path string) {
	base := baseOf(path)
	ws.mu.Lock()
	delete(ws.tracked, base)
	ws.mu.Unlock()
}

// CleanupTracked removes every artifact still tracked, including any
// sibling files sharing the same base name, and empties the tracked
// set. The first removal error is reported after all bases were tried.
func (ws *Workspace) CleanupTracked() error {
	ws.mu.Lock()
	bases := make([]string, 0, len(ws.tracked))
	for base := range ws.tracked {
		bases = append(bases, base)
	}
	ws.tracked = make(map[string]struct{})
	ws.mu.Unlock()
	return ws.removeBases(bases)
}

// CleanupAll removes every artifact this workspace ever allocated,
// whether forgotten or not. Intended for after publication, when the
// durable copies exist.
func (ws *Workspace) CleanupAll() error {
	ws.mu.Lock()
	bases := ws.created
	ws.created = nil
	ws.tracked = make(map[string]struct{})
	ws.mu.Unlock()
	return ws.removeBases(bases)
}

func (ws *Workspace) removeBases(bases []string) error {
	var firstErr error
	for _, base := range bases {
		matches, err := filepath.Glob(filepath.Join(ws.dir, base+".*"))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "cleanup scratch artifacts", firstErr)
	}
	return nil
}

// Purge removes an entire scratch directory and recreates it empty.
func Purge(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "purge scratch directory", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.WrapEngineError(domain.ErrStoreInit.Code, "recreate scratch directory", err)
	}
	return nil
}

func baseOf(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
