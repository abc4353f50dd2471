package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/suricates/suitability/internal/domain"
	"github.com/suricates/suitability/internal/raster"
)

const rasterExt = ".grd"

// DirSink copies run outputs into a durable project directory. Each
// copy keeps its scratch file name prefixed by its result key, so
// successive runs never overwrite each other. With previews enabled,
// every published raster gets a PNG rendering beside it.
type DirSink struct {
	Dir          string
	Preview      bool
	PreviewScale int
	Log          zerolog.Logger
}

// Publish copies outputs one by one. A failed copy is recorded and
// skipped; the remaining outputs are still published and the first
// failure is returned after the pass completes.
func (s *DirSink) Publish(run *domain.Run, result domain.PipelineResult) (domain.PipelineResult, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, domain.WrapEngineError(domain.ErrCopyFailure.Code, "create project directory", err)
	}
	names := make([]string, 0, len(result))
	for name := range result {
		names = append(names, name)
	}
	sort.Strings(names)

	published := make(domain.PipelineResult, len(result))
	var firstErr error
	for _, name := range names {
		src := result[name]
		dst := filepath.Join(s.Dir, name+"-"+filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			s.Log.Error().Str("run", run.RunID).Str("output", name).Err(err).Msg("publish copy failed")
			if firstErr == nil {
				firstErr = domain.WrapEngineError(domain.ErrCopyFailure.Code, "copy output "+name, err)
			}
			continue
		}
		published[name] = dst
		if s.Preview && filepath.Ext(dst) == rasterExt {
			if err := s.renderPreview(dst); err != nil {
				s.Log.Warn().Str("run", run.RunID).Str("output", name).Err(err).Msg("preview rendering failed")
			}
		}
	}
	return published, firstErr
}

func (s *DirSink) renderPreview(rasterPath string) error {
	r, err := raster.Read(rasterPath)
	if err != nil {
		return err
	}
	scale := s.PreviewScale
	if scale < 1 {
		scale = 1
	}
	return raster.RenderPNG(r, rasterPath+".png", scale)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	cerr := out.Close()
	if err != nil {
		return err
	}
	return cerr
}
