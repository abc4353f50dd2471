package raster

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/suricates/suitability/internal/domain"
)

// Binary grid layout, little-endian throughout:
//
//	magic   4 bytes "SRGD"
//	version uint32
//	width   uint32
//	height  uint32
//	extent  4 x float64 (xmin, xmax, ymin, ymax)
//	nodata  float64
//	crs     uint16 length + bytes
//	cells   width*height x float32, row-major, row 0 north
const (
	grdMagic   = "SRGD"
	grdVersion = 1

	// maxCells guards allocation when reading a corrupt header.
	maxCells = 1 << 28
)

// Write persists the raster in the binary grid format.
func Write(path string, r *Raster) error {
	f, err := os.Create(path)
	if err != nil {
		return domain.WrapEngineError(domain.ErrCodecFormat.Code, "create raster file", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(grdMagic); err != nil {
		return domain.WrapEngineError(domain.ErrCodecFormat.Code, "write raster header", err)
	}
	header := []any{
		uint32(grdVersion),
		uint32(r.Width),
		uint32(r.Height),
		r.Extent.XMin, r.Extent.XMax, r.Extent.YMin, r.Extent.YMax,
		float64(NoData),
		uint16(len(r.Extent.CRS)),
	}
	for _, field := range header {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			return domain.WrapEngineError(domain.ErrCodecFormat.Code, "write raster header", err)
		}
	}
	if _, err := w.WriteString(r.Extent.CRS); err != nil {
		return domain.WrapEngineError(domain.ErrCodecFormat.Code, "write raster header", err)
	}
	if err := binary.Write(w, binary.LittleEndian, r.Cells); err != nil {
		return domain.WrapEngineError(domain.ErrCodecFormat.Code, "write raster cells", err)
	}
	if err := w.Flush(); err != nil {
		return domain.WrapEngineError(domain.ErrCodecFormat.Code, "flush raster file", err)
	}
	return nil
}

// Read loads a raster from the binary grid format. File nodata values
// are normalized to the NoData constant.
func Read(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrCodecFormat.Code, "open raster file", err)
	}
	defer f.Close()

	rd := bufio.NewReader(f)
	magic := make([]byte, len(grdMagic))
	if _, err := io.ReadFull(rd, magic); err != nil {
		return nil, domain.WrapEngineError(domain.ErrCodecFormat.Code, "read raster header", err)
	}
	if string(magic) != grdMagic {
		return nil, domain.NewEngineError(domain.ErrCodecFormat.Code, "not a raster grid file: "+path)
	}

	var version, width, height uint32
	var xmin, xmax, ymin, ymax, nodata float64
	var crsLen uint16
	for _, field := range []any{&version, &width, &height, &xmin, &xmax, &ymin, &ymax, &nodata, &crsLen} {
		if err := binary.Read(rd, binary.LittleEndian, field); err != nil {
			return nil, domain.WrapEngineError(domain.ErrCodecFormat.Code, "read raster header", err)
		}
	}
	if version != grdVersion {
		return nil, domain.NewEngineError(domain.ErrCodecFormat.Code,
			fmt.Sprintf("unsupported raster grid version %d", version))
	}
	if width == 0 || height == 0 || uint64(width)*uint64(height) > maxCells {
		return nil, domain.NewEngineError(domain.ErrCodecFormat.Code,
			fmt.Sprintf("implausible raster shape %dx%d", width, height))
	}

	crs := make([]byte, crsLen)
	if _, err := io.ReadFull(rd, crs); err != nil {
		return nil, domain.WrapEngineError(domain.ErrCodecFormat.Code, "read raster header", err)
	}

	r := &Raster{
		Width:  int(width),
		Height: int(height),
		Extent: domain.Extent{XMin: xmin, XMax: xmax, YMin: ymin, YMax: ymax, CRS: string(crs)},
		Cells:  make([]float32, int(width)*int(height)),
	}
	if err := binary.Read(rd, binary.LittleEndian, r.Cells); err != nil {
		return nil, domain.WrapEngineError(domain.ErrCodecFormat.Code, "read raster cells", err)
	}
	if fileNoData := float32(nodata); fileNoData != NoData {
		for i, v := range r.Cells {
			if v == fileNoData {
				r.Cells[i] = NoData
			}
		}
	}
	return r, nil
}

// WriteASC persists the raster as an ASCII grid. Square cells use the
// cellsize keyword; uneven cells fall back to the dx/dy extension. The
// CRS is not representable in this format and is dropped.
func WriteASC(path string, r *Raster) error {
	f, err := os.Create(path)
	if err != nil {
		return domain.WrapEngineError(domain.ErrCodecFormat.Code, "create ascii grid", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "ncols %d\n", r.Width)
	fmt.Fprintf(w, "nrows %d\n", r.Height)
	fmt.Fprintf(w, "xllcorner %s\n", formatASC(r.Extent.XMin))
	fmt.Fprintf(w, "yllcorner %s\n", formatASC(r.Extent.YMin))
	cw, ch := r.CellWidth(), r.CellHeight()
	if cw == ch {
		fmt.Fprintf(w, "cellsize %s\n", formatASC(cw))
	} else {
		fmt.Fprintf(w, "dx %s\n", formatASC(cw))
		fmt.Fprintf(w, "dy %s\n", formatASC(ch))
	}
	fmt.Fprintf(w, "NODATA_value %s\n", formatASC(float64(NoData)))
	for row := 0; row < r.Height; row++ {
		for col := 0; col < r.Width; col++ {
			if col > 0 {
				w.WriteByte(' ')
			}
			w.WriteString(strconv.FormatFloat(float64(r.At(col, row)), 'g', -1, 32))
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return domain.WrapEngineError(domain.ErrCodecFormat.Code, "flush ascii grid", err)
	}
	return nil
}

// ReadASC loads an ASCII grid. The result carries an empty CRS; callers
// that know the provenance restore it themselves.
func ReadASC(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrCodecFormat.Code, "open ascii grid", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)
	next := func() (string, bool) {
		if sc.Scan() {
			return sc.Text(), true
		}
		return "", false
	}

	var width, height int
	var xll, yll, dx, dy float64
	nodata := float64(NoData)
	haveSize := false
	// Header keywords come in key/value pairs until the first bare number.
	var firstCell string
	for {
		tok, ok := next()
		if !ok {
			return nil, domain.NewEngineError(domain.ErrCodecFormat.Code, "truncated ascii grid: "+path)
		}
		key := strings.ToLower(tok)
		switch key {
		case "ncols", "nrows", "xllcorner", "yllcorner", "cellsize", "dx", "dy", "nodata_value":
			val, ok := next()
			if !ok {
				return nil, domain.NewEngineError(domain.ErrCodecFormat.Code, "truncated ascii grid header")
			}
			fv, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, domain.WrapEngineError(domain.ErrCodecFormat.Code, "parse ascii grid header", err)
			}
			switch key {
			case "ncols":
				width = int(fv)
			case "nrows":
				height = int(fv)
			case "xllcorner":
				xll = fv
			case "yllcorner":
				yll = fv
			case "cellsize":
				dx, dy = fv, fv
				haveSize = true
			case "dx":
				dx = fv
				haveSize = true
			case "dy":
				dy = fv
				haveSize = true
			case "nodata_value":
				nodata = fv
			}
		default:
			firstCell = tok
		}
		if firstCell != "" {
			break
		}
	}
	if width <= 0 || height <= 0 || !haveSize || dx <= 0 || dy <= 0 {
		return nil, domain.NewEngineError(domain.ErrCodecFormat.Code, "incomplete ascii grid header: "+path)
	}
	if uint64(width)*uint64(height) > maxCells {
		return nil, domain.NewEngineError(domain.ErrCodecFormat.Code,
			fmt.Sprintf("implausible ascii grid shape %dx%d", width, height))
	}

	extent := domain.Extent{
		XMin: xll,
		XMax: xll + float64(width)*dx,
		YMin: yll,
		YMax: yll + float64(height)*dy,
	}
	r := &Raster{Width: width, Height: height, Extent: extent, Cells: make([]float32, width*height)}
	tok := firstCell
	for i := 0; i < len(r.Cells); i++ {
		if i > 0 {
			var ok bool
			tok, ok = next()
			if !ok {
				return nil, domain.NewEngineError(domain.ErrCodecFormat.Code, "truncated ascii grid cells")
			}
		}
		fv, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, domain.WrapEngineError(domain.ErrCodecFormat.Code, "parse ascii grid cell", err)
		}
		if fv == nodata {
			r.Cells[i] = NoData
		} else {
			r.Cells[i] = float32(fv)
		}
	}
	return r, nil
}

func formatASC(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
