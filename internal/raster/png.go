package raster

import (
	"image"
	"image/color"
	"image/png"
	"os"

	xdraw "golang.org/x/image/draw"

	"github.com/suricates/suitability/internal/domain"
)

var (
	rampLow  = color.NRGBA{R: 46, G: 160, B: 67, A: 255}
	rampMid  = color.NRGBA{R: 255, G: 221, B: 66, A: 255}
	rampHigh = color.NRGBA{R: 219, G: 68, B: 55, A: 255}
)

// RenderPNG writes a preview image of the raster with scale output
// pixels per cell. Data cells are colored low-to-high along a
// green/yellow/red ramp between the raster's own bounds; nodata cells
// stay transparent.
func RenderPNG(r *Raster, path string, scale int) error {
	if scale < 1 {
		scale = 1
	}
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	min, max, count := r.Stats()
	span := max - min
	for row := 0; row < r.Height; row++ {
		for col := 0; col < r.Width; col++ {
			v := r.At(col, row)
			if IsNoData(v) || count == 0 {
				continue
			}
			t := 0.0
			if span > 0 {
				t = (float64(v) - min) / span
			}
			img.SetNRGBA(col, row, rampColor(t))
		}
	}

	out := image.Image(img)
	if scale > 1 {
		dst := image.NewNRGBA(image.Rect(0, 0, r.Width*scale, r.Height*scale))
		xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
		out = dst
	}

	f, err := os.Create(path)
	if err != nil {
		return domain.WrapEngineError(domain.ErrCodecFormat.Code, "create preview image", err)
	}
	defer f.Close()
	if err := png.Encode(f, out); err != nil {
		return domain.WrapEngineError(domain.ErrCodecFormat.Code, "encode preview image", err)
	}
	return nil
}

func rampColor(t float64) color.NRGBA {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	if t <= 0.5 {
		return lerpColor(rampLow, rampMid, t*2)
	}
	return lerpColor(rampMid, rampHigh, (t-0.5)*2)
}

func lerpColor(a, b color.NRGBA, t float64) color.NRGBA {
	lerp := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5)
	}
	return color.NRGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 255}
}
