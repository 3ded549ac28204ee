// Package keogram assembles per-minute RGB columns into the daily keogram
// raster and renders it with annotated time and elevation axes.
//
// A raster is keyed to exactly one UTC calendar day: 1440 columns, one per
// minute. Columns start white and are overwritten in place as data becomes
// available; minutes with no usable column stay white. Gaps are never
// interpolated across.
package keogram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/kho-data/aurora.report/internal/extract"
	"github.com/kho-data/aurora.report/internal/fsutil"
	"github.com/kho-data/aurora.report/internal/monitoring"
	"github.com/kho-data/aurora.report/internal/spectro"
	"github.com/kho-data/aurora.report/internal/spectro/pngmeta"
)

// Raster dimensions: one column per minute of the UTC day, one row per
// elevation sample.
const (
	Height = extract.ProfileLength
	Width  = 24 * 60
)

// ErrShapeMismatch reports a column whose dimensions are not (300, 1, 3).
var ErrShapeMismatch = errors.New("rgb column shape mismatch")

// Raster is one device-day keogram.
type Raster struct {
	Device spectro.Device
	Date   spectro.Date
	img    *image.NRGBA
}

// NewRaster creates an all-white raster for a device-day.
func NewRaster(dev spectro.Device, date spectro.Date) *Raster {
	img := image.NewNRGBA(image.Rect(0, 0, Width, Height))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return &Raster{Device: dev, Date: date, img: img}
}

// Image exposes the raster pixels.
func (r *Raster) Image() *image.NRGBA { return r.img }

// SetColumn overwrites the raster column at a minute index with a
// 1-wide, 300-tall RGB column. Only that column is touched.
func (r *Raster) SetColumn(minute int, col *image.NRGBA) error {
	if minute < 0 || minute >= Width {
		return fmt.Errorf("minute index %d outside [0,%d)", minute, Width)
	}
	b := col.Bounds()
	if b.Dx() != 1 || b.Dy() != Height {
		return fmt.Errorf("%w: got %dx%d, want 1x%d", ErrShapeMismatch, b.Dx(), b.Dy(), Height)
	}
	draw.Draw(r.img, image.Rect(minute, 0, minute+1, Height), col, b.Min, draw.Src)
	return nil
}

// Assembler builds and renders day rasters from the RGB column directory.
type Assembler struct {
	FS     fsutil.FileSystem
	RGBDir string
	OutDir string
}

// Result summarizes one assembly pass.
type Result struct {
	ColumnsInserted int
	ColumnsMissing  int
	ColumnsRejected int
}

// Assemble builds the raster for a device-day, considering minutes
// [0, throughMinute). Pass Width for a historical full-day run; a live run
// passes the minutes elapsed since 00:00 UTC so only past data is read.
//
// A column that is missing, fails the integrity check, or has the wrong
// shape leaves its raster column untouched; none of these are fatal.
func (a *Assembler) Assemble(ctx context.Context, dev spectro.Device, date spectro.Date, throughMinute int) (*Raster, Result, error) {
	var res Result
	r := NewRaster(dev, date)

	if throughMinute > Width {
		throughMinute = Width
	}

	dir := date.Dir(a.RGBDir)
	if !a.FS.Exists(dir) {
		monitoring.Logf("keogram: no RGB directory %s", dir)
		res.ColumnsMissing = throughMinute
		return r, res, nil
	}

	for m := 0; m < throughMinute; m++ {
		if err := ctx.Err(); err != nil {
			return r, res, err
		}

		path := date.MinuteKeyAt(dev, m).RGBColumnPath(a.RGBDir)
		if !a.FS.Exists(path) {
			res.ColumnsMissing++
			continue
		}

		col, err := a.loadColumn(path)
		if err != nil {
			monitoring.Logf("keogram: %s: %v (treated as no data)", filepath.Base(path), err)
			res.ColumnsRejected++
			continue
		}
		if err := r.SetColumn(m, col); err != nil {
			monitoring.Logf("keogram: %s: %v (treated as no data)", filepath.Base(path), err)
			res.ColumnsRejected++
			continue
		}
		res.ColumnsInserted++
	}

	return r, res, nil
}

// loadColumn reads a column file with a validate pass (full structural
// verification) followed by a load pass, then checks the shape exactly.
func (a *Assembler) loadColumn(path string) (*image.NRGBA, error) {
	data, err := a.FS.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := pngmeta.Verify(data); err != nil {
		return nil, fmt.Errorf("integrity check: %w", err)
	}
	col, err := pngmeta.DecodeRGB(data)
	if err != nil {
		return nil, err
	}
	b := col.Bounds()
	if b.Dx() != 1 || b.Dy() != Height {
		return nil, fmt.Errorf("%w: got %dx%d, want 1x%d", ErrShapeMismatch, b.Dx(), b.Dy(), Height)
	}
	return col, nil
}

// Render draws the raster with its axis annotation and persists it at the
// device-day render path, overwriting any previous render for the day.
func (a *Assembler) Render(r *Raster) (string, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %04d/%02d/%02d",
		r.Device.Title(), r.Date.Year, int(r.Date.Month), r.Date.Day)
	p.X.Label.Text = "Time (UT)"
	p.Y.Label.Text = "Elevation angle [degrees]"

	// Fixed linear mappings: minutes 0..1440 on X, elevation -90 (south)
	// to +90 (north) degrees on Y.
	img := plotter.NewImage(r.img, 0, -90, Width, 90)
	p.Add(img)

	p.X.Min, p.X.Max = 0, Width
	p.Y.Min, p.Y.Max = -90, 90
	p.X.Tick.Marker = plot.ConstantTicks(timeTicks())
	p.Y.Tick.Marker = plot.ConstantTicks(elevationTicks())

	wt, err := p.WriterTo(24*vg.Inch, 10*vg.Inch, "png")
	if err != nil {
		return "", fmt.Errorf("keogram: render: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("keogram: render: %w", err)
	}

	outPath := spectro.KeogramPath(a.OutDir, r.Device, r.Date)
	if err := a.FS.MkdirAll(filepath.Dir(outPath), os.FileMode(0755)); err != nil {
		return "", fmt.Errorf("keogram: create output directory: %w", err)
	}
	if err := a.FS.WriteFile(outPath, buf.Bytes(), os.FileMode(0644)); err != nil {
		return "", fmt.Errorf("keogram: write %s: %w", outPath, err)
	}

	monitoring.Logf("keogram: wrote %s", outPath)
	return outPath, nil
}

// timeTicks labels every second hour as HH:MM.
func timeTicks() []plot.Tick {
	var ticks []plot.Tick
	for m := 0; m <= Width; m += 120 {
		label := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).
			Add(time.Duration(m) * time.Minute).Format("15:04")
		if m == Width {
			label = "24:00"
		}
		ticks = append(ticks, plot.Tick{Value: float64(m), Label: label})
	}
	return ticks
}

// elevationTicks labels the elevation axis from the south to the north
// horizon with the zenith in the middle.
func elevationTicks() []plot.Tick {
	labels := []string{"90° S", "60° S", "30° S", "Zenith", "30° N", "60° N", "90° N"}
	ticks := make([]plot.Tick, len(labels))
	for i, l := range labels {
		ticks[i] = plot.Tick{Value: -90 + float64(i)*30, Label: l}
	}
	return ticks
}
