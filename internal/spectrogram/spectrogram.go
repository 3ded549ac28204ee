// Package spectrogram prepares an averaged frame for spectral analysis:
// orientation flip, per-column median background subtraction, wavelength
// scale and sensitivity calibration, horizon windowing, and a rendered
// quick-look figure.
package spectrogram

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/kho-data/aurora.report/internal/calib"
	"github.com/kho-data/aurora.report/internal/extract"
	"github.com/kho-data/aurora.report/internal/fsutil"
	"github.com/kho-data/aurora.report/internal/monitoring"
	"github.com/kho-data/aurora.report/internal/spectro"
)

// ErrEmptyFrame reports a frame with no pixels.
var ErrEmptyFrame = errors.New("empty frame")

// Calibrated is a background-subtracted, sensitivity-corrected spectrogram.
// Rows follow the stored-row order of the source frame after the orientation
// flip; columns are clipped to the horizon field of view.
type Calibrated struct {
	Device      spectro.Device
	Data        [][]float64
	Wavelengths []float64 // per row, same order as Data
}

// Calibrate converts a raw averaged frame into a calibrated spectrogram.
//
// The steps mirror the instrument processing order: vertical flip to correct
// the sensor orientation, per-column median background subtraction clipped
// at zero, horizon column windowing, then the per-row sensitivity factor.
func Calibrate(img *image.Gray16, dev *calib.Device, binY int) (*Calibrated, error) {
	if binY < 1 {
		binY = 1
	}
	rows := extract.FrameRows(img)
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyFrame
	}

	flipRows(rows)
	subtractBackground(rows)
	rows = clipHorizon(rows, dev.HorizonStart, dev.HorizonEnd)

	scale := dev.WavelengthScale(len(rows), binY)
	for y, r := range rows {
		k := dev.Sensitivity(scale[y])
		for x := range r {
			r[x] *= k
		}
	}

	return &Calibrated{Device: dev.Name, Data: rows, Wavelengths: scale}, nil
}

// flipRows reverses the row order in place.
func flipRows(rows [][]float64) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

// subtractBackground removes the per-column median and clips negative
// residuals to zero, in place.
func subtractBackground(rows [][]float64) {
	h := len(rows)
	w := len(rows[0])
	col := make([]float64, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = rows[y][x]
		}
		m := median(col)
		for y := 0; y < h; y++ {
			v := rows[y][x] - m
			if v < 0 {
				v = 0
			}
			rows[y][x] = v
		}
	}
}

// median computes the middle value, averaging the two central samples for
// even lengths. The input slice is reordered.
func median(v []float64) float64 {
	sort.Float64s(v)
	n := len(v)
	if n%2 == 1 {
		return v[n/2]
	}
	return (v[n/2-1] + v[n/2]) / 2
}

// clipHorizon restricts columns to the horizon field of view, clamped to
// the frame width. A degenerate range keeps the full width.
func clipHorizon(rows [][]float64, start, end int) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		lo, hi := start, end
		if lo < 0 {
			lo = 0
		}
		if hi > len(r) {
			hi = len(r)
		}
		if lo >= hi {
			lo, hi = 0, len(r)
		}
		out[i] = r[lo:hi]
	}
	return out
}

// Renderer writes quick-look figures for calibrated spectrograms.
type Renderer struct {
	FS     fsutil.FileSystem
	OutDir string
}

// QuickLookPath returns the idempotent render path for a minute's
// quick-look figure.
func (r *Renderer) QuickLookPath(key spectro.MinuteKey) string {
	return filepath.Join(key.Date().Dir(r.OutDir), key.Stem()+"_spectrogram.png")
}

// Render draws the calibrated spectrogram as a grayscale raster with a
// wavelength axis and persists it at the minute's quick-look path.
func (r *Renderer) Render(c *Calibrated, key spectro.MinuteKey) (string, error) {
	if len(c.Data) == 0 || len(c.Data[0]) == 0 {
		return "", ErrEmptyFrame
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s spectrogram %s", c.Device.Title(), key.Stem())
	p.X.Label.Text = "Elevation (pixels)"
	p.Y.Label.Text = "Wavelength [Å]"

	lo, hi := c.Wavelengths[len(c.Wavelengths)-1], c.Wavelengths[0]
	if lo > hi {
		lo, hi = hi, lo
	}
	img := plotter.NewImage(rasterize(c.Data), 0, lo, float64(len(c.Data[0])), hi)
	p.Add(img)
	p.X.Min, p.X.Max = 0, float64(len(c.Data[0]))
	p.Y.Min, p.Y.Max = lo, hi

	wt, err := p.WriterTo(12*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return "", fmt.Errorf("spectrogram: render: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("spectrogram: render: %w", err)
	}

	outPath := r.QuickLookPath(key)
	if err := r.FS.MkdirAll(filepath.Dir(outPath), os.FileMode(0755)); err != nil {
		return "", fmt.Errorf("spectrogram: create output directory: %w", err)
	}
	if err := r.FS.WriteFile(outPath, buf.Bytes(), os.FileMode(0644)); err != nil {
		return "", fmt.Errorf("spectrogram: write %s: %w", outPath, err)
	}

	monitoring.Logf("spectrogram: wrote %s", outPath)
	return outPath, nil
}

// rasterize maps the calibrated values onto an 8-bit grayscale image by
// min-max scaling. Stored row 0 is drawn at the top so the figure keeps the
// wavelength orientation of the data.
func rasterize(data [][]float64) *image.Gray {
	h, w := len(data), len(data[0])
	min, max := data[0][0], data[0][0]
	for _, r := range data {
		for _, v := range r {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}

	img := image.NewGray(image.Rect(0, 0, w, h))
	if max == min {
		return img
	}
	scale := 255 / (max - min)
	for y, r := range data {
		for x, v := range r {
			img.Pix[y*img.Stride+x] = uint8((v - min) * scale)
		}
	}
	return img
}
