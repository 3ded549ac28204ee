// Package extract computes emission-line elevation profiles from spectrograph
// frames: it resolves the pixel row of a target wavelength through the
// calibration model, averages a binning-scaled band of rows around it after
// median filtering, and resamples the result to a fixed 300-sample profile.
package extract

import (
	"errors"
	"fmt"
	"image"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/kho-data/aurora.report/internal/calib"
)

// ProfileLength is the fixed number of samples in every emission-line
// profile, independent of the input resolution.
const ProfileLength = 300

// windowRows is the physical row-band width averaged per emission line;
// the effective count scales inversely with the spectral binning factor.
const windowRows = 12

// minRows is the minimum clipped window height for a usable average.
const minRows = 2

// ErrTooFewRows reports a row window too small to average after clipping.
var ErrTooFewRows = errors.New("too few rows to average")

// ErrProfileTooShort reports an input profile below the resampling minimum.
var ErrProfileTooShort = errors.New("profile must have at least 2 samples")

// FrameRows converts a 16-bit frame to a row-major float grid. Rows are the
// spectral axis, columns the elevation axis.
func FrameRows(img *image.Gray16) [][]float64 {
	b := img.Bounds()
	rows := make([][]float64, b.Dy())
	for y := range rows {
		row := make([]float64, b.Dx())
		pix := img.Pix[y*img.Stride:]
		for x := range row {
			row[x] = float64(uint16(pix[2*x])<<8 | uint16(pix[2*x+1]))
		}
		rows[y] = row
	}
	return rows
}

// Sample extracts the elevation profile of one emission wavelength from a
// frame. The returned profile has exactly ProfileLength samples in
// calibrated units (sensitivity factor applied).
//
// Failure is definite: a wavelength outside the calibrated row range or a
// window too small to average yields an error, and the caller abandons the
// whole RGB column for the minute.
func Sample(data [][]float64, dev *calib.Device, wavelength float64, binY int) ([]float64, error) {
	if len(data) == 0 {
		return nil, errors.New("empty frame")
	}
	maxRow := len(data) - 1

	row, err := dev.RowForWavelength(wavelength, maxRow, binY)
	if err != nil {
		return nil, err
	}

	n := windowRows / binY
	if n < 1 {
		n = 1
	}
	start := row - n/2
	if start < 0 {
		start = 0
	}
	end := row + n/2 + 1
	if end > len(data) {
		end = len(data)
	}
	if end-start < minRows {
		return nil, fmt.Errorf("%w: %d row(s) at row %d for %.0f Å",
			ErrTooFewRows, end-start, row, wavelength)
	}

	window := clipColumns(data[start:end], dev.HorizonStart, dev.HorizonEnd)
	filtered := Median3x3(window)

	profile := make([]float64, len(filtered[0]))
	for _, r := range filtered {
		for x, v := range r {
			profile[x] += v
		}
	}
	k := dev.Sensitivity(wavelength)
	for x := range profile {
		profile[x] = profile[x] / float64(len(filtered)) * k
	}

	return Resample(profile, ProfileLength)
}

// clipColumns restricts rows to the horizon field-of-view column range,
// clamped to the actual row width.
func clipColumns(rows [][]float64, start, end int) [][]float64 {
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

// Median3x3 applies a 3×3 median filter with zero padding at the edges,
// suppressing hot-pixel noise before the row average.
func Median3x3(rows [][]float64) [][]float64 {
	h := len(rows)
	if h == 0 {
		return nil
	}
	w := len(rows[0])
	out := make([][]float64, h)
	var win [9]float64

	for y := 0; y < h; y++ {
		out[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			i := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					yy, xx := y+dy, x+dx
					if yy >= 0 && yy < h && xx >= 0 && xx < w {
						win[i] = rows[yy][xx]
					} else {
						win[i] = 0 // zero padded
					}
					i++
				}
			}
			s := win
			sort.Float64s(s[:])
			out[y][x] = s[4]
		}
	}
	return out
}

// Resample maps a profile of any length ≥ 2 onto exactly n samples using
// piecewise-linear interpolation with endpoint alignment.
func Resample(profile []float64, n int) ([]float64, error) {
	if len(profile) < 2 {
		return nil, ErrProfileTooShort
	}
	if len(profile) == n {
		out := make([]float64, n)
		copy(out, profile)
		return out, nil
	}

	xs := make([]float64, len(profile))
	for i := range xs {
		xs[i] = float64(i)
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, profile); err != nil {
		return nil, fmt.Errorf("fit interpolant: %w", err)
	}

	out := make([]float64, n)
	scale := float64(len(profile)-1) / float64(n-1)
	for i := range out {
		out[i] = pl.Predict(float64(i) * scale)
	}
	return out, nil
}
