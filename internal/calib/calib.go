// Package calib holds the static per-device spectral calibration: the
// pixel-row ↔ wavelength polynomial and its algebraic inverse, the
// wavelength → sensitivity polynomial, and the horizon pixel limits.
//
// The acquisition software stores frames with the spectral axis inverted, so
// the wavelength fit runs from the last pixel row towards the first.
// RowForWavelength therefore measures the solved position from the end of
// the row axis. This is the convention of the RGB column path, which feeds
// the keogram; see DESIGN.md for the rationale.
package calib

import (
	"errors"
	"fmt"
	"math"

	"github.com/kho-data/aurora.report/internal/spectro"
)

// ErrNoSolution reports a wavelength with no real pixel-row solution.
var ErrNoSolution = errors.New("no real pixel-row solution for wavelength")

// ErrRowOutOfRange reports a solved pixel row outside the valid range.
// Out-of-range rows are rejected, never clamped.
var ErrRowOutOfRange = errors.New("pixel row for wavelength outside valid range")

// Device is the immutable calibration model for one spectrograph, loaded
// once at process start.
type Device struct {
	Name spectro.Device

	// WavelengthCoeffs are [a0, a1, a2] of the quadratic
	// λ(p) = a0 + a1·p + a2·p², in Ångström per unbinned pixel row,
	// with p measured from the last pixel row (readout inversion).
	WavelengthCoeffs [3]float64

	// SensitivityCoeffs are the degree-5 polynomial coefficients of
	// K(λ) in R/Å, highest power first (classic polyval order).
	SensitivityCoeffs [6]float64

	// HorizonStart and HorizonEnd bound the elevation field of view in
	// pixels: only columns [HorizonStart, HorizonEnd) are usable.
	HorizonStart int
	HorizonEnd   int
}

// WavelengthForRow evaluates the quadratic at an (unbinned, unflipped)
// pixel-row position.
func (d *Device) WavelengthForRow(p float64) float64 {
	a := d.WavelengthCoeffs
	return a[0] + a[1]*p + a[2]*p*p
}

// PositionForWavelength inverts the quadratic, returning the unbinned,
// unflipped pixel-row position. The positive branch of the quadratic
// formula is taken; a negative discriminant means the wavelength is not on
// the fitted curve at all.
func (d *Device) PositionForWavelength(wavelength float64) (float64, error) {
	a := d.WavelengthCoeffs
	disc := a[1]*a[1] - 4*a[2]*(a[0]-wavelength)
	if disc < 0 {
		return 0, fmt.Errorf("%w: %.0f Å", ErrNoSolution, wavelength)
	}
	return (-a[1] + math.Sqrt(disc)) / (2 * a[2]), nil
}

// RowForWavelength resolves the frame row index of an emission wavelength
// for an array with maxRow as its highest valid row index, under spectral
// binning binY. The solved position is scaled by the binning factor,
// validated against [0, maxRow], and finally flipped because the fit runs
// from the end of the row axis.
func (d *Device) RowForWavelength(wavelength float64, maxRow, binY int) (int, error) {
	p, err := d.PositionForWavelength(wavelength)
	if err != nil {
		return 0, err
	}
	binned := p / float64(binY)
	if binned < 0 || binned > float64(maxRow) {
		return 0, fmt.Errorf("%w: %.0f Å resolves to row %.1f of [0,%d]",
			ErrRowOutOfRange, wavelength, binned, maxRow)
	}
	return maxRow - int(math.Round(binned)), nil
}

// Sensitivity evaluates the radiometric sensitivity factor K_λ at a
// wavelength in Ångström.
func (d *Device) Sensitivity(wavelength float64) float64 {
	k := 0.0
	for _, c := range d.SensitivityCoeffs {
		k = k*wavelength + c
	}
	return k
}

// WavelengthScale returns the wavelength of each of n binned rows,
// in stored-row order (row 0 first).
func (d *Device) WavelengthScale(n, binY int) []float64 {
	scale := make([]float64, n)
	for i := 0; i < n; i++ {
		// Stored row i sits at fit position (n-1-i)·binY.
		scale[i] = d.WavelengthForRow(float64((n - 1 - i) * binY))
	}
	return scale
}

// The shipped calibration sets for the two MISS instruments.
var defaults = map[spectro.Device]Device{
	spectro.MISS1: {
		Name:              spectro.MISS1,
		WavelengthCoeffs:  [3]float64{4217.273360, 2.565182, 0.000170},
		SensitivityCoeffs: [6]float64{-1.677600e-17, -3.125710e-13, 1.743241e-09, 2.365830e-07, -2.935140e-02, 6.662786e+01},
		HorizonStart:      280,
		HorizonEnd:        1140,
	},
	spectro.MISS2: {
		Name:              spectro.MISS2,
		WavelengthCoeffs:  [3]float64{4088.509, 2.673936, 1.376154e-4},
		SensitivityCoeffs: [6]float64{-1.378573e-16, 4.088257e-12, -4.806258e-08, 2.802435e-04, -8.109943e-01, 9.329611e+02},
		HorizonStart:      271,
		HorizonEnd:        1116,
	},
}

// Default returns the shipped calibration for a device.
func Default(name spectro.Device) (Device, error) {
	d, ok := defaults[name]
	if !ok {
		return Device{}, fmt.Errorf("no default calibration for device %q", name)
	}
	return d, nil
}
