// Package rgb synthesizes one 8-bit RGB elevation column per averaged frame
// from three emission-line profiles:
//
//   - red    6300 Å (oxygen)
//   - green  5577 Å (oxygen)
//   - blue   4278 Å (nitrogen)
//
// Each channel is min–max normalized independently; a channel with zero
// dynamic range is emitted as all zeros. A failed emission line abandons the
// whole column for that minute; there is no partial-channel output.
package rgb

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"github.com/kho-data/aurora.report/internal/average"
	"github.com/kho-data/aurora.report/internal/calib"
	"github.com/kho-data/aurora.report/internal/extract"
	"github.com/kho-data/aurora.report/internal/fsutil"
	"github.com/kho-data/aurora.report/internal/monitoring"
	"github.com/kho-data/aurora.report/internal/spectro"
	"github.com/kho-data/aurora.report/internal/spectro/pngmeta"
)

// Emission wavelengths of the three keogram channels, in Ångström.
const (
	RedWavelength   = 6300
	GreenWavelength = 5577
	BlueWavelength  = 4278
)

// ErrBadShape reports a synthesized column whose dimensions violate the
// (300, 1, 3) invariant. It is an internal-invariant failure, never repaired.
var ErrBadShape = errors.New("rgb column has wrong shape")

// BuildColumn synthesizes one RGB column from a frame's float grid. The
// result is a 1-wide, 300-tall NRGBA raster, flipped so index 0 is the
// north horizon.
func BuildColumn(data [][]float64, dev *calib.Device, binY int) (*image.NRGBA, error) {
	red, err := extract.Sample(data, dev, RedWavelength, binY)
	if err != nil {
		return nil, fmt.Errorf("red %d Å: %w", RedWavelength, err)
	}
	green, err := extract.Sample(data, dev, GreenWavelength, binY)
	if err != nil {
		return nil, fmt.Errorf("green %d Å: %w", GreenWavelength, err)
	}
	blue, err := extract.Sample(data, dev, BlueWavelength, binY)
	if err != nil {
		return nil, fmt.Errorf("blue %d Å: %w", BlueWavelength, err)
	}

	channels := [3][]uint8{scaleChannel(red), scaleChannel(green), scaleChannel(blue)}
	for _, c := range channels {
		if len(c) != extract.ProfileLength {
			return nil, fmt.Errorf("%w: channel length %d, want %d",
				ErrBadShape, len(c), extract.ProfileLength)
		}
	}

	col := image.NewNRGBA(image.Rect(0, 0, 1, extract.ProfileLength))
	for y := 0; y < extract.ProfileLength; y++ {
		// Vertical flip: profile sample 0 is the south horizon.
		src := extract.ProfileLength - 1 - y
		i := col.PixOffset(0, y)
		col.Pix[i+0] = channels[0][src]
		col.Pix[i+1] = channels[1][src]
		col.Pix[i+2] = channels[2][src]
		col.Pix[i+3] = 0xff
	}
	return col, nil
}

// scaleChannel maps a profile onto [0,255] by min–max normalization.
// A constant profile (max == min) yields an all-zero channel rather than a
// division by zero.
func scaleChannel(profile []float64) []uint8 {
	out := make([]uint8, len(profile))
	if len(profile) == 0 {
		return out
	}
	min := floats.Min(profile)
	max := floats.Max(profile)
	if max == min {
		return out
	}
	scale := 255 / (max - min)
	for i, v := range profile {
		s := (v - min) * scale
		if s < 0 {
			s = 0
		} else if s > 255 {
			s = 255
		}
		out[i] = uint8(s)
	}
	return out
}

// Synthesizer is the extraction + synthesis stage: it scans averaged frames
// in a window and writes one RGB column per frame.
type Synthesizer struct {
	FS          fsutil.FileSystem
	AveragedDir string
	OutDir      string

	// Calibration per device; missing devices are skipped with a warning.
	Calibrations map[spectro.Device]*calib.Device

	// DefaultBinY is used when frame metadata carries no binning; metadata
	// always wins when present.
	DefaultBinY int
}

// Result summarizes one synthesis pass.
type Result struct {
	ColumnsWritten int
	FramesSkipped  int
	FramesFailed   int
}

// Run executes one pass over averaged frames whose capture minute lies in
// the window. Every failure mode short of an output filesystem error skips
// the single frame and continues.
func (s *Synthesizer) Run(ctx context.Context, w average.Window) (Result, error) {
	var res Result

	for _, day := range average.DaysIn(w) {
		dir := day.Dir(s.AveragedDir)
		if !s.FS.Exists(dir) {
			monitoring.Logf("rgb: no averaged directory %s", dir)
			continue
		}

		entries, err := s.FS.ReadDir(dir)
		if err != nil {
			monitoring.Logf("rgb: read %s: %v", dir, err)
			continue
		}

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if entry.IsDir() {
				continue
			}
			name, ok := spectro.ParseFrameName(entry.Name())
			if !ok || !w.Contains(name.Time) {
				continue
			}
			if err := s.processFrame(dir, entry, name, &res); err != nil {
				return res, err
			}
		}
	}

	return res, nil
}

// processFrame synthesizes and persists the column for one averaged frame.
// Returns an error only for unrecoverable output failures.
func (s *Synthesizer) processFrame(dir string, entry fs.DirEntry, name spectro.FrameName, res *Result) error {
	path := filepath.Join(dir, entry.Name())

	data, err := s.FS.ReadFile(path)
	if err != nil {
		monitoring.Logf("rgb: read %s: %v", entry.Name(), err)
		res.FramesFailed++
		return nil
	}
	if err := pngmeta.Verify(data); err != nil {
		monitoring.Logf("rgb: corrupt frame %s: %v", entry.Name(), err)
		res.FramesFailed++
		return nil
	}
	img, meta, err := pngmeta.DecodeGray16(data)
	if err != nil {
		monitoring.Logf("rgb: decode %s: %v", entry.Name(), err)
		res.FramesFailed++
		return nil
	}

	dev, ok := s.Calibrations[name.Device]
	if !ok {
		monitoring.Logf("rgb: no calibration for device %s, skipping %s", name.Device, entry.Name())
		res.FramesSkipped++
		return nil
	}

	binY := s.binningFor(entry.Name(), meta)

	col, err := BuildColumn(extract.FrameRows(img), dev, binY)
	if err != nil {
		monitoring.Logf("rgb: skipping %s: %v", entry.Name(), err)
		res.FramesSkipped++
		return nil
	}

	outPath := name.Minute().RGBColumnPath(s.OutDir)
	if err := s.FS.MkdirAll(filepath.Dir(outPath), os.FileMode(0755)); err != nil {
		return fmt.Errorf("rgb: create output directory: %w", err)
	}
	encoded, err := pngmeta.EncodeRGB(col)
	if err != nil {
		return fmt.Errorf("rgb: encode column: %w", err)
	}
	if err := s.FS.WriteFile(outPath, encoded, os.FileMode(0644)); err != nil {
		return fmt.Errorf("rgb: write %s: %w", outPath, err)
	}

	monitoring.Logf("rgb: wrote %s", outPath)
	res.ColumnsWritten++
	return nil
}

// binningFor resolves the spectral binning factor, preferring frame
// metadata over the configured default and warning on disagreement.
func (s *Synthesizer) binningFor(name string, meta pngmeta.Metadata) int {
	binY := s.DefaultBinY
	if binY < 1 {
		binY = 1
	}
	v, ok := meta[spectro.MetaBinning]
	if !ok {
		return binY
	}
	_, metaY, err := spectro.ParseBinning(v)
	if err != nil {
		monitoring.Logf("rgb: %s: %v, using configured binY=%d", name, err, binY)
		return binY
	}
	if s.DefaultBinY > 0 && metaY != s.DefaultBinY {
		monitoring.Logf("rgb: %s: metadata binning %d disagrees with configured %d, using metadata",
			name, metaY, s.DefaultBinY)
	}
	return metaY
}
