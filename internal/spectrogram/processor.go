package spectrogram

import (
	"context"
	"path/filepath"

	"github.com/kho-data/aurora.report/internal/average"
	"github.com/kho-data/aurora.report/internal/calib"
	"github.com/kho-data/aurora.report/internal/fsutil"
	"github.com/kho-data/aurora.report/internal/monitoring"
	"github.com/kho-data/aurora.report/internal/spectro"
	"github.com/kho-data/aurora.report/internal/spectro/pngmeta"
)

// Processor is the quick-look stage: it calibrates averaged frames in a
// window and renders one figure per frame.
type Processor struct {
	FS          fsutil.FileSystem
	AveragedDir string
	OutDir      string

	Calibrations map[spectro.Device]*calib.Device
	DefaultBinY  int
}

// Result summarizes one quick-look pass.
type Result struct {
	FiguresWritten int
	FramesSkipped  int
	FramesFailed   int
}

// Run renders quick-looks for averaged frames whose capture minute lies in
// the window. Per-frame failures skip and continue.
func (p *Processor) Run(ctx context.Context, w average.Window) (Result, error) {
	var res Result
	r := &Renderer{FS: p.FS, OutDir: p.OutDir}

	for _, day := range average.DaysIn(w) {
		dir := day.Dir(p.AveragedDir)
		if !p.FS.Exists(dir) {
			continue
		}
		entries, err := p.FS.ReadDir(dir)
		if err != nil {
			monitoring.Logf("spectrogram: read %s: %v", dir, err)
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

			img, meta, err := pngmeta.ReadGray16(p.FS, filepath.Join(dir, entry.Name()))
			if err != nil {
				monitoring.Logf("spectrogram: %s: %v", entry.Name(), err)
				res.FramesFailed++
				continue
			}

			dev, ok := p.Calibrations[name.Device]
			if !ok {
				monitoring.Logf("spectrogram: no calibration for device %s, skipping %s",
					name.Device, entry.Name())
				res.FramesSkipped++
				continue
			}

			binY := p.DefaultBinY
			if v, ok := meta[spectro.MetaBinning]; ok {
				if _, y, err := spectro.ParseBinning(v); err == nil {
					binY = y
				}
			}

			c, err := Calibrate(img, dev, binY)
			if err != nil {
				monitoring.Logf("spectrogram: skipping %s: %v", entry.Name(), err)
				res.FramesSkipped++
				continue
			}
			if _, err := r.Render(c, name.Minute()); err != nil {
				return res, err
			}
			res.FiguresWritten++
		}
	}

	return res, nil
}
