// Command miss-rgb synthesizes RGB keogram columns from one named UTC day
// of averaged frames.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/kho-data/aurora.report/internal/average"
	"github.com/kho-data/aurora.report/internal/calib"
	"github.com/kho-data/aurora.report/internal/config"
	"github.com/kho-data/aurora.report/internal/fsutil"
	"github.com/kho-data/aurora.report/internal/rgb"
	"github.com/kho-data/aurora.report/internal/spectro"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file (optional)")
	dateArg := flag.String("date", "", "UTC day to process, YYYYMMDD (required)")
	avgDir := flag.String("avg", "", "averaged frame directory (overrides config)")
	outDir := flag.String("out", "", "RGB column directory (overrides config)")
	flag.Parse()

	// Validate the date before touching the filesystem.
	if *dateArg == "" {
		log.Fatal("miss-rgb: -date is required")
	}
	date, err := spectro.ParseDate(*dateArg)
	if err != nil {
		log.Fatalf("miss-rgb: %v", err)
	}

	fsys := fsutil.OSFileSystem{}
	cfg := config.Empty()
	if *configPath != "" {
		if cfg, err = config.Load(fsys, *configPath); err != nil {
			log.Fatalf("miss-rgb: %v", err)
		}
	}
	avg := cfg.GetAveragedDir()
	if *avgDir != "" {
		avg = *avgDir
	}
	out := cfg.GetRGBDir()
	if *outDir != "" {
		out = *outDir
	}

	cals := make(map[spectro.Device]*calib.Device)
	for _, dev := range []spectro.Device{spectro.MISS1, spectro.MISS2} {
		d, err := cfg.CalibrationFor(dev)
		if err != nil {
			log.Fatalf("miss-rgb: %v", err)
		}
		cals[dev] = &d
	}

	s := &rgb.Synthesizer{
		FS:           fsys,
		AveragedDir:  avg,
		OutDir:       out,
		Calibrations: cals,
		DefaultBinY:  cfg.GetBinY(),
	}
	res, err := s.Run(context.Background(), average.DayWindow(date))
	if err != nil {
		log.Fatalf("miss-rgb: %v", err)
	}
	log.Printf("miss-rgb: %s: %d column(s) written, %d frame(s) skipped, %d failed",
		date, res.ColumnsWritten, res.FramesSkipped, res.FramesFailed)
}
