// Command miss-average runs one minute-averaging pass over a named UTC day
// of raw spectrograph frames.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/kho-data/aurora.report/internal/average"
	"github.com/kho-data/aurora.report/internal/config"
	"github.com/kho-data/aurora.report/internal/fsutil"
	"github.com/kho-data/aurora.report/internal/runstate"
	"github.com/kho-data/aurora.report/internal/spectro"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file (optional)")
	dateArg := flag.String("date", "", "UTC day to process, YYYYMMDD (required)")
	rawDir := flag.String("raw", "", "raw frame directory (overrides config)")
	outDir := flag.String("out", "", "averaged frame directory (overrides config)")
	flag.Parse()

	// Validate the date before touching the filesystem.
	if *dateArg == "" {
		log.Fatal("miss-average: -date is required")
	}
	date, err := spectro.ParseDate(*dateArg)
	if err != nil {
		log.Fatalf("miss-average: %v", err)
	}

	fsys := fsutil.OSFileSystem{}
	cfg := config.Empty()
	if *configPath != "" {
		if cfg, err = config.Load(fsys, *configPath); err != nil {
			log.Fatalf("miss-average: %v", err)
		}
	}
	raw := cfg.GetRawDir()
	if *rawDir != "" {
		raw = *rawDir
	}
	out := cfg.GetAveragedDir()
	if *outDir != "" {
		out = *outDir
	}

	engine := &average.Engine{FS: fsys, RawDir: raw, OutDir: out}
	res, err := engine.Run(context.Background(), average.DayWindow(date), runstate.New())
	if err != nil {
		log.Fatalf("miss-average: %v", err)
	}
	log.Printf("miss-average: %s: %d minute(s) written, %d skipped, %d frame(s) failed",
		date, res.MinutesWritten, res.MinutesSkipped, res.FramesFailed)
}
