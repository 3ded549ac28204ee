// Command miss-keogram assembles and renders the keogram for one named UTC
// day from its RGB columns.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/kho-data/aurora.report/internal/config"
	"github.com/kho-data/aurora.report/internal/fsutil"
	"github.com/kho-data/aurora.report/internal/keogram"
	"github.com/kho-data/aurora.report/internal/spectro"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file (optional)")
	dateArg := flag.String("date", "", "UTC day to render, YYYYMMDD or YYYY/MM/DD (required)")
	deviceArg := flag.String("device", "", "instrument name (overrides config)")
	rgbDir := flag.String("rgb", "", "RGB column directory (overrides config)")
	outDir := flag.String("out", "", "keogram directory (overrides config)")
	flag.Parse()

	// Validate the date and device before touching the filesystem.
	if *dateArg == "" {
		log.Fatal("miss-keogram: -date is required")
	}
	date, err := spectro.ParseDate(*dateArg)
	if err != nil {
		log.Fatalf("miss-keogram: %v", err)
	}

	fsys := fsutil.OSFileSystem{}
	cfg := config.Empty()
	if *configPath != "" {
		if cfg, err = config.Load(fsys, *configPath); err != nil {
			log.Fatalf("miss-keogram: %v", err)
		}
	}
	dev := cfg.GetDevice()
	if *deviceArg != "" {
		if dev, err = spectro.ParseDevice(*deviceArg); err != nil {
			log.Fatalf("miss-keogram: %v", err)
		}
	}
	dir := cfg.GetRGBDir()
	if *rgbDir != "" {
		dir = *rgbDir
	}
	out := cfg.GetKeogramDir()
	if *outDir != "" {
		out = *outDir
	}

	a := &keogram.Assembler{FS: fsys, RGBDir: dir, OutDir: out}
	raster, res, err := a.Assemble(context.Background(), dev, date, keogram.Width)
	if err != nil {
		log.Fatalf("miss-keogram: %v", err)
	}
	path, err := a.Render(raster)
	if err != nil {
		log.Fatalf("miss-keogram: %v", err)
	}
	log.Printf("miss-keogram: %s: %d column(s) inserted, %d missing, %d rejected, wrote %s",
		date, res.ColumnsInserted, res.ColumnsMissing, res.ColumnsRejected, path)
}
