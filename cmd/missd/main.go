// Command missd is the live processing daemon: every cadence tick it
// averages the trailing window of raw frames, renders optional quick-looks,
// synthesizes RGB columns, and refreshes the day's keogram.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kho-data/aurora.report/internal/average"
	"github.com/kho-data/aurora.report/internal/calib"
	"github.com/kho-data/aurora.report/internal/config"
	"github.com/kho-data/aurora.report/internal/fsutil"
	"github.com/kho-data/aurora.report/internal/journal"
	"github.com/kho-data/aurora.report/internal/keogram"
	"github.com/kho-data/aurora.report/internal/pipeline"
	"github.com/kho-data/aurora.report/internal/rgb"
	"github.com/kho-data/aurora.report/internal/spectro"
	"github.com/kho-data/aurora.report/internal/spectrogram"
	"github.com/kho-data/aurora.report/internal/timeutil"
	"github.com/kho-data/aurora.report/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file (optional)")
	flag.Parse()

	fsys := fsutil.OSFileSystem{}

	cfg := config.Empty()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(fsys, *configPath)
		if err != nil {
			log.Fatalf("missd: %v", err)
		}
	}

	dev := cfg.GetDevice()
	cals, err := calibrations(cfg)
	if err != nil {
		log.Fatalf("missd: %v", err)
	}

	p := pipeline.New()
	p.Clock = timeutil.RealClock{}
	p.Device = dev
	p.Averager = &average.Engine{
		FS:     fsys,
		RawDir: cfg.GetRawDir(),
		OutDir: cfg.GetAveragedDir(),
	}
	p.Synth = &rgb.Synthesizer{
		FS:           fsys,
		AveragedDir:  cfg.GetAveragedDir(),
		OutDir:       cfg.GetRGBDir(),
		Calibrations: cals,
		DefaultBinY:  cfg.GetBinY(),
	}
	p.Assembler = &keogram.Assembler{
		FS:     fsys,
		RGBDir: cfg.GetRGBDir(),
		OutDir: cfg.GetKeogramDir(),
	}
	if dir := cfg.GetSpectrogramDir(); dir != "" {
		p.QuickLook = &spectrogram.Processor{
			FS:           fsys,
			AveragedDir:  cfg.GetAveragedDir(),
			OutDir:       dir,
			Calibrations: cals,
			DefaultBinY:  cfg.GetBinY(),
		}
	}
	if path := cfg.GetJournalPath(); path != "" {
		j, err := journal.Open(path)
		if err != nil {
			log.Fatalf("missd: %v", err)
		}
		defer j.Close()
		p.Journal = j
	}
	p.Cadence = cfg.GetCadence()
	p.Stagger = cfg.GetStagger()
	p.Retry = pipeline.RetryPolicy{MaxAttempts: 3, Delay: cfg.GetStagger()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("missd: %s, processing %s every %s", version.String(), dev, p.Cadence)
	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("missd: %v", err)
	}
	log.Print("missd: shut down")
}

// calibrations resolves the effective calibration for both instruments so
// mixed-device archives process with the right constants.
func calibrations(cfg *config.Config) (map[spectro.Device]*calib.Device, error) {
	cals := make(map[spectro.Device]*calib.Device)
	for _, dev := range []spectro.Device{spectro.MISS1, spectro.MISS2} {
		d, err := cfg.CalibrationFor(dev)
		if err != nil {
			return nil, err
		}
		cals[dev] = &d
	}
	return cals, nil
}
