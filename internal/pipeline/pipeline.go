// Package pipeline schedules the processing stages over a shared run state:
// minute averaging, quick-look rendering, RGB column synthesis, and keogram
// assembly, in dependency order. A live pass works on the trailing capture
// window; the daemon repeats passes on a fixed cadence.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/kho-data/aurora.report/internal/average"
	"github.com/kho-data/aurora.report/internal/journal"
	"github.com/kho-data/aurora.report/internal/keogram"
	"github.com/kho-data/aurora.report/internal/monitoring"
	"github.com/kho-data/aurora.report/internal/rgb"
	"github.com/kho-data/aurora.report/internal/runstate"
	"github.com/kho-data/aurora.report/internal/spectro"
	"github.com/kho-data/aurora.report/internal/spectrogram"
	"github.com/kho-data/aurora.report/internal/timeutil"
)

// LiveSpan is the trailing window a live pass selects raw frames from.
const LiveSpan = 5 * time.Minute

// RetryPolicy retries a failed pass a bounded number of times with a fixed
// delay between attempts. The zero value means a single attempt.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Do runs op until it succeeds or attempts are exhausted. Context
// cancellation stops retrying immediately.
func (r RetryPolicy) Do(ctx context.Context, clock timeutil.Clock, op func() error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return err
		}
		if i < attempts-1 {
			monitoring.Logf("pipeline: attempt %d/%d failed: %v, retrying in %s",
				i+1, attempts, err, r.Delay)
			clock.Sleep(r.Delay)
		}
	}
	return err
}

// Pipeline wires the stages together. QuickLook and Journal are optional.
type Pipeline struct {
	Clock  timeutil.Clock
	Device spectro.Device

	Averager  *average.Engine
	QuickLook *spectrogram.Processor
	Synth     *rgb.Synthesizer
	Assembler *keogram.Assembler

	Journal *journal.Journal

	// Span is the live window length; zero means LiveSpan.
	Span time.Duration

	Cadence time.Duration
	Stagger time.Duration
	Retry   RetryPolicy

	state *runstate.State
}

// New returns a pipeline with fresh run state.
func New() *Pipeline {
	return &Pipeline{state: runstate.New()}
}

func (p *Pipeline) span() time.Duration {
	if p.Span > 0 {
		return p.Span
	}
	return LiveSpan
}

// RunOnce executes one pass of every configured stage in dependency order
// over the window trailing now. Stage-level failures are journaled and
// logged; only context cancellation and unrecoverable output errors
// propagate.
func (p *Pipeline) RunOnce(ctx context.Context, now time.Time) error {
	return p.runOnce(ctx, now, 0)
}

func (p *Pipeline) runOnce(ctx context.Context, now time.Time, stagger time.Duration) error {
	if p.state == nil {
		p.state = runstate.New()
	}
	if p.state.BeginPass(now) {
		monitoring.Logf("pipeline: UTC day rolled over, run state reset")
	}

	w := average.PastWindow(now.UTC(), p.span())
	runID := journal.NewRunID()

	avgRes, err := p.Averager.Run(ctx, w, p.state)
	p.record(journal.Pass{
		RunID: runID, Stage: "average", Device: string(p.Device),
		WindowStart: w.Start, WindowEnd: w.End,
		Produced: avgRes.MinutesWritten, Skipped: avgRes.MinutesSkipped,
		Failed: avgRes.FramesFailed, Error: errString(err),
	})
	if err != nil {
		return err
	}

	if p.QuickLook != nil {
		p.pause(ctx, stagger)
		qlRes, err := p.QuickLook.Run(ctx, w)
		p.record(journal.Pass{
			RunID: runID, Stage: "spectrogram", Device: string(p.Device),
			WindowStart: w.Start, WindowEnd: w.End,
			Produced: qlRes.FiguresWritten, Skipped: qlRes.FramesSkipped,
			Failed: qlRes.FramesFailed, Error: errString(err),
		})
		if err != nil {
			return err
		}
	}

	p.pause(ctx, stagger)
	rgbRes, err := p.Synth.Run(ctx, w)
	p.record(journal.Pass{
		RunID: runID, Stage: "rgb", Device: string(p.Device),
		WindowStart: w.Start, WindowEnd: w.End,
		Produced: rgbRes.ColumnsWritten, Skipped: rgbRes.FramesSkipped,
		Failed: rgbRes.FramesFailed, Error: errString(err),
	})
	if err != nil {
		return err
	}

	p.pause(ctx, stagger)
	date := spectro.DateOf(now.UTC())
	through := now.UTC().Hour()*60 + now.UTC().Minute() + 1
	raster, keoRes, err := p.Assembler.Assemble(ctx, p.Device, date, through)
	if err == nil {
		_, err = p.Assembler.Render(raster)
	}
	p.record(journal.Pass{
		RunID: runID, Stage: "keogram", Device: string(p.Device),
		WindowStart: date.Start(), WindowEnd: now.UTC(),
		Produced: keoRes.ColumnsInserted, Skipped: keoRes.ColumnsMissing,
		Failed: keoRes.ColumnsRejected, Error: errString(err),
	})
	return err
}

// Run is the daemon loop: an immediate first pass with staggered stage
// starts, then one pass per cadence tick until the context ends. Pass
// failures are retried per policy and otherwise logged and skipped; the
// next tick starts fresh.
func (p *Pipeline) Run(ctx context.Context) error {
	stagger := p.Stagger
	for {
		err := p.Retry.Do(ctx, p.Clock, func() error {
			return p.runOnce(ctx, p.Clock.Now(), stagger)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			monitoring.Logf("pipeline: pass failed: %v", err)
		}
		stagger = 0 // only the first pass staggers stage starts

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.Clock.After(p.Cadence):
		}
	}
}

// pause sleeps between staggered stage starts on the first daemon pass.
func (p *Pipeline) pause(ctx context.Context, d time.Duration) {
	if d <= 0 || ctx.Err() != nil {
		return
	}
	p.Clock.Sleep(d)
}

// record writes a journal row when a journal is configured. Journal
// failures are logged, never fatal.
func (p *Pipeline) record(pass journal.Pass) {
	if p.Journal == nil {
		return
	}
	if err := p.Journal.RecordPass(pass); err != nil {
		monitoring.Logf("pipeline: %v", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
