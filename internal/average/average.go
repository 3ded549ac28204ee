// Package average implements the minute averaging engine: it discovers raw
// spectrograph frames in a time window, buckets them by capture minute, and
// writes one 16-bit averaged frame per minute with propagated metadata.
package average

import (
	"context"
	"fmt"
	"image"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kho-data/aurora.report/internal/fsutil"
	"github.com/kho-data/aurora.report/internal/monitoring"
	"github.com/kho-data/aurora.report/internal/runstate"
	"github.com/kho-data/aurora.report/internal/spectro"
	"github.com/kho-data/aurora.report/internal/spectro/pngmeta"
)

// Window is an inclusive capture-time window selecting raw frames.
type Window struct {
	Start time.Time
	End   time.Time
}

// DayWindow selects one whole UTC day.
func DayWindow(d spectro.Date) Window {
	start := d.Start()
	return Window{Start: start, End: start.Add(24*time.Hour - time.Second)}
}

// PastWindow selects the span leading up to now.
func PastWindow(now time.Time, span time.Duration) Window {
	return Window{Start: now.Add(-span), End: now}
}

// Contains reports whether a capture time falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// DaysIn lists the UTC calendar dates the window touches, in order.
func DaysIn(w Window) []spectro.Date {
	var days []spectro.Date
	for d := spectro.DateOf(w.Start); ; d = d.Next() {
		days = append(days, d)
		if !d.Start().Add(24 * time.Hour).Before(w.End.Add(time.Second)) {
			break
		}
	}
	return days
}

// Engine is the minute averaging stage. RawDir is scanned recursively;
// averaged frames are written under OutDir in the dated layout.
type Engine struct {
	FS     fsutil.FileSystem
	RawDir string
	OutDir string
}

// Result summarizes one averaging pass.
type Result struct {
	// MinutesWritten counts averaged frames persisted.
	MinutesWritten int
	// FramesUsed counts raw frames that contributed to an average.
	FramesUsed int
	// FramesFailed counts raw frames that failed to decode and were skipped.
	FramesFailed int
	// MinutesSkipped counts minute keys skipped because the run state had
	// already handled them.
	MinutesSkipped int
}

// Run executes one averaging pass over the window. state may be nil for
// one-shot runs; when present, minutes already marked processed are
// skipped and newly written minutes are marked.
//
// Individual undecodable frames are logged and excluded; only filesystem
// errors on the output side abort the pass.
func (e *Engine) Run(ctx context.Context, w Window, state *runstate.State) (Result, error) {
	var res Result

	if !e.FS.Exists(e.RawDir) {
		monitoring.Logf("average: raw directory %s does not exist, nothing to do", e.RawDir)
		return res, nil
	}

	buckets, order := e.discover(w)
	monitoring.Logf("average: %d minute group(s) in window %s..%s",
		len(order), w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))

	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if state != nil && state.Processed(key) {
			res.MinutesSkipped++
			continue
		}

		used, failed, err := e.averageBucket(key, buckets[key])
		res.FramesUsed += used
		res.FramesFailed += failed
		if err != nil {
			return res, err
		}
		if used == 0 {
			monitoring.Logf("average: no decodable frames for minute %s", key)
			continue
		}

		res.MinutesWritten++
		if state != nil {
			state.Mark(key)
		}
	}

	return res, nil
}

// discover walks the raw tree collecting frames whose embedded capture time
// falls inside the window. The walk is lexical, so within each bucket the
// paths are already in deterministic discovery order.
func (e *Engine) discover(w Window) (map[spectro.MinuteKey][]string, []spectro.MinuteKey) {
	buckets := make(map[spectro.MinuteKey][]string)

	err := e.FS.Walk(e.RawDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			monitoring.Logf("average: walk %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		name, ok := spectro.ParseFrameName(filepath.Base(path))
		if !ok || !w.Contains(name.Time) {
			return nil
		}
		key := name.Minute()
		buckets[key] = append(buckets[key], path)
		return nil
	})
	if err != nil {
		monitoring.Logf("average: walk %s: %v", e.RawDir, err)
	}

	order := make([]spectro.MinuteKey, 0, len(buckets))
	for key := range buckets {
		order = append(order, key)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Time.Before(order[j].Time) })
	return buckets, order
}

// averageBucket accumulates one minute's frames in float64, writes the
// floored mean as a 16-bit frame, and propagates allow-listed metadata from
// the first frame that decodes.
func (e *Engine) averageBucket(key spectro.MinuteKey, paths []string) (used, failed int, err error) {
	var (
		sum    []float64
		bounds image.Rectangle
		meta   pngmeta.Metadata
	)

	for _, path := range paths {
		img, m, derr := pngmeta.ReadGray16(e.FS, path)
		if derr != nil {
			monitoring.Logf("average: skipping %s: %v", filepath.Base(path), derr)
			failed++
			continue
		}
		if sum == nil {
			bounds = img.Bounds()
			sum = make([]float64, bounds.Dx()*bounds.Dy())
		} else if img.Bounds() != bounds {
			monitoring.Logf("average: skipping %s: shape %v differs from first frame %v",
				filepath.Base(path), img.Bounds(), bounds)
			failed++
			continue
		}
		accumulate(sum, img)
		if meta == nil && m != nil {
			meta = m
		}
		used++
	}

	if used == 0 {
		return used, failed, nil
	}

	out := image.NewGray16(bounds)
	for i, v := range sum {
		mean := uint16(math.Floor(v / float64(used)))
		out.Pix[2*i] = uint8(mean >> 8)
		out.Pix[2*i+1] = uint8(mean)
	}

	outPath := key.AveragedPath(e.OutDir)
	if err := e.FS.MkdirAll(filepath.Dir(outPath), os.FileMode(0755)); err != nil {
		return used, failed, fmt.Errorf("average: create output directory: %w", err)
	}
	if err := pngmeta.WriteGray16(e.FS, outPath, out, provenance(meta, used)); err != nil {
		return used, failed, fmt.Errorf("average: write %s: %w", outPath, err)
	}

	monitoring.Logf("average: wrote %s (%d frame(s))", outPath, used)
	return used, failed, nil
}

// accumulate adds img's pixels into sum in row-major order.
func accumulate(sum []float64, img *image.Gray16) {
	b := img.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			sum[i] += float64(uint16(row[2*x])<<8 | uint16(row[2*x+1]))
			i++
		}
	}
}

// provenance copies the allow-listed metadata keys and appends the
// averaging note. With no source metadata at all, a minimal note is
// emitted.
func provenance(meta pngmeta.Metadata, frames int) pngmeta.Metadata {
	out := pngmeta.Metadata{}
	note := fmt.Sprintf("%d-frame average.", frames)
	if meta == nil {
		out[spectro.MetaNote] = note
		return out
	}
	for _, k := range spectro.AllowedMetadata {
		if v, ok := meta[k]; ok {
			out[k] = v
		}
	}
	if orig := meta[spectro.MetaNote]; orig != "" {
		note = note + " " + orig
	}
	out[spectro.MetaNote] = note
	return out
}
