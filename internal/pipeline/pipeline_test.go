package pipeline

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kho-data/aurora.report/internal/average"
	"github.com/kho-data/aurora.report/internal/calib"
	"github.com/kho-data/aurora.report/internal/fsutil"
	"github.com/kho-data/aurora.report/internal/journal"
	"github.com/kho-data/aurora.report/internal/keogram"
	"github.com/kho-data/aurora.report/internal/rgb"
	"github.com/kho-data/aurora.report/internal/spectro"
	"github.com/kho-data/aurora.report/internal/spectro/pngmeta"
	"github.com/kho-data/aurora.report/internal/timeutil"
)

var t0 = time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC)

// rawFrame builds a full-height frame with an elevation gradient, tall
// enough for all three emission lines.
func rawFrame() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, 1400, 1200))
	for y := 0; y < 1200; y++ {
		for x := 0; x < 1400; x++ {
			i := img.PixOffset(x, y)
			v := uint16(x)
			img.Pix[i] = uint8(v >> 8)
			img.Pix[i+1] = uint8(v)
		}
	}
	return img
}

func writeRaw(t *testing.T, fsys fsutil.FileSystem, stamp string) {
	t.Helper()
	require.NoError(t, pngmeta.WriteGray16(fsys,
		"/raw/MISS2-"+stamp+".png", rawFrame(), nil))
}

func newTestPipeline(t *testing.T, fsys fsutil.FileSystem, clock timeutil.Clock) *Pipeline {
	t.Helper()
	d, err := calib.Default(spectro.MISS2)
	require.NoError(t, err)
	cals := map[spectro.Device]*calib.Device{spectro.MISS2: &d}

	p := New()
	p.Clock = clock
	p.Device = spectro.MISS2
	p.Averager = &average.Engine{FS: fsys, RawDir: "/raw", OutDir: "/avg"}
	p.Synth = &rgb.Synthesizer{
		FS: fsys, AveragedDir: "/avg", OutDir: "/rgb",
		Calibrations: cals, DefaultBinY: 1,
	}
	p.Assembler = &keogram.Assembler{FS: fsys, RGBDir: "/rgb", OutDir: "/keo"}
	p.Cadence = 5 * time.Minute
	return p
}

func TestRunOnceProducesAllStageOutputs(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	writeRaw(t, fsys, "20240601-120310")

	p := newTestPipeline(t, fsys, timeutil.NewMockClock(t0))
	require.NoError(t, p.RunOnce(context.Background(), t0))

	assert.True(t, fsys.Exists("/avg/2024/06/01/MISS2-20240601-120300.png"))
	assert.True(t, fsys.Exists("/rgb/2024/06/01/MISS2-20240601-120300_RGB.png"))
	assert.True(t, fsys.Exists("/keo/2024/06/01/MISS2-keogram-20240601.png"))
}

func TestRunOnceSecondPassSkipsProcessedMinutes(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	writeRaw(t, fsys, "20240601-120310")

	p := newTestPipeline(t, fsys, timeutil.NewMockClock(t0))
	j, err := journal.Open(filepath.Join(t.TempDir(), "j.db"))
	require.NoError(t, err)
	defer j.Close()
	p.Journal = j

	require.NoError(t, p.RunOnce(context.Background(), t0))
	require.NoError(t, p.RunOnce(context.Background(), t0.Add(time.Minute)))

	passes, err := j.RecentPasses(10)
	require.NoError(t, err)
	require.Len(t, passes, 6, "three stages journaled per pass")

	// Second average pass skips the already-processed minute.
	var averages []journal.Pass
	for _, pass := range passes {
		if pass.Stage == "average" {
			averages = append(averages, pass)
		}
	}
	require.Len(t, averages, 2)
	assert.Equal(t, 0, averages[0].Produced, "newest first: nothing re-averaged")
	assert.Equal(t, 1, averages[0].Skipped)
	assert.Equal(t, 1, averages[1].Produced)
}

func TestRunOnceJournalsStagesUnderOneRun(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	writeRaw(t, fsys, "20240601-120310")

	p := newTestPipeline(t, fsys, timeutil.NewMockClock(t0))
	j, err := journal.Open(filepath.Join(t.TempDir(), "j.db"))
	require.NoError(t, err)
	defer j.Close()
	p.Journal = j

	require.NoError(t, p.RunOnce(context.Background(), t0))

	passes, err := j.RecentPasses(10)
	require.NoError(t, err)
	require.Len(t, passes, 3)

	stages := map[string]bool{}
	for _, pass := range passes {
		stages[pass.Stage] = true
		assert.Equal(t, passes[0].RunID, pass.RunID, "stages share one run ID")
	}
	assert.Equal(t, map[string]bool{"average": true, "rgb": true, "keogram": true}, stages)
}

func TestRunOnceWithoutJournalIsFine(t *testing.T) {
	p := newTestPipeline(t, fsutil.NewMemoryFileSystem(), timeutil.NewMockClock(t0))
	require.NoError(t, p.RunOnce(context.Background(), t0))
}

func TestRetryPolicyStopsAfterSuccess(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	attempts := 0
	err := RetryPolicy{MaxAttempts: 5, Delay: time.Second}.Do(
		context.Background(), clock, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	// Two inter-attempt delays elapsed on the clock.
	assert.Equal(t, t0.Add(2*time.Second), clock.Now())
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	attempts := 0
	err := RetryPolicy{MaxAttempts: 3, Delay: time.Second}.Do(
		context.Background(), clock, func() error {
			attempts++
			return errors.New("persistent")
		})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicyZeroValueMeansOneAttempt(t *testing.T) {
	attempts := 0
	err := RetryPolicy{}.Do(context.Background(), timeutil.NewMockClock(t0), func() error {
		attempts++
		return errors.New("nope")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicyRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryPolicy{MaxAttempts: 5, Delay: time.Second}.Do(
		ctx, timeutil.NewMockClock(t0), func() error {
			attempts++
			cancel()
			return errors.New("boom")
		})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "no retries after cancellation")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(t0)
	p := newTestPipeline(t, fsys, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// Wait out the first (empty) pass, then stop the daemon.
	waitFor(t, nil, func() bool {
		return fsys.Exists("/keo/2024/06/01/MISS2-keogram-20240601.png")
	})
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancellation")
	}
}

func TestRunTicksOnCadence(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(t0)
	p := newTestPipeline(t, fsys, clock)

	j, err := journal.Open(filepath.Join(t.TempDir(), "j.db"))
	require.NoError(t, err)
	defer j.Close()
	p.Journal = j

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// Three stages journal per pass; advancing the clock past the cadence
	// produces a second pass.
	waitFor(t, clock, func() bool {
		passes, err := j.RecentPasses(100)
		return err == nil && len(passes) >= 6
	})

	cancel()
	<-done
}

// waitFor polls cond, nudging the mock clock forward when one is given so
// cadence waits elapse, failing the test after a real-time deadline.
func waitFor(t *testing.T, clock *timeutil.MockClock, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		if clock != nil {
			clock.Advance(10 * time.Second)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
