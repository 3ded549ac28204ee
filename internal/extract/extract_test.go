package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kho-data/aurora.report/internal/calib"
	"github.com/kho-data/aurora.report/internal/spectro"
)

// uniformGrid builds rows×cols of a constant value.
func uniformGrid(rows, cols int, v float64) [][]float64 {
	g := make([][]float64, rows)
	for y := range g {
		g[y] = make([]float64, cols)
		for x := range g[y] {
			g[y][x] = v
		}
	}
	return g
}

func TestResampleFixedLength(t *testing.T) {
	for _, l := range []int{2, 3, 150, 299, 300, 301, 845, 2048} {
		in := make([]float64, l)
		for i := range in {
			in[i] = float64(i)
		}
		out, err := Resample(in, ProfileLength)
		require.NoError(t, err, "L=%d", l)
		assert.Len(t, out, ProfileLength, "L=%d", l)

		// Endpoints are preserved exactly.
		assert.InDelta(t, in[0], out[0], 1e-9, "L=%d", l)
		assert.InDelta(t, in[l-1], out[ProfileLength-1], 1e-9, "L=%d", l)
	}
}

func TestResampleTooShort(t *testing.T) {
	_, err := Resample([]float64{1}, ProfileLength)
	assert.ErrorIs(t, err, ErrProfileTooShort)
	_, err = Resample(nil, ProfileLength)
	assert.ErrorIs(t, err, ErrProfileTooShort)
}

func TestResampleLinearValues(t *testing.T) {
	// A linear ramp must stay linear under order-1 resampling.
	in := []float64{0, 10, 20, 30}
	out, err := Resample(in, 7)
	require.NoError(t, err)
	want := []float64{0, 5, 10, 15, 20, 25, 30}
	for i := range want {
		assert.InDelta(t, want[i], out[i], 1e-9, "i=%d", i)
	}
}

func TestMedian3x3SuppressesHotPixel(t *testing.T) {
	g := uniformGrid(5, 5, 100)
	g[2][2] = 65535 // hot pixel

	f := Median3x3(g)
	assert.Equal(t, 100.0, f[2][2])
}

func TestMedian3x3ZeroPaddedEdges(t *testing.T) {
	// On a constant grid the corner window holds 4 values and 5 zeros, so
	// the median is zero; interior pixels keep the constant.
	g := uniformGrid(4, 4, 10)
	f := Median3x3(g)
	assert.Equal(t, 0.0, f[0][0])
	assert.Equal(t, 10.0, f[1][1])
}

func testDevice(t *testing.T) *calib.Device {
	t.Helper()
	d, err := calib.Default(spectro.MISS2)
	require.NoError(t, err)
	return &d
}

func TestSampleLength(t *testing.T) {
	dev := testDevice(t)
	// Full-height unbinned frame: all three lines resolve.
	g := uniformGrid(1200, 400, 50)

	for _, lambda := range []float64{6300, 5577, 4278} {
		p, err := Sample(g, dev, lambda, 1)
		require.NoError(t, err, "λ=%v", lambda)
		assert.Len(t, p, ProfileLength)
	}
}

func TestSampleUniformInterior(t *testing.T) {
	dev := testDevice(t)
	g := uniformGrid(1200, 400, 50)

	p, err := Sample(g, dev, 5577, 1)
	require.NoError(t, err)

	// Away from the zero-padded filter edges, the calibrated profile is the
	// constant scaled by K_λ.
	want := 50 * dev.Sensitivity(5577)
	mid := p[ProfileLength/2]
	assert.InEpsilon(t, want, mid, 1e-9)
}

func TestSampleWavelengthOutOfRange(t *testing.T) {
	dev := testDevice(t)
	// 100 rows cannot hold the 6300 Å line (resolves near fit row 790).
	g := uniformGrid(100, 400, 50)

	_, err := Sample(g, dev, 6300, 1)
	assert.ErrorIs(t, err, calib.ErrRowOutOfRange)
}

func TestSampleTooFewRows(t *testing.T) {
	dev := testDevice(t)
	// binY=12 → window of one row; below the 2-row minimum.
	g := uniformGrid(80, 400, 50)

	_, err := Sample(g, dev, 4278, 12)
	assert.ErrorIs(t, err, ErrTooFewRows)
}

func TestSampleBinningWidensRelativeWindow(t *testing.T) {
	dev := testDevice(t)

	// binY=1 averages 12 rows; binY=4 averages 3. Both succeed on a frame
	// tall enough for the blue line.
	g1 := uniformGrid(1200, 400, 50)
	_, err := Sample(g1, dev, 4278, 1)
	require.NoError(t, err)

	g4 := uniformGrid(300, 400, 50)
	_, err = Sample(g4, dev, 4278, 4)
	require.NoError(t, err)
}
