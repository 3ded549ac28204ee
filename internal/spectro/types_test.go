package spectro

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameName(t *testing.T) {
	fn, ok := ParseFrameName("MISS2-20240601-120301.png")
	require.True(t, ok)
	assert.Equal(t, MISS2, fn.Device)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 3, 1, 0, time.UTC), fn.Time)
	assert.Equal(t, "MISS2-20240601-120301.png", fn.String())

	for _, bad := range []string{
		"MISS3-20240601-120301.png",
		"MISS2-2024061-120301.png",
		"MISS2-20240601-120301.jpg",
		"MISS2-20240601-120301_RGB.png",
		"notes.txt",
	} {
		_, ok := ParseFrameName(bad)
		assert.False(t, ok, "expected %q to be rejected", bad)
	}
}

func TestMinuteKeyPaths(t *testing.T) {
	fn, ok := ParseFrameName("MISS2-20240601-120358.png")
	require.True(t, ok)

	k := fn.Minute()
	assert.Equal(t, "MISS2-20240601-1203", k.String())
	assert.Equal(t, "MISS2-20240601-120300", k.Stem())
	assert.Equal(t, 12*60+3, k.MinuteOfDay())

	assert.Equal(t,
		filepath.Join("avg", "2024", "06", "01", "MISS2-20240601-120300.png"),
		k.AveragedPath("avg"))
	assert.Equal(t,
		filepath.Join("rgb", "2024", "06", "01", "MISS2-20240601-120300_RGB.png"),
		k.RGBColumnPath("rgb"))
}

func TestFramesInSameMinuteShareKey(t *testing.T) {
	a, _ := ParseFrameName("MISS2-20240601-120301.png")
	b, _ := ParseFrameName("MISS2-20240601-120358.png")
	c, _ := ParseFrameName("MISS2-20240601-120401.png")

	assert.Equal(t, a.Minute(), b.Minute())
	assert.NotEqual(t, a.Minute(), c.Minute())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("20240601")
	require.NoError(t, err)
	assert.Equal(t, Date{2024, time.June, 1}, d)

	d2, err := ParseDate("2024/06/01")
	require.NoError(t, err)
	assert.Equal(t, d, d2)

	_, err = ParseDate("2024-06-01")
	assert.Error(t, err)
	_, err = ParseDate("junk")
	assert.Error(t, err)
}

func TestDateHelpers(t *testing.T) {
	d := Date{2024, time.June, 1}
	assert.Equal(t, "20240601", d.String())
	assert.Equal(t, filepath.Join("base", "2024", "06", "01"), d.Dir("base"))
	assert.Equal(t, Date{2024, time.June, 2}, d.Next())
	assert.Equal(t, Date{2025, time.January, 1}, Date{2024, time.December, 31}.Next())

	k := d.MinuteKeyAt(MISS2, 723)
	assert.Equal(t, 723, k.MinuteOfDay())
	assert.Equal(t, d, k.Date())
}

func TestKeogramPath(t *testing.T) {
	got := KeogramPath("keo", MISS1, Date{2024, time.June, 1})
	assert.Equal(t, filepath.Join("keo", "2024", "06", "01", "MISS1-keogram-20240601.png"), got)
}

func TestParseBinning(t *testing.T) {
	x, y, err := ParseBinning("4x1")
	require.NoError(t, err)
	assert.Equal(t, 4, x)
	assert.Equal(t, 1, y)

	_, _, err = ParseBinning("0x1")
	assert.Error(t, err)
	_, _, err = ParseBinning("4")
	assert.Error(t, err)

	assert.Equal(t, "4x1", FormatBinning(4, 1))
}

func TestParseDevice(t *testing.T) {
	d, err := ParseDevice("MISS1")
	require.NoError(t, err)
	assert.Equal(t, MISS1, d)

	_, err = ParseDevice("MISS9")
	assert.Error(t, err)
}
