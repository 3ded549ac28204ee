package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kho-data/aurora.report/internal/calib"
	"github.com/kho-data/aurora.report/internal/fsutil"
	"github.com/kho-data/aurora.report/internal/spectro"
)

func TestEmptyConfigDefaults(t *testing.T) {
	c := Empty()
	assert.Equal(t, spectro.MISS2, c.GetDevice())
	assert.Equal(t, 5*time.Minute, c.GetCadence())
	assert.Equal(t, 10*time.Second, c.GetStagger())
	assert.Equal(t, 1, c.GetBinY())
	assert.Equal(t, "data/raw", c.GetRawDir())
	assert.Equal(t, "data/averaged", c.GetAveragedDir())
	assert.Equal(t, "data/rgb", c.GetRGBDir())
	assert.Equal(t, "data/keograms", c.GetKeogramDir())
	assert.Empty(t, c.GetSpectrogramDir(), "quick-looks default off")
	assert.Empty(t, c.GetJournalPath(), "journal defaults off")
}

func TestLoadPartialConfig(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("/etc/miss.json", []byte(`{
		"device": "MISS1",
		"raw_dir": "/srv/raw",
		"cadence": "2m",
		"binning": "1x4"
	}`), 0644))

	c, err := Load(fsys, "/etc/miss.json")
	require.NoError(t, err)
	assert.Equal(t, spectro.MISS1, c.GetDevice())
	assert.Equal(t, "/srv/raw", c.GetRawDir())
	assert.Equal(t, 2*time.Minute, c.GetCadence())
	assert.Equal(t, 4, c.GetBinY())

	// Omitted fields keep their defaults.
	assert.Equal(t, "data/averaged", c.GetAveragedDir())
	assert.Equal(t, 10*time.Second, c.GetStagger())
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	_, err := Load(fsutil.NewMemoryFileSystem(), "/etc/miss.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	for name, body := range map[string]string{
		"unknown device":   `{"device": "MISS3"}`,
		"bad cadence":      `{"cadence": "often"}`,
		"negative cadence": `{"cadence": "-5m"}`,
		"bad binning":      `{"binning": "fine"}`,
		"short coeffs":     `{"calibrations": {"MISS2": {"wavelength_coeffs": [1, 2]}}}`,
		"bad horizon":      `{"calibrations": {"MISS2": {"horizon_start": 900, "horizon_end": 100}}}`,
		"unknown cal name": `{"calibrations": {"NORUSCA": {}}}`,
		"malformed json":   `{`,
	} {
		fsys := fsutil.NewMemoryFileSystem()
		require.NoError(t, fsys.WriteFile("/c.json", []byte(body), 0644))
		_, err := Load(fsys, "/c.json")
		assert.Error(t, err, name)
	}
}

func TestCalibrationForShippedDefaults(t *testing.T) {
	c := Empty()
	got, err := c.CalibrationFor(spectro.MISS2)
	require.NoError(t, err)

	want, err := calib.Default(spectro.MISS2)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCalibrationForOverridesFieldByField(t *testing.T) {
	start := 100
	c := Empty()
	c.Calibrations = map[string]*Calibration{
		"MISS2": {
			WavelengthCoeffs: []float64{4000, 2.5, 1e-4},
			HorizonStart:     &start,
		},
	}

	got, err := c.CalibrationFor(spectro.MISS2)
	require.NoError(t, err)
	assert.Equal(t, [3]float64{4000, 2.5, 1e-4}, got.WavelengthCoeffs)
	assert.Equal(t, 100, got.HorizonStart)

	// Untouched fields keep the shipped constants.
	shipped, _ := calib.Default(spectro.MISS2)
	assert.Equal(t, shipped.SensitivityCoeffs, got.SensitivityCoeffs)
	assert.Equal(t, shipped.HorizonEnd, got.HorizonEnd)
}
