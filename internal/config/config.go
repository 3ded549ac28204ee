// Package config loads the pipeline configuration from a JSON file.
//
// Every field is optional: omitted fields fall back to built-in defaults
// through the Get* accessors, so partial configs are safe. Calibration
// blocks override the shipped per-instrument constants field by field.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kho-data/aurora.report/internal/calib"
	"github.com/kho-data/aurora.report/internal/fsutil"
	"github.com/kho-data/aurora.report/internal/spectro"
)

// Defaults applied by the accessors when the JSON omits a field.
const (
	DefaultDevice  = spectro.MISS2
	DefaultCadence = 5 * time.Minute
	DefaultStagger = 10 * time.Second
	DefaultBinning = "4x1"

	DefaultRawDir      = "data/raw"
	DefaultAveragedDir = "data/averaged"
	DefaultRGBDir      = "data/rgb"
	DefaultKeogramDir  = "data/keograms"
)

// Config is the root pipeline configuration.
type Config struct {
	Device *string `json:"device,omitempty"`

	RawDir         *string `json:"raw_dir,omitempty"`
	AveragedDir    *string `json:"averaged_dir,omitempty"`
	RGBDir         *string `json:"rgb_dir,omitempty"`
	KeogramDir     *string `json:"keogram_dir,omitempty"`
	SpectrogramDir *string `json:"spectrogram_dir,omitempty"` // empty disables quick-looks

	// JournalPath enables the sqlite pass journal when set.
	JournalPath *string `json:"journal_path,omitempty"`

	Cadence *string `json:"cadence,omitempty"` // duration string like "5m"
	Stagger *string `json:"stagger,omitempty"` // duration string like "10s"
	Binning *string `json:"binning,omitempty"` // "XxY", e.g. "4x1"

	// Calibrations overrides the shipped constants per device name.
	Calibrations map[string]*Calibration `json:"calibrations,omitempty"`
}

// Calibration is a per-device calibration override block. Omitted fields
// keep the shipped value.
type Calibration struct {
	WavelengthCoeffs  []float64 `json:"wavelength_coeffs,omitempty"`  // a0, a1, a2
	SensitivityCoeffs []float64 `json:"sensitivity_coeffs,omitempty"` // degree-5, highest first
	HorizonStart      *int      `json:"horizon_start,omitempty"`
	HorizonEnd        *int      `json:"horizon_end,omitempty"`
}

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// Load reads and validates a JSON config file.
func Load(fsys fsutil.FileSystem, path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.Device != nil {
		if _, err := spectro.ParseDevice(*c.Device); err != nil {
			return err
		}
	}
	for _, field := range []struct {
		name  string
		value *string
	}{
		{"cadence", c.Cadence},
		{"stagger", c.Stagger},
	} {
		if field.value == nil || *field.value == "" {
			continue
		}
		d, err := time.ParseDuration(*field.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", field.name, *field.value, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", field.name, d)
		}
	}
	if c.Binning != nil {
		if _, _, err := spectro.ParseBinning(*c.Binning); err != nil {
			return err
		}
	}
	for name, cal := range c.Calibrations {
		if _, err := spectro.ParseDevice(name); err != nil {
			return fmt.Errorf("calibrations: %w", err)
		}
		if cal == nil {
			continue
		}
		if n := len(cal.WavelengthCoeffs); n != 0 && n != 3 {
			return fmt.Errorf("calibrations[%s]: wavelength_coeffs needs 3 values, got %d", name, n)
		}
		if n := len(cal.SensitivityCoeffs); n != 0 && n != 6 {
			return fmt.Errorf("calibrations[%s]: sensitivity_coeffs needs 6 values, got %d", name, n)
		}
		if cal.HorizonStart != nil && cal.HorizonEnd != nil && *cal.HorizonStart >= *cal.HorizonEnd {
			return fmt.Errorf("calibrations[%s]: horizon_start %d must be below horizon_end %d",
				name, *cal.HorizonStart, *cal.HorizonEnd)
		}
	}
	return nil
}

// GetDevice returns the configured instrument, defaulting to MISS2.
func (c *Config) GetDevice() spectro.Device {
	if c.Device != nil {
		if dev, err := spectro.ParseDevice(*c.Device); err == nil {
			return dev
		}
	}
	return DefaultDevice
}

// GetCadence returns the scheduler period.
func (c *Config) GetCadence() time.Duration {
	return c.duration(c.Cadence, DefaultCadence)
}

// GetStagger returns the delay between staggered stage starts.
func (c *Config) GetStagger() time.Duration {
	return c.duration(c.Stagger, DefaultStagger)
}

func (c *Config) duration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetBinY returns the spectral binning factor from the binning string.
func (c *Config) GetBinY() int {
	binning := DefaultBinning
	if c.Binning != nil && *c.Binning != "" {
		binning = *c.Binning
	}
	_, y, err := spectro.ParseBinning(binning)
	if err != nil || y < 1 {
		_, y, _ = spectro.ParseBinning(DefaultBinning)
	}
	return y
}

// GetRawDir returns the raw frame base directory.
func (c *Config) GetRawDir() string { return c.str(c.RawDir, DefaultRawDir) }

// GetAveragedDir returns the averaged frame base directory.
func (c *Config) GetAveragedDir() string { return c.str(c.AveragedDir, DefaultAveragedDir) }

// GetRGBDir returns the RGB column base directory.
func (c *Config) GetRGBDir() string { return c.str(c.RGBDir, DefaultRGBDir) }

// GetKeogramDir returns the keogram render base directory.
func (c *Config) GetKeogramDir() string { return c.str(c.KeogramDir, DefaultKeogramDir) }

// GetSpectrogramDir returns the quick-look base directory, empty when
// quick-looks are disabled.
func (c *Config) GetSpectrogramDir() string { return c.str(c.SpectrogramDir, "") }

// GetJournalPath returns the sqlite journal path, empty when journaling is
// disabled.
func (c *Config) GetJournalPath() string { return c.str(c.JournalPath, "") }

func (c *Config) str(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

// CalibrationFor resolves the effective calibration for a device: the
// shipped constants overlaid with any configured override block.
func (c *Config) CalibrationFor(dev spectro.Device) (calib.Device, error) {
	d, err := calib.Default(dev)
	if err != nil {
		return calib.Device{}, err
	}
	cal := c.Calibrations[string(dev)]
	if cal == nil {
		return d, nil
	}
	if len(cal.WavelengthCoeffs) == 3 {
		copy(d.WavelengthCoeffs[:], cal.WavelengthCoeffs)
	}
	if len(cal.SensitivityCoeffs) == 6 {
		copy(d.SensitivityCoeffs[:], cal.SensitivityCoeffs)
	}
	if cal.HorizonStart != nil {
		d.HorizonStart = *cal.HorizonStart
	}
	if cal.HorizonEnd != nil {
		d.HorizonEnd = *cal.HorizonEnd
	}
	return d, nil
}
