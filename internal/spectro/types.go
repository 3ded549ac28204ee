// Package spectro holds the shared domain vocabulary of the MISS keogram
// pipeline: spectrograph devices, frame file names, minute keys, and the
// dated directory layout every stage reads and writes.
//
// A raw or averaged frame is named <DEVICE>-<YYYYMMDD>-<HHMMSS>.png and lives
// under <base>/<YYYY>/<MM>/<DD>/. An RGB column shares the frame's stem with
// an "_RGB" suffix. These paths are pure functions of (device, timestamp),
// which is what makes every stage idempotent: re-running a pass overwrites
// identical output at identical paths.
package spectro

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// Device identifies a spectrograph instrument.
type Device string

// The two Meridian Imaging Svalbard Spectrograph instruments.
const (
	MISS1 Device = "MISS1"
	MISS2 Device = "MISS2"
)

// ParseDevice validates a device name.
func ParseDevice(s string) (Device, error) {
	switch Device(s) {
	case MISS1, MISS2:
		return Device(s), nil
	}
	return "", fmt.Errorf("unknown spectrograph device %q", s)
}

// Title returns the roman-numeral instrument title used on rendered figures.
func (d Device) Title() string {
	if d == MISS1 {
		return "Meridian Imaging Svalbard Spectrograph I"
	}
	return "Meridian Imaging Svalbard Spectrograph II"
}

// Metadata keys embedded as PNG text chunks by the acquisition software.
const (
	MetaExposure    = "Exposure Time"
	MetaDateTime    = "Date/Time"
	MetaTemperature = "Temperature"
	MetaBinning     = "Binning"
	MetaNote        = "Note"
)

// AllowedMetadata is the fixed allow-list of keys propagated from a raw
// frame to its derived averaged frame.
var AllowedMetadata = []string{MetaExposure, MetaDateTime, MetaTemperature, MetaBinning, MetaNote}

// ParseBinning parses a "binXxbinY" metadata value such as "4x1".
func ParseBinning(s string) (binX, binY int, err error) {
	if _, err := fmt.Sscanf(s, "%dx%d", &binX, &binY); err != nil {
		return 0, 0, fmt.Errorf("malformed binning value %q: %w", s, err)
	}
	if binX <= 0 || binY <= 0 {
		return 0, 0, fmt.Errorf("binning factors must be positive, got %q", s)
	}
	return binX, binY, nil
}

// FormatBinning renders binning factors as a metadata value.
func FormatBinning(binX, binY int) string {
	return fmt.Sprintf("%dx%d", binX, binY)
}

var frameNameRe = regexp.MustCompile(`^(MISS[12])-(\d{8})-(\d{6})\.png$`)

// FrameName is a parsed frame file name: device plus embedded capture time.
type FrameName struct {
	Device Device
	Time   time.Time // UTC, second resolution
}

// ParseFrameName parses a base file name of the form
// MISS2-20240601-120301.png. The second return is false for names that do
// not match the pattern.
func ParseFrameName(name string) (FrameName, bool) {
	m := frameNameRe.FindStringSubmatch(name)
	if m == nil {
		return FrameName{}, false
	}
	ts, err := time.Parse("20060102-150405", m[2]+"-"+m[3])
	if err != nil {
		return FrameName{}, false
	}
	return FrameName{Device: Device(m[1]), Time: ts.UTC()}, true
}

// String renders the canonical file name.
func (f FrameName) String() string {
	return fmt.Sprintf("%s-%s.png", f.Device, f.Time.UTC().Format("20060102-150405"))
}

// Minute returns the minute key the frame belongs to.
func (f FrameName) Minute() MinuteKey {
	return MinuteKey{Device: f.Device, Time: f.Time.UTC().Truncate(time.Minute)}
}

// MinuteKey identifies one device-minute: the unit of averaging and the
// column index unit of the keogram.
type MinuteKey struct {
	Device Device
	Time   time.Time // UTC, truncated to the minute
}

// String renders the key for logs and processed-set membership.
func (k MinuteKey) String() string {
	return fmt.Sprintf("%s-%s", k.Device, k.Time.UTC().Format("20060102-1504"))
}

// Stem is the file stem shared by the averaged frame and its RGB column:
// the frame name with seconds forced to zero, without extension.
func (k MinuteKey) Stem() string {
	return fmt.Sprintf("%s-%s00", k.Device, k.Time.UTC().Format("20060102-1504"))
}

// Date returns the UTC calendar date of the minute.
func (k MinuteKey) Date() Date {
	y, m, d := k.Time.UTC().Date()
	return Date{Year: y, Month: m, Day: d}
}

// MinuteOfDay returns the key's column index in a day raster (0–1439).
func (k MinuteKey) MinuteOfDay() int {
	t := k.Time.UTC()
	return t.Hour()*60 + t.Minute()
}

// AveragedPath returns the idempotent output path of the minute's averaged
// frame under base.
func (k MinuteKey) AveragedPath(base string) string {
	return filepath.Join(k.Date().Dir(base), k.Stem()+".png")
}

// RGBColumnPath returns the idempotent output path of the minute's RGB
// column under base.
func (k MinuteKey) RGBColumnPath(base string) string {
	return filepath.Join(k.Date().Dir(base), k.Stem()+"_RGB.png")
}

// Date is a UTC calendar date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates a time to its UTC calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a compact date such as "20240601". A slash-separated
// "2024/06/01" is accepted for parity with the original operator prompt.
func ParseDate(s string) (Date, error) {
	layout := "20060102"
	if len(s) == 10 {
		layout = "2006/01/02"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want YYYYMMDD or YYYY/MM/DD): %w", s, err)
	}
	return DateOf(t), nil
}

// String renders the compact YYYYMMDD form.
func (d Date) String() string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, int(d.Month), d.Day)
}

// Start returns midnight UTC at the start of the date.
func (d Date) Start() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Next returns the following calendar date.
func (d Date) Next() Date {
	return DateOf(d.Start().AddDate(0, 0, 1))
}

// Dir returns the dated directory <base>/<YYYY>/<MM>/<DD>.
func (d Date) Dir(base string) string {
	return filepath.Join(base,
		strconv.Itoa(d.Year),
		fmt.Sprintf("%02d", int(d.Month)),
		fmt.Sprintf("%02d", d.Day))
}

// MinuteKeyAt returns the minute key for a given minute-of-day on this date.
func (d Date) MinuteKeyAt(dev Device, minute int) MinuteKey {
	return MinuteKey{Device: dev, Time: d.Start().Add(time.Duration(minute) * time.Minute)}
}

// KeogramPath returns the idempotent render path for a device-day keogram.
func KeogramPath(base string, dev Device, d Date) string {
	return filepath.Join(d.Dir(base), fmt.Sprintf("%s-keogram-%s.png", dev, d))
}
