package vortex

// timelord.go holds the TimeLord and TimeConverter types, which map
// human-readable rate/period strings to integer tick factors against
// one process-wide base period.

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iti/evt/vrtime"
)

// SimTime is a tick count measured against the TimeLord's base period.
// All scheduling arithmetic in the engine is integer on SimTime; only
// the unit grammar parse below touches floating point.
type SimTime uint64

// unitPeriod holds the multiplier (in seconds) for a unit suffix
// recognized by the grammar below. Frequencies (Hz, GHz, ...) are
// inverted at parse time since a rate is period = 1/rate.
var unitPeriod = map[string]float64{
	"s":  1,
	"ms": 1e-3,
	"us": 1e-6,
	"ns": 1e-9,
	"ps": 1e-12,
	"fs": 1e-15,
}

var unitFreq = map[string]float64{
	"Hz":  1,
	"KHz": 1e3,
	"MHz": 1e6,
	"GHz": 1e9,
	"THz": 1e12,
}

// TimeLord holds the single base period for a run (in seconds, always
// finer than or equal to any period a component asks to convert) and
// issues TimeConverters against it.
type TimeLord struct {
	basePeriod float64 // seconds per tick
}

// CreateTimeLord is a constructor. basePeriod is expressed as a
// duration string in the supported unit grammar (e.g. "1ps").
func CreateTimeLord(basePeriod string) (*TimeLord, error) {
	period, err := parseDuration(basePeriod)
	if err != nil {
		return nil, fmt.Errorf("timelord: bad base period %q: %w", basePeriod, err)
	}
	if period <= 0 {
		return nil, fmt.Errorf("timelord: base period must be positive, got %q", basePeriod)
	}
	return &TimeLord{basePeriod: period}, nil
}

// BasePeriod returns the process base period, in seconds.
func (tl *TimeLord) BasePeriod() float64 {
	return tl.basePeriod
}

// GetTimeConverter parses a rate or period string and returns a
// TimeConverter whose Factor maps that unit onto an integer count of
// base-period ticks. Panics (a configuration error, fatal before RUN
// per spec.md §7) if the requested unit is finer than the base period.
func (tl *TimeLord) GetTimeConverter(spec string) *TimeConverter {
	seconds, err := parseDuration(spec)
	if err != nil {
		panic(fmt.Errorf("timelord: %w", err))
	}
	factor := seconds / tl.basePeriod
	if factor < 1 {
		panic(fmt.Errorf("timelord: %q is finer than the base period (%g s)", spec, tl.basePeriod))
	}
	return &TimeConverter{factor: uint64(factor + 0.5), lord: tl}
}

// ToVrtime converts a tick count expressed against this TimeLord's
// base period into a vrtime.Time, for interop with trace/statistics
// code paths that want seconds+ticks (mirrors trace.go's use of
// vrtime.Time throughout the teacher).
func (tl *TimeLord) ToVrtime(t SimTime) vrtime.Time {
	seconds := float64(t) * tl.basePeriod
	return vrtime.SecondsToTime(seconds)
}

// TimeConverter is an immutable handle mapping a user rate/period to
// an integer tick factor, per spec.md §3/§9.
type TimeConverter struct {
	factor uint64
	lord   *TimeLord
}

// Factor returns the integer number of base-period ticks in the unit
// this converter was built from.
func (tc *TimeConverter) Factor() uint64 {
	return tc.factor
}

// ToSimTime converts a count of the converter's unit into SimTime.
func (tc *TimeConverter) ToSimTime(count uint64) SimTime {
	return SimTime(count * tc.factor)
}

// parseDuration accepts either a period ("1ns", "2.5us") or a
// frequency ("2GHz", "100Hz") and returns the equivalent period in
// seconds. This is the tick-factor parse contract spec.md §1 carves
// out of the (out-of-core-scope) UnitAlgebra module.
func parseDuration(spec string) (float64, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, fmt.Errorf("empty duration")
	}

	// try frequency suffixes first (longest match), then period suffixes
	for _, suffix := range []string{"THz", "GHz", "MHz", "KHz", "Hz"} {
		if strings.HasSuffix(spec, suffix) {
			numPart := strings.TrimSpace(strings.TrimSuffix(spec, suffix))
			value, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, fmt.Errorf("bad numeric part %q: %w", numPart, err)
			}
			if value <= 0 {
				return 0, fmt.Errorf("frequency must be positive, got %q", spec)
			}
			return 1.0 / (value * unitFreq[suffix]), nil
		}
	}

	for _, suffix := range []string{"fs", "ps", "ns", "us", "ms", "s"} {
		if strings.HasSuffix(spec, suffix) {
			numPart := strings.TrimSpace(strings.TrimSuffix(spec, suffix))
			value, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, fmt.Errorf("bad numeric part %q: %w", numPart, err)
			}
			return value * unitPeriod[suffix], nil
		}
	}

	return 0, fmt.Errorf("unrecognized time unit in %q", spec)
}
