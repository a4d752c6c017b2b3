// Package temporal implements the calendar engine: a registry of calendar
// definitions under two mathematical models, conversion between the single
// master elapsed-seconds counter and calendar display fields, and the
// epoch-offset solving used when a displayed date is overridden.
//
// The master clock is an int64 count of elapsed seconds. That width covers
// roughly +/-292 billion years, far beyond any simulated history, while
// keeping every conversion exact. Wire formats carry it as a decimal string
// so consumers that parse JSON numbers as float64 cannot lose precision.
package temporal

import (
	"errors"
	"fmt"
)

// MathType tags the mathematical model of a calendar definition.
type MathType string

const (
	// MathBucketDrain decomposes elapsed seconds into nested units
	// (year/month/day/hour/minute/second) by successive division, with a
	// variable month-length table and a linear yearly drift correction.
	MathBucketDrain MathType = "BUCKET_DRAIN"
	// MathRatioLinear expresses time as a single continuously scaling
	// value proportional to elapsed seconds (a stardate).
	MathRatioLinear MathType = "RATIO_LINEAR"
)

// ErrUnknownMathType is returned when a definition carries a math type this
// engine does not implement. Resolution fails closed: no rendering, no
// conversion, no override.
var ErrUnknownMathType = errors.New("unknown calendar math type")

// ErrUnknownCalendar is returned for lookups of a key absent from a registry.
var ErrUnknownCalendar = errors.New("unknown calendar key")

// Month is one entry of a bucket-drain month-length lookup table.
type Month struct {
	Name string `yaml:"name" json:"name"`
	Days int64  `yaml:"days" json:"days"`
}

// BucketDrain holds the parameters of a hierarchical calendar.
//
// DriftPerYear is applied at the year level: the effective length of every
// local year is YearSeconds + DriftPerYear, and whole elapsed years
// contribute that effective length before any month decomposition. The
// remainder entering the month table is therefore already drift-corrected.
type BucketDrain struct {
	YearSeconds   int64   `yaml:"yearSeconds" json:"yearSeconds"`
	DaySeconds    int64   `yaml:"daySeconds" json:"daySeconds"`
	HourSeconds   int64   `yaml:"hourSeconds" json:"hourSeconds"`
	MinuteSeconds int64   `yaml:"minuteSeconds" json:"minuteSeconds"`
	Months        []Month `yaml:"months" json:"months"`
	DriftPerYear  int64   `yaml:"driftPerYear,omitempty" json:"driftPerYear,omitempty"`
	EpochOffset   Seconds `yaml:"epochOffset,omitempty" json:"epochOffset,omitempty"`
}

// EffectiveYearSeconds is the drift-corrected length of one local year.
func (b *BucketDrain) EffectiveYearSeconds() int64 {
	return b.YearSeconds + b.DriftPerYear
}

// daysBeforeMonth returns the total table days preceding the 1-based month.
func (b *BucketDrain) daysBeforeMonth(month int) int64 {
	var days int64
	for i := 0; i < month-1 && i < len(b.Months); i++ {
		days += b.Months[i].Days
	}
	return days
}

// RatioLinear holds the parameters of a continuously scaling calendar.
// The displayed value is (master + EpochOffset) / SecondsPerUnit.
type RatioLinear struct {
	SecondsPerUnit float64 `yaml:"secondsPerUnit" json:"secondsPerUnit"`
	UnitsPerYear   float64 `yaml:"unitsPerYear" json:"unitsPerYear"`
	EpochOffset    Seconds `yaml:"epochOffset,omitempty" json:"epochOffset,omitempty"`
}

// Definition is one calendar in the registry, tagged by Math. Exactly one of
// Bucket and Ratio is set, matching the tag; Validate enforces this so every
// later dispatch can be an exhaustive switch on Math.
type Definition struct {
	Name   string       `yaml:"name" json:"name"`
	Math   MathType     `yaml:"mathType" json:"mathType"`
	Bucket *BucketDrain `yaml:"bucketDrain,omitempty" json:"bucketDrain,omitempty"`
	Ratio  *RatioLinear `yaml:"ratioLinear,omitempty" json:"ratioLinear,omitempty"`
}

// Validate rejects structurally invalid definitions. Unknown math types are
// a configuration error, never a fallback.
func (d *Definition) Validate() error {
	switch d.Math {
	case MathBucketDrain:
		b := d.Bucket
		if b == nil {
			return fmt.Errorf("calendar %q: mathType %s requires a bucketDrain section", d.Name, d.Math)
		}
		if b.YearSeconds <= 0 || b.DaySeconds <= 0 || b.HourSeconds <= 0 || b.MinuteSeconds <= 0 {
			return fmt.Errorf("calendar %q: unit multipliers must be positive", d.Name)
		}
		if b.EffectiveYearSeconds() <= 0 {
			return fmt.Errorf("calendar %q: driftPerYear %d makes the effective year non-positive", d.Name, b.DriftPerYear)
		}
		if len(b.Months) == 0 {
			return fmt.Errorf("calendar %q: month lookup table is empty", d.Name)
		}
		for i, m := range b.Months {
			if m.Days <= 0 {
				return fmt.Errorf("calendar %q: month %d (%s) has non-positive length %d", d.Name, i+1, m.Name, m.Days)
			}
		}
		return nil
	case MathRatioLinear:
		r := d.Ratio
		if r == nil {
			return fmt.Errorf("calendar %q: mathType %s requires a ratioLinear section", d.Name, d.Math)
		}
		if r.SecondsPerUnit <= 0 {
			return fmt.Errorf("calendar %q: secondsPerUnit must be positive, got %g", d.Name, r.SecondsPerUnit)
		}
		if r.UnitsPerYear <= 0 {
			return fmt.Errorf("calendar %q: unitsPerYear must be positive, got %g", d.Name, r.UnitsPerYear)
		}
		return nil
	default:
		return fmt.Errorf("calendar %q: %w: %q", d.Name, ErrUnknownMathType, d.Math)
	}
}

// clone returns a definition whose Bucket/Ratio sections are private copies.
// Lookups hand out clones so no caller ever aliases a registry entry, and
// overrides mutate a clone before installing it, so definitions already
// handed out keep their old epoch offset.
func (d Definition) clone() Definition {
	if d.Bucket != nil {
		b := *d.Bucket
		b.Months = append([]Month(nil), d.Bucket.Months...)
		d.Bucket = &b
	}
	if d.Ratio != nil {
		r := *d.Ratio
		d.Ratio = &r
	}
	return d
}

// epochOffset returns the definition's epoch offset regardless of model.
// Callers must have validated the definition first.
func (d *Definition) epochOffset() int64 {
	switch d.Math {
	case MathBucketDrain:
		return int64(d.Bucket.EpochOffset)
	case MathRatioLinear:
		return int64(d.Ratio.EpochOffset)
	}
	return 0
}

// setEpochOffset writes a solved epoch offset back into the definition.
func (d *Definition) setEpochOffset(offset int64) {
	switch d.Math {
	case MathBucketDrain:
		d.Bucket.EpochOffset = Seconds(offset)
	case MathRatioLinear:
		d.Ratio.EpochOffset = Seconds(offset)
	}
}
