package temporal

import (
	"fmt"
)

// Override is the result of an epoch-offset solve. The master clock is never
// touched by an override: only the calendar's own epoch offset moves, so
// every other calendar sharing the master clock is unaffected.
type Override struct {
	NewEpochOffset int64 `json:"newEpochOffset"`
	Clamped        bool  `json:"clamped"`
}

// localFields returns the pure local-time second count of fields, ignoring
// the epoch offset.
func (b *BucketDrain) localFields(f Fields) int64 {
	return int64(b.EpochOffset) + b.SecondsFromFields(f)
}

// clampToLocalZero enforces the earliest representable instant, local time
// zero. An override that would place the current master time before the
// calendar's own origin clamps the offset so local time reads exactly zero.
func clampToLocalZero(master, offset int64) Override {
	if master+offset < 0 {
		return Override{NewEpochOffset: -master, Clamped: true}
	}
	return Override{NewEpochOffset: offset}
}

// SolveYearOverride computes the epoch offset that makes a bucket-drain
// calendar display targetYear at the given master time while preserving
// every lower field (month, day, hour, minute, second).
func SolveYearOverride(def Definition, master, targetYear int64) (Override, error) {
	if err := def.Validate(); err != nil {
		return Override{}, err
	}
	if def.Math != MathBucketDrain {
		return Override{}, fmt.Errorf("calendar %q: year override requires %s, got %s", def.Name, MathBucketDrain, def.Math)
	}

	b := def.Bucket
	fields := b.FieldsFromSeconds(master)
	fields.Year = targetYear

	offset := b.localFields(fields) - master
	return clampToLocalZero(master, offset), nil
}

// SolveValueOverride computes the epoch offset that makes a ratio-linear
// calendar display targetValue at the given master time.
func SolveValueOverride(def Definition, master int64, targetValue float64) (Override, error) {
	if err := def.Validate(); err != nil {
		return Override{}, err
	}
	if def.Math != MathRatioLinear {
		return Override{}, fmt.Errorf("calendar %q: value override requires %s, got %s", def.Name, MathRatioLinear, def.Math)
	}

	r := def.Ratio
	seconds := targetValue * r.SecondsPerUnit
	var targetLocal int64
	if seconds >= 0 {
		targetLocal = int64(seconds + 0.5)
	} else {
		targetLocal = int64(seconds - 0.5)
	}

	offset := targetLocal - master
	return clampToLocalZero(master, offset), nil
}

// ApplyOverride writes a solved override into the state's registry entry for
// key and refreshes DisplayTimeSeconds from the active calendar's local time.
func ApplyOverride(st *State, key string, ov Override) error {
	def, err := st.Lookup(key)
	if err != nil {
		return err
	}
	def.setEpochOffset(ov.NewEpochOffset)
	st.Registry[key] = def

	if active, err := st.Active(); err == nil {
		st.DisplayTimeSeconds = Seconds(int64(st.MasterTimeSeconds) + active.epochOffset())
	}
	return nil
}

// ConvertFields converts calendar fields to the master time at which the
// calendar displays them. The inverse direction is Resolve.
func ConvertFields(def Definition, f Fields) (int64, error) {
	if err := def.Validate(); err != nil {
		return 0, err
	}
	if def.Math != MathBucketDrain {
		return 0, fmt.Errorf("calendar %q: field conversion requires %s, got %s", def.Name, MathBucketDrain, def.Math)
	}
	if err := def.Bucket.checkFields(f); err != nil {
		return 0, fmt.Errorf("calendar %q: %w", def.Name, err)
	}
	return def.Bucket.SecondsFromFields(f), nil
}

// ConvertValue converts a ratio-linear display value to the master time at
// which the calendar displays it.
func ConvertValue(def Definition, value float64) (int64, error) {
	if err := def.Validate(); err != nil {
		return 0, err
	}
	if def.Math != MathRatioLinear {
		return 0, fmt.Errorf("calendar %q: value conversion requires %s, got %s", def.Name, MathRatioLinear, def.Math)
	}
	return def.Ratio.SecondsFromValue(value), nil
}
