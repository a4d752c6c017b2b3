package temporal

import (
	"fmt"
	"strings"
)

// Fields is a bucket-drain calendar's decomposed local time.
// Year, Month and Day are 1-based; year 1 day 1 starts at local zero.
// Times before local zero decompose into non-positive years with canonical
// (non-negative) lower fields, so field arithmetic stays uniform.
type Fields struct {
	Year   int64 `json:"year"`
	Month  int   `json:"month"`
	Day    int64 `json:"day"`
	Hour   int64 `json:"hour"`
	Minute int64 `json:"minute"`
	Second int64 `json:"second"`
}

// Rendering is the result of resolving a master time against one calendar.
// Fields is set for bucket-drain calendars, Value for ratio-linear ones.
type Rendering struct {
	Calendar string   `json:"calendar"`
	Math     MathType `json:"mathType"`
	Fields   *Fields  `json:"fields,omitempty"`
	Value    *float64 `json:"value,omitempty"`
	Display  string   `json:"display"`
}

// floorDiv is integer division rounding toward negative infinity, so that
// pre-epoch times produce a canonical non-negative remainder.
func floorDiv(a, b int64) (q, r int64) {
	q = a / b
	r = a % b
	if r < 0 {
		q--
		r += b
	}
	return q, r
}

// FieldsFromSeconds decomposes a master-clock time into calendar fields by
// draining units from the top of the hierarchy down: whole years at the
// drift-corrected effective year length, then table months, then days,
// hours, minutes, with seconds as the final remainder.
func (b *BucketDrain) FieldsFromSeconds(master int64) Fields {
	local := master + int64(b.EpochOffset)

	years, rem := floorDiv(local, b.EffectiveYearSeconds())

	dayIndex, rem := floorDiv(rem, b.DaySeconds)

	// Walk the month table in sequence. If the effective year is longer
	// than the table (drift or a deliberately short table), the excess
	// days stay in the final month; the inverse reconstructs them exactly
	// from the day count.
	month := 1
	for i, m := range b.Months {
		if dayIndex < m.Days || i == len(b.Months)-1 {
			break
		}
		dayIndex -= m.Days
		month++
	}

	hour, rem := floorDiv(rem, b.HourSeconds)
	minute, second := floorDiv(rem, b.MinuteSeconds)

	return Fields{
		Year:   years + 1,
		Month:  month,
		Day:    dayIndex + 1,
		Hour:   hour,
		Minute: minute,
		Second: second,
	}
}

// SecondsFromFields is the exact inverse of FieldsFromSeconds: elapsed years
// at the effective year length, plus the day-of-year offset from the month
// table, plus the fixed-multiplier units, minus the epoch offset.
func (b *BucketDrain) SecondsFromFields(f Fields) int64 {
	local := (f.Year - 1) * b.EffectiveYearSeconds()
	local += (b.daysBeforeMonth(f.Month) + f.Day - 1) * b.DaySeconds
	local += f.Hour * b.HourSeconds
	local += f.Minute * b.MinuteSeconds
	local += f.Second
	return local - int64(b.EpochOffset)
}

// checkFields rejects field values outside the calendar's canonical ranges
// so conversion never silently reinterprets garbage input. The final month
// has no upper day bound: it absorbs the excess days of an effective year
// longer than the month table, mirroring FieldsFromSeconds.
func (b *BucketDrain) checkFields(f Fields) error {
	if f.Month < 1 || f.Month > len(b.Months) {
		return fmt.Errorf("month %d out of range 1..%d", f.Month, len(b.Months))
	}
	if f.Day < 1 {
		return fmt.Errorf("day %d out of range, days are 1-based", f.Day)
	}
	if f.Month < len(b.Months) && f.Day > b.Months[f.Month-1].Days {
		return fmt.Errorf("day %d exceeds the %d days of month %d", f.Day, b.Months[f.Month-1].Days, f.Month)
	}
	if f.Hour < 0 || f.Hour*b.HourSeconds >= b.DaySeconds {
		return fmt.Errorf("hour %d out of range for a %d-second day", f.Hour, b.DaySeconds)
	}
	if f.Minute < 0 || f.Minute*b.MinuteSeconds >= b.HourSeconds {
		return fmt.Errorf("minute %d out of range for a %d-second hour", f.Minute, b.HourSeconds)
	}
	if f.Second < 0 || f.Second >= b.MinuteSeconds {
		return fmt.Errorf("second %d out of range for a %d-second minute", f.Second, b.MinuteSeconds)
	}
	return nil
}

// ValueFromSeconds returns the continuously scaling display value at the
// given master time.
func (r *RatioLinear) ValueFromSeconds(master int64) float64 {
	return float64(master+int64(r.EpochOffset)) / r.SecondsPerUnit
}

// SecondsFromValue solves for the master time at which the calendar would
// display the given value. The result is rounded to the nearest whole
// second, the master clock's resolution.
func (r *RatioLinear) SecondsFromValue(value float64) int64 {
	seconds := value * r.SecondsPerUnit
	if seconds >= 0 {
		return int64(seconds+0.5) - int64(r.EpochOffset)
	}
	return int64(seconds-0.5) - int64(r.EpochOffset)
}

// Resolve renders the master time under the given definition. Unknown math
// types fail closed with ErrUnknownMathType.
func Resolve(def Definition, master int64) (Rendering, error) {
	if err := def.Validate(); err != nil {
		return Rendering{}, err
	}

	switch def.Math {
	case MathBucketDrain:
		f := def.Bucket.FieldsFromSeconds(master)
		return Rendering{
			Calendar: def.Name,
			Math:     def.Math,
			Fields:   &f,
			Display:  def.Bucket.format(f),
		}, nil
	case MathRatioLinear:
		v := def.Ratio.ValueFromSeconds(master)
		return Rendering{
			Calendar: def.Name,
			Math:     def.Math,
			Value:    &v,
			Display:  fmt.Sprintf("%.2f", v),
		}, nil
	default:
		return Rendering{}, fmt.Errorf("calendar %q: %w: %q", def.Name, ErrUnknownMathType, def.Math)
	}
}

// format renders fields as a display string, using the month's name when the
// lookup table provides one.
func (b *BucketDrain) format(f Fields) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Y%d ", f.Year)
	if f.Month >= 1 && f.Month <= len(b.Months) && b.Months[f.Month-1].Name != "" {
		fmt.Fprintf(&sb, "%s ", b.Months[f.Month-1].Name)
	} else {
		fmt.Fprintf(&sb, "M%02d ", f.Month)
	}
	fmt.Fprintf(&sb, "D%02d %02d:%02d:%02d", f.Day, f.Hour, f.Minute, f.Second)
	return sb.String()
}
